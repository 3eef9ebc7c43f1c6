package library

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/template"
	"github.com/phillpas/ktm/pkg/logger"
)

// EvaluateOptions tunes an evaluation run.
type EvaluateOptions struct {
	// Fraction of the library drawn as candidates in self-evaluation. At least one is drawn.
	Fraction float64
	// MinPrefix is the first prefix length scored per candidate.
	MinPrefix int
	// Cumulative ranks templates by their score summed over all prefixes so far.
	Cumulative bool
}

// DefaultEvaluateOptions is leave-one-out over a tenth of the library, from
// four points on, with cumulative ranking.
func DefaultEvaluateOptions() EvaluateOptions {
	return EvaluateOptions{Fraction: 0.1, MinPrefix: 4, Cumulative: true}
}

// DefaultAgainstOptions scores every template of another library from two
// points on, per prefix.
func DefaultAgainstOptions() EvaluateOptions {
	return EvaluateOptions{Fraction: 1, MinPrefix: 2}
}

// Job is one candidate to evaluate against the library.
type Job struct {
	Seq        int
	Candidate  *template.Template
	Exclude    int
	MinPrefix  int
	Cumulative bool
}

// Row is one (candidate, prefix length) outcome.
type Row struct {
	Seq             int
	CandidateID     int
	Sigma           int
	Hertz           int
	NumPoints       int
	PctTime         float64
	PctDistance     float64
	Elapsed         float64
	WinnerID        int
	WinnerIndex     int
	Score           float64
	Error1DUnsigned float64
	Error1DSigned   float64
	Error2D         float64
	InTarget        bool
}

// Plan draws leave-one-out candidates from this library. Overshoot
// templates are never drawn.
func (l *Library) Plan(opts EvaluateOptions) ([]Job, error) {
	if len(l.templates) < 2 {
		return nil, fmt.Errorf("%w: leave-one-out needs at least two templates", ErrEmptyLibrary)
	}
	var eligible []int
	for i, t := range l.templates {
		if !t.IsOvershoot() {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: every template is an overshoot", ErrNoCandidates)
	}

	n := int(math.Floor(opts.Fraction * float64(len(l.templates))))
	n = max(1, min(n, len(eligible)))

	rng := l.rand()
	rng.Shuffle(len(eligible), func(i, j int) { eligible[i], eligible[j] = eligible[j], eligible[i] })

	jobs := make([]Job, n)
	for seq, idx := range eligible[:n] {
		jobs[seq] = Job{
			Seq:        seq,
			Candidate:  l.templates[idx],
			Exclude:    idx,
			MinPrefix:  opts.MinPrefix,
			Cumulative: opts.Cumulative,
		}
	}
	return jobs, nil
}

// PlanAgainst makes every template of other a candidate against this library.
func (l *Library) PlanAgainst(other *Library, opts EvaluateOptions) ([]Job, error) {
	if other.cfg != l.cfg {
		return nil, fmt.Errorf("%w: candidates have %+v, library has %+v", ErrConfigMismatch, other.cfg, l.cfg)
	}
	if len(l.templates) == 0 {
		return nil, ErrEmptyLibrary
	}
	if len(other.templates) == 0 {
		return nil, ErrNoCandidates
	}
	jobs := make([]Job, len(other.templates))
	for i, t := range other.templates {
		jobs[i] = Job{
			Seq:        i,
			Candidate:  t,
			Exclude:    -1,
			MinPrefix:  opts.MinPrefix,
			Cumulative: opts.Cumulative,
		}
	}
	return jobs, nil
}

// RunJob scores each prefix of the job's candidate against every template
// but the excluded one. It only reads the library.
func (l *Library) RunJob(ctx context.Context, job Job) ([]Row, error) {
	cand := job.Candidate
	first := max(1, job.MinPrefix)
	last := cand.ProfilePoints()
	if first > last {
		return nil, nil
	}

	var cum []float64
	if job.Cumulative {
		cum = make([]float64, len(l.templates))
	}

	rows := make([]Row, 0, last-first+1)
	for k := first; k <= last; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		view := cand.Prefix(k)

		best, bestScore := -1, math.Inf(1)
		var comp template.Comparison
		for i, t := range l.templates {
			if i == job.Exclude {
				continue
			}
			c := view.CompareTo(t)
			s := c.Score
			if cum != nil {
				cum[i] += s
				s = cum[i]
			}
			if best < 0 || s < bestScore {
				best, bestScore, comp = i, s, c
			}
		}
		if best < 0 {
			return nil, ErrEmptyLibrary
		}
		rows = append(rows, l.row(job, view, comp, best, bestScore))
	}
	return rows, nil
}

func (l *Library) row(job Job, view template.View, comp template.Comparison, winner int, score float64) Row {
	cand := job.Candidate
	win := l.templates[winner]

	pred, _ := model.Project(l.mode, cand.Start().Pos(), view.Last().Pos(), win.Distance())
	r := Row{
		Seq:             job.Seq,
		CandidateID:     cand.ID(),
		Sigma:           l.cfg.KernelStdDev,
		Hertz:           l.cfg.Hertz,
		NumPoints:       view.NumPoints(),
		PctTime:         comp.PctTime,
		PctDistance:     comp.PctDistance,
		Elapsed:         comp.Elapsed,
		WinnerID:        win.ID(),
		WinnerIndex:     winner,
		Score:           score,
		Error1DSigned:   cand.Distance() - win.Distance(),
		Error1DUnsigned: math.Abs(cand.Distance() - win.Distance()),
		Error2D:         model.Distance(cand.End().Pos(), pred),
	}
	if l.mode == model.Mode1D {
		r.InTarget = r.Error1DUnsigned <= l.hitRadius
	} else {
		r.InTarget = r.Error2D <= l.hitRadius
	}
	return r
}

// SortRows orders rows by candidate, then prefix length.
func SortRows(rows []Row) {
	slices.SortStableFunc(rows, func(a, b Row) int {
		if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
			return c
		}
		return cmp.Compare(a.NumPoints, b.NumPoints)
	})
}

// Evaluate runs leave-one-out evaluation on this library, one candidate at
// a time.
func (l *Library) Evaluate(ctx context.Context, opts EvaluateOptions) ([]Row, error) {
	jobs, err := l.Plan(opts)
	if err != nil {
		return nil, err
	}
	return l.runAll(ctx, jobs)
}

// EvaluateAgainst scores every template of other against this library.
func (l *Library) EvaluateAgainst(ctx context.Context, other *Library, opts EvaluateOptions) ([]Row, error) {
	jobs, err := l.PlanAgainst(other, opts)
	if err != nil {
		return nil, err
	}
	return l.runAll(ctx, jobs)
}

func (l *Library) runAll(ctx context.Context, jobs []Job) ([]Row, error) {
	l.logger.Info(ctx, "evaluation started", logger.Int("candidates", len(jobs)))
	var rows []Row
	for _, job := range jobs {
		r, err := l.RunJob(ctx, job)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", job.Candidate.ID(), err)
		}
		rows = append(rows, r...)
	}
	l.logger.Info(ctx, "evaluation finished", logger.Int("rows", len(rows)))
	return rows, nil
}
