package report

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/phillpas/ktm/internal/domain/library"
)

// DefaultBins splits % time into tenths.
const DefaultBins = 10

// Summary aggregates an evaluation run.
type Summary struct {
	Rows            int     `json:"rows"`
	Candidates      int     `json:"candidates"`
	HitRate         float64 `json:"hit_rate"`
	MeanError2D     float64 `json:"mean_error_2d"`
	StdError2D      float64 `json:"std_error_2d"`
	MeanError1D     float64 `json:"mean_error_1d"`
	StdError1D      float64 `json:"std_error_1d"`
	MeanSignedError float64 `json:"mean_signed_error_1d"`
	Bins            []Bin   `json:"bins"`
}

// Bin aggregates the rows whose % time falls in [Lo, Hi). The last bin
// also holds % time == 1.
type Bin struct {
	Lo          float64 `json:"lo"`
	Hi          float64 `json:"hi"`
	Rows        int     `json:"rows"`
	HitRate     float64 `json:"hit_rate"`
	MeanError2D float64 `json:"mean_error_2d"`
}

// Summarize computes overall and per-% time statistics. bins <= 0 uses
// DefaultBins.
func Summarize(rows []library.Row, bins int) Summary {
	if bins <= 0 {
		bins = DefaultBins
	}
	s := Summary{Rows: len(rows), Bins: make([]Bin, bins)}
	width := 1 / float64(bins)
	for i := range s.Bins {
		s.Bins[i].Lo = float64(i) * width
		s.Bins[i].Hi = float64(i+1) * width
	}
	if len(rows) == 0 {
		return s
	}

	err2D := make([]float64, len(rows))
	err1D := make([]float64, len(rows))
	signed := make([]float64, len(rows))
	binErr := make([][]float64, bins)
	binHits := make([]int, bins)
	hits := 0
	candidates := make(map[int]struct{})

	for i := range rows {
		r := &rows[i]
		err2D[i] = r.Error2D
		err1D[i] = r.Error1DUnsigned
		signed[i] = r.Error1DSigned
		candidates[r.Seq] = struct{}{}

		b := binIndex(r.PctTime, bins)
		binErr[b] = append(binErr[b], r.Error2D)
		if r.InTarget {
			hits++
			binHits[b]++
		}
	}

	s.Candidates = len(candidates)
	s.HitRate = float64(hits) / float64(len(rows))
	s.MeanError2D, s.StdError2D = meanStd(err2D)
	s.MeanError1D, s.StdError1D = meanStd(err1D)
	s.MeanSignedError = stat.Mean(signed, nil)

	for i := range s.Bins {
		n := len(binErr[i])
		s.Bins[i].Rows = n
		if n == 0 {
			continue
		}
		s.Bins[i].HitRate = float64(binHits[i]) / float64(n)
		s.Bins[i].MeanError2D = stat.Mean(binErr[i], nil)
	}
	return s
}

func binIndex(pct float64, bins int) int {
	b := int(math.Floor(pct * float64(bins)))
	return max(0, min(b, bins-1))
}

// meanStd is stat.MeanStdDev with a zero deviation for a single sample.
func meanStd(x []float64) (float64, float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), 0
	}
	return stat.MeanStdDev(x, nil)
}
