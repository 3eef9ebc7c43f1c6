package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	hitColor   = color.RGBA{R: 0x26, G: 0x82, B: 0x8e, A: 0xff}
	errorColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// AccuracyPlot charts the in-target rate and the mean 2D error (scaled to
// its maximum) against % time.
func AccuracyPlot(s Summary) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Prediction accuracy (%d rows, %d candidates)", s.Rows, s.Candidates)
	p.X.Label.Text = "% of movement time"
	p.Y.Label.Text = "fraction"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	maxErr := 0.0
	for _, b := range s.Bins {
		maxErr = max(maxErr, b.MeanError2D)
	}

	hits := make(plotter.XYs, 0, len(s.Bins))
	errs := make(plotter.XYs, 0, len(s.Bins))
	for _, b := range s.Bins {
		if b.Rows == 0 {
			continue
		}
		mid := (b.Lo + b.Hi) / 2
		hits = append(hits, plotter.XY{X: mid, Y: b.HitRate})
		if maxErr > 0 {
			errs = append(errs, plotter.XY{X: mid, Y: b.MeanError2D / maxErr})
		}
	}

	if len(hits) > 0 {
		line, points, err := plotter.NewLinePoints(hits)
		if err != nil {
			return nil, err
		}
		line.Color = hitColor
		line.Width = vg.Points(1.5)
		points.Color = hitColor
		p.Add(line, points)
		p.Legend.Add("in target", line, points)
	}
	if len(errs) > 0 {
		line, err := plotter.NewLine(errs)
		if err != nil {
			return nil, err
		}
		line.Color = errorColor
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("mean 2D error / %.1f", maxErr), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SavePlot renders the accuracy plot to file; the format follows the
// extension (png, svg, pdf).
func SavePlot(file string, s Summary) error {
	p, err := AccuracyPlot(s)
	if err != nil {
		return err
	}
	if err := p.Save(plotWidth, plotHeight, file); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}

// WritePlotPNG renders the accuracy plot as PNG to w.
func WritePlotPNG(w io.Writer, s Summary) error {
	p, err := AccuracyPlot(s)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
