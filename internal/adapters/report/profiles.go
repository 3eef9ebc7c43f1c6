package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/phillpas/ktm/internal/domain/library"
)

// DefaultProfileLimit caps how many templates one chart draws.
const DefaultProfileLimit = 50

// RenderProfiles writes an HTML page charting the smoothed velocity
// profile of up to limit templates. limit <= 0 uses DefaultProfileLimit.
func RenderProfiles(w io.Writer, lib *library.Library, limit int) error {
	if limit <= 0 {
		limit = DefaultProfileLimit
	}
	n := min(limit, lib.Len())
	cfg := lib.Config()

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "KTM template profiles", Width: "100%", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Template velocity profiles",
			Subtitle: fmt.Sprintf("templates=%d of %d hz=%d sigma=%d mode=%s", n, lib.Len(), cfg.Hertz, cfg.KernelStdDev, lib.Mode()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(n <= 20)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "time (ms)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "speed (px/ms)", NameLocation: "middle", NameGap: 40}),
	)

	for i := 0; i < n; i++ {
		t := lib.At(i)
		smoothed := t.Prefix(t.ProfilePoints()).Smoothed()
		data := make([]opts.LineData, len(smoothed))
		for j, s := range smoothed {
			data[j] = opts.LineData{Value: []interface{}{s.T, s.V}}
		}
		name := fmt.Sprintf("path %d", t.ID())
		if t.IsOvershoot() {
			name += " (overshoot)"
		}
		line.AddSeries(name, data)
	}

	return line.Render(w)
}
