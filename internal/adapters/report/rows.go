// Package report writes what the predictor and the evaluator produce: the
// evaluation CSV, the live prediction trace, summaries and charts.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/phillpas/ktm/internal/domain/library"
)

// RowHeader is the first line of an evaluation report.
var RowHeader = []string{
	"candidate_id", "sigma", "hz", "num_points", "pct_time", "pct_dist_crow", "time",
	"win_id", "win_crow_1D_error_unsigned", "win_crow_1D_error_signed", "win_2D_error", "in_target",
}

// WriteRows writes rows as an evaluation report, header first.
func WriteRows(w io.Writer, rows []library.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RowHeader); err != nil {
		return err
	}
	for i := range rows {
		r := &rows[i]
		rec := []string{
			strconv.Itoa(r.CandidateID),
			strconv.Itoa(r.Sigma),
			strconv.Itoa(r.Hertz),
			strconv.Itoa(r.NumPoints),
			formatFloat(r.PctTime),
			formatFloat(r.PctDistance),
			formatFloat(r.Elapsed),
			strconv.Itoa(r.WinnerID),
			formatFloat(r.Error1DUnsigned),
			formatFloat(r.Error1DSigned),
			formatFloat(r.Error2D),
			formatBool(r.InTarget),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRowsFile creates (or truncates) path and writes rows to it.
func WriteRowsFile(path string, rows []library.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := WriteRows(f, rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
