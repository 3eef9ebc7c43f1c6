package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/phillpas/ktm/internal/domain/predictor"
)

// TraceHeader is the first line of a prediction trace.
var TraceHeader = []string{
	"num_points", "win_id", "raw_x", "raw_y", "time", "pred_x", "pred_y", "pred_dist",
	"act_x", "act_y", "targ_x", "targ_y",
}

func traceRecord(r *predictor.TraceRow) []string {
	return []string{
		strconv.Itoa(r.NumPoints),
		strconv.Itoa(r.WinnerID),
		formatFloat(r.Raw.X),
		formatFloat(r.Raw.Y),
		formatFloat(r.Time),
		formatFloat(r.Predicted.X),
		formatFloat(r.Predicted.Y),
		formatFloat(r.Distance),
		formatFloat(r.Actual.X),
		formatFloat(r.Actual.Y),
		formatFloat(r.Target.X),
		formatFloat(r.Target.Y),
	}
}

// WriteTrace writes a complete trace, header first.
func WriteTrace(w io.Writer, rows []predictor.TraceRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TraceHeader); err != nil {
		return err
	}
	for i := range rows {
		if err := cw.Write(traceRecord(&rows[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// TraceWriter appends completed trials to a trace file shared by every
// session.
type TraceWriter struct {
	mu sync.Mutex
	f  *os.File
	cw *csv.Writer
}

// OpenTraceWriter opens path for appending and writes the header if the
// file is empty.
func OpenTraceWriter(path string) (*TraceWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat trace: %w", err)
	}
	tw := &TraceWriter{f: f, cw: csv.NewWriter(f)}
	if info.Size() == 0 {
		_ = tw.cw.Write(TraceHeader)
		tw.cw.Flush()
		if err := tw.cw.Error(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write trace header: %w", err)
		}
	}
	return tw, nil
}

// Append writes rows and flushes.
func (t *TraceWriter) Append(rows []predictor.TraceRow) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range rows {
		if err := t.cw.Write(traceRecord(&rows[i])); err != nil {
			return fmt.Errorf("append trace: %w", err)
		}
	}
	t.cw.Flush()
	if err := t.cw.Error(); err != nil {
		return fmt.Errorf("append trace: %w", err)
	}
	return nil
}

// Close closes the trace file.
func (t *TraceWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.f.Close()
}
