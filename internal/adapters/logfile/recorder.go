package logfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Recorder appends completed movements to a movement log, so live sessions
// can grow a library that Read accepts later.
type Recorder struct {
	mu     sync.Mutex
	f      *os.File
	nextID int
}

// OpenRecorder opens path for appending, writing the header if the file is
// missing or empty. Ids continue after the largest id already in the file.
// A non-empty file that is not a valid movement log is refused with
// ErrMalformedLog, since appending to it could merge new movements into
// existing paths.
func OpenRecorder(path string) (*Recorder, error) {
	nextID := 0
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("stat recording: %w", err)
	case info.Size() > 0:
		existing, err := ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("open recording: %w", err)
		}
		for _, p := range existing {
			nextID = max(nextID, p.ID+1)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	info, err = f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat recording: %w", err)
	}
	if info.Size() == 0 {
		cw := csv.NewWriter(f)
		_ = cw.Write(Header)
		cw.Flush()
		if err := cw.Error(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write recording header: %w", err)
		}
	}
	return &Recorder{f: f, nextID: nextID}, nil
}

// Record appends p under the next free id and returns that id.
func (r *Recorder) Record(p Path) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p.ID = r.nextID
	cw := csv.NewWriter(r.f)
	if err := writePath(cw, p); err != nil {
		return 0, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("append recording: %w", err)
	}
	r.nextID++
	return p.ID, nil
}

// Close closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}
