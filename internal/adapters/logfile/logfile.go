// Package logfile reads and writes movement logs: CSV files holding one row
// per pointer sample, grouped into paths by id.
//
//	pathId,x,y,timestamp,isError,targetX,targetY
package logfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/phillpas/ktm/internal/domain/model"
)

// Header is written as the first line of every movement log.
var Header = []string{"pathId", "x", "y", "timestamp", "isError", "targetX", "targetY"}

const numColumns = 7

// Path is one recorded movement.
type Path struct {
	ID      int
	IsError bool
	Target  model.Point
	Points  []model.TimedPoint
}

// Read parses a movement log. Paths come back in order of first appearance;
// rows of one path need not be contiguous. IsError and Target are taken from
// the first row of each path.
func Read(r io.Reader) ([]Path, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numColumns
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header", ErrMalformedLog)
		}
		return nil, fmt.Errorf("%w: header: %w", ErrMalformedLog, err)
	}

	var paths []Path
	index := make(map[int]int)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedLog, err)
		}
		line, _ := cr.FieldPos(0)

		id, pt, isError, target, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedLog, line, err)
		}

		i, ok := index[id]
		if !ok {
			i = len(paths)
			index[id] = i
			paths = append(paths, Path{ID: id, IsError: isError, Target: target})
		}
		paths[i].Points = append(paths[i].Points, pt)
	}

	for _, p := range paths {
		if len(p.Points) < 2 {
			return nil, fmt.Errorf("%w: path %d has %d point(s)", ErrMalformedLog, p.ID, len(p.Points))
		}
	}
	return paths, nil
}

// ReadFile opens and parses the log at path.
func ReadFile(path string) ([]Path, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open movement log: %w", err)
	}
	defer f.Close()

	paths, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return paths, nil
}

func parseRow(rec []string) (id int, pt model.TimedPoint, isError bool, target model.Point, err error) {
	if id, err = strconv.Atoi(rec[0]); err != nil {
		return 0, pt, false, target, fmt.Errorf("pathId: %w", err)
	}
	if pt.X, err = strconv.ParseFloat(rec[1], 64); err != nil {
		return 0, pt, false, target, fmt.Errorf("x: %w", err)
	}
	if pt.Y, err = strconv.ParseFloat(rec[2], 64); err != nil {
		return 0, pt, false, target, fmt.Errorf("y: %w", err)
	}
	if pt.T, err = strconv.ParseInt(rec[3], 10, 64); err != nil {
		return 0, pt, false, target, fmt.Errorf("timestamp: %w", err)
	}
	switch {
	case strings.EqualFold(rec[4], "true"):
		isError = true
	case strings.EqualFold(rec[4], "false"):
	default:
		return 0, pt, false, target, fmt.Errorf("isError: %q is not True or False", rec[4])
	}
	if target.X, err = strconv.ParseFloat(rec[5], 64); err != nil {
		return 0, pt, false, target, fmt.Errorf("targetX: %w", err)
	}
	if target.Y, err = strconv.ParseFloat(rec[6], 64); err != nil {
		return 0, pt, false, target, fmt.Errorf("targetY: %w", err)
	}
	return id, pt, isError, target, nil
}

// Write emits a complete movement log including the header.
func Write(w io.Writer, paths []Path) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, p := range paths {
		if err := writePath(cw, p); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writePath(cw *csv.Writer, p Path) error {
	errFlag := "False"
	if p.IsError {
		errFlag = "True"
	}
	id := strconv.Itoa(p.ID)
	tx := formatFloat(p.Target.X)
	ty := formatFloat(p.Target.Y)
	for _, pt := range p.Points {
		rec := []string{id, formatFloat(pt.X), formatFloat(pt.Y), strconv.FormatInt(pt.T, 10), errFlag, tx, ty}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
