// Package fcsv reads 3D Slicer markups fiducial files (.fcsv).
//
// A file is a comma separated table preceded by "#" header lines. The
// "# columns = ..." header names the columns; when it is absent Slicer's
// default column order is assumed.
package fcsv

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chazu/trajscreen/pkg/kernel"
)

// DefaultColumns is the column order Slicer writes.
var DefaultColumns = []string{
	"id", "x", "y", "z", "ow", "ox", "oy", "oz",
	"vis", "sel", "lock", "label", "desc", "associatedNodeID",
}

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("fcsv: missing column")

// Fiducial is one markup point.
type Fiducial struct {
	ID    string
	Label string
	Point kernel.Point3
}

// Points returns the positions of fs in order.
func Points(fs []Fiducial) []kernel.Point3 {
	out := make([]kernel.Point3, len(fs))
	for i, f := range fs {
		out[i] = f.Point
	}
	return out
}

// ReadFile reads the fiducials in the named file.
func ReadFile(path string) ([]Fiducial, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fs, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fs, nil
}

// Read parses fiducials from r. Rows missing a label fall back to the id.
func Read(r io.Reader) ([]Fiducial, error) {
	br := bufio.NewReader(r)
	columns := DefaultColumns
	var body strings.Builder

	line := 0
	for {
		text, err := br.ReadString('\n')
		if text != "" {
			line++
			trimmed := strings.TrimSpace(text)
			switch {
			case strings.HasPrefix(trimmed, "#"):
				if cols, ok := parseColumns(trimmed); ok {
					columns = cols
				}
				// Keep line numbers stable for csv errors.
				body.WriteString("\n")
			default:
				body.WriteString(text)
				if !strings.HasSuffix(text, "\n") {
					body.WriteString("\n")
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	for _, want := range []string{"x", "y", "z"} {
		if _, ok := idx[want]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, want)
		}
	}

	cr := csv.NewReader(strings.NewReader(body.String()))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []Fiducial
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		row, _ := cr.FieldPos(0)

		var xyz [3]float64
		for a, name := range []string{"x", "y", "z"} {
			i := idx[name]
			if i >= len(rec) {
				return nil, fmt.Errorf("line %d: %w %q", row, ErrMissingColumn, name)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %s: %w", row, name, err)
			}
			xyz[a] = v
		}

		f := Fiducial{
			ID:    field(rec, idx, "id"),
			Label: field(rec, idx, "label"),
			Point: kernel.Point3{X: xyz[0], Y: xyz[1], Z: xyz[2]},
		}
		if f.Label == "" {
			f.Label = f.ID
		}
		out = append(out, f)
	}
	return out, nil
}

// parseColumns recognises "# columns = a,b,c".
func parseColumns(line string) ([]string, bool) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "#"))
	key, value, ok := strings.Cut(rest, "=")
	if !ok || strings.TrimSpace(key) != "columns" {
		return nil, false
	}
	var cols []string
	for _, c := range strings.Split(value, ",") {
		cols = append(cols, strings.TrimSpace(c))
	}
	return cols, true
}

func field(rec []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
