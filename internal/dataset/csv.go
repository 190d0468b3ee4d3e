package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// table is a CSV file held in memory with columns addressed by name.
type table struct {
	path   string
	header []string
	index  map[string]int
	rows   [][]string
}

// readTable loads path. The first row is the header and must contain every
// column in required.
func readTable(path string, required ...string) (*table, error) {
	// 1. Open file
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	// 2. Make CSV reader
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	// 3. Read header row
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	t := &table{path: path, header: header, index: make(map[string]int, len(header))}
	for j, h := range header {
		t.index[h] = j
	}
	for _, col := range required {
		if _, ok := t.index[col]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, col)
		}
	}

	// 4. Read each data row
	line := 1
	for {
		record, err := r.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", path, line, err)
		}
		// Skip completely empty lines
		if len(record) == 1 && record[0] == "" {
			continue
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("%s row %d: expected %d columns, got %d", path, line, len(header), len(record))
		}
		t.rows = append(t.rows, record)
	}
	return t, nil
}

func (t *table) has(col string) bool {
	_, ok := t.index[col]
	return ok
}

func (t *table) get(row []string, col string) string {
	return row[t.index[col]]
}

// count parses a numeric cell; an empty cell counts as zero.
func (t *table) count(row []string, col string) (float64, error) {
	s := strings.TrimSpace(t.get(row, col))
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: parse %s (%q): %w", t.path, col, s, err)
	}
	return v, nil
}

func (t *table) date(row []string, col string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(t.get(row, col)))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: parse %s: %w", t.path, col, err)
	}
	return d, nil
}

// within reports whether d lies in [start, end].
func within(d, start, end time.Time) bool {
	return !d.Before(start) && !d.After(end)
}
