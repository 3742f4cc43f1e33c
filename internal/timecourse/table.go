package timecourse

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
)

type Row struct {
	Time    float64
	Species string
	Count   int64
}

// Read parses a long-format log, skipping its header.
func Read(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 3
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("timecourse: read %s: %w", path, err)
	}

	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		if rec[0] == header[0] {
			continue
		}
		t, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("timecourse: %s line %d: %w", path, i+1, err)
		}
		n, err := strconv.ParseInt(rec[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("timecourse: %s line %d: %w", path, i+1, err)
		}
		rows = append(rows, Row{Time: t, Species: rec[1], Count: n})
	}
	return rows, nil
}

// Missing marks a species absent at a timepoint.
const Missing int64 = -1

// Table is the wide view: one row per species, one column per timepoint.
type Table struct {
	Species []string
	Times   []float64
	Counts  [][]int64 // [species][time]
}

// Wide pivots rows into a Table. Species keep first-appearance order, times
// are sorted, and a repeated (time, species) pair keeps the last value.
func Wide(rows []Row) *Table {
	speciesIdx := make(map[string]int)
	timeSet := make(map[float64]bool)
	tbl := &Table{}
	for _, r := range rows {
		if _, ok := speciesIdx[r.Species]; !ok {
			speciesIdx[r.Species] = len(tbl.Species)
			tbl.Species = append(tbl.Species, r.Species)
		}
		timeSet[r.Time] = true
	}
	for t := range timeSet {
		tbl.Times = append(tbl.Times, t)
	}
	sort.Float64s(tbl.Times)

	timeIdx := make(map[float64]int, len(tbl.Times))
	for i, t := range tbl.Times {
		timeIdx[t] = i
	}

	tbl.Counts = make([][]int64, len(tbl.Species))
	for i := range tbl.Counts {
		tbl.Counts[i] = make([]int64, len(tbl.Times))
		for j := range tbl.Counts[i] {
			tbl.Counts[i][j] = Missing
		}
	}
	for _, r := range rows {
		tbl.Counts[speciesIdx[r.Species]][timeIdx[r.Time]] = r.Count
	}
	return tbl
}

// Series returns one species' counts in time order, or false if unknown.
func (t *Table) Series(name string) ([]int64, bool) {
	for i, s := range t.Species {
		if s == name {
			return t.Counts[i], true
		}
	}
	return nil, false
}

func columnName(t float64) string {
	return "t_" + strconv.FormatFloat(t, 'f', -1, 64)
}
