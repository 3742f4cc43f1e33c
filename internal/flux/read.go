package flux

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

type Row struct {
	Index      int
	ReactionID string
	Value      float64
}

// ReadLog parses every row of a flux log in file order.
func ReadLog(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 3
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("flux: read %s: %w", path, err)
	}

	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		idx, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("flux: %s line %d: %w", path, i+1, err)
		}
		v, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("flux: %s line %d: %w", path, i+1, err)
		}
		rows = append(rows, Row{Index: idx, ReactionID: rec[1], Value: v})
	}
	return rows, nil
}

// Series returns the values logged for one reaction, one per interval, in
// chronological order.
func Series(rows []Row, reactionID string) []float64 {
	var out []float64
	for _, r := range rows {
		if r.ReactionID == reactionID {
			out = append(out, r.Value)
		}
	}
	return out
}

// Intervals counts how many complete interval writes a log holds.
func Intervals(rows []Row) int {
	n := 0
	for _, r := range rows {
		if r.Index == 0 {
			n++
		}
	}
	return n
}
