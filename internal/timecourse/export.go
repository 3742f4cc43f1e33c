package timecourse

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
)

type ExportData struct {
	Label   string             `json:"label"`
	Species []string           `json:"species"`
	Times   []float64          `json:"times"`
	Counts  map[string][]int64 `json:"counts"`
	Steps   int                `json:"steps"`
}

// ExportCSV writes the wide table as Species,t_0,t_1,... with empty cells for
// missing values.
func ExportCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)

	head := make([]string, 0, len(t.Times)+1)
	head = append(head, "Species")
	for _, tm := range t.Times {
		head = append(head, columnName(tm))
	}
	if err := cw.Write(head); err != nil {
		return err
	}

	for i, name := range t.Species {
		row := make([]string, 0, len(t.Times)+1)
		row = append(row, name)
		for _, v := range t.Counts[i] {
			if v == Missing {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatInt(v, 10))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ExportJSON(w io.Writer, label string, t *Table) error {
	data := ExportData{
		Label:   label,
		Species: t.Species,
		Times:   t.Times,
		Counts:  make(map[string][]int64, len(t.Species)),
		Steps:   len(t.Times),
	}
	for i, name := range t.Species {
		data.Counts[name] = t.Counts[i]
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
