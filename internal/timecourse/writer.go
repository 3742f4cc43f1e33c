// Package timecourse records per-replicate particle counts over time.
//
// Counts are appended as long-format rows (time,species,count) so every tick
// costs one append regardless of run length. The wide Species x t_N table is
// rebuilt only when a run is analysed or exported.
package timecourse

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/san-kum/cmeode/internal/species"
)

var header = []string{"time", "species", "count"}

func Path(dir, label string) string {
	return filepath.Join(dir, "timecourse-rep-"+label+".csv")
}

// Writer appends a snapshot of a species view per tick. Offset shifts tick
// times so rows from successive intervals share one global clock.
type Writer struct {
	path       string
	offset     float64
	categories map[species.Category]bool
	logger     *slog.Logger
	opened     bool
}

func NewWriter(dir, label string, offset float64, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{path: Path(dir, label), offset: offset, logger: logger}
}

// Only restricts recorded species to the given categories.
func (w *Writer) Only(cats ...species.Category) *Writer {
	w.categories = make(map[species.Category]bool, len(cats))
	for _, c := range cats {
		w.categories[c] = true
	}
	return w
}

func (w *Writer) Path() string { return w.path }

// OnTick appends one row per recorded species at global time offset+t.
func (w *Writer) OnTick(t float64, s *species.State) error {
	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	ts := strconv.FormatFloat(w.offset+t, 'f', -1, 64)
	tbl := s.Table()
	for i := 0; i < tbl.Len(); i++ {
		id := species.ID(i)
		if w.categories != nil && !w.categories[tbl.Category(id)] {
			continue
		}
		if err := cw.Write([]string{ts, tbl.Name(id), strconv.FormatInt(s.Get(id), 10)}); err != nil {
			return fmt.Errorf("timecourse: write %s: %w", w.path, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("timecourse: flush %s: %w", w.path, err)
	}
	return f.Close()
}

// open appends to an existing log, or creates it with a header. A log that
// disappears after the first write is recreated with a warning.
func (w *Writer) open() (*os.File, error) {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err == nil {
		w.opened = true
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("timecourse: open %s: %w", w.path, err)
	}

	if w.opened {
		w.logger.Warn("timecourse log missing, recreating", "path", w.path)
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return nil, fmt.Errorf("timecourse: create dir: %w", err)
	}
	f, err = os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("timecourse: create %s: %w", w.path, err)
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("timecourse: write header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("timecourse: write header: %w", err)
	}
	w.opened = true
	return f, nil
}

// Reset deletes the log so the next tick starts a fresh file.
func (w *Writer) Reset() error {
	w.opened = false
	if err := os.Remove(w.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("timecourse: reset %s: %w", w.path, err)
	}
	return nil
}
