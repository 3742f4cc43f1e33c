// Package flux appends per-reaction flux snapshots to per-replicate logs.
//
// Three logs exist per replicate label:
//
//	rep-<label>-fluxDF-start.csv   fluxes at the start of each interval
//	rep-<label>-fluxDF_final.csv   fluxes at the end of each interval
//	rep-<label>-fluxDF.csv         same rows as _final
//
// The _final and plain logs carry identical content. Both are kept because
// downstream analysis scripts read one or the other.
//
// Logs are only ever appended to. Each write adds one headerless row per
// reaction, "index,reactionID,fluxValue", with index restarting at 0.
package flux

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

type Kind int

const (
	Start Kind = iota
	Final
	Interval
)

func (k Kind) suffix() string {
	switch k {
	case Start:
		return "-fluxDF-start.csv"
	case Final:
		return "-fluxDF_final.csv"
	default:
		return "-fluxDF.csv"
	}
}

func (k Kind) String() string {
	switch k {
	case Start:
		return "start"
	case Final:
		return "final"
	default:
		return "interval"
	}
}

// Kinds lists every log kind in write order.
func Kinds() []Kind { return []Kind{Start, Final, Interval} }

func LogPath(dir, label string, kind Kind) string {
	return filepath.Join(dir, "rep-"+label+kind.suffix())
}

type Recorder struct {
	dir    string
	logger *slog.Logger
}

func NewRecorder(dir string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{dir: dir, logger: logger}
}

func (r *Recorder) Dir() string { return r.dir }

// RecordInterval appends start to the start log and end to both end-of-
// interval logs. All three slices must have the same length.
func (r *Recorder) RecordInterval(label string, start, end []float64, reactionIDs []string) error {
	if len(start) != len(reactionIDs) || len(end) != len(reactionIDs) {
		return fmt.Errorf("flux: %d reactions but %d start and %d end values", len(reactionIDs), len(start), len(end))
	}

	if err := r.appendRows(LogPath(r.dir, label, Start), start, reactionIDs); err != nil {
		return err
	}
	for _, kind := range []Kind{Final, Interval} {
		if err := r.appendRows(LogPath(r.dir, label, kind), end, reactionIDs); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) appendRows(path string, values []float64, ids []string) error {
	f, err := openAppend(path)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("flux log directory missing, recreating", "path", path)
		if mkErr := os.MkdirAll(filepath.Dir(path), 0755); mkErr != nil {
			return fmt.Errorf("flux: recreate log dir: %w", mkErr)
		}
		f, err = openAppend(path)
	}
	if err != nil {
		return fmt.Errorf("flux: open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for i, id := range ids {
		row := []string{
			strconv.Itoa(i),
			id,
			strconv.FormatFloat(values[i], 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("flux: write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flux: flush %s: %w", path, err)
	}
	return f.Close()
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}
