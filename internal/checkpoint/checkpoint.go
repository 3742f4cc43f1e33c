// Package checkpoint persists replicate particle counts between intervals.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/cmeode/internal/species"
)

// MasterLabel names the shared starting checkpoint every replicate copies.
const MasterLabel = "0"

var ErrNoCheckpoint = errors.New("checkpoint: not found")

type Snapshot struct {
	Label    string           `yaml:"label"`
	Interval int              `yaml:"interval"`
	Time     float64          `yaml:"time"`
	Counts   map[string]int64 `yaml:"counts"`
}

func Path(dir, label string) string {
	return filepath.Join(dir, "out-"+label+".yaml")
}

func FromState(label string, interval int, t float64, s *species.State) *Snapshot {
	return &Snapshot{Label: label, Interval: interval, Time: t, Counts: s.Map()}
}

// Names returns the species in the snapshot, sorted.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Counts))
	for n := range s.Counts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// State loads the snapshot into a view over tbl. Every table species must be
// present in the snapshot.
func (s *Snapshot) State(tbl *species.Table) (*species.State, error) {
	st, err := species.FromMap(tbl, s.Counts)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", s.Label, err)
	}
	return st, nil
}

func Write(path string, snap *Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func Read(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoCheckpoint, path)
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	if snap.Counts == nil {
		snap.Counts = make(map[string]int64)
	}
	return &snap, nil
}

// CopyMaster copies the master checkpoint in dir to the replicate's own file
// byte for byte.
func CopyMaster(dir, label string) error {
	src, err := os.Open(Path(dir, MasterLabel))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: master in %s", ErrNoCheckpoint, dir)
	}
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(Path(dir, label))
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy master to replicate %s: %w", label, err)
	}
	return dst.Close()
}
