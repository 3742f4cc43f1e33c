package launcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/cmeode/internal/checkpoint"
	"github.com/san-kum/cmeode/internal/storage"
)

var errBoom = errors.New("integrator blew up")

type fakeRunner struct {
	dir       string
	delay     time.Duration
	masterErr error
	fail      map[string]error

	active atomic.Int32
	peak   atomic.Int32

	mu  sync.Mutex
	ran []string
}

func (f *fakeRunner) CreateMaster(_ context.Context, intervals int) error {
	if f.masterErr != nil {
		return f.masterErr
	}
	return checkpoint.Write(checkpoint.Path(f.dir, checkpoint.MasterLabel), &checkpoint.Snapshot{
		Label:    checkpoint.MasterLabel,
		Interval: intervals,
		Counts:   map[string]int64{"M_atp_c": 1000},
	})
}

func (f *fakeRunner) RunReplicate(_ context.Context, label string, _ int) error {
	n := f.active.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)
	f.active.Add(-1)

	f.mu.Lock()
	f.ran = append(f.ran, label)
	f.mu.Unlock()
	return f.fail[label]
}

func newTestLauncher(r Runner, st *storage.Store) *Launcher {
	l := New(r, st)
	l.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return l
}

func TestRunAll(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{dir: dir, delay: 20 * time.Millisecond}
	l := newTestLauncher(runner, nil)

	results, summary, err := l.Run(context.Background(), Options{
		Replicates: 4,
		Intervals:  3,
		Cores:      2,
		DataDir:    dir,
	})
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i, r := range results {
		assert.Equal(t, []string{"1", "2", "3", "4"}[i], r.Label)
		assert.True(t, r.OK)
		assert.NoError(t, r.Err)

		snap, err := checkpoint.Read(checkpoint.Path(dir, r.Label))
		require.NoError(t, err)
		assert.Equal(t, checkpoint.MasterLabel, snap.Label, "replicate starts from a byte copy of the master")
	}
	assert.LessOrEqual(t, runner.peak.Load(), int32(2))
	assert.Len(t, runner.ran, 4)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 4, summary.Successful)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, summary.Wall/4, summary.Mean)
	assert.Len(t, Outputs(dir, 4), 4)
}

func TestFailureDoesNotStopSiblings(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{dir: dir, fail: map[string]error{"2": errBoom}}
	l := newTestLauncher(runner, nil)

	results, summary, err := l.Run(context.Background(), Options{Replicates: 3, Intervals: 1, Cores: 1, DataDir: dir})
	require.NoError(t, err)

	assert.Len(t, runner.ran, 3)
	assert.False(t, results[1].OK)
	assert.ErrorIs(t, results[1].Err, errBoom)
	assert.True(t, results[0].OK)
	assert.True(t, results[2].OK)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
}

func TestMasterFailureAborts(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{dir: dir, masterErr: errBoom}
	l := newTestLauncher(runner, nil)

	results, _, err := l.Run(context.Background(), Options{Replicates: 2, Intervals: 1, DataDir: dir})
	assert.ErrorIs(t, err, errBoom)
	assert.Nil(t, results)
	assert.Empty(t, runner.ran)
}

func TestRegistryRecordsRuns(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := storage.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer st.Close()

	runner := &fakeRunner{dir: dir, fail: map[string]error{"3": errBoom}}
	l := newTestLauncher(runner, st)

	results, _, err := l.Run(ctx, Options{Replicates: 3, Intervals: 2, Cores: 3, DataDir: dir})
	require.NoError(t, err)

	runs, err := st.List(ctx, l.Batch())
	require.NoError(t, err)
	require.Len(t, runs, 3)

	byLabel := make(map[string]storage.RunRecord)
	for _, r := range runs {
		byLabel[r.Label] = r
		assert.Equal(t, 2, r.Intervals)
	}
	assert.Equal(t, storage.StatusDone, byLabel["1"].Status)
	assert.Equal(t, storage.StatusFailed, byLabel["3"].Status)
	assert.Equal(t, errBoom.Error(), byLabel["3"].Error)
	assert.Equal(t, results[2].RunID, byLabel["3"].ID)
}

func TestEvents(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{dir: dir, fail: map[string]error{"1": errBoom}}
	l := newTestLauncher(runner, nil)

	ch := make(chan Event, 32)
	l.SetEvents(ch)
	_, _, err := l.Run(context.Background(), Options{Replicates: 2, Intervals: 1, DataDir: dir})
	require.NoError(t, err)
	close(ch)

	counts := make(map[EventKind]int)
	var first []EventKind
	for ev := range ch {
		counts[ev.Kind]++
		if len(first) < 2 {
			first = append(first, ev.Kind)
		}
		if ev.Kind == Failed {
			assert.Equal(t, "1", ev.Label)
			assert.ErrorIs(t, ev.Err, errBoom)
		}
	}
	assert.Equal(t, []EventKind{MasterStarted, MasterReady}, first)
	assert.Equal(t, 2, counts[Started])
	assert.Equal(t, 1, counts[Finished])
	assert.Equal(t, 1, counts[Failed])
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no replicates", Options{Replicates: 0, Intervals: 1, DataDir: "d"}},
		{"no intervals", Options{Replicates: 1, Intervals: 0, DataDir: "d"}},
		{"negative init", Options{Replicates: 1, Intervals: 1, InitIntervals: -1, DataDir: "d"}},
		{"negative cores", Options{Replicates: 1, Intervals: 1, Cores: -2, DataDir: "d"}},
		{"no data dir", Options{Replicates: 1, Intervals: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New(&fakeRunner{}, nil).Run(context.Background(), tt.opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 3, Options{Replicates: 3, Cores: 8}.Workers())
	assert.Equal(t, 4, Options{Replicates: 10, Cores: 4}.Workers())
	assert.GreaterOrEqual(t, Options{Replicates: 2}.Workers(), 1)
	assert.LessOrEqual(t, Options{Replicates: 2}.Workers(), 2)
}

func TestMissingMasterFailsReplicate(t *testing.T) {
	dir := t.TempDir()
	l := newTestLauncher(&noMasterRunner{}, nil)

	results, summary, err := l.Run(context.Background(), Options{Replicates: 1, Intervals: 1, DataDir: dir})
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, checkpoint.ErrNoCheckpoint)
	assert.Equal(t, 1, summary.Failed)
}

type noMasterRunner struct{}

func (noMasterRunner) CreateMaster(context.Context, int) error { return nil }

func (noMasterRunner) RunReplicate(context.Context, string, int) error { return nil }
