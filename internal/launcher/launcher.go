// Package launcher runs a batch of replicates in parallel from one shared
// master checkpoint.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/cmeode/internal/checkpoint"
	"github.com/san-kum/cmeode/internal/storage"
	"github.com/san-kum/cmeode/internal/timecourse"
)

var ErrInvalidOptions = errors.New("launcher: invalid options")

// Runner evolves checkpoints; experiment.Experiment implements it.
type Runner interface {
	CreateMaster(ctx context.Context, intervals int) error
	RunReplicate(ctx context.Context, label string, intervals int) error
}

type Options struct {
	Replicates    int
	Intervals     int
	InitIntervals int
	Cores         int // 0 means every CPU
	DataDir       string
}

func (o Options) validate() error {
	switch {
	case o.Replicates < 1:
		return fmt.Errorf("%w: replicates must be at least 1, got %d", ErrInvalidOptions, o.Replicates)
	case o.Intervals < 1:
		return fmt.Errorf("%w: intervals must be at least 1, got %d", ErrInvalidOptions, o.Intervals)
	case o.InitIntervals < 0:
		return fmt.Errorf("%w: init intervals must not be negative, got %d", ErrInvalidOptions, o.InitIntervals)
	case o.Cores < 0:
		return fmt.Errorf("%w: cores must not be negative, got %d", ErrInvalidOptions, o.Cores)
	case o.DataDir == "":
		return fmt.Errorf("%w: data dir is required", ErrInvalidOptions)
	}
	return nil
}

// Workers is the number of replicates run at once.
func (o Options) Workers() int {
	cores := o.Cores
	if cores == 0 {
		cores = runtime.NumCPU()
	}
	return max(1, min(o.Replicates, cores))
}

type Result struct {
	Label   string
	RunID   string
	OK      bool
	Runtime time.Duration
	Err     error
}

type Summary struct {
	Total      int
	Successful int
	Failed     int
	Wall       time.Duration
	Mean       time.Duration // wall time per replicate
}

type Launcher struct {
	runner Runner
	store  *storage.Store
	events chan<- Event
	logger *slog.Logger
	batch  string
	now    func() time.Time
}

// New returns a launcher over runner. store may be nil to skip the run
// registry.
func New(runner Runner, store *storage.Store) *Launcher {
	return &Launcher{
		runner: runner,
		store:  store,
		logger: slog.Default(),
		batch:  storage.NewBatch(),
		now:    time.Now,
	}
}

func (l *Launcher) SetLogger(logger *slog.Logger) { l.logger = logger }

// SetEvents sends progress events to ch. The launcher never closes it.
func (l *Launcher) SetEvents(ch chan<- Event) { l.events = ch }

func (l *Launcher) Batch() string { return l.batch }

// Run creates the master checkpoint, then runs replicates 1..N, each from a
// copy of it. A failed replicate is reported in its Result and does not
// stop the others; only a failed master aborts the batch.
func (l *Launcher) Run(ctx context.Context, opts Options) ([]Result, Summary, error) {
	if err := opts.validate(); err != nil {
		return nil, Summary{}, err
	}
	start := l.now()
	workers := opts.Workers()
	l.logger.Info("starting replicates",
		"batch", l.batch,
		"replicates", opts.Replicates,
		"intervals", opts.Intervals,
		"workers", workers,
	)

	l.emit(ctx, Event{Kind: MasterStarted, Label: checkpoint.MasterLabel})
	if err := l.runner.CreateMaster(ctx, opts.InitIntervals); err != nil {
		l.emit(ctx, Event{Kind: Failed, Label: checkpoint.MasterLabel, Err: err})
		return nil, Summary{}, fmt.Errorf("create master: %w", err)
	}
	l.emit(ctx, Event{Kind: MasterReady, Label: checkpoint.MasterLabel})

	results := make([]Result, opts.Replicates)
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range opts.Replicates {
		label := strconv.Itoa(i + 1)
		g.Go(func() error {
			results[i] = l.runOne(ctx, label, opts)
			return nil
		})
	}
	_ = g.Wait()

	summary := summarize(results, l.now().Sub(start))
	l.logger.Info("replicates done",
		"batch", l.batch,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"wall", summary.Wall.Round(time.Millisecond),
	)
	return results, summary, nil
}

func (l *Launcher) runOne(ctx context.Context, label string, opts Options) Result {
	start := l.now()
	res := Result{Label: label}
	logger := l.logger.With("replicate", label)

	if l.store != nil {
		id, err := l.store.Begin(ctx, l.batch, label, opts.Intervals)
		if err != nil {
			logger.Warn("run registry unavailable", "error", err)
		}
		res.RunID = id
	}

	l.emit(ctx, Event{Kind: Started, Label: label})
	err := checkpoint.CopyMaster(opts.DataDir, label)
	if err == nil {
		err = l.runner.RunReplicate(ctx, label, opts.Intervals)
	}
	res.Runtime = l.now().Sub(start)
	res.OK = err == nil
	res.Err = err

	if res.RunID != "" {
		// record the outcome even when the batch was cancelled
		if ferr := l.store.Finish(context.WithoutCancel(ctx), res.RunID, err); ferr != nil {
			logger.Warn("record run outcome", "error", ferr)
		}
	}

	if err != nil {
		logger.Error("replicate failed", "error", err)
		l.emit(ctx, Event{Kind: Failed, Label: label, Runtime: res.Runtime, Err: err})
	} else {
		logger.Info("replicate done", "runtime", res.Runtime.Round(time.Millisecond))
		l.emit(ctx, Event{Kind: Finished, Label: label, Runtime: res.Runtime})
	}
	return res
}

func (l *Launcher) emit(ctx context.Context, ev Event) {
	if l.events == nil {
		return
	}
	select {
	case l.events <- ev:
	case <-ctx.Done():
	}
}

func summarize(results []Result, wall time.Duration) Summary {
	s := Summary{Total: len(results), Wall: wall}
	for _, r := range results {
		if r.OK {
			s.Successful++
		} else {
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.Mean = wall / time.Duration(s.Total)
	}
	return s
}

type Output struct {
	Path string
	Size int64
}

// Outputs lists the checkpoint and timecourse files present for replicates
// 1..n.
func Outputs(dir string, n int) []Output {
	var out []Output
	for i := 1; i <= n; i++ {
		label := strconv.Itoa(i)
		for _, p := range []string{checkpoint.Path(dir, label), timecourse.Path(dir, label)} {
			info, err := os.Stat(p)
			if err != nil {
				continue
			}
			out = append(out, Output{Path: p, Size: info.Size()})
		}
	}
	return out
}
