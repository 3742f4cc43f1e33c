// Package experiment assembles a replicate process: it loads the network,
// the optional CME reactions and the replicate's checkpoint, runs one
// interval of coupled simulation and writes the checkpoint back.
package experiment

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"path/filepath"

	"github.com/san-kum/cmeode/internal/checkpoint"
	"github.com/san-kum/cmeode/internal/config"
	"github.com/san-kum/cmeode/internal/flux"
	"github.com/san-kum/cmeode/internal/hook"
	"github.com/san-kum/cmeode/internal/host"
	"github.com/san-kum/cmeode/internal/ledger"
	"github.com/san-kum/cmeode/internal/model"
	"github.com/san-kum/cmeode/internal/replicate"
	"github.com/san-kum/cmeode/internal/species"
	"github.com/san-kum/cmeode/internal/timecourse"
)

// FluxDir is the subdirectory of the data dir holding flux logs.
const FluxDir = "fluxes"

type Experiment struct {
	cfg      *config.Config
	network  *model.Network
	cme      []host.Reaction
	registry *Registry
	logger   *slog.Logger
}

// New validates cfg and loads the network and CME reaction files it names.
func New(cfg *config.Config) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry := NewRegistry()
	if _, err := registry.GetIntegrator(cfg.Integrator); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	network, err := model.Load(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("load network: %w", err)
	}

	var cme []host.Reaction
	if cfg.CME != "" {
		cme, err = host.LoadReactions(cfg.CME)
		if err != nil {
			return nil, fmt.Errorf("load cme reactions: %w", err)
		}
	}

	return &Experiment{
		cfg:      cfg,
		network:  network,
		cme:      cme,
		registry: registry,
		logger:   slog.Default(),
	}, nil
}

func (e *Experiment) SetLogger(l *slog.Logger) { e.logger = l }

func (e *Experiment) Config() *config.Config { return e.cfg }

func (e *Experiment) Network() *model.Network { return e.network }

// CreateMaster writes the master checkpoint from the configured initial
// counts and evolves it for intervals intervals. Every replicate starts
// from a copy of it.
func (e *Experiment) CreateMaster(ctx context.Context, intervals int) error {
	snap, err := checkpoint.Read(e.cfg.Initial)
	if err != nil {
		return fmt.Errorf("read initial state: %w", err)
	}
	snap.Label = checkpoint.MasterLabel
	snap.Interval = 0
	snap.Time = 0
	if err := checkpoint.Write(checkpoint.Path(e.cfg.DataDir, checkpoint.MasterLabel), snap); err != nil {
		return fmt.Errorf("write master checkpoint: %w", err)
	}

	e.logger.Info("creating master checkpoint", "intervals", intervals)
	return e.RunReplicate(ctx, checkpoint.MasterLabel, intervals)
}

// RunReplicate runs intervals consecutive intervals of replicate label,
// reading and rewriting its checkpoint around each one.
func (e *Experiment) RunReplicate(ctx context.Context, label string, intervals int) error {
	for m := 1; m <= intervals; m++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.RunInterval(ctx, label, m); err != nil {
			return fmt.Errorf("interval %d: %w", m, err)
		}
	}
	return nil
}

// RunInterval simulates one interval of replicate label. m is the 1-based
// global interval number.
func (e *Experiment) RunInterval(ctx context.Context, label string, m int) error {
	logger := e.logger.With("replicate", label, "interval", m)
	path := checkpoint.Path(e.cfg.DataDir, label)

	snap, err := checkpoint.Read(path)
	if err != nil {
		return err
	}
	tbl := species.NewTable(snap.Names())
	initial, err := snap.State(tbl)
	if err != nil {
		return err
	}

	bound, err := e.network.Bind(tbl)
	if err != nil {
		return err
	}
	l, err := ledger.New(tbl, e.cfg.Accounts())
	if err != nil {
		return err
	}
	engine, err := host.New(initial, e.cme, seedFor(e.cfg.Seed, label, m))
	if err != nil {
		return err
	}
	engine.SetLogger(logger)

	runner, err := e.registry.Runner(e.cfg.Integrator, e.cfg.Tolerance)
	if err != nil {
		return err
	}

	state, err := replicate.New(replicate.Config{
		CommTimestep:      e.cfg.CommTimestep,
		MaxODEStep:        e.cfg.MaxODEStep,
		Initial:           initial,
		UseCompiledSolver: e.cfg.UseCompiledSolver,
		IntervalDuration:  e.cfg.IntervalDuration,
	}, label, m, engine)
	if err != nil {
		return err
	}

	offset := float64(m-1) * e.cfg.IntervalDuration
	tc := timecourse.NewWriter(e.cfg.DataDir, label, offset, logger)
	if cats, _ := e.cfg.RecordedCategories(); len(cats) > 0 {
		tc.Only(cats...)
	}
	if m == 1 {
		if err := tc.Reset(); err != nil {
			return err
		}
	}
	if err := tc.OnTick(0, initial); err != nil {
		return err
	}

	rec := flux.NewRecorder(filepath.Join(e.cfg.DataDir, FluxDir), logger)
	driver := hook.NewDriver(state, engine, bound, runner, l, rec)
	driver.SetLogger(e.logger.With("interval", m))
	driver.SetProgressEvery(e.cfg.ProgressEvery)
	driver.AddObserver(tc)

	sched := host.Schedule{
		Duration:   e.cfg.IntervalDuration,
		Dt:         e.cfg.CommTimestep,
		Replicates: 1,
	}
	if err := engine.Run(ctx, driver, sched); err != nil {
		return err
	}

	end := float64(m) * e.cfg.IntervalDuration
	if err := checkpoint.Write(path, checkpoint.FromState(label, m, end, engine.State())); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	logger.Debug("interval done", "time", end, "events", engine.Events())
	return nil
}

// seedFor gives every replicate and interval its own host random stream.
func seedFor(seed int64, label string, m int) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(label))
	return seed ^ int64(h.Sum64()>>1) + int64(m)
}
