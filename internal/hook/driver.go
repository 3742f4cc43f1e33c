// Package hook couples the stochastic host engine to the metabolic ODE model.
//
// The host calls Driver.OnTick at every communication timestep. Each call
// pulls particle counts, integrates the metabolic network over the window
// since the previous tick, writes concentrations back as counts, settles the
// cofactor ledger and pushes the result to the host. A tick at time zero
// restarts the replicate instead.
package hook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/cmeode/internal/dynamo"
	"github.com/san-kum/cmeode/internal/flux"
	"github.com/san-kum/cmeode/internal/ledger"
	"github.com/san-kum/cmeode/internal/replicate"
	"github.com/san-kum/cmeode/internal/species"
	"github.com/san-kum/cmeode/internal/units"
)

const DefaultProgressEvery = 10

type Driver struct {
	state      *replicate.State
	host       Host
	builder    Builder
	integrator Integrator
	ledger     *ledger.Ledger
	recorder   *flux.Recorder
	observers  []Observer

	logger        *slog.Logger
	progressEvery int
	warnedCompile bool
}

func NewDriver(state *replicate.State, host Host, builder Builder, integrator Integrator, l *ledger.Ledger, rec *flux.Recorder) *Driver {
	return &Driver{
		state:         state,
		host:          host,
		builder:       builder,
		integrator:    integrator,
		ledger:        l,
		recorder:      rec,
		observers:     make([]Observer, 0),
		logger:        slog.Default().With("replicate", state.Label()),
		progressEvery: DefaultProgressEvery,
	}
}

func (d *Driver) AddObserver(o Observer) { d.observers = append(d.observers, o) }

func (d *Driver) SetLogger(l *slog.Logger) { d.logger = l.With("replicate", d.state.Label()) }

// SetProgressEvery sets the progress log period in seconds; 0 disables it.
func (d *Driver) SetProgressEvery(seconds int) { d.progressEvery = seconds }

func (d *Driver) State() *replicate.State { return d.state }

// OnTick runs one coupling step. On error the host keeps its own state and
// the replicate's integrated time does not advance.
func (d *Driver) OnTick(ctx context.Context, t float64) (Outcome, error) {
	if t == 0 {
		d.logger.Info("new replicate", "interval", d.state.GlobalInterval())
		if err := d.state.Restart(); err != nil {
			return NoChange, err
		}
		return NoChange, nil
	}

	if err := d.state.BeginStep(); err != nil {
		return NoChange, err
	}
	if err := d.step(ctx, t); err != nil {
		d.state.AbortStep()
		return NoChange, fmt.Errorf("replicate %s at t=%g: %w", d.state.Label(), t, err)
	}
	return Changed, nil
}

func (d *Driver) step(ctx context.Context, t float64) error {
	view := d.state.Species()

	counts, err := d.host.ParticleCounts()
	if err != nil {
		return fmt.Errorf("pull counts: %w", err)
	}
	if err := view.Load(counts); err != nil {
		return fmt.Errorf("pull counts: %w", err)
	}

	if d.state.FirstTick(t) {
		if err := d.state.RefreshDerived(); err != nil {
			return fmt.Errorf("refresh derived quantities: %w", err)
		}
	}

	g, err := units.GeometryOf(view, d.state.Geometry())
	if err != nil {
		return err
	}
	d.state.SetGeometry(g)

	model, err := d.builder.Build(view, g)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	x0 := model.CurrentValues()
	sys := d.system(model)

	t0 := d.state.LastIntegratedTime()
	traj, err := d.integrator.Integrate(ctx, sys, x0, t0, t, d.state.MaxODEStep())
	if err != nil {
		return fmt.Errorf("integrate [%g, %g]: %w", t0, t, err)
	}

	if d.progressEvery > 0 && int(t)%d.progressEvery == 0 {
		d.logger.Info("progress", "interval", d.state.GlobalInterval(), "time", int(t), "duration", d.state.IntervalDuration())
	}

	if err := writeBack(view, model.Metabolites(), traj.Last(), g); err != nil {
		return err
	}

	report := d.ledger.Reconcile(view)
	if n := report.Shortfalls(); n > 0 {
		d.logger.Debug("cofactor shortfall carried over", "counters", n, "time", t)
	}

	if d.state.ClosesInterval(t) {
		last := traj.Len() - 1
		start := sys.Flux(traj.Times[0], traj.First())
		end := sys.Flux(traj.Times[last], traj.Last())
		if err := d.recorder.RecordInterval(d.state.Label(), start, end, model.Reactions()); err != nil {
			return err
		}
		d.logger.Info("saved fluxes", "interval", d.state.GlobalInterval(), "time", t)
	}

	if sa, ok := model.(SurfaceAreaUpdater); ok {
		if err := sa.UpdateSurfaceArea(view); err != nil {
			return fmt.Errorf("surface area: %w", err)
		}
	}
	g, err = units.GeometryOf(view, g)
	if err != nil {
		return err
	}
	if err := units.ApplyGeometry(view, g); err != nil {
		return err
	}
	d.state.SetGeometry(g)

	for _, obs := range d.observers {
		if err := obs.OnTick(t, view); err != nil {
			return fmt.Errorf("observer: %w", err)
		}
	}

	if err := d.host.SetParticleCounts(view.Map()); err != nil {
		return fmt.Errorf("push counts: %w", err)
	}
	d.state.EndStep(t)
	return nil
}

func (d *Driver) system(m Model) dynamo.FluxSystem {
	if !d.state.UseCompiledSolver() {
		return m.Interpreted()
	}
	c, ok := m.(Compiler)
	if !ok {
		if !d.warnedCompile {
			d.logger.Warn("model has no compiled form, using interpreted right-hand side")
			d.warnedCompile = true
		}
		return m.Interpreted()
	}
	sys, err := c.Compile()
	if err != nil {
		if !d.warnedCompile {
			d.logger.Warn("compile failed, using interpreted right-hand side", "error", err)
			d.warnedCompile = true
		}
		return m.Interpreted()
	}
	return sys
}

// writeBack converts end-of-window concentrations to particle counts.
// Geometry pseudo-species are inputs to the volume calculation and are
// never overwritten from the integrator.
func writeBack(view *species.State, ids []species.ID, x dynamo.State, g units.Geometry) error {
	if len(ids) != len(x) {
		return fmt.Errorf("model has %d metabolites but state has %d values: %w", len(ids), len(x), dynamo.ErrDimensionMismatch)
	}
	tbl := view.Table()
	for i, id := range ids {
		if tbl.Category(id) == species.Geometry {
			continue
		}
		view.Set(id, units.ConcentrationToParticles(x[i], g))
	}
	return nil
}
