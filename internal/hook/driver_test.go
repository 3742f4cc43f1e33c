package hook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cmeode/internal/dynamo"
	"github.com/san-kum/cmeode/internal/flux"
	"github.com/san-kum/cmeode/internal/hook"
	"github.com/san-kum/cmeode/internal/integrators"
	"github.com/san-kum/cmeode/internal/ledger"
	"github.com/san-kum/cmeode/internal/replicate"
	"github.com/san-kum/cmeode/internal/species"
	"github.com/san-kum/cmeode/internal/units"
)

const (
	glc = "M_glc__D_c"
	g6p = "M_g6p_c"
)

var cellSA = int64(math.Round(units.SurfaceAreaForVolume(3.35e-17)))

type fakeHost struct {
	counts map[string]int64
	pushes int
}

func (h *fakeHost) ParticleCounts() (map[string]int64, error) {
	return maps.Clone(h.counts), nil
}

func (h *fakeHost) SetParticleCounts(m map[string]int64) error {
	h.pushes++
	h.counts = maps.Clone(m)
	return nil
}

// chainSystem is glc -> g6p -> sink with a constant CellSA slot.
type chainSystem struct{ k1, k2 float64 }

func (c chainSystem) StateDim() int { return 3 }

func (c chainSystem) Derive(x dynamo.State, _ dynamo.Control, t float64) dynamo.State {
	f := c.Flux(t, x)
	return dynamo.State{-f[0], f[0] - f[1], 0}
}

func (c chainSystem) Flux(_ float64, x dynamo.State) []float64 {
	return []float64{c.k1 * x[0], c.k2 * x[1]}
}

type chainModel struct {
	ids []species.ID
	x0  dynamo.State
	sys chainSystem
}

func (m *chainModel) Metabolites() []species.ID      { return m.ids }
func (m *chainModel) Reactions() []string            { return []string{"R_GLCK", "R_G6PDEG"} }
func (m *chainModel) CurrentValues() dynamo.State    { return m.x0.Clone() }
func (m *chainModel) Interpreted() dynamo.FluxSystem { return m.sys }

type compiledChain struct {
	*chainModel
	compiles *int
}

func (m compiledChain) Compile() (dynamo.FluxSystem, error) {
	*m.compiles++
	return m.sys, nil
}

type chainBuilder struct {
	k1, k2     float64
	compilable bool
	compiles   int
}

func (b *chainBuilder) Build(s *species.State, g units.Geometry) (hook.Model, error) {
	ids, err := s.Table().ResolveAll([]string{glc, g6p, units.SurfaceAreaSpecies})
	if err != nil {
		return nil, err
	}
	m := &chainModel{
		ids: ids,
		x0: dynamo.State{
			units.ParticlesToConcentration(s.Get(ids[0]), g),
			units.ParticlesToConcentration(s.Get(ids[1]), g),
			float64(s.Get(ids[2])),
		},
		sys: chainSystem{k1: b.k1, k2: b.k2},
	}
	if b.compilable {
		return compiledChain{chainModel: m, compiles: &b.compiles}, nil
	}
	return m, nil
}

type failingIntegrator struct{}

func (failingIntegrator) Integrate(_ context.Context, _ dynamo.System, x0 dynamo.State, t0, _, _ float64) (*integrators.Trajectory, error) {
	return nil, &dynamo.SimulationError{Time: t0, State: x0, Wrapped: dynamo.ErrStepTooSmall}
}

type recordingObserver struct {
	times []float64
	atp   []int64
}

func (o *recordingObserver) OnTick(t float64, s *species.State) error {
	o.times = append(o.times, t)
	v, err := s.Count("M_atp_c")
	o.atp = append(o.atp, v)
	return err
}

var _ = Describe("Driver", func() {
	var (
		ctx     context.Context
		dir     string
		tbl     *species.Table
		initial *species.State
		host    *fakeHost
		builder *chainBuilder
		state   *replicate.State
		driver  *hook.Driver
		quiet   *slog.Logger
	)

	newDriver := func(compiled bool, integ hook.Integrator) {
		var err error
		state, err = replicate.New(replicate.Config{
			CommTimestep:      1,
			MaxODEStep:        0.25,
			Initial:           initial,
			UseCompiledSolver: compiled,
			IntervalDuration:  60,
		}, "1", 1, nil)
		Expect(err).NotTo(HaveOccurred())

		l, err := ledger.New(tbl, ledger.DefaultAccounts())
		Expect(err).NotTo(HaveOccurred())

		driver = hook.NewDriver(state, host, builder, integ, l, flux.NewRecorder(dir, quiet))
		driver.SetLogger(quiet)
	}

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

		names := append(ledger.DefaultAccounts().Names(), glc, g6p, "CellSA", "CellV", "M_PTN_0001")
		tbl = species.NewTable(names)

		counts := make(map[string]int64)
		for _, n := range tbl.Names() {
			counts[n] = 0
		}
		counts["M_atp_c"] = 1000
		counts["ATP_trsc"] = 1500
		counts[glc] = 20000
		counts["CellSA"] = cellSA
		counts["M_PTN_0001"] = 40

		var err error
		initial, err = species.FromMap(tbl, counts)
		Expect(err).NotTo(HaveOccurred())

		host = &fakeHost{counts: maps.Clone(counts)}
		builder = &chainBuilder{k1: 0.05, k2: 0.01}
		newDriver(false, integrators.NewRunner(integrators.NewRK45(), 0))
	})

	It("restarts the replicate on a tick at time zero", func() {
		out, err := driver.OnTick(ctx, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(hook.NoChange))
		Expect(out.Code()).To(Equal(0))
		Expect(state.Restarts()).To(Equal(2))
		Expect(host.pushes).To(BeZero())
	})

	It("settles the cofactor budget on the first tick", func() {
		_, err := driver.OnTick(ctx, 0)
		Expect(err).NotTo(HaveOccurred())

		out, err := driver.OnTick(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(hook.Changed))
		Expect(out.Code()).To(Equal(1))

		Expect(host.counts["M_atp_c"]).To(BeZero())
		Expect(host.counts["ATP_trsc"]).To(Equal(int64(500)))
		Expect(host.counts["M_adp_c"]).To(Equal(int64(1000)))
		Expect(host.counts["M_pi_c"]).To(Equal(int64(1000)))
		Expect(state.LastIntegratedTime()).To(Equal(1.0))
	})

	It("converts end-of-window concentrations back to particle counts", func() {
		_, _ = driver.OnTick(ctx, 0)
		_, err := driver.OnTick(ctx, 1)
		Expect(err).NotTo(HaveOccurred())

		Expect(float64(host.counts[glc])).To(BeNumerically("~", 20000*math.Exp(-0.05), 2))
		Expect(host.counts[g6p]).To(BeNumerically(">", 0))
	})

	It("runs a full interval and logs one start/end pair per reaction", func() {
		for t := 0; t < 60; t++ {
			_, err := driver.OnTick(ctx, float64(t))
			Expect(err).NotTo(HaveOccurred())
		}

		for _, kind := range flux.Kinds() {
			rows, err := flux.ReadLog(flux.LogPath(dir, "1", kind))
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2), "log %s", kind)
			Expect(rows[0].ReactionID).To(Equal("R_GLCK"))
			Expect(rows[1].ReactionID).To(Equal("R_G6PDEG"))
		}

		final, err := flux.ReadLog(flux.LogPath(dir, "1", flux.Final))
		Expect(err).NotTo(HaveOccurred())
		interval, err := flux.ReadLog(flux.LogPath(dir, "1", flux.Interval))
		Expect(err).NotTo(HaveOccurred())
		Expect(interval).To(Equal(final))

		Expect(host.counts["M_atp_c"]).To(BeZero())
		Expect(host.counts["ATP_trsc"]).To(Equal(int64(500)))
		Expect(host.pushes).To(Equal(59))
	})

	It("integrates a whole interval in a single tick after restart", func() {
		_, err := driver.OnTick(ctx, 0)
		Expect(err).NotTo(HaveOccurred())

		out, err := driver.OnTick(ctx, 60)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(hook.Changed))
		Expect(state.LastIntegratedTime()).To(Equal(60.0))

		Expect(host.counts["M_atp_c"]).To(BeZero())
		Expect(host.counts["ATP_trsc"]).To(Equal(int64(500)))
		Expect(host.counts["M_adp_c"]).To(Equal(int64(1000)))
		Expect(host.counts["M_pi_c"]).To(Equal(int64(1000)))
		Expect(host.pushes).To(Equal(1))

		for _, kind := range flux.Kinds() {
			rows, err := flux.ReadLog(flux.LogPath(dir, "1", kind))
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2), "log %s", kind)
			Expect(rows[0].Index).To(Equal(0))
			Expect(rows[1].Index).To(Equal(1))
		}

		// start fluxes come from the window start, end fluxes from its end
		g := units.ComputeGeometry(float64(cellSA), units.Geometry{})
		glc0 := units.ParticlesToConcentration(20000, g)
		start, err := flux.ReadLog(flux.LogPath(dir, "1", flux.Start))
		Expect(err).NotTo(HaveOccurred())
		Expect(start[0].Value).To(BeNumerically("~", 0.05*glc0, 1e-12))
		Expect(start[1].Value).To(BeNumerically("~", 0, 1e-12))

		final, err := flux.ReadLog(flux.LogPath(dir, "1", flux.Final))
		Expect(err).NotTo(HaveOccurred())
		Expect(final[0].Value).To(BeNumerically("~", 0.05*glc0*math.Exp(-3), 1e-6*glc0))
		Expect(final[1].Value).To(BeNumerically(">", 0))
	})

	It("never overwrites geometry pseudo-species from the integrator", func() {
		_, _ = driver.OnTick(ctx, 0)
		for t := 1; t <= 3; t++ {
			_, err := driver.OnTick(ctx, float64(t))
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(host.counts["CellSA"]).To(Equal(cellSA))
		Expect(host.counts["CellV"]).To(Equal(units.ComputeGeometry(float64(cellSA), units.Geometry{}).CellV))
		Expect(state.Geometry().Capped).To(BeFalse())
	})

	It("leaves the host untouched when integration fails", func() {
		newDriver(false, failingIntegrator{})
		_, _ = driver.OnTick(ctx, 0)

		out, err := driver.OnTick(ctx, 1)
		Expect(err).To(MatchError(dynamo.ErrStepTooSmall))
		Expect(out).To(Equal(hook.NoChange))

		var simErr *dynamo.SimulationError
		Expect(errors.As(err, &simErr)).To(BeTrue())

		Expect(host.pushes).To(BeZero())
		Expect(state.LastIntegratedTime()).To(BeZero())
		Expect(state.Phase()).To(Equal(replicate.Ready))
	})

	It("fails when the host omits a tracked species", func() {
		delete(host.counts, glc)

		_, err := driver.OnTick(ctx, 1)
		Expect(err).To(MatchError(species.ErrMissingSpecies))
		Expect(host.pushes).To(BeZero())
	})

	It("uses the compiled right-hand side when requested", func() {
		builder.compilable = true
		newDriver(true, integrators.NewRunner(integrators.NewRK45(), 0))

		_, _ = driver.OnTick(ctx, 0)
		_, err := driver.OnTick(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(builder.compiles).To(Equal(1))
	})

	It("falls back to the interpreted right-hand side", func() {
		newDriver(true, integrators.NewRunner(integrators.NewRK4(), 0))

		_, _ = driver.OnTick(ctx, 0)
		out, err := driver.OnTick(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(hook.Changed))
	})

	It("notifies observers with the reconciled view", func() {
		obs := &recordingObserver{}
		driver.AddObserver(obs)

		_, _ = driver.OnTick(ctx, 0)
		_, _ = driver.OnTick(ctx, 1)
		_, _ = driver.OnTick(ctx, 2)

		Expect(obs.times).To(Equal([]float64{1, 2}))
		Expect(obs.atp).To(Equal([]int64{0, 0}))
	})

	It("rebuilds the view from the initial state on restart", func() {
		for t := 0; t <= 5; t++ {
			_, err := driver.OnTick(ctx, float64(t))
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(state.Species().Equal(initial)).To(BeFalse())

		_, err := driver.OnTick(ctx, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Species().Equal(initial)).To(BeTrue())
		Expect(state.LastIntegratedTime()).To(BeZero())
	})
})
