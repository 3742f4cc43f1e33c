package hook

import (
	"context"

	"github.com/san-kum/cmeode/internal/dynamo"
	"github.com/san-kum/cmeode/internal/integrators"
	"github.com/san-kum/cmeode/internal/species"
	"github.com/san-kum/cmeode/internal/units"
)

// Outcome tells the host whether a tick changed its particle state.
type Outcome int

const (
	NoChange Outcome = iota
	Changed
)

// Code is the integer the host engine expects back from its hook.
func (o Outcome) Code() int { return int(o) }

func (o Outcome) String() string {
	if o == Changed {
		return "changed"
	}
	return "no-change"
}

// Host is the particle-count contract of the stochastic engine.
type Host interface {
	ParticleCounts() (map[string]int64, error)
	SetParticleCounts(counts map[string]int64) error
}

// Model is a reaction network instantiated from one species snapshot.
// Metabolites and CurrentValues share the same ordering; Reactions matches
// the ordering of the vectors returned by FluxSystem.Flux.
type Model interface {
	Metabolites() []species.ID
	Reactions() []string
	CurrentValues() dynamo.State
	Interpreted() dynamo.FluxSystem
}

// Compiler is implemented by models that can emit a faster right-hand side.
type Compiler interface {
	Compile() (dynamo.FluxSystem, error)
}

// SurfaceAreaUpdater is implemented by models that derive membrane surface
// area from particle counts. It runs before geometry is recomputed.
type SurfaceAreaUpdater interface {
	UpdateSurfaceArea(s *species.State) error
}

type Builder interface {
	Build(s *species.State, g units.Geometry) (Model, error)
}

type Integrator interface {
	Integrate(ctx context.Context, sys dynamo.System, x0 dynamo.State, t0, t1, maxStep float64) (*integrators.Trajectory, error)
}

// Observer sees the species view after every coupling tick, before it is
// handed back to the host.
type Observer interface {
	OnTick(t float64, s *species.State) error
}
