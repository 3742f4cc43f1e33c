// Package replicate holds the restartable per-replicate coupling state.
//
// A State moves through Uninitialized -> Ready -> Stepping -> Ready. A tick at
// time zero re-enters Ready through Restart, which rebuilds everything from
// the configuration captured at construction, never from the live state.
package replicate

import (
	"errors"
	"fmt"

	"github.com/san-kum/cmeode/internal/species"
	"github.com/san-kum/cmeode/internal/units"
)

// tickTolerance absorbs the rounding in tick times computed as k*dt.
const tickTolerance = 1e-9

var (
	ErrInvalidConfig = errors.New("replicate: invalid configuration")
	ErrNotReady      = errors.New("replicate: state not ready for a step")
)

type Phase int

const (
	Uninitialized Phase = iota
	Ready
	Stepping
)

func (p Phase) String() string {
	switch p {
	case Ready:
		return "ready"
	case Stepping:
		return "stepping"
	default:
		return "uninitialized"
	}
}

type Config struct {
	CommTimestep      float64
	MaxODEStep        float64
	Initial           *species.State
	UseCompiledSolver bool
	IntervalDuration  float64
}

func (c Config) validate() error {
	switch {
	case c.CommTimestep <= 0:
		return fmt.Errorf("%w: communication timestep must be positive, got %g", ErrInvalidConfig, c.CommTimestep)
	case c.MaxODEStep <= 0:
		return fmt.Errorf("%w: max ODE step must be positive, got %g", ErrInvalidConfig, c.MaxODEStep)
	case c.IntervalDuration <= 0:
		return fmt.Errorf("%w: interval duration must be positive, got %g", ErrInvalidConfig, c.IntervalDuration)
	case c.Initial == nil:
		return fmt.Errorf("%w: initial species state is required", ErrInvalidConfig)
	}
	return nil
}

// Refresher updates derived per-enzyme quantities in a species view from the
// host engine.
type Refresher interface {
	RefreshDerived(s *species.State) error
}

type State struct {
	initial         Config
	label           string
	initialInterval int
	refresher       Refresher

	commTimestep       float64
	maxODEStep         float64
	species            *species.State
	useCompiledSolver  bool
	intervalDuration   float64
	lastIntegratedTime float64
	globalInterval     int
	geometry           units.Geometry
	phase              Phase
	restarts           int
}

// New captures cfg (deep-copying the initial species state) and performs the
// first Restart. globalInterval is only used for progress reporting; values
// below 1 default to 1. refresher may be nil.
func New(cfg Config, label string, globalInterval int, refresher Refresher) (*State, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if globalInterval < 1 {
		globalInterval = 1
	}

	captured := cfg
	captured.Initial = cfg.Initial.Clone()

	s := &State{
		initial:         captured,
		label:           label,
		initialInterval: globalInterval,
		refresher:       refresher,
	}
	if err := s.Restart(); err != nil {
		return nil, err
	}
	return s, nil
}

// Restart begins a new replicate from the captured configuration.
func (s *State) Restart() error {
	s.lastIntegratedTime = 0
	s.commTimestep = s.initial.CommTimestep
	s.maxODEStep = s.initial.MaxODEStep
	s.species = s.initial.Initial.Clone()
	s.useCompiledSolver = s.initial.UseCompiledSolver
	s.intervalDuration = s.initial.IntervalDuration
	s.globalInterval = s.initialInterval
	s.geometry = units.Geometry{}
	s.phase = Ready
	s.restarts++

	if err := s.RefreshDerived(); err != nil {
		return fmt.Errorf("replicate %s restart: %w", s.label, err)
	}
	return nil
}

// RefreshDerived asks the host to refresh derived quantities in the view.
func (s *State) RefreshDerived() error {
	if s.refresher == nil {
		return nil
	}
	return s.refresher.RefreshDerived(s.species)
}

func (s *State) BeginStep() error {
	if s.phase != Ready {
		return fmt.Errorf("%w (phase %s)", ErrNotReady, s.phase)
	}
	s.phase = Stepping
	return nil
}

func (s *State) EndStep(t float64) {
	s.lastIntegratedTime = t
	s.phase = Ready
}

// AbortStep returns to Ready without advancing the integrated time.
func (s *State) AbortStep() {
	if s.phase == Stepping {
		s.phase = Ready
	}
}

// FirstTick reports whether t is the first coupling tick after a restart.
func (s *State) FirstTick(t float64) bool {
	return t > s.commTimestep && t < 2*s.commTimestep
}

// ClosesInterval reports whether the tick at t completes the interval.
func (s *State) ClosesInterval(t float64) bool {
	return t >= s.intervalDuration-s.commTimestep-tickTolerance*s.intervalDuration
}

func (s *State) Label() string                { return s.label }
func (s *State) Phase() Phase                 { return s.phase }
func (s *State) Species() *species.State      { return s.species }
func (s *State) CommTimestep() float64        { return s.commTimestep }
func (s *State) MaxODEStep() float64          { return s.maxODEStep }
func (s *State) UseCompiledSolver() bool      { return s.useCompiledSolver }
func (s *State) IntervalDuration() float64    { return s.intervalDuration }
func (s *State) LastIntegratedTime() float64  { return s.lastIntegratedTime }
func (s *State) GlobalInterval() int          { return s.globalInterval }
func (s *State) Geometry() units.Geometry     { return s.geometry }
func (s *State) SetGeometry(g units.Geometry) { s.geometry = g }
func (s *State) Restarts() int                { return s.restarts }
func (s *State) Initial() *species.State      { return s.initial.Initial.Clone() }
