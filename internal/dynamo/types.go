package dynamo

import "math"

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Control is an exogenous input vector. The metabolic systems in this
// repository are autonomous and receive a nil Control.
type Control []float64

// System is an ODE right-hand side dX/dt = f(X, u, t).
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
}

// FluxSystem is a reaction system that can also report per-reaction rates.
// Flux receives the time at which x holds; the rate laws in this repository
// are autonomous and ignore it, so the value depends on x alone.
type FluxSystem interface {
	System
	Flux(t float64, x State) []float64
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(dyn System, x State, u Control, t, dt, tol float64) (State, float64, error)
}
