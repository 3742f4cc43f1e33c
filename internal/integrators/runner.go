package integrators

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/cmeode/internal/dynamo"
)

const (
	DefaultTolerance = 1e-6
	DefaultMinStep   = 1e-12
)

// Trajectory holds every accepted step of one integration window. Row 0 is
// the window start and the last row the window end.
type Trajectory struct {
	Times  []float64
	States []dynamo.State
}

func (tr *Trajectory) Len() int { return len(tr.States) }

func (tr *Trajectory) First() dynamo.State { return tr.States[0] }

func (tr *Trajectory) Last() dynamo.State { return tr.States[len(tr.States)-1] }

func (tr *Trajectory) append(t float64, x dynamo.State) {
	tr.Times = append(tr.Times, t)
	tr.States = append(tr.States, x.Clone())
}

// Runner integrates a System across a time window with steps no larger than
// a caller-supplied maximum. Adaptive steppers control their own step size
// below that bound; fixed steppers always take the largest step allowed.
type Runner struct {
	Stepper   dynamo.Integrator
	Tolerance float64
	MinStep   float64
}

func NewRunner(stepper dynamo.Integrator, tolerance float64) *Runner {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Runner{
		Stepper:   stepper,
		Tolerance: tolerance,
		MinStep:   DefaultMinStep,
	}
}

func (r *Runner) Integrate(ctx context.Context, sys dynamo.System, x0 dynamo.State, t0, t1, maxStep float64) (*Trajectory, error) {
	if maxStep <= 0 {
		return nil, fmt.Errorf("max step must be positive, got %g", maxStep)
	}
	if t1 < t0 {
		return nil, fmt.Errorf("window [%g, %g]: %w", t0, t1, dynamo.ErrInvalidWindow)
	}
	if sys.StateDim() != len(x0) {
		return nil, fmt.Errorf("state has %d values, system %d: %w", len(x0), sys.StateDim(), dynamo.ErrDimensionMismatch)
	}
	if !x0.IsValid() {
		return nil, simulationError(t0, 0, x0, dynamo.ErrInvalidState)
	}

	tr := &Trajectory{}
	x := x0.Clone()
	t := t0
	tr.append(t, x)

	eps := 1e-12 * math.Max(1, math.Abs(t1))
	h := maxStep
	adaptive, isAdaptive := r.Stepper.(interface {
		attempt(dynamo.System, dynamo.State, dynamo.Control, float64, float64, float64) (dynamo.State, float64)
		nextStep(float64, float64) float64
	})

	step := 0
	for t1-t > eps {
		select {
		case <-ctx.Done():
			return tr, ctx.Err()
		default:
		}

		h = math.Min(h, maxStep)
		last := false
		if t+h >= t1-eps {
			h = t1 - t
			last = true
		}

		var next dynamo.State
		if isAdaptive {
			var ratio float64
			next, ratio = adaptive.attempt(sys, x, nil, t, h, r.Tolerance)
			if !next.IsValid() {
				ratio = math.Inf(1)
			}
			if ratio > 1 {
				h = adaptive.nextStep(h, ratio)
				if h < r.MinStep {
					return tr, simulationError(t, step, x, dynamo.ErrStepTooSmall)
				}
				continue
			}
			hNext := adaptive.nextStep(h, ratio)
			if last {
				t = t1
			} else {
				t += h
			}
			h = hNext
		} else {
			next = r.Stepper.Step(sys, x, nil, t, h)
			if !next.IsValid() {
				return tr, simulationError(t, step, x, dynamo.ErrInvalidState)
			}
			if last {
				t = t1
			} else {
				t += h
			}
		}

		x = next
		step++
		tr.append(t, x)
	}

	return tr, nil
}

func simulationError(t float64, step int, x dynamo.State, err error) error {
	return &dynamo.SimulationError{Step: step, Time: t, State: x.Clone(), Wrapped: err}
}
