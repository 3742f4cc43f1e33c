package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/cmeode/internal/dynamo"
)

type simpleDynamics struct{}

func (s *simpleDynamics) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (s *simpleDynamics) StateDim() int { return 2 }

func rk4Error(dt float64) float64 {
	integ := NewRK4()
	x := dynamo.State{2.0}
	steps := int(math.Round(1 / dt))
	for i := 0; i < steps; i++ {
		x = integ.Step(&decay{k: 1.5}, x, nil, float64(i)*dt, dt)
	}
	return math.Abs(x[0] - 2*math.Exp(-1.5))
}

func TestRK4Oscillator(t *testing.T) {
	dyn := &simpleDynamics{}
	integ := NewRK4()

	dt := 0.01
	steps := 100
	x := dynamo.State{1.0, 0.0}
	for i := 0; i < steps; i++ {
		x = integ.Step(dyn, x, nil, float64(i)*dt, dt)
	}

	wantX := math.Cos(float64(steps) * dt)
	wantV := -math.Sin(float64(steps) * dt)
	if math.Abs(x[0]-wantX) > 1e-4 {
		t.Errorf("position: got %.6f, expected %.6f", x[0], wantX)
	}
	if math.Abs(x[1]-wantV) > 1e-4 {
		t.Errorf("velocity: got %.6f, expected %.6f", x[1], wantV)
	}
}

func TestRK4FourthOrder(t *testing.T) {
	coarse := rk4Error(0.1)
	fine := rk4Error(0.05)
	ratio := coarse / fine
	// halving dt cuts the global error by about 2^4
	if ratio < 12 || ratio > 20 {
		t.Errorf("expected error ratio near 16, got %.2f (%.3g / %.3g)", ratio, coarse, fine)
	}
}

func TestRK4ResizesStages(t *testing.T) {
	integ := NewRK4()
	x := integ.Step(&simpleDynamics{}, dynamo.State{1, 0}, nil, 0, 0.1)
	if len(x) != 2 {
		t.Fatalf("expected 2 values, got %d", len(x))
	}

	y := integ.Step(&decay{k: 1}, dynamo.State{1}, nil, 0, 0.1)
	if len(y) != 1 || math.Abs(y[0]-math.Exp(-0.1)) > 1e-6 {
		t.Errorf("unexpected decay step %v", y)
	}
}

func TestRK4DoesNotMutateInput(t *testing.T) {
	integ := NewRK4()
	x := dynamo.State{1, 0}
	integ.Step(&simpleDynamics{}, x, nil, 0, 0.5)
	if x[0] != 1 || x[1] != 0 {
		t.Errorf("input state changed to %v", x)
	}
}
