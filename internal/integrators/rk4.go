package integrators

import "github.com/san-kum/cmeode/internal/dynamo"

// Classical RK4 tableau: each stage evaluates at t+node*dt from x plus
// node*dt times the previous stage slope.
var (
	rk4Nodes   = [4]float64{0, 0.5, 0.5, 1}
	rk4Weights = [4]float64{1, 2, 2, 1}
)

// RK4 is the fixed-step classical Runge-Kutta stepper. Stage buffers are
// reused across steps, so one RK4 serves one replicate at a time.
type RK4 struct {
	k       [4]dynamo.State
	scratch dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) resize(n int) {
	if len(r.scratch) == n {
		return
	}
	for s := range r.k {
		r.k[s] = make(dynamo.State, n)
	}
	r.scratch = make(dynamo.State, n)
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	r.resize(len(x))

	for s, node := range rk4Nodes {
		in := x
		if s > 0 {
			offset(r.scratch, x, r.k[s-1], node*dt)
			in = r.scratch
		}
		copy(r.k[s], dyn.Derive(in, u, t+node*dt))
	}

	out := make(dynamo.State, len(x))
	for i := range out {
		sum := 0.0
		for s, w := range rk4Weights {
			sum += w * r.k[s][i]
		}
		out[i] = x[i] + dt/6*sum
	}
	return out
}

// offset writes x + h*k into dst.
func offset(dst, x, k dynamo.State, h float64) {
	for i := range dst {
		dst[i] = x[i] + h*k[i]
	}
}
