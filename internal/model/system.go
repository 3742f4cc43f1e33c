package model

import (
	"fmt"
	"math"

	"github.com/san-kum/cmeode/internal/dynamo"
)

// interpreted evaluates the network by walking the reaction list on every
// call.
type interpreted struct {
	reactions []boundReaction
	vmax      []float64
	dim       int
}

func (s *interpreted) StateDim() int { return s.dim }

func (s *interpreted) Derive(x dynamo.State, _ dynamo.Control, t float64) dynamo.State {
	dx := make(dynamo.State, s.dim)
	for i := range s.reactions {
		r := &s.reactions[i]
		v := rate(r, s.vmax[i], x)
		for _, st := range r.stoich {
			dx[st.idx] += st.coeff * v
		}
	}
	return dx
}

func (s *interpreted) Flux(_ float64, x dynamo.State) []float64 {
	out := make([]float64, len(s.reactions))
	for i := range s.reactions {
		out[i] = rate(&s.reactions[i], s.vmax[i], x)
	}
	return out
}

func rate(r *boundReaction, vmax float64, x dynamo.State) float64 {
	switch r.law {
	case MassAction:
		return massAction(x, r.k, r.reactants, r.kr, r.products)
	case MichaelisMenten:
		return michaelisMenten(x[r.substrate], vmax, r.km)
	}
	return 0
}

func massAction(x dynamo.State, k float64, reactants []term, kr float64, products []term) float64 {
	fwd := k
	for _, t := range reactants {
		fwd *= power(x[t.idx], t.coeff)
	}
	if kr == 0 {
		return fwd
	}
	rev := kr
	for _, t := range products {
		rev *= power(x[t.idx], t.coeff)
	}
	return fwd - rev
}

func michaelisMenten(s, vmax, km float64) float64 {
	if s <= 0 {
		return 0
	}
	return vmax * s / (km + s)
}

// power clamps integrator undershoot to zero so a negative concentration
// never drives a reaction backwards.
func power(x, n float64) float64 {
	if x <= 0 {
		return 0
	}
	switch n {
	case 1:
		return x
	case 2:
		return x * x
	}
	return math.Pow(x, n)
}

// compiled holds the stoichiometry as a CSR matrix (one row per reaction)
// and one specialised rate closure per reaction.
type compiled struct {
	dim    int
	rowPtr []int
	cols   []int
	vals   []float64
	rates  []func(x dynamo.State) float64
}

func compile(reactions []boundReaction, vmax []float64, dim int) (*compiled, error) {
	c := &compiled{
		dim:    dim,
		rowPtr: make([]int, 1, len(reactions)+1),
		rates:  make([]func(dynamo.State) float64, len(reactions)),
	}

	for i := range reactions {
		r := reactions[i]
		for _, st := range r.stoich {
			if st.idx < 0 || st.idx >= dim {
				return nil, fmt.Errorf("compile reaction %s: index %d out of range", r.id, st.idx)
			}
			c.cols = append(c.cols, st.idx)
			c.vals = append(c.vals, st.coeff)
		}
		c.rowPtr = append(c.rowPtr, len(c.cols))

		switch r.law {
		case MassAction:
			k, kr, reactants, products := r.k, r.kr, r.reactants, r.products
			c.rates[i] = func(x dynamo.State) float64 {
				return massAction(x, k, reactants, kr, products)
			}
		case MichaelisMenten:
			s, v, km := r.substrate, vmax[i], r.km
			c.rates[i] = func(x dynamo.State) float64 {
				return michaelisMenten(x[s], v, km)
			}
		default:
			return nil, fmt.Errorf("compile reaction %s: unsupported rate law %q", r.id, r.law)
		}
	}
	return c, nil
}

func (c *compiled) StateDim() int { return c.dim }

func (c *compiled) Derive(x dynamo.State, _ dynamo.Control, t float64) dynamo.State {
	dx := make(dynamo.State, c.dim)
	for r, f := range c.rates {
		v := f(x)
		for k := c.rowPtr[r]; k < c.rowPtr[r+1]; k++ {
			dx[c.cols[k]] += c.vals[k] * v
		}
	}
	return dx
}

func (c *compiled) Flux(_ float64, x dynamo.State) []float64 {
	out := make([]float64, len(c.rates))
	for r, f := range c.rates {
		out[r] = f(x)
	}
	return out
}
