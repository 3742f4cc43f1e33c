// Package ledger keeps cofactor bookkeeping counters consistent with the
// carrier pools they draw on. Shortfalls are never errors: whatever the
// carrier can cover is transferred and the rest stays on the counter.
package ledger

import (
	"fmt"

	"github.com/san-kum/cmeode/internal/species"
)

type hydrolysis struct {
	counter, carrier, product species.ID
}

type incorporation struct {
	counter, monomer species.ID
}

type Ledger struct {
	phosphate     species.ID
	pyrophosphate species.ID
	hydrolysis    []hydrolysis
	incorporation []incorporation
}

// Transfer records how much one counter moved in a reconciliation.
type Transfer struct {
	Counter   species.ID
	Amount    int64
	Remaining int64
}

type Report struct {
	Hydrolysis    []Transfer
	Incorporation []Transfer
}

// Shortfalls counts counters left non-zero because their pool ran dry.
func (r Report) Shortfalls() int {
	n := 0
	for _, t := range r.Hydrolysis {
		if t.Remaining > 0 {
			n++
		}
	}
	for _, t := range r.Incorporation {
		if t.Remaining > 0 {
			n++
		}
	}
	return n
}

// New resolves every account against the table once.
func New(t *species.Table, a Accounts) (*Ledger, error) {
	l := &Ledger{}
	var err error
	if l.phosphate, err = t.Resolve(a.Phosphate); err != nil {
		return nil, fmt.Errorf("ledger phosphate pool: %w", err)
	}
	if l.pyrophosphate, err = t.Resolve(a.Pyrophosphate); err != nil {
		return nil, fmt.Errorf("ledger pyrophosphate pool: %w", err)
	}
	for _, h := range a.Hydrolysis {
		ids, err := t.ResolveAll([]string{h.Counter, h.Carrier, h.Product})
		if err != nil {
			return nil, fmt.Errorf("ledger hydrolysis %s: %w", h.Counter, err)
		}
		l.hydrolysis = append(l.hydrolysis, hydrolysis{ids[0], ids[1], ids[2]})
	}
	for _, c := range a.Incorporation {
		ids, err := t.ResolveAll([]string{c.Counter, c.Monomer})
		if err != nil {
			return nil, fmt.Errorf("ledger incorporation %s: %w", c.Counter, err)
		}
		l.incorporation = append(l.incorporation, incorporation{ids[0], ids[1]})
	}
	return l, nil
}

// Reconcile settles every counter against its pool, hydrolysis counters
// first and in account order. A counter equal to its pool takes the full
// transfer branch and ends at zero.
func (l *Ledger) Reconcile(s *species.State) Report {
	var r Report

	for _, h := range l.hydrolysis {
		cost := nonNegative(s.Get(h.counter))
		avail := nonNegative(s.Get(h.carrier))

		var moved int64
		if cost > avail {
			moved = avail
			s.Set(h.counter, cost-avail)
			s.Set(h.carrier, 0)
		} else {
			moved = cost
			s.Set(h.carrier, avail-cost)
			s.Set(h.counter, 0)
		}
		credit(s, h.product, moved)
		credit(s, l.phosphate, moved)

		r.Hydrolysis = append(r.Hydrolysis, Transfer{Counter: h.counter, Amount: moved, Remaining: s.Get(h.counter)})
	}

	for _, c := range l.incorporation {
		cost := nonNegative(s.Get(c.counter))
		avail := nonNegative(s.Get(c.monomer))

		var moved int64
		if cost > avail {
			moved = avail
			s.Set(c.counter, cost-avail)
			s.Set(c.monomer, 0)
		} else {
			moved = cost
			s.Set(c.monomer, avail-cost)
			s.Set(c.counter, 0)
		}
		credit(s, l.pyrophosphate, moved)

		r.Incorporation = append(r.Incorporation, Transfer{Counter: c.counter, Amount: moved, Remaining: s.Get(c.counter)})
	}

	return r
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func credit(s *species.State, id species.ID, amount int64) {
	s.Set(id, nonNegative(s.Get(id))+amount)
}
