// Package host is an in-process stochastic engine that drives the coupling
// hook. It keeps particle counts, advances optional CME reactions with the
// Gillespie direct method and calls the hook at every communication tick.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/cmeode/internal/hook"
	"github.com/san-kum/cmeode/internal/species"
)

var ErrInvalidSchedule = errors.New("host: invalid tick schedule")

// ctxCheckEvery bounds how many reaction events run between context checks.
const ctxCheckEvery = 4096

// Reaction is a stochastic mass-action reaction with rate constant Rate in
// 1/s.
type Reaction struct {
	ID        string           `yaml:"id"`
	Reactants map[string]int64 `yaml:"reactants"`
	Products  map[string]int64 `yaml:"products"`
	Rate      float64          `yaml:"rate"`
}

// LoadReactions reads a YAML file holding a top-level reactions list.
func LoadReactions(path string) ([]Reaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Reactions []Reaction `yaml:"reactions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc.Reactions, nil
}

// Species lists the names used by the reactions, sorted.
func Species(reactions []Reaction) []string {
	set := make(map[string]bool)
	for _, r := range reactions {
		for s := range r.Reactants {
			set[s] = true
		}
		for s := range r.Products {
			set[s] = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type entry struct {
	id    species.ID
	count int64
}

type boundReaction struct {
	id        string
	rate      float64
	reactants []entry
	delta     []entry
}

// Hook is called at every tick; hook.Driver implements it.
type Hook interface {
	OnTick(ctx context.Context, t float64) (hook.Outcome, error)
}

type Schedule struct {
	Duration   float64
	Dt         float64
	Replicates int
}

// Ticks is the number of hook calls per replicate, including the one at 0.
func (s Schedule) Ticks() int {
	return int(math.Round(s.Duration / s.Dt))
}

func (s Schedule) validate() error {
	switch {
	case s.Dt <= 0:
		return fmt.Errorf("%w: dt must be positive, got %g", ErrInvalidSchedule, s.Dt)
	case s.Duration < s.Dt:
		return fmt.Errorf("%w: duration %g shorter than dt %g", ErrInvalidSchedule, s.Duration, s.Dt)
	case s.Replicates < 1:
		return fmt.Errorf("%w: need at least one replicate, got %d", ErrInvalidSchedule, s.Replicates)
	}
	return nil
}

type Engine struct {
	initial   *species.State
	state     *species.State
	staged    *species.State
	reactions []boundReaction
	rng       *rand.Rand
	time      float64
	events    int64
	logger    *slog.Logger
}

func New(initial *species.State, reactions []Reaction, seed int64) (*Engine, error) {
	tbl := initial.Table()
	e := &Engine{
		initial:   initial.Clone(),
		state:     initial.Clone(),
		reactions: make([]boundReaction, 0, len(reactions)),
		rng:       rand.New(rand.NewSource(seed)),
		logger:    slog.Default(),
	}

	for _, r := range reactions {
		if r.Rate < 0 {
			return nil, fmt.Errorf("host reaction %s: negative rate %g", r.ID, r.Rate)
		}
		br := boundReaction{id: r.ID, rate: r.Rate}
		net := make(map[species.ID]int64)
		for _, name := range sortedKeys(r.Reactants) {
			id, err := tbl.Resolve(name)
			if err != nil {
				return nil, fmt.Errorf("host reaction %s: %w", r.ID, err)
			}
			br.reactants = append(br.reactants, entry{id: id, count: r.Reactants[name]})
			net[id] -= r.Reactants[name]
		}
		for _, name := range sortedKeys(r.Products) {
			id, err := tbl.Resolve(name)
			if err != nil {
				return nil, fmt.Errorf("host reaction %s: %w", r.ID, err)
			}
			net[id] += r.Products[name]
		}
		for id, d := range net {
			if d != 0 {
				br.delta = append(br.delta, entry{id: id, count: d})
			}
		}
		sort.Slice(br.delta, func(i, j int) bool { return br.delta[i].id < br.delta[j].id })
		e.reactions = append(e.reactions, br)
	}
	return e, nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *Engine) SetLogger(l *slog.Logger) { e.logger = l }

func (e *Engine) State() *species.State { return e.state }
func (e *Engine) Time() float64         { return e.time }
func (e *Engine) Events() int64         { return e.events }

func (e *Engine) ParticleCounts() (map[string]int64, error) {
	return e.state.Map(), nil
}

// SetParticleCounts stages counts; they replace the engine state only if the
// hook reports a change.
func (e *Engine) SetParticleCounts(counts map[string]int64) error {
	staged := species.NewState(e.state.Table())
	if err := staged.Load(counts); err != nil {
		return fmt.Errorf("stage counts: %w", err)
	}
	e.staged = staged
	return nil
}

// RefreshDerived copies the engine's protein counts into view.
func (e *Engine) RefreshDerived(view *species.State) error {
	return view.LoadCategory(e.state.Map(), species.Protein)
}

// Reset restores the initial counts and rewinds the clock.
func (e *Engine) Reset() {
	e.state = e.initial.Clone()
	e.staged = nil
	e.time = 0
}

// Run simulates sched.Replicates replicates back to back. Each starts from
// the initial counts with a hook call at t=0, then one call per tick at
// Dt, 2Dt, ... strictly before Duration; the engine then advances to
// Duration without a further call.
func (e *Engine) Run(ctx context.Context, h Hook, sched Schedule) error {
	if err := sched.validate(); err != nil {
		return err
	}

	ticks := sched.Ticks()
	for rep := 1; rep <= sched.Replicates; rep++ {
		e.Reset()
		for k := 0; k < ticks; k++ {
			t := float64(k) * sched.Dt
			if err := e.Advance(ctx, t); err != nil {
				return err
			}
			out, err := h.OnTick(ctx, t)
			if err != nil {
				return fmt.Errorf("replicate %d tick %g: %w", rep, t, err)
			}
			if out == hook.Changed && e.staged != nil {
				e.state = e.staged
			}
			e.staged = nil
		}
		if err := e.Advance(ctx, sched.Duration); err != nil {
			return err
		}
		e.logger.Debug("host replicate done", "replicate", rep, "events", e.events)
	}
	return nil
}

// Advance fires reactions until the next event would land after target.
func (e *Engine) Advance(ctx context.Context, target float64) error {
	if len(e.reactions) == 0 {
		e.time = math.Max(e.time, target)
		return nil
	}

	props := make([]float64, len(e.reactions))
	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		total := 0.0
		for i := range e.reactions {
			props[i] = e.propensity(&e.reactions[i])
			total += props[i]
		}
		if total <= 0 {
			break
		}

		tau := -math.Log(1-e.rng.Float64()) / total
		if e.time+tau > target {
			break
		}
		e.time += tau

		pick := e.rng.Float64() * total
		j := 0
		for ; j < len(props)-1; j++ {
			pick -= props[j]
			if pick < 0 {
				break
			}
		}
		for _, d := range e.reactions[j].delta {
			e.state.Add(d.id, d.count)
		}
		e.events++
	}

	e.time = math.Max(e.time, target)
	return nil
}

// propensity is rate times the number of distinct reactant combinations.
func (e *Engine) propensity(r *boundReaction) float64 {
	a := r.rate
	for _, re := range r.reactants {
		x := e.state.Get(re.id)
		if x < re.count {
			return 0
		}
		for k := int64(0); k < re.count; k++ {
			a *= float64(x-k) / float64(k+1)
		}
	}
	return a
}
