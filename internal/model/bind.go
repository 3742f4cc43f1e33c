package model

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/cmeode/internal/dynamo"
	"github.com/san-kum/cmeode/internal/hook"
	"github.com/san-kum/cmeode/internal/species"
	"github.com/san-kum/cmeode/internal/units"
)

// term is one stoichiometric entry; idx indexes the ODE state vector.
type term struct {
	idx   int
	coeff float64
}

type boundReaction struct {
	id     string
	law    string
	stoich []term

	// mass action orders, always positive
	reactants []term
	products  []term
	k, kr     float64

	substrate int
	kcat, km  float64
	vmax      float64
	enzyme    species.ID
	hasEnzyme bool
}

type boundSurface struct {
	lipids      []species.ID
	areas       []float64
	proteins    []species.ID
	proteinArea float64
	sa          species.ID
	lip, prot   species.ID
	hasLip      bool
	hasProt     bool
}

// Bound is a network resolved against a species table. Name lookups happen
// once here; Build works on IDs and indices only.
type Bound struct {
	name      string
	table     *species.Table
	metIDs    []species.ID
	rxnIDs    []string
	reactions []boundReaction
	surface   *boundSurface
}

func (n *Network) Bind(tbl *species.Table) (*Bound, error) {
	metIDs, err := tbl.ResolveAll(n.Metabolites)
	if err != nil {
		return nil, fmt.Errorf("bind network %s: %w", n.Name, err)
	}
	index := make(map[string]int, len(n.Metabolites))
	for i, m := range n.Metabolites {
		index[m] = i
	}

	b := &Bound{
		name:      n.Name,
		table:     tbl,
		metIDs:    metIDs,
		rxnIDs:    n.ReactionIDs(),
		reactions: make([]boundReaction, len(n.Reactions)),
	}

	for i, r := range n.Reactions {
		br := boundReaction{id: r.ID, law: r.Rate.Law}
		for m, c := range r.Stoichiometry {
			t := term{idx: index[m], coeff: c}
			br.stoich = append(br.stoich, t)
			switch {
			case c < 0:
				br.reactants = append(br.reactants, term{idx: t.idx, coeff: -c})
			case c > 0:
				br.products = append(br.products, t)
			}
		}
		sortTerms(br.stoich)
		sortTerms(br.reactants)
		sortTerms(br.products)

		switch r.Rate.Law {
		case MassAction:
			br.k, br.kr = r.Rate.K, r.Rate.KR
		case MichaelisMenten:
			br.substrate = index[r.Rate.Substrate]
			br.kcat, br.km, br.vmax = r.Rate.Kcat, r.Rate.Km, r.Rate.Vmax
			if r.Rate.Enzyme != "" {
				id, err := tbl.Resolve(r.Rate.Enzyme)
				if err != nil {
					return nil, fmt.Errorf("bind reaction %s: %w", r.ID, err)
				}
				br.enzyme, br.hasEnzyme = id, true
			}
		}
		b.reactions[i] = br
	}

	if n.Surface != nil {
		s, err := bindSurface(tbl, n.Surface)
		if err != nil {
			return nil, fmt.Errorf("bind network %s: %w", n.Name, err)
		}
		b.surface = s
	}
	return b, nil
}

func bindSurface(tbl *species.Table, s *Surface) (*boundSurface, error) {
	bs := &boundSurface{proteinArea: s.ProteinArea}

	lipids := make([]string, 0, len(s.Lipids))
	for l := range s.Lipids {
		lipids = append(lipids, l)
	}
	sort.Strings(lipids)
	for _, l := range lipids {
		id, err := tbl.Resolve(l)
		if err != nil {
			return nil, err
		}
		bs.lipids = append(bs.lipids, id)
		bs.areas = append(bs.areas, s.Lipids[l])
	}

	var err error
	if bs.proteins, err = tbl.ResolveAll(s.MembraneProteins); err != nil {
		return nil, err
	}
	if bs.sa, err = tbl.Resolve(units.SurfaceAreaSpecies); err != nil {
		return nil, err
	}
	bs.lip, bs.hasLip = tbl.Lookup(units.SurfaceAreaSpecies + "_Lip")
	bs.prot, bs.hasProt = tbl.Lookup(units.SurfaceAreaSpecies + "_Prot")
	return bs, nil
}

func sortTerms(ts []term) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].idx < ts[j].idx })
}

func (b *Bound) Name() string              { return b.name }
func (b *Bound) Metabolites() []species.ID { return b.metIDs }
func (b *Bound) Reactions() []string       { return b.rxnIDs }
func (b *Bound) Table() *species.Table     { return b.table }

// Build converts the counts in s to concentrations in a cell of geometry g
// and snapshots enzyme levels. Geometry pseudo-species are carried as raw
// values.
func (b *Bound) Build(s *species.State, g units.Geometry) (hook.Model, error) {
	if s.Table() != b.table {
		return nil, fmt.Errorf("model %s: species state uses a different table", b.name)
	}

	x0 := make(dynamo.State, len(b.metIDs))
	for i, id := range b.metIDs {
		n := s.Get(id)
		if b.table.Category(id) == species.Geometry {
			x0[i] = float64(n)
			continue
		}
		x0[i] = units.ParticlesToConcentration(n, g)
	}

	vmax := make([]float64, len(b.reactions))
	for i, r := range b.reactions {
		if r.law != MichaelisMenten {
			continue
		}
		if r.hasEnzyme {
			vmax[i] = r.kcat * units.ParticlesToConcentration(s.Get(r.enzyme), g)
		} else {
			vmax[i] = r.vmax
		}
	}

	return &Instance{bound: b, x0: x0, vmax: vmax}, nil
}

// Instance is a network built from one species snapshot.
type Instance struct {
	bound *Bound
	x0    dynamo.State
	vmax  []float64
}

func (m *Instance) Metabolites() []species.ID   { return m.bound.metIDs }
func (m *Instance) Reactions() []string         { return m.bound.rxnIDs }
func (m *Instance) CurrentValues() dynamo.State { return m.x0.Clone() }

func (m *Instance) Interpreted() dynamo.FluxSystem {
	return &interpreted{reactions: m.bound.reactions, vmax: m.vmax, dim: len(m.x0)}
}

func (m *Instance) Compile() (dynamo.FluxSystem, error) {
	c, err := compile(m.bound.reactions, m.vmax, len(m.x0))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateSurfaceArea recomputes CellSA from lipid and membrane protein counts.
// Lipid area is halved for the two bilayer leaflets. Networks without a
// surface section leave the counts untouched.
func (m *Instance) UpdateSurfaceArea(s *species.State) error {
	bs := m.bound.surface
	if bs == nil {
		return nil
	}

	lip := 0.0
	for i, id := range bs.lipids {
		lip += float64(s.Get(id)) * bs.areas[i]
	}
	lip /= 2

	prot := 0.0
	for _, id := range bs.proteins {
		prot += float64(s.Get(id))
	}
	prot *= bs.proteinArea

	if bs.hasLip {
		s.Set(bs.lip, int64(math.Round(lip)))
	}
	if bs.hasProt {
		s.Set(bs.prot, int64(math.Round(prot)))
	}
	s.Set(bs.sa, int64(math.Round(lip+prot)))
	return nil
}
