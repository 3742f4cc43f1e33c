// Package model loads metabolic reaction networks and instantiates them as
// ODE systems over a species snapshot.
//
// A network file lists the ODE metabolites in state-vector order and the
// reactions acting on them. Rates are mass action or Michaelis-Menten with
// the enzyme concentration taken from the particle counts at build time:
//
//	metabolites: [M_glc__D_c, M_g6p_c]
//	reactions:
//	  - id: R_GLCK
//	    stoichiometry: {M_glc__D_c: -1, M_g6p_c: 1}
//	    rate: {law: michaelis_menten, kcat: 12, km: 0.1, substrate: M_glc__D_c, enzyme: M_PTN_0001}
package model

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/cmeode/internal/species"
	"github.com/san-kum/cmeode/internal/units"
)

var ErrInvalidNetwork = errors.New("model: invalid network")

const (
	MassAction      = "mass_action"
	MichaelisMenten = "michaelis_menten"
)

type RateLaw struct {
	Law string `yaml:"law"`

	// mass action: v = K * prod(reactants) - KR * prod(products)
	K  float64 `yaml:"k,omitempty"`
	KR float64 `yaml:"kr,omitempty"`

	// Michaelis-Menten: v = Kcat * [Enzyme] * S / (Km + S), or Vmax in place
	// of Kcat * [Enzyme] when no enzyme is named.
	Kcat      float64 `yaml:"kcat,omitempty"`
	Km        float64 `yaml:"km,omitempty"`
	Vmax      float64 `yaml:"vmax,omitempty"`
	Substrate string  `yaml:"substrate,omitempty"`
	Enzyme    string  `yaml:"enzyme,omitempty"`
}

type Reaction struct {
	ID            string             `yaml:"id"`
	Stoichiometry map[string]float64 `yaml:"stoichiometry"`
	Rate          RateLaw            `yaml:"rate"`
}

// Surface derives membrane area from lipid and membrane protein counts.
type Surface struct {
	Lipids           map[string]float64 `yaml:"lipids"` // nm^2 per molecule
	ProteinArea      float64            `yaml:"protein_area"`
	MembraneProteins []string           `yaml:"membrane_proteins"`
}

type Network struct {
	Name        string     `yaml:"name"`
	Metabolites []string   `yaml:"metabolites"`
	Reactions   []Reaction `yaml:"reactions"`
	Surface     *Surface   `yaml:"surface,omitempty"`
}

func Load(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	n, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

func Parse(data []byte) (*Network, error) {
	var n Network
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

func (n *Network) Save(path string) error {
	data, err := yaml.Marshal(n)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (n *Network) Validate() error {
	if len(n.Metabolites) == 0 {
		return fmt.Errorf("%w: no metabolites", ErrInvalidNetwork)
	}
	mets := make(map[string]bool, len(n.Metabolites))
	for _, m := range n.Metabolites {
		if mets[m] {
			return fmt.Errorf("%w: duplicate metabolite %s", ErrInvalidNetwork, m)
		}
		mets[m] = true
	}

	ids := make(map[string]bool, len(n.Reactions))
	for _, r := range n.Reactions {
		if r.ID == "" {
			return fmt.Errorf("%w: reaction without id", ErrInvalidNetwork)
		}
		if ids[r.ID] {
			return fmt.Errorf("%w: duplicate reaction %s", ErrInvalidNetwork, r.ID)
		}
		ids[r.ID] = true

		if len(r.Stoichiometry) == 0 {
			return fmt.Errorf("%w: reaction %s has no stoichiometry", ErrInvalidNetwork, r.ID)
		}
		for m := range r.Stoichiometry {
			if !mets[m] {
				return fmt.Errorf("%w: reaction %s uses %s, which is not a metabolite", ErrInvalidNetwork, r.ID, m)
			}
		}

		switch r.Rate.Law {
		case MassAction:
			if r.Rate.K < 0 || r.Rate.KR < 0 {
				return fmt.Errorf("%w: reaction %s has a negative rate constant", ErrInvalidNetwork, r.ID)
			}
		case MichaelisMenten:
			if !mets[r.Rate.Substrate] {
				return fmt.Errorf("%w: reaction %s substrate %q is not a metabolite", ErrInvalidNetwork, r.ID, r.Rate.Substrate)
			}
			if r.Rate.Km <= 0 {
				return fmt.Errorf("%w: reaction %s needs km > 0", ErrInvalidNetwork, r.ID)
			}
			if r.Rate.Enzyme == "" && r.Rate.Vmax <= 0 {
				return fmt.Errorf("%w: reaction %s needs an enzyme or vmax", ErrInvalidNetwork, r.ID)
			}
		default:
			return fmt.Errorf("%w: reaction %s has unknown rate law %q", ErrInvalidNetwork, r.ID, r.Rate.Law)
		}
	}
	return nil
}

// Species returns every species name the network reads or writes, sorted.
func (n *Network) Species() []string {
	set := make(map[string]bool)
	for _, m := range n.Metabolites {
		set[m] = true
	}
	for _, r := range n.Reactions {
		if r.Rate.Enzyme != "" {
			set[r.Rate.Enzyme] = true
		}
	}
	if n.Surface != nil {
		set[units.SurfaceAreaSpecies] = true
		for l := range n.Surface.Lipids {
			set[l] = true
		}
		for _, p := range n.Surface.MembraneProteins {
			set[p] = true
		}
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ReactionIDs returns reaction identifiers in network order.
func (n *Network) ReactionIDs() []string {
	ids := make([]string, len(n.Reactions))
	for i, r := range n.Reactions {
		ids[i] = r.ID
	}
	return ids
}

// Enzymes lists the distinct enzyme species in first-use order.
func (n *Network) Enzymes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range n.Reactions {
		e := r.Rate.Enzyme
		if e != "" && !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// Categories counts the network's species per category.
func (n *Network) Categories() map[species.Category]int {
	out := make(map[species.Category]int)
	for _, s := range n.Species() {
		out[species.Classify(s)]++
	}
	return out
}
