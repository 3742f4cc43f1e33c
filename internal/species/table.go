package species

import (
	"fmt"
	"sort"
	"strings"
)

type ID int32

// Category tags a species with its role in the cell model. Tags are assigned
// once, when the table is built.
type Category uint8

const (
	Other Category = iota
	Metabolite
	Protein
	RNA
	Gene
	Counter
	Geometry
)

var categoryNames = [...]string{
	Other:      "other",
	Metabolite: "metabolite",
	Protein:    "protein",
	RNA:        "rna",
	Gene:       "gene",
	Counter:    "counter",
	Geometry:   "geometry",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", c)
}

// ParseCategory maps a category name as printed by String back to its tag.
func ParseCategory(name string) (Category, error) {
	for c, n := range categoryNames {
		if n == strings.ToLower(name) {
			return Category(c), nil
		}
	}
	return Other, fmt.Errorf("species: unknown category %q", name)
}

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{Metabolite, Protein, RNA, Gene, Geometry, Counter, Other}
}

var counterPrefixes = []string{"ATP_", "CTP_", "GTP_", "UTP_"}

// Classify maps a species identifier to its category using the Syn3A naming
// scheme: M_PTN_* proteins, M_RNA_* RNAs, *_gene genes, M_* metabolites,
// Cell* geometry, *_cost and NTP_* bookkeeping counters.
func Classify(name string) Category {
	switch {
	case strings.HasPrefix(name, "M_PTN_"):
		return Protein
	case strings.HasPrefix(name, "M_RNA_"):
		return RNA
	case strings.HasSuffix(name, "_gene"):
		return Gene
	case strings.HasPrefix(name, "Cell"):
		return Geometry
	case strings.Contains(name, "_cost"):
		return Counter
	case strings.HasPrefix(name, "M_"):
		return Metabolite
	}
	for _, p := range counterPrefixes {
		if strings.HasPrefix(name, p) {
			return Counter
		}
	}
	return Other
}

// Table interns species identifiers into dense IDs.
type Table struct {
	names      []string
	categories []Category
	index      map[string]ID
}

// NewTable builds a table from the given names. Duplicates are ignored and
// IDs are assigned in sorted name order so that two tables built from the
// same set of names agree.
func NewTable(names ...[]string) *Table {
	seen := make(map[string]struct{})
	all := make([]string, 0)
	for _, group := range names {
		for _, n := range group {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			all = append(all, n)
		}
	}
	sort.Strings(all)

	t := &Table{
		names:      all,
		categories: make([]Category, len(all)),
		index:      make(map[string]ID, len(all)),
	}
	for i, n := range all {
		t.index[n] = ID(i)
		t.categories[i] = Classify(n)
	}
	return t
}

func (t *Table) Len() int { return len(t.names) }

func (t *Table) Name(id ID) string { return t.names[id] }

func (t *Table) Category(id ID) Category { return t.categories[id] }

func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

func (t *Table) Lookup(name string) (ID, bool) {
	id, ok := t.index[name]
	return id, ok
}

// Resolve returns the ID for name or an error wrapping ErrMissingSpecies.
func (t *Table) Resolve(name string) (ID, error) {
	id, ok := t.index[name]
	if !ok {
		return 0, &MissingError{Name: name}
	}
	return id, nil
}

// ResolveAll resolves names in order, failing on the first unknown one.
func (t *Table) ResolveAll(names []string) ([]ID, error) {
	ids := make([]ID, len(names))
	for i, n := range names {
		id, err := t.Resolve(n)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// ByCategory returns the IDs tagged with c, in ID order.
func (t *Table) ByCategory(c Category) []ID {
	var ids []ID
	for i, cat := range t.categories {
		if cat == c {
			ids = append(ids, ID(i))
		}
	}
	return ids
}
