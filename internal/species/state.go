package species

// State is a particle-count view over a Table. The zero value is unusable;
// build one with NewState or FromMap.
type State struct {
	table  *Table
	counts []int64
}

func NewState(t *Table) *State {
	return &State{table: t, counts: make([]int64, t.Len())}
}

// FromMap builds a state holding exactly the counts in m. Every species in
// the table must be present.
func FromMap(t *Table, m map[string]int64) (*State, error) {
	s := NewState(t)
	if err := s.Load(m); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) Table() *Table { return s.table }

func (s *State) Get(id ID) int64 { return s.counts[id] }

func (s *State) Set(id ID, v int64) { s.counts[id] = v }

func (s *State) Add(id ID, delta int64) { s.counts[id] += delta }

func (s *State) Count(name string) (int64, error) {
	id, err := s.table.Resolve(name)
	if err != nil {
		return 0, err
	}
	return s.counts[id], nil
}

func (s *State) SetCount(name string, v int64) error {
	id, err := s.table.Resolve(name)
	if err != nil {
		return err
	}
	s.counts[id] = v
	return nil
}

func (s *State) Clone() *State {
	c := make([]int64, len(s.counts))
	copy(c, s.counts)
	return &State{table: s.table, counts: c}
}

// Load overwrites every count from m. Keys in m that the table does not know
// are ignored; table species missing from m are an error and leave s
// unchanged.
func (s *State) Load(m map[string]int64) error {
	next := make([]int64, len(s.counts))
	for i, name := range s.table.names {
		v, ok := m[name]
		if !ok {
			return &MissingError{Name: name}
		}
		next[i] = v
	}
	s.counts = next
	return nil
}

// LoadCategory overwrites only the species tagged c.
func (s *State) LoadCategory(m map[string]int64, c Category) error {
	for i, name := range s.table.names {
		if s.table.categories[i] != c {
			continue
		}
		v, ok := m[name]
		if !ok {
			return &MissingError{Name: name}
		}
		s.counts[i] = v
	}
	return nil
}

func (s *State) Map() map[string]int64 {
	m := make(map[string]int64, len(s.counts))
	for i, name := range s.table.names {
		m[name] = s.counts[i]
	}
	return m
}

func (s *State) Equal(other *State) bool {
	if s.table != other.table || len(s.counts) != len(other.counts) {
		return false
	}
	for i := range s.counts {
		if s.counts[i] != other.counts[i] {
			return false
		}
	}
	return true
}
