package species

import (
	"errors"
	"fmt"
)

// ErrMissingSpecies indicates a required species is absent. It is fatal to
// the replicate that hits it.
var ErrMissingSpecies = errors.New("species: missing species")

type MissingError struct {
	Name string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMissingSpecies, e.Name)
}

func (e *MissingError) Unwrap() error {
	return ErrMissingSpecies
}
