package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/cmeode/internal/dynamo"
	"github.com/san-kum/cmeode/internal/integrators"
)

type Registry struct {
	integrators map[string]func() dynamo.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		integrators: make(map[string]func() dynamo.Integrator),
	}

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }
	r.integrators["rk45"] = func() dynamo.Integrator { return integrators.NewRK45() }

	return r
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

// Runner wraps a fresh stepper of the named kind in a window driver.
func (r *Registry) Runner(name string, tolerance float64) (*integrators.Runner, error) {
	stepper, err := r.GetIntegrator(name)
	if err != nil {
		return nil, err
	}
	return integrators.NewRunner(stepper, tolerance), nil
}

func (r *Registry) ListIntegrators() []string {
	names := make([]string, 0, len(r.integrators))
	for name := range r.integrators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
