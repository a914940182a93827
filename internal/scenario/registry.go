// Package scenario maps scenario names to the factories that wire a
// simulation from one trial's sampled parameters.
package scenario

import (
	"fmt"
	"sort"

	"github.com/san-kum/finsim/internal/config"
	"github.com/san-kum/finsim/internal/dist"
	"github.com/san-kum/finsim/internal/ensemble"
	"github.com/san-kum/finsim/internal/sim"
)

type Scenario struct {
	Name        string
	Description string
	Factory     ensemble.Factory
}

type Registry struct {
	scenarios map[string]Scenario
}

func NewRegistry() *Registry {
	r := &Registry{scenarios: make(map[string]Scenario)}

	r.scenarios[RealEstateName] = Scenario{
		Name:        RealEstateName,
		Description: "leveraged property purchase: HELOC and seller financing, rent, upkeep, renovations, appreciation",
		Factory:     RealEstate,
	}

	return r
}

func (r *Registry) Register(s Scenario) error {
	if s.Name == "" || s.Factory == nil {
		return fmt.Errorf("%w: scenario needs a name and a factory", sim.ErrConfiguration)
	}
	if _, ok := r.scenarios[s.Name]; ok {
		return fmt.Errorf("%w: scenario %q already registered", sim.ErrConfiguration, s.Name)
	}
	r.scenarios[s.Name] = s
	return nil
}

func (r *Registry) Get(name string) (Scenario, error) {
	s, ok := r.scenarios[name]
	if !ok {
		return Scenario{}, fmt.Errorf("%w: unknown scenario %q", sim.ErrConfiguration, name)
	}
	return s, nil
}

func (r *Registry) List() []Scenario {
	out := make([]Scenario, 0, len(r.scenarios))
	for _, s := range r.scenarios {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Factory resolves a config's scenario: a registered name, or the inline
// definition itself.
func (r *Registry) Factory(spec config.ScenarioSpec) (ensemble.Factory, error) {
	if spec.Builtin != "" {
		s, err := r.Get(spec.Builtin)
		if err != nil {
			return nil, err
		}
		return s.Factory, nil
	}
	if len(spec.Builders) == 0 {
		return nil, fmt.Errorf("%w: inline scenario %q has no builders", sim.ErrConfiguration, spec.Name)
	}
	return func(p dist.Params) (*sim.Simulation, error) { return spec.Build(p) }, nil
}
