package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/finsim/internal/dist"
	"github.com/san-kum/finsim/internal/sim"
)

const (
	DefaultNumSimulations = 1000
	DefaultSeed           = 42
	DefaultScenario       = "real_estate"
)

// Config describes one ensemble: how many trials, how to seed them, which
// parameters to sample and which scenario turns parameters into a
// simulation. JSON files in the same shape load unchanged.
type Config struct {
	Name           string              `yaml:"name,omitempty"`
	NumSimulations int                 `yaml:"num_simulations"`
	Seed           *int64              `yaml:"seed,omitempty"`
	Workers        int                 `yaml:"workers,omitempty"`
	Dists          map[string]DistSpec `yaml:"dists"`
	Scenario       ScenarioSpec        `yaml:"scenario"`
}

// ScenarioSpec selects a registered scenario by name or describes one inline.
type ScenarioSpec struct {
	Builtin      string         `yaml:"builtin,omitempty"`
	Name         string         `yaml:"name,omitempty"`
	Start        When           `yaml:"start,omitempty"`
	End          When           `yaml:"end,omitempty"`
	InitialState map[string]Num `yaml:"initial_state,omitempty"`
	Processes    []ProcessSpec  `yaml:"processes,omitempty"`
	Builders     []BuilderSpec  `yaml:"builders,omitempty"`
}

func (s ScenarioSpec) IsZero() bool {
	return s.Builtin == "" && s.Name == "" && !s.Start.IsSet() && !s.End.IsSet() &&
		len(s.InitialState) == 0 && len(s.Processes) == 0 && len(s.Builders) == 0
}

// Build wires a fresh simulation for one trial. Builders are registered in
// document order, which is also their tie-break order.
func (s ScenarioSpec) Build(p dist.Params) (*sim.Simulation, error) {
	if s.Builtin != "" {
		return nil, fmt.Errorf("%w: scenario %q is built in and has no inline definition", sim.ErrConfiguration, s.Builtin)
	}
	r := resolver{p: p, kind: "scenario", tag: s.Name}
	start, end := r.when("start", s.Start), r.when("end", s.End)
	if r.err != nil {
		return nil, r.err
	}
	out, err := sim.New(s.Name, start, end, p)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(s.InitialState))
	for k := range s.InitialState {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := s.InitialState[k].Resolve(p)
		if err != nil {
			return nil, fmt.Errorf("initial_state.%s: %w", k, err)
		}
		out.SetState(k, v)
	}

	for i, ps := range s.Processes {
		proc, err := ps.Build(p)
		if err != nil {
			return nil, fmt.Errorf("processes[%d]: %w", i, err)
		}
		out.AddProcess(proc)
	}
	for i, bs := range s.Builders {
		b, err := bs.Build(p)
		if err != nil {
			return nil, fmt.Errorf("builders[%d]: %w", i, err)
		}
		out.AddBuilder(b)
	}
	return out, nil
}

func DefaultConfig() *Config {
	seed := int64(DefaultSeed)
	return &Config{
		Name:           DefaultScenario,
		NumSimulations: DefaultNumSimulations,
		Seed:           &seed,
		Dists:          GetPreset(DefaultScenario, "baseline").Dists,
		Scenario:       ScenarioSpec{Builtin: DefaultScenario},
	}
}

// Load reads a YAML or JSON config. Fields absent from the file keep their
// defaults, except dists and scenario which are taken from the file as given;
// a file with no scenario selects the built-in default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Dists = nil
	cfg.Scenario = ScenarioSpec{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", sim.ErrConfiguration, err)
	}
	if cfg.Scenario.IsZero() {
		cfg.Scenario.Builtin = DefaultScenario
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Distributions builds every configured distribution.
func (c *Config) Distributions() (map[string]dist.Distribution, error) {
	out := make(map[string]dist.Distribution, len(c.Dists))
	for _, name := range c.DistNames() {
		d, err := c.Dists[name].Build(nil)
		if err != nil {
			return nil, fmt.Errorf("dists.%s: %w", name, err)
		}
		out[name] = d
	}
	return out, nil
}

func (c *Config) DistNames() []string {
	names := make([]string, 0, len(c.Dists))
	for k := range c.Dists {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate fails fast on anything that would otherwise fail every trial.
// Inline scenarios are dry-run with every parameter at its distribution's
// central value.
func (c *Config) Validate() error {
	var errs []error
	if c.NumSimulations <= 0 {
		errs = append(errs, fmt.Errorf("%w: num_simulations must be > 0, got %d", sim.ErrConfiguration, c.NumSimulations))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: workers must be >= 0, got %d", sim.ErrConfiguration, c.Workers))
	}
	dists, err := c.Distributions()
	if err != nil {
		errs = append(errs, err)
	}
	if c.Scenario.Builtin != "" && len(c.Scenario.Builders) > 0 {
		errs = append(errs, fmt.Errorf("%w: scenario sets both builtin and builders", sim.ErrConfiguration))
	}
	if c.Scenario.Builtin == "" && err == nil {
		if _, err := c.Scenario.Build(probe(dists)); err != nil {
			errs = append(errs, fmt.Errorf("scenario: %w", err))
		}
	}
	return errors.Join(errs...)
}

func probe(dists map[string]dist.Distribution) dist.Params {
	p := make(dist.Params, len(dists))
	for name, d := range dists {
		switch d := d.(type) {
		case dist.Normal:
			p[name] = dist.Number(d.Mean)
		case dist.Uniform:
			p[name] = dist.Number((d.Low + d.High) / 2)
		case dist.Triangular:
			p[name] = dist.Number(d.Mode)
		case dist.DateRange:
			p[name] = dist.Time(d.Start)
		}
	}
	return p
}
