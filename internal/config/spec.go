package config

import (
	"fmt"
	"time"

	"github.com/san-kum/finsim/internal/dist"
	"github.com/san-kum/finsim/internal/sim"
)

const day = 24 * time.Hour

// DistSpec is the tagged form of a dist.Distribution.
type DistSpec struct {
	Type  string `yaml:"type"`
	Mean  Num    `yaml:"mean,omitempty"`
	Std   Num    `yaml:"std,omitempty"`
	Low   Num    `yaml:"low,omitempty"`
	Mode  Num    `yaml:"mode,omitempty"`
	High  Num    `yaml:"high,omitempty"`
	Start When   `yaml:"start,omitempty"`
	End   When   `yaml:"end,omitempty"`
}

func Normal(mean, std float64) DistSpec {
	return DistSpec{Type: "Normal", Mean: Lit(mean), Std: Lit(std)}
}

func Uniform(low, high float64) DistSpec {
	return DistSpec{Type: "Uniform", Low: Lit(low), High: Lit(high)}
}

func Triangular(low, mode, high float64) DistSpec {
	return DistSpec{Type: "Triangular", Low: Lit(low), Mode: Lit(mode), High: Lit(high)}
}

func DateRange(start, end time.Time) DistSpec {
	return DistSpec{Type: "DateRange", Start: At(start), End: At(end)}
}

// Build resolves the spec against p. Top-level distributions are built with
// nil params, so only literals and defaulted references apply there.
func (d DistSpec) Build(p dist.Params) (dist.Distribution, error) {
	r := resolver{p: p, kind: "distribution", tag: d.Type}
	var (
		out dist.Distribution
		err error
	)
	switch canonicalDist(d.Type) {
	case "Normal":
		out, err = dist.NewNormal(r.num("mean", d.Mean), r.num("std", d.Std))
	case "Uniform":
		out, err = dist.NewUniform(r.num("low", d.Low), r.num("high", d.High))
	case "Triangular":
		out, err = dist.NewTriangular(r.num("low", d.Low), r.num("mode", d.Mode), r.num("high", d.High))
	case "DateRange":
		out, err = dist.NewDateRange(r.when("start", d.Start), r.when("end", d.End))
	default:
		return nil, unknownTag("distribution", d.Type)
	}
	if r.err != nil {
		return nil, r.err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sim.ErrConfiguration, err)
	}
	return out, nil
}

func canonicalDist(tag string) string {
	switch tag {
	case "Normal", "NormalDistribution":
		return "Normal"
	case "Uniform", "UniformDistribution":
		return "Uniform"
	case "Triangular", "TriangularDistribution":
		return "Triangular"
	case "DateRange", "DateDistribution", "Date":
		return "DateRange"
	}
	return ""
}

// TimingSpec is the tagged form of a sim.Timing.
type TimingSpec struct {
	Type string `yaml:"type"`

	// OneTime
	Time      When `yaml:"time,omitempty"`
	DelayDays Num  `yaml:"delay_days,omitempty"`

	// Interval
	IntervalDays Num   `yaml:"interval_days,omitempty"`
	StartTime    *When `yaml:"start_time,omitempty"`

	// Random
	Start        When   `yaml:"start,omitempty"`
	End          When   `yaml:"end,omitempty"`
	N            Num    `yaml:"n,omitempty"`
	Distribution string `yaml:"distribution,omitempty"`

	// Seasonal
	Months []int       `yaml:"months,omitempty"`
	Inner  *TimingSpec `yaml:"inner,omitempty"`
}

func (t TimingSpec) Build(p dist.Params) (sim.Timing, error) {
	r := resolver{p: p, kind: "timing", tag: t.Type}
	switch t.Type {
	case "OneTime":
		at := r.when("time", t.Time)
		delay := r.optional("delay_days", t.DelayDays, 0)
		if r.err != nil {
			return nil, r.err
		}
		return sim.NewOneTime(dist.AddDays(at, int(delay))), nil
	case "Interval":
		days := r.num("interval_days", t.IntervalDays)
		var start *time.Time
		if t.StartTime != nil {
			s := r.when("start_time", *t.StartTime)
			start = &s
		}
		if r.err != nil {
			return nil, r.err
		}
		return timing(sim.NewInterval(time.Duration(days*float64(day)), start))
	case "Random":
		start, end, n := r.when("start", t.Start), r.when("end", t.End), r.num("n", t.N)
		if r.err != nil {
			return nil, r.err
		}
		return timing(sim.NewRandom(start, end, int(n), t.Distribution))
	case "Seasonal":
		if t.Inner == nil {
			return nil, missing("timing", t.Type, "inner")
		}
		inner, err := t.Inner.Build(p)
		if err != nil {
			return nil, fmt.Errorf("seasonal inner: %w", err)
		}
		return timing(sim.NewSeasonal(inner, t.Months))
	}
	return nil, unknownTag("timing", t.Type)
}

// ValueSpec is the tagged form of a sim.ValueGenerator.
type ValueSpec struct {
	Type string `yaml:"type"`

	Value Num `yaml:"value,omitempty"`

	Initial    Num `yaml:"initial,omitempty"`
	GrowthRate Num `yaml:"growth_rate,omitempty"`

	Dist      *DistSpec `yaml:"dist,omitempty"`
	UpdateKey string    `yaml:"update_key,omitempty"`

	Principal   Num    `yaml:"principal,omitempty"`
	InitialRate Num    `yaml:"initial_rate,omitempty"`
	TermMonths  Num    `yaml:"term_months,omitempty"`
	RateKey     string `yaml:"rate_key,omitempty"`
}

func (v ValueSpec) Build(p dist.Params) (sim.ValueGenerator, error) {
	r := resolver{p: p, kind: "value generator", tag: v.Type}
	switch v.Type {
	case "Fixed":
		amount := r.num("value", v.Value)
		if r.err != nil {
			return nil, r.err
		}
		return sim.NewFixed(amount), nil
	case "Growing":
		initial, rate := r.num("initial", v.Initial), r.num("growth_rate", v.GrowthRate)
		if r.err != nil {
			return nil, r.err
		}
		return sim.NewGrowing(initial, rate), nil
	case "DistributionSample", "Distribution":
		d, err := v.dist(p)
		if err != nil {
			return nil, err
		}
		return generator(sim.NewDistributionSample(d))
	case "RateChange":
		if v.UpdateKey == "" {
			return nil, missing("value generator", v.Type, "update_key")
		}
		d, err := v.dist(p)
		if err != nil {
			return nil, err
		}
		return generator(sim.NewRateChange(d, v.UpdateKey))
	case "VariableRateLoan":
		principal := r.num("principal", v.Principal)
		rate := r.num("initial_rate", v.InitialRate)
		term := r.num("term_months", v.TermMonths)
		if r.err != nil {
			return nil, r.err
		}
		return generator(sim.NewVariableRateLoan(principal, rate, int(term), v.RateKey))
	}
	return nil, unknownTag("value generator", v.Type)
}

func (v ValueSpec) dist(p dist.Params) (dist.Distribution, error) {
	if v.Dist == nil {
		return nil, missing("value generator", v.Type, "dist")
	}
	return v.Dist.Build(p)
}

// ProcessSpec is the tagged form of a sim.ContinuousProcess.
type ProcessSpec struct {
	Type string `yaml:"type"`
	Rate Num    `yaml:"rate"`
	Var  string `yaml:"var,omitempty"`
}

func (c ProcessSpec) Build(p dist.Params) (sim.ContinuousProcess, error) {
	r := resolver{p: p, kind: "process", tag: c.Type}
	switch c.Type {
	case "Appreciation":
		rate := r.num("rate", c.Rate)
		if r.err != nil {
			return nil, r.err
		}
		return sim.NewAppreciation(rate, c.Var), nil
	}
	return nil, unknownTag("process", c.Type)
}

// BuilderSpec composes one timing with one value generator.
type BuilderSpec struct {
	Name     string     `yaml:"name,omitempty"`
	Metadata Metadata   `yaml:"metadata,omitempty"`
	Timing   TimingSpec `yaml:"timing"`
	Value    ValueSpec  `yaml:"value_gen"`
}

func (b BuilderSpec) Build(p dist.Params) (*sim.EventBuilder, error) {
	name := b.Name
	if name == "" {
		name = b.Metadata.typeName()
	}
	tm, err := b.Timing.Build(p)
	if err != nil {
		return nil, fmt.Errorf("builder %q: %w", name, err)
	}
	gen, err := b.Value.Build(p)
	if err != nil {
		return nil, fmt.Errorf("builder %q: %w", name, err)
	}
	return sim.NewEventBuilder(name, tm, gen, sim.Metadata(b.Metadata))
}

func (m Metadata) typeName() string {
	return sim.Metadata(m).String("type")
}

// resolver collects the first failure while several fields are resolved.
type resolver struct {
	p    dist.Params
	kind string
	tag  string
	err  error
}

func (r *resolver) num(field string, n Num) float64 {
	if r.err != nil {
		return 0
	}
	if !n.IsSet() {
		r.err = missing(r.kind, r.tag, field)
		return 0
	}
	v, err := n.Resolve(r.p)
	if err != nil {
		r.err = fmt.Errorf("%s %s.%s: %w", r.kind, r.tag, field, err)
	}
	return v
}

func (r *resolver) optional(field string, n Num, def float64) float64 {
	if !n.IsSet() {
		return def
	}
	return r.num(field, n)
}

func (r *resolver) when(field string, w When) time.Time {
	if r.err != nil {
		return time.Time{}
	}
	if !w.IsSet() {
		r.err = missing(r.kind, r.tag, field)
		return time.Time{}
	}
	t, err := w.Resolve(r.p)
	if err != nil {
		r.err = fmt.Errorf("%s %s.%s: %w", r.kind, r.tag, field, err)
	}
	return t
}

// timing and generator keep a failed constructor's typed nil out of the
// interface result.
func timing[T sim.Timing](t T, err error) (sim.Timing, error) {
	if err != nil {
		return nil, err
	}
	return t, nil
}

func generator[T sim.ValueGenerator](g T, err error) (sim.ValueGenerator, error) {
	if err != nil {
		return nil, err
	}
	return g, nil
}

func unknownTag(kind, tag string) error {
	if tag == "" {
		return fmt.Errorf("%w: %s is missing its type", sim.ErrConfiguration, kind)
	}
	return fmt.Errorf("%w: unknown %s type %q", sim.ErrConfiguration, kind, tag)
}

func missing(kind, tag, field string) error {
	return fmt.Errorf("%w: %s %s requires %q", sim.ErrConfiguration, kind, tag, field)
}
