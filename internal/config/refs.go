package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/finsim/internal/dist"
	"github.com/san-kum/finsim/internal/sim"
)

// Num is a numeric field that is either a literal or a reference to a
// sampled parameter. In YAML it is written as 12.5, "$name", or
// {param: name, scale: -0.01, default: 3000}.
type Num struct {
	Value      float64
	Param      string
	Scale      float64
	HasDefault bool
	set        bool
}

func Lit(v float64) Num { return Num{Value: v, set: true} }

func Ref(param string) Num { return Num{Param: param, set: true} }

func (n Num) IsSet() bool { return n.set }

func (n Num) IsRef() bool { return n.Param != "" }

func (n Num) IsZero() bool { return !n.set }

func (n Num) WithDefault(v float64) Num {
	n.Value, n.HasDefault = v, true
	return n
}

func (n *Num) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if strings.HasPrefix(node.Value, "$") {
			*n = Ref(strings.TrimPrefix(node.Value, "$"))
			return nil
		}
		f, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return fmt.Errorf("%w: line %d: %q is not a number or $param", sim.ErrConfiguration, node.Line, node.Value)
		}
		*n = Lit(f)
		return nil
	case yaml.MappingNode:
		var raw struct {
			Param   string   `yaml:"param"`
			Scale   *float64 `yaml:"scale"`
			Default *float64 `yaml:"default"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		if raw.Param == "" {
			return fmt.Errorf("%w: line %d: parameter reference needs a param name", sim.ErrConfiguration, node.Line)
		}
		*n = Ref(raw.Param)
		if raw.Scale != nil {
			n.Scale = *raw.Scale
		}
		if raw.Default != nil {
			*n = n.WithDefault(*raw.Default)
		}
		return nil
	}
	return fmt.Errorf("%w: line %d: expected number or parameter reference", sim.ErrConfiguration, node.Line)
}

func (n Num) MarshalYAML() (any, error) {
	if !n.IsRef() {
		return n.Value, nil
	}
	if n.Scale == 0 && !n.HasDefault {
		return "$" + n.Param, nil
	}
	out := map[string]any{"param": n.Param}
	if n.Scale != 0 {
		out["scale"] = n.Scale
	}
	if n.HasDefault {
		out["default"] = n.Value
	}
	return out, nil
}

// Resolve evaluates n against one trial's parameters.
func (n Num) Resolve(p dist.Params) (float64, error) {
	if !n.IsRef() {
		return n.Value, nil
	}
	v, ok := p[n.Param]
	switch {
	case ok && v.IsTime():
		return 0, fmt.Errorf("%w: parameter %q is a date, expected a number", sim.ErrConfiguration, n.Param)
	case ok:
		if n.Scale != 0 {
			return v.Float() * n.Scale, nil
		}
		return v.Float(), nil
	case n.HasDefault:
		return n.Value, nil
	}
	return 0, fmt.Errorf("%w: parameter %q was not sampled and has no default", sim.ErrConfiguration, n.Param)
}

// When is a timestamp field: an ISO-8601 string or a reference to a sampled
// date, optionally shifted, written as "$name" or {param: name, offset_days: 30}.
type When struct {
	At         time.Time
	Param      string
	OffsetDays int
	HasDefault bool
	set        bool
}

func At(t time.Time) When { return When{At: t, set: true} }

func DateRef(param string) When { return When{Param: param, set: true} }

func (w When) IsSet() bool { return w.set }

func (w When) IsZero() bool { return !w.set }

func (w *When) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if strings.HasPrefix(node.Value, "$") {
			*w = DateRef(strings.TrimPrefix(node.Value, "$"))
			return nil
		}
		t, err := dist.ParseTime(node.Value)
		if err != nil {
			return fmt.Errorf("%w: line %d: %w", sim.ErrConfiguration, node.Line, err)
		}
		*w = At(t)
		return nil
	case yaml.MappingNode:
		var raw struct {
			Param      string `yaml:"param"`
			OffsetDays int    `yaml:"offset_days"`
			Default    string `yaml:"default"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		if raw.Param == "" {
			return fmt.Errorf("%w: line %d: date reference needs a param name", sim.ErrConfiguration, node.Line)
		}
		*w = DateRef(raw.Param)
		w.OffsetDays = raw.OffsetDays
		if raw.Default != "" {
			t, err := dist.ParseTime(raw.Default)
			if err != nil {
				return fmt.Errorf("%w: line %d: %w", sim.ErrConfiguration, node.Line, err)
			}
			w.At, w.HasDefault = t, true
		}
		return nil
	}
	return fmt.Errorf("%w: line %d: expected timestamp or parameter reference", sim.ErrConfiguration, node.Line)
}

func (w When) MarshalYAML() (any, error) {
	if w.Param == "" {
		return dist.FormatTime(w.At), nil
	}
	if w.OffsetDays == 0 && !w.HasDefault {
		return "$" + w.Param, nil
	}
	out := map[string]any{"param": w.Param}
	if w.OffsetDays != 0 {
		out["offset_days"] = w.OffsetDays
	}
	if w.HasDefault {
		out["default"] = dist.FormatTime(w.At)
	}
	return out, nil
}

func (w When) Resolve(p dist.Params) (time.Time, error) {
	if w.Param == "" {
		return w.At, nil
	}
	v, ok := p[w.Param]
	switch {
	case ok && !v.IsTime():
		return time.Time{}, fmt.Errorf("%w: parameter %q is a number, expected a date", sim.ErrConfiguration, w.Param)
	case ok:
		return dist.AddDays(v.Time(), w.OffsetDays), nil
	case w.HasDefault:
		return dist.AddDays(w.At, w.OffsetDays), nil
	}
	return time.Time{}, fmt.Errorf("%w: date parameter %q was not sampled and has no default", sim.ErrConfiguration, w.Param)
}

// Metadata keeps the document order of a YAML mapping of scalars.
type Metadata sim.Metadata

func (m *Metadata) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: line %d: metadata must be a mapping", sim.ErrConfiguration, node.Line)
	}
	out := make(Metadata, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var v any
		if err := node.Content[i+1].Decode(&v); err != nil {
			return err
		}
		switch x := v.(type) {
		case int:
			v = float64(x)
		case string, float64, bool:
		default:
			return fmt.Errorf("%w: line %d: metadata %q must be a scalar", sim.ErrConfiguration, node.Content[i].Line, node.Content[i].Value)
		}
		out = append(out, sim.Field{Key: node.Content[i].Value, Value: v})
	}
	*m = out
	return nil
}

func (m Metadata) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range m {
		var val yaml.Node
		if err := val.Encode(f.Value); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: f.Key}, &val)
	}
	return node, nil
}
