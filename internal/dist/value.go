package dist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Value is a sampled scenario parameter: either a real number or a timestamp.
type Value struct {
	num    float64
	at     time.Time
	isTime bool
}

func Number(f float64) Value { return Value{num: f} }

func Time(t time.Time) Value { return Value{at: t, isTime: true} }

func (v Value) IsTime() bool { return v.isTime }

// Float returns the numeric value. Timestamps report zero.
func (v Value) Float() float64 { return v.num }

// Time returns the timestamp value. Numbers report the zero time.
func (v Value) Time() time.Time { return v.at }

func (v Value) String() string {
	if v.isTime {
		return FormatTime(v.at)
	}
	return fmt.Sprintf("%g", v.num)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isTime {
		return json.Marshal(FormatTime(v.at))
	}
	return json.Marshal(v.num)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t, err := ParseTime(s)
		if err != nil {
			return err
		}
		*v = Time(t)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parameter must be a number or ISO-8601 timestamp: %w", err)
	}
	*v = Number(f)
	return nil
}

// Params is one trial's sampled parameter set. Read-only once a simulation
// has been built from it.
type Params map[string]Value

// Float returns the numeric parameter under key, or def when absent.
func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok || v.isTime {
		return def
	}
	return v.num
}

// Int truncates the numeric parameter under key toward zero.
func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok || v.isTime {
		return def
	}
	return int(v.num)
}

func (p Params) Time(key string, def time.Time) time.Time {
	v, ok := p[key]
	if !ok || !v.isTime {
		return def
	}
	return v.at
}

// Keys returns the parameter names in lexical order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
