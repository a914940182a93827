package sim

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/finsim/internal/dist"
)

// Conventional state keys.
const (
	KeyCumulativeCash = "cumulative_cash"
	KeyPropertyValue  = "property_value"
)

// State is the named set of scalar variables shared within one trial.
type State map[string]float64

func (s State) Clone() State {
	c := make(State, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Get returns the value under key, or fallback when the key was never set.
func (s State) Get(key string, fallback float64) float64 {
	if v, ok := s[key]; ok {
		return v
	}
	return fallback
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Field is one metadata entry. Values are scalars: string, float64 or bool.
type Field struct {
	Key   string
	Value any
}

// Metadata is an insertion-ordered string to scalar mapping.
type Metadata []Field

func (m Metadata) Get(key string) (any, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// String returns the value under key when it is a string.
func (m Metadata) String(key string) string {
	v, _ := m.Get(key)
	s, _ := v.(string)
	return s
}

func (m Metadata) Float(key string) (float64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Set overwrites key in place, keeping its position, or appends it.
func (m Metadata) Set(key string, value any) Metadata {
	for i := range m {
		if m[i].Key == key {
			m[i].Value = value
			return m
		}
	}
	return append(m, Field{Key: key, Value: value})
}

func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	c := make(Metadata, len(m))
	copy(c, m)
	return c
}

// Merge returns a copy of m overlaid with other; other wins on collisions.
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, 0, len(m)+len(other))
	out = append(out, m...)
	for _, f := range other {
		out = out.Set(f.Key, f.Value)
	}
	return out
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", f.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	out := Metadata{}
	err := decodeObject(data, func(key string, dec *json.Decoder) error {
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		out = append(out, Field{Key: key, Value: v})
		return nil
	})
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	*m = out
	return nil
}

// Event is an immutable cash event. Negative values are outflows.
type Event struct {
	Time     time.Time `json:"time"`
	Value    float64   `json:"value"`
	Metadata Metadata  `json:"metadata"`
}

// Type is the conventional "type" metadata entry, if any.
func (e Event) Type() string { return e.Metadata.String("type") }

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Time     string   `json:"time"`
		Value    float64  `json:"value"`
		Metadata Metadata `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := dist.ParseTime(raw.Time)
	if err != nil {
		return err
	}
	*e = Event{Time: t, Value: raw.Value, Metadata: raw.Metadata}
	return nil
}

// Snapshot is a copy of the state taken at one processed instant.
type Snapshot struct {
	At    time.Time
	State State
}

// History is the append-only, strictly time-ordered list of snapshots.
type History []Snapshot

func (h History) Times() []time.Time {
	out := make([]time.Time, len(h))
	for i, s := range h {
		out[i] = s.At
	}
	return out
}

// Series extracts one variable over time. Snapshots lacking the key report
// zero and ok is false if no snapshot carried it.
func (h History) Series(key string) (values []float64, ok bool) {
	values = make([]float64, len(h))
	for i, s := range h {
		if v, has := s.State[key]; has {
			values[i] = v
			ok = true
		}
	}
	return values, ok
}

func (h History) Last() (Snapshot, bool) {
	if len(h) == 0 {
		return Snapshot{}, false
	}
	return h[len(h)-1], true
}

// MarshalJSON encodes the history as an object keyed by ISO-8601 timestamps
// in time order.
func (h History) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range h {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(dist.FormatTime(s.At))
		v, err := json.Marshal(s.State)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (h *History) UnmarshalJSON(data []byte) error {
	out := History{}
	err := decodeObject(data, func(key string, dec *json.Decoder) error {
		at, err := dist.ParseTime(key)
		if err != nil {
			return err
		}
		st := State{}
		if err := dec.Decode(&st); err != nil {
			return err
		}
		out = append(out, Snapshot{At: at, State: st})
		return nil
	})
	if err != nil {
		return fmt.Errorf("state history: %w", err)
	}
	*h = out
	return nil
}

// decodeObject walks a JSON object in document order.
func decodeObject(data []byte, field func(key string, dec *json.Decoder) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected key, got %v", tok)
		}
		if err := field(key, dec); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}
