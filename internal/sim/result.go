package sim

import (
	"encoding/json"
	"io"
	"time"

	"github.com/san-kum/finsim/internal/dist"
)

// Result is the exchange form of a completed trial, consumed by analytics
// and persistence. Timestamps serialize as ISO-8601 strings.
type Result struct {
	Name    string      `json:"name"`
	Start   time.Time   `json:"start"`
	End     time.Time   `json:"end"`
	Params  dist.Params `json:"params"`
	Events  []Event     `json:"events"`
	State   State       `json:"state"`
	History History     `json:"state_history"`
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name    string      `json:"name"`
		Start   string      `json:"start"`
		End     string      `json:"end"`
		Params  dist.Params `json:"params"`
		Events  []Event     `json:"events"`
		State   State       `json:"state"`
		History History     `json:"state_history"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := dist.ParseTime(raw.Start)
	if err != nil {
		return err
	}
	end, err := dist.ParseTime(raw.End)
	if err != nil {
		return err
	}
	*r = Result{
		Name:    raw.Name,
		Start:   start,
		End:     end,
		Params:  raw.Params,
		Events:  raw.Events,
		State:   raw.State,
		History: raw.History,
	}
	return nil
}

// CashFlow returns the running sum of event values at each event time,
// merging events that share an instant.
func (r *Result) CashFlow() ([]time.Time, []float64) {
	var times []time.Time
	var totals []float64
	sum := 0.0
	for _, e := range r.Events {
		sum += e.Value
		if n := len(times); n > 0 && times[n-1].Equal(e.Time) {
			totals[n-1] = sum
			continue
		}
		times = append(times, e.Time)
		totals = append(totals, sum)
	}
	return times, totals
}

// TotalsByType sums event values per "type" metadata entry.
func (r *Result) TotalsByType() map[string]float64 {
	out := make(map[string]float64)
	for _, e := range r.Events {
		out[e.Type()] += e.Value
	}
	return out
}

func (r *Result) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func ReadJSON(rd io.Reader) (*Result, error) {
	var r Result
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}
