package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/san-kum/finsim/internal/dist"
)

// Simulation is one trial: shared state, the builders and processes acting
// on it, and the trajectory they produce. Run may be called once.
type Simulation struct {
	name   string
	start  time.Time
	end    time.Time
	params dist.Params

	builders  []*EventBuilder
	processes []ContinuousProcess

	events  []Event
	state   State
	history History

	rng *rand.Rand
	ran bool
}

func New(name string, start, end time.Time, params dist.Params) (*Simulation, error) {
	if end.Before(start) {
		return nil, configErrorf("simulation end %s before start %s", dist.FormatTime(end), dist.FormatTime(start))
	}
	if params == nil {
		params = dist.Params{}
	}
	return &Simulation{
		name:      name,
		start:     start,
		end:       end,
		params:    params,
		builders:  make([]*EventBuilder, 0),
		processes: make([]ContinuousProcess, 0),
		state:     State{},
		rng:       rand.New(rand.NewSource(1)),
	}, nil
}

func (s *Simulation) AddBuilder(b *EventBuilder)     { s.builders = append(s.builders, b) }
func (s *Simulation) AddProcess(p ContinuousProcess) { s.processes = append(s.processes, p) }
func (s *Simulation) SetState(key string, v float64) { s.state[key] = v }
func (s *Simulation) SetName(name string)            { s.name = name }
func (s *Simulation) SetRand(r *rand.Rand)           { s.rng = r }
func (s *Simulation) Rand() *rand.Rand               { return s.rng }
func (s *Simulation) Name() string                   { return s.name }
func (s *Simulation) Start() time.Time               { return s.start }
func (s *Simulation) End() time.Time                 { return s.end }
func (s *Simulation) Params() dist.Params            { return s.params }
func (s *Simulation) Builders() []*EventBuilder      { return s.builders }
func (s *Simulation) Processes() []ContinuousProcess { return s.processes }
func (s *Simulation) Events() []Event                { return s.events }
func (s *Simulation) History() History               { return s.history }

func (s *Simulation) Lookup(key string) (float64, bool) {
	v, ok := s.state[key]
	return v, ok
}

// State returns a copy of the current state.
func (s *Simulation) State() State { return s.state.Clone() }

// Run merges every builder and process into one time-ordered trajectory
// between start and end.
func (s *Simulation) Run(ctx context.Context) error {
	if s.ran {
		return ErrAlreadyRun
	}
	s.ran = true

	for _, b := range s.builders {
		b.Reset(s.rng)
	}

	current := s.start
	s.events = make([]Event, 0)
	s.history = History{{At: current, State: s.state.Clone()}}

	for step := 0; ; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		next, ok, err := s.earliest(current)
		if err != nil {
			return &RunError{Step: step, Time: current, Wrapped: err}
		}
		if !ok {
			return nil
		}

		if elapsed := next.Sub(current); elapsed > 0 {
			for _, p := range s.processes {
				p.Advance(s.state, elapsed)
			}
		}

		fired := 0.0
		for _, b := range s.builders {
			ev, err := b.GenerateEvent(next, s)
			if err != nil {
				return &RunError{Step: step, Time: next, Builder: b.Name, Wrapped: err}
			}
			if ev == nil {
				continue
			}
			s.events = append(s.events, *ev)
			fired += ev.Value
		}

		if _, ok := s.state[KeyCumulativeCash]; ok {
			s.state[KeyCumulativeCash] += fired
		}
		if !s.state.IsValid() {
			return &RunError{Step: step, Time: next, Wrapped: fmt.Errorf("%w: state %v", ErrNumeric, s.state)}
		}

		snap := Snapshot{At: next, State: s.state.Clone()}
		if next.Equal(current) {
			// only events scheduled exactly at start land here
			s.history[len(s.history)-1] = snap
		} else {
			s.history = append(s.history, snap)
		}
		current = next
	}
}

func (s *Simulation) earliest(current time.Time) (time.Time, bool, error) {
	var next time.Time
	found := false
	for _, b := range s.builders {
		t, ok, err := b.NextEventTime(current, s)
		if err != nil {
			return time.Time{}, false, err
		}
		if !ok || t.After(s.end) {
			continue
		}
		if !found || t.Before(next) {
			next, found = t, true
		}
	}
	return next, found, nil
}

// Result extracts the trial outcome in its exchange form.
func (s *Simulation) Result() *Result {
	return &Result{
		Name:    s.name,
		Start:   s.start,
		End:     s.end,
		Params:  s.params.Clone(),
		Events:  append([]Event(nil), s.events...),
		State:   s.state.Clone(),
		History: append(History(nil), s.history...),
	}
}
