package sim

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/san-kum/finsim/internal/dist"
)

// UpdateStatePrefix marks metadata entries recording a state patch.
const UpdateStatePrefix = "update_state."

// EventBuilder composes one Timing with one ValueGenerator and static
// metadata. It caches the next candidate instant until the builder fires.
type EventBuilder struct {
	Name string

	timing   Timing
	gen      ValueGenerator
	metadata Metadata

	next      time.Time
	cached    bool
	exhausted bool
	cursor
}

func NewEventBuilder(name string, timing Timing, gen ValueGenerator, metadata Metadata) (*EventBuilder, error) {
	if timing == nil {
		return nil, configErrorf("builder %q has no timing", name)
	}
	if gen == nil {
		return nil, configErrorf("builder %q has no value generator", name)
	}
	return &EventBuilder{Name: name, timing: timing, gen: gen, metadata: metadata.Clone()}, nil
}

func (b *EventBuilder) Timing() Timing                 { return b.timing }
func (b *EventBuilder) ValueGenerator() ValueGenerator { return b.gen }
func (b *EventBuilder) Metadata() Metadata             { return b.metadata.Clone() }

func (b *EventBuilder) Reset(r *rand.Rand) {
	b.timing.Reset(r)
	b.gen.Reset()
	b.cached = false
	b.exhausted = false
	b.cursor = cursor{}
}

// NextEventTime returns the builder's next candidate at or after current.
// The candidate is memoized until it fires or falls behind current.
func (b *EventBuilder) NextEventTime(current time.Time, s *Simulation) (time.Time, bool, error) {
	if b.cached && (b.exhausted || !b.next.Before(current)) {
		return b.next, !b.exhausted, nil
	}

	t, ok := b.timing.Next(current, s.end)
	for ok && t.Before(current) {
		prev := t
		if t, ok = b.timing.Next(current, s.end); ok && !t.After(prev) {
			return time.Time{}, false, b.stalled(t)
		}
	}
	if ok && b.passed(t) {
		return time.Time{}, false, b.stalled(t)
	}

	b.next, b.cached, b.exhausted = t, true, !ok
	return t, ok, nil
}

func (b *EventBuilder) stalled(t time.Time) error {
	return configErrorf("timing of builder %q repeated instant %s", b.Name, dist.FormatTime(t))
}

// GenerateEvent fires the builder if at is its current candidate. Any state
// patch is applied to s before the event is returned.
func (b *EventBuilder) GenerateEvent(at time.Time, s *Simulation) (*Event, error) {
	if !b.cached || b.exhausted || !b.next.Equal(at) {
		return nil, nil
	}

	em, err := b.gen.Generate(at, s)
	if err != nil {
		return nil, err
	}

	meta := b.metadata.Merge(em.Metadata)
	if len(em.Patch) > 0 {
		keys := make([]string, 0, len(em.Patch))
		for k := range em.Patch {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			meta = meta.Set(UpdateStatePrefix+k, em.Patch[k])
			s.state[k] = em.Patch[k]
		}
	}

	b.cached = false
	b.take(at)
	return &Event{Time: at, Value: em.Amount, Metadata: meta}, nil
}

func (b *EventBuilder) String() string {
	return fmt.Sprintf("%s(%T, %T)", b.Name, b.timing, b.gen)
}
