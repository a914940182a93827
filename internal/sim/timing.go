package sim

import (
	"math/rand"
	"sort"
	"time"

	"github.com/san-kum/finsim/internal/dist"
)

// Timing schedules the instants at which an event builder fires.
//
// Reset re-initializes the cursor for a fresh trial and hands the timing the
// trial's random source. Next returns the earliest schedulable instant that
// is not before current, not after end, and strictly after every instant the
// timing returned since the last Reset. Returning an instant consumes it.
// Once Next reports false for a given end it keeps reporting false.
type Timing interface {
	Reset(r *rand.Rand)
	Next(current, end time.Time) (time.Time, bool)
	timing()
}

// cursor remembers the last instant a timing handed out.
type cursor struct {
	last    time.Time
	emitted bool
}

func (c *cursor) passed(t time.Time) bool { return c.emitted && !t.After(c.last) }

func (c *cursor) take(t time.Time) time.Time {
	c.last = t
	c.emitted = true
	return t
}

// OneTime fires once at a fixed instant.
type OneTime struct {
	At    time.Time
	fired bool
}

func NewOneTime(at time.Time) *OneTime { return &OneTime{At: at} }

func (o *OneTime) Reset(*rand.Rand) { o.fired = false }

func (o *OneTime) Next(current, end time.Time) (time.Time, bool) {
	if o.fired || o.At.Before(current) || o.At.After(end) {
		return time.Time{}, false
	}
	o.fired = true
	return o.At, true
}

func (*OneTime) timing() {}

// Interval fires every Every, starting at Start when set and otherwise one
// interval after the first instant it is queried at.
type Interval struct {
	Every time.Duration
	Start *time.Time

	next   time.Time
	primed bool
	cursor
}

func NewInterval(every time.Duration, start *time.Time) (*Interval, error) {
	if every <= 0 {
		return nil, configErrorf("interval must be positive, got %s", every)
	}
	return &Interval{Every: every, Start: start}, nil
}

func (iv *Interval) Reset(*rand.Rand) {
	iv.primed = false
	iv.cursor = cursor{}
}

func (iv *Interval) Next(current, end time.Time) (time.Time, bool) {
	if !iv.primed {
		if iv.Start != nil {
			iv.next = *iv.Start
		} else {
			iv.next = current.Add(iv.Every)
		}
		iv.primed = true
	}
	for iv.next.Before(current) || iv.passed(iv.next) {
		iv.next = iv.next.Add(iv.Every)
	}
	if iv.next.After(end) {
		return time.Time{}, false
	}
	t := iv.take(iv.next)
	iv.next = t.Add(iv.Every)
	return t, true
}

func (*Interval) timing() {}

// Random fires at N whole-day instants drawn uniformly from [Start, End].
// The instants are drawn on the first query after Reset; draws landing on
// the same day collapse into one firing.
type Random struct {
	Start time.Time
	End   time.Time
	N     int

	rng   *rand.Rand
	times []time.Time
	drawn bool
	idx   int
	cursor
}

func NewRandom(start, end time.Time, n int, distribution string) (*Random, error) {
	if n < 0 {
		return nil, configErrorf("random timing count must be >= 0, got %d", n)
	}
	if end.Before(start) {
		return nil, configErrorf("random timing end %s before start %s", dist.FormatTime(end), dist.FormatTime(start))
	}
	if distribution != "" && distribution != "uniform" {
		return nil, configErrorf("unsupported random timing distribution %q", distribution)
	}
	return &Random{Start: start, End: end, N: n}, nil
}

func (rt *Random) Reset(r *rand.Rand) {
	rt.rng = r
	rt.times = nil
	rt.drawn = false
	rt.idx = 0
	rt.cursor = cursor{}
}

func (rt *Random) draw() {
	rt.drawn = true
	if rt.rng == nil {
		return
	}
	span := dist.Days(rt.End.Sub(rt.Start))
	rt.times = make([]time.Time, rt.N)
	for i := range rt.times {
		rt.times[i] = dist.AddDays(rt.Start, rt.rng.Intn(span+1))
	}
	sort.Slice(rt.times, func(i, j int) bool { return rt.times[i].Before(rt.times[j]) })
}

func (rt *Random) Next(current, end time.Time) (time.Time, bool) {
	if !rt.drawn {
		rt.draw()
	}
	for rt.idx < len(rt.times) && (rt.times[rt.idx].Before(current) || rt.passed(rt.times[rt.idx])) {
		rt.idx++
	}
	if rt.idx >= len(rt.times) || rt.times[rt.idx].After(end) {
		return time.Time{}, false
	}
	t := rt.take(rt.times[rt.idx])
	rt.idx++
	return t, true
}

func (*Random) timing() {}

// Seasonal filters an inner timing down to the allowed calendar months.
type Seasonal struct {
	Inner  Timing
	months [13]bool
}

func NewSeasonal(inner Timing, months []int) (*Seasonal, error) {
	if inner == nil {
		return nil, configErrorf("seasonal timing requires an inner timing")
	}
	if len(months) == 0 {
		return nil, configErrorf("seasonal timing requires at least one month")
	}
	s := &Seasonal{Inner: inner}
	for _, m := range months {
		if m < 1 || m > 12 {
			return nil, configErrorf("invalid month %d", m)
		}
		s.months[m] = true
	}
	return s, nil
}

func (s *Seasonal) Months() []int {
	var out []int
	for m := 1; m <= 12; m++ {
		if s.months[m] {
			out = append(out, m)
		}
	}
	return out
}

func (s *Seasonal) Reset(r *rand.Rand) { s.Inner.Reset(r) }

func (s *Seasonal) Next(current, end time.Time) (time.Time, bool) {
	for {
		t, ok := s.Inner.Next(current, end)
		if !ok {
			return time.Time{}, false
		}
		if s.months[t.Month()] {
			return t, true
		}
		current = t
	}
}

func (*Seasonal) timing() {}
