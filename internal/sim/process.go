package sim

import (
	"math"
	"time"

	"github.com/san-kum/finsim/internal/dist"
)

// ContinuousProcess advances a state variable by an elapsed duration. It
// holds no state of its own.
type ContinuousProcess interface {
	Advance(state State, elapsed time.Duration)
	continuousProcess()
}

// Appreciation compounds Key by Rate per year. Trials that never set Key are
// left untouched.
type Appreciation struct {
	Rate float64
	Key  string
}

func NewAppreciation(rate float64, key string) *Appreciation {
	if key == "" {
		key = KeyPropertyValue
	}
	return &Appreciation{Rate: rate, Key: key}
}

func (a *Appreciation) Advance(state State, elapsed time.Duration) {
	v, ok := state[a.Key]
	if !ok {
		return
	}
	years := float64(dist.Days(elapsed)) / daysPerYear
	state[a.Key] = v * math.Pow(1+a.Rate, years)
}

func (*Appreciation) continuousProcess() {}
