// Package dist provides the sampling primitives used to draw scenario
// parameters and stochastic event magnitudes.
//
// Every Distribution is immutable after construction and draws from a
// caller-supplied *rand.Rand, so one configuration can be shared by any
// number of concurrently running trials as long as each trial owns its
// random source.
package dist

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var ErrInvalid = errors.New("dist: invalid distribution parameters")

// Distribution is the closed set of sampling primitives:
// [Normal], [Uniform], [Triangular] and [DateRange].
type Distribution interface {
	Sample(r *rand.Rand) Value
	String() string
	distribution()
}

type Normal struct {
	Mean float64
	Std  float64
}

func NewNormal(mean, std float64) (Normal, error) {
	if std < 0 || math.IsNaN(std) || math.IsNaN(mean) {
		return Normal{}, fmt.Errorf("%w: normal std must be >= 0, got %g", ErrInvalid, std)
	}
	return Normal{Mean: mean, Std: std}, nil
}

func (d Normal) Sample(r *rand.Rand) Value { return Number(d.Mean + d.Std*r.NormFloat64()) }
func (d Normal) String() string            { return fmt.Sprintf("Normal(mean=%g, std=%g)", d.Mean, d.Std) }
func (Normal) distribution()               {}

type Uniform struct {
	Low  float64
	High float64
}

func NewUniform(low, high float64) (Uniform, error) {
	if high < low {
		return Uniform{}, fmt.Errorf("%w: uniform high %g < low %g", ErrInvalid, high, low)
	}
	return Uniform{Low: low, High: high}, nil
}

func (d Uniform) Sample(r *rand.Rand) Value { return Number(d.Low + (d.High-d.Low)*r.Float64()) }
func (d Uniform) String() string            { return fmt.Sprintf("Uniform(low=%g, high=%g)", d.Low, d.High) }
func (Uniform) distribution()               {}

// Triangular is used for cost estimates given as low / most likely / high.
type Triangular struct {
	Low  float64
	Mode float64
	High float64
}

func NewTriangular(low, mode, high float64) (Triangular, error) {
	if !(low <= mode && mode <= high) {
		return Triangular{}, fmt.Errorf("%w: triangular requires low <= mode <= high, got %g/%g/%g", ErrInvalid, low, mode, high)
	}
	return Triangular{Low: low, Mode: mode, High: high}, nil
}

func (d Triangular) Sample(r *rand.Rand) Value {
	span := d.High - d.Low
	if span == 0 {
		return Number(d.Low)
	}
	u := r.Float64()
	c := (d.Mode - d.Low) / span
	if u < c {
		return Number(d.Low + math.Sqrt(u*span*(d.Mode-d.Low)))
	}
	return Number(d.High - math.Sqrt((1-u)*span*(d.High-d.Mode)))
}

func (d Triangular) String() string {
	return fmt.Sprintf("Triangular(low=%g, mode=%g, high=%g)", d.Low, d.Mode, d.High)
}
func (Triangular) distribution() {}

// DateRange draws a whole-day offset uniformly from [Start, End], both inclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func NewDateRange(start, end time.Time) (DateRange, error) {
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("%w: date range end %s before start %s", ErrInvalid, FormatTime(end), FormatTime(start))
	}
	return DateRange{Start: start, End: end}, nil
}

func (d DateRange) Sample(r *rand.Rand) Value {
	return Time(AddDays(d.Start, r.Intn(Days(d.End.Sub(d.Start))+1)))
}

func (d DateRange) String() string {
	return fmt.Sprintf("DateRange(%s, %s)", FormatTime(d.Start), FormatTime(d.End))
}
func (DateRange) distribution() {}
