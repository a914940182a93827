package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/san-kum/finsim/internal/dist"
)

const daysPerYear = 365.25

// Emission is what a ValueGenerator produces for one firing. Patch holds
// state writes the simulation applies as soon as the event is generated.
type Emission struct {
	Amount   float64
	Metadata Metadata
	Patch    State
}

// ValueGenerator computes the magnitude of an event. Generate is called
// exactly once per firing of the owning builder, in time order; Reset
// restores the initial accumulation or amortization state.
type ValueGenerator interface {
	Reset()
	Generate(at time.Time, s *Simulation) (Emission, error)
	valueGenerator()
}

// Fixed emits a constant amount.
type Fixed struct {
	Amount float64
}

func NewFixed(amount float64) *Fixed { return &Fixed{Amount: amount} }

func (f *Fixed) Reset() {}

func (f *Fixed) Generate(time.Time, *Simulation) (Emission, error) {
	return Emission{Amount: f.Amount}, nil
}

func (*Fixed) valueGenerator() {}

// Growing compounds its amount by GrowthRate per year of elapsed time between
// calls. The first call returns Initial.
type Growing struct {
	Initial    float64
	GrowthRate float64

	current float64
	last    time.Time
	started bool
}

func NewGrowing(initial, growthRate float64) *Growing {
	return &Growing{Initial: initial, GrowthRate: growthRate, current: initial}
}

func (g *Growing) Reset() {
	g.current = g.Initial
	g.started = false
}

func (g *Growing) Generate(at time.Time, _ *Simulation) (Emission, error) {
	if g.started {
		years := float64(dist.Days(at.Sub(g.last))) / daysPerYear
		g.current *= math.Pow(1+g.GrowthRate, years)
	}
	g.last = at
	g.started = true
	return Emission{Amount: g.current}, nil
}

func (*Growing) valueGenerator() {}

// DistributionSample emits a fresh draw from Dist on every call.
type DistributionSample struct {
	Dist dist.Distribution
}

func NewDistributionSample(d dist.Distribution) (*DistributionSample, error) {
	if err := numericDistribution(d); err != nil {
		return nil, err
	}
	return &DistributionSample{Dist: d}, nil
}

func (d *DistributionSample) Reset() {}

func (d *DistributionSample) Generate(_ time.Time, s *Simulation) (Emission, error) {
	return Emission{Amount: d.Dist.Sample(s.Rand()).Float()}, nil
}

func (*DistributionSample) valueGenerator() {}

// RateChange samples a new rate and publishes it to the shared state under
// Key. It carries no cash.
type RateChange struct {
	Dist dist.Distribution
	Key  string
}

func NewRateChange(d dist.Distribution, key string) (*RateChange, error) {
	if err := numericDistribution(d); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, configErrorf("rate change requires an update key")
	}
	return &RateChange{Dist: d, Key: key}, nil
}

func (rc *RateChange) Reset() {}

func (rc *RateChange) Generate(_ time.Time, s *Simulation) (Emission, error) {
	rate := rc.Dist.Sample(s.Rand()).Float()
	return Emission{Patch: State{rc.Key: rate}}, nil
}

func (*RateChange) valueGenerator() {}

// VariableRateLoan amortizes a loan one monthly payment per call, re-leveling
// the payment over the remaining term with whatever rate the shared state
// holds under RateKey (InitialRate until something writes it).
type VariableRateLoan struct {
	Principal   float64
	InitialRate float64
	TermMonths  int
	RateKey     string

	balance float64
	month   int
}

func NewVariableRateLoan(principal, initialRate float64, termMonths int, rateKey string) (*VariableRateLoan, error) {
	if termMonths <= 0 {
		return nil, configErrorf("loan term must be positive, got %d months", termMonths)
	}
	if principal < 0 || math.IsNaN(principal) || math.IsInf(principal, 0) {
		return nil, configErrorf("loan principal must be finite and >= 0, got %g", principal)
	}
	return &VariableRateLoan{
		Principal:   principal,
		InitialRate: initialRate,
		TermMonths:  termMonths,
		RateKey:     rateKey,
		balance:     principal,
	}, nil
}

func (l *VariableRateLoan) Reset() {
	l.balance = l.Principal
	l.month = 0
}

// Balance is the principal still outstanding.
func (l *VariableRateLoan) Balance() float64 { return l.balance }

func (l *VariableRateLoan) Generate(_ time.Time, s *Simulation) (Emission, error) {
	if l.month >= l.TermMonths || l.balance <= 0 {
		return Emission{}, nil
	}

	rate := l.InitialRate
	if l.RateKey != "" {
		rate = s.state.Get(l.RateKey, l.InitialRate)
	}
	monthly := rate / 12
	remaining := l.TermMonths - l.month

	var payment float64
	if monthly == 0 {
		payment = l.balance / float64(remaining)
	} else {
		growth := math.Pow(1+monthly, float64(remaining))
		payment = l.balance * monthly * growth / (growth - 1)
	}
	if math.IsNaN(payment) || math.IsInf(payment, 0) {
		return Emission{}, fmt.Errorf("%w: loan payment at rate %g over %d months", ErrNumeric, rate, remaining)
	}

	interest := l.balance * monthly
	principal := math.Max(0, math.Min(payment-interest, l.balance))
	l.balance -= principal
	l.month++

	return Emission{
		Amount: -(interest + principal),
		Metadata: Metadata{
			{Key: "interest", Value: interest},
			{Key: "principal", Value: principal},
			{Key: "rate", Value: rate},
			{Key: "remaining_balance", Value: l.balance},
		},
	}, nil
}

func (*VariableRateLoan) valueGenerator() {}

func numericDistribution(d dist.Distribution) error {
	if d == nil {
		return configErrorf("distribution is required")
	}
	if _, ok := d.(dist.DateRange); ok {
		return configErrorf("%s samples timestamps, not amounts", d)
	}
	return nil
}
