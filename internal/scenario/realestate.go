package scenario

import (
	"time"

	"github.com/san-kum/finsim/internal/dist"
	"github.com/san-kum/finsim/internal/sim"
)

const RealEstateName = "real_estate"

// State keys the loans read their current rates from.
const (
	KeyHelocRate  = "heloc_rate"
	KeySellerRate = "seller_rate"
)

const day = 24 * time.Hour

var (
	RealEstateStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	RealEstateEnd   = time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC)
)

// RealEstate wires a five-year hold of a property bought with a HELOC-funded
// down payment and a seller-financed balance. Every parameter is optional.
func RealEstate(p dist.Params) (*sim.Simulation, error) {
	start := RealEstateStart
	s, err := sim.New("RealEstateSim", start, RealEstateEnd, p)
	if err != nil {
		return nil, err
	}

	appraisal := p.Float("appraisal", 300000)
	down := appraisal * p.Float("down_fraction", 0.5)
	sellerPrincipal := appraisal - down
	closing := p.Float("closing_fees", 10000)

	s.SetState(sim.KeyCumulativeCash, 0)
	s.SetState(sim.KeyPropertyValue, appraisal)
	s.AddProcess(sim.NewAppreciation(p.Float("appreciation_rate", 0.04), sim.KeyPropertyValue))

	w := wiring{s: s}

	w.add("purchase", sim.NewOneTime(start), sim.NewFixed(-(down + closing)), "purchase")

	// Rate redraws are registered ahead of the loans that read them so a
	// payment on the same day sees the new rate.
	helocRate := p.Float("heloc_initial_rate", 0.075)
	w.add("heloc_rate", w.every(90, nil), w.rateChange(helocRate, KeyHelocRate), "rate_change")
	w.add("heloc", w.every(30, &start), w.loan(p.Float("heloc_draw", down), helocRate, 120, KeyHelocRate), "heloc")

	sellerRate := p.Float("seller_rate", 0.05)
	w.add("seller_rate", w.every(365, nil), w.rateChange(sellerRate, KeySellerRate), "rate_change")
	w.add("seller_financing", w.every(30, &start), w.loan(sellerPrincipal, sellerRate, p.Int("seller_term_months", 120), KeySellerRate), "seller_financing")

	rentStart := start.Add(30 * day)
	w.add("rent", w.every(30, &rentStart), sim.NewGrowing(p.Float("monthly_rent", 2000), p.Float("rent_growth", 0.03)), "rent_income")

	w.add("lawn", w.seasonal(w.every(30, &start), 5, 6, 7, 8, 9), sim.NewFixed(p.Float("monthly_lawn", -100)), "lawn")
	w.add("maintenance", w.every(30, &start), sim.NewFixed(p.Float("monthly_maint", -200)), "maintenance")
	w.add("unexpected_repairs", w.every(365, &start), sim.NewGrowing(-appraisal*0.01, 0.03), "unexpected_repairs")

	w.add("kitchen", sim.NewOneTime(start.Add(90*day)), sim.NewFixed(p.Float("kitchen_cost", -30000)), "kitchen_renov")

	momLeave := p.Time("mom_leave_time", start.Add(730*day))
	w.add("floors", sim.NewOneTime(momLeave.Add(30*day)), sim.NewFixed(p.Float("floors_cost", -10000)), "floors_renov")
	w.add("central_air", sim.NewOneTime(momLeave.Add(60*day)), sim.NewFixed(p.Float("central_air_cost", -8000)), "central_air_renov")

	if w.err != nil {
		return nil, w.err
	}
	return s, nil
}

// wiring registers builders in order and keeps the first construction error.
type wiring struct {
	s   *sim.Simulation
	err error
}

func (w *wiring) add(name string, tm sim.Timing, gen sim.ValueGenerator, typ string) {
	if w.err != nil || tm == nil || gen == nil {
		return
	}
	b, err := sim.NewEventBuilder(name, tm, gen, sim.Metadata{{Key: "type", Value: typ}})
	if err != nil {
		w.err = err
		return
	}
	w.s.AddBuilder(b)
}

func (w *wiring) every(days int, start *time.Time) sim.Timing {
	iv, err := sim.NewInterval(time.Duration(days)*day, start)
	if err != nil {
		w.fail(err)
		return nil
	}
	return iv
}

func (w *wiring) seasonal(inner sim.Timing, months ...int) sim.Timing {
	if inner == nil {
		return nil
	}
	se, err := sim.NewSeasonal(inner, months)
	if err != nil {
		w.fail(err)
		return nil
	}
	return se
}

func (w *wiring) rateChange(mean float64, key string) sim.ValueGenerator {
	d, err := dist.NewNormal(mean, 0.005)
	if err != nil {
		w.fail(err)
		return nil
	}
	rc, err := sim.NewRateChange(d, key)
	if err != nil {
		w.fail(err)
		return nil
	}
	return rc
}

func (w *wiring) loan(principal, rate float64, termMonths int, key string) sim.ValueGenerator {
	l, err := sim.NewVariableRateLoan(principal, rate, termMonths, key)
	if err != nil {
		w.fail(err)
		return nil
	}
	return l
}

func (w *wiring) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}
