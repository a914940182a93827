package sim

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/san-kum/finsim/internal/dist"
)

func mustBuilder(t *testing.T, name string, tm Timing, gen ValueGenerator, typ string) *EventBuilder {
	t.Helper()
	b, err := NewEventBuilder(name, tm, gen, Metadata{{Key: "type", Value: typ}})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func mustInterval(t *testing.T, days int) *Interval {
	t.Helper()
	iv, err := NewInterval(time.Duration(days)*dayDur, nil)
	if err != nil {
		t.Fatal(err)
	}
	return iv
}

func householdSim(t *testing.T, seed int64) *Simulation {
	t.Helper()
	s, err := New("household", date(2026, 1, 1), date(2028, 1, 1), nil)
	if err != nil {
		t.Fatal(err)
	}
	s.SetRand(rand.New(rand.NewSource(seed)))
	s.SetState(KeyCumulativeCash, 0)
	s.SetState(KeyPropertyValue, 250000)

	bonus, _ := dist.NewNormal(1500, 400)
	sample, _ := NewDistributionSample(bonus)
	rt, _ := NewRandom(s.Start(), s.End(), 6, "")
	s.AddBuilder(mustBuilder(t, "rent", mustInterval(t, 30), NewGrowing(1800, 0.03), "rent"))
	s.AddBuilder(mustBuilder(t, "maintenance", mustInterval(t, 30), NewFixed(-150), "maintenance"))
	s.AddBuilder(mustBuilder(t, "bonus", rt, sample, "bonus"))
	s.AddProcess(NewAppreciation(0.04, ""))
	return s
}

func TestRunHistoryInvariants(t *testing.T) {
	g := NewWithT(t)
	s := householdSim(t, 7)
	g.Expect(s.Run(context.Background())).To(Succeed())

	h := s.History()
	g.Expect(h).NotTo(BeEmpty())
	g.Expect(h[0].At).To(Equal(s.Start()))
	for i := 1; i < len(h); i++ {
		g.Expect(h[i].At.After(h[i-1].At)).To(BeTrue(), "history not strictly increasing at %d", i)
	}

	instants := make(map[time.Time]bool, len(h))
	for _, snap := range h {
		instants[snap.At] = true
	}
	events := s.Events()
	g.Expect(events).NotTo(BeEmpty())
	for i, ev := range events {
		g.Expect(instants).To(HaveKey(ev.Time))
		g.Expect(ev.Time.After(s.End())).To(BeFalse())
		if i > 0 {
			g.Expect(ev.Time.Before(events[i-1].Time)).To(BeFalse(), "events out of order at %d", i)
		}
	}
}

func TestRunCumulativeCash(t *testing.T) {
	g := NewWithT(t)
	s := householdSim(t, 7)
	g.Expect(s.Run(context.Background())).To(Succeed())

	sum := 0.0
	for _, ev := range s.Events() {
		sum += ev.Value
	}
	final, ok := s.Lookup(KeyCumulativeCash)
	g.Expect(ok).To(BeTrue())
	g.Expect(final).To(BeNumerically("~", sum, 1e-6))

	times, totals := s.Result().CashFlow()
	g.Expect(times).To(HaveLen(len(totals)))
	g.Expect(totals[len(totals)-1]).To(BeNumerically("~", sum, 1e-6))
}

func TestRunDeterministic(t *testing.T) {
	g := NewWithT(t)
	a, b := householdSim(t, 42), householdSim(t, 42)
	g.Expect(a.Run(context.Background())).To(Succeed())
	g.Expect(b.Run(context.Background())).To(Succeed())

	ea, eb := a.Events(), b.Events()
	g.Expect(ea).To(HaveLen(len(eb)))
	for i := range ea {
		g.Expect(ea[i].Time).To(Equal(eb[i].Time))
		g.Expect(ea[i].Value).To(Equal(eb[i].Value))
		g.Expect(ea[i].Type()).To(Equal(eb[i].Type()))
	}
}

func TestRunRegistrationOrderBreaksTies(t *testing.T) {
	g := NewWithT(t)
	s := newTestSim(t)
	s.AddBuilder(mustBuilder(t, "first", mustInterval(t, 30), NewFixed(1), "first"))
	s.AddBuilder(mustBuilder(t, "second", mustInterval(t, 30), NewFixed(2), "second"))
	g.Expect(s.Run(context.Background())).To(Succeed())

	events := s.Events()
	g.Expect(len(events) % 2).To(Equal(0))
	for i := 0; i < len(events); i += 2 {
		g.Expect(events[i].Type()).To(Equal("first"))
		g.Expect(events[i+1].Type()).To(Equal("second"))
		g.Expect(events[i].Time).To(Equal(events[i+1].Time))
	}
}

func TestRunRateChangeBeforeLoan(t *testing.T) {
	rateAt := func(rateFirst bool) float64 {
		s := newTestSim(t)
		u, _ := dist.NewUniform(0.12, 0.12)
		rc, _ := NewRateChange(u, "heloc_rate")
		loan, _ := NewVariableRateLoan(10000, 0.06, 12, "heloc_rate")
		rcb := mustBuilder(t, "rate", mustInterval(t, 30), rc, "rate_change")
		lb := mustBuilder(t, "heloc", mustInterval(t, 30), loan, "heloc")
		if rateFirst {
			s.AddBuilder(rcb)
			s.AddBuilder(lb)
		} else {
			s.AddBuilder(lb)
			s.AddBuilder(rcb)
		}
		if err := s.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		for _, ev := range s.Events() {
			if ev.Type() == "heloc" {
				r, _ := ev.Metadata.Float("rate")
				return r
			}
		}
		t.Fatal("no loan payment")
		return 0
	}

	g := NewWithT(t)
	g.Expect(rateAt(true)).To(Equal(0.12))
	g.Expect(rateAt(false)).To(Equal(0.06))
}

func TestRunAppreciatesBeforeEvents(t *testing.T) {
	g := NewWithT(t)
	s := newTestSim(t)
	s.SetState(KeyPropertyValue, 100000)
	s.AddProcess(NewAppreciation(0.05, ""))
	s.AddBuilder(mustBuilder(t, "tick", NewOneTime(date(2027, 1, 1)), NewFixed(0), "tick"))
	g.Expect(s.Run(context.Background())).To(Succeed())

	h := s.History()
	g.Expect(h).To(HaveLen(2))
	want := 100000 * math.Pow(1.05, 365/365.25)
	g.Expect(h[1].State[KeyPropertyValue]).To(BeNumerically("~", want, 1e-6))
	g.Expect(h[0].State[KeyPropertyValue]).To(Equal(100000.0))
}

func TestRunEventAtStart(t *testing.T) {
	g := NewWithT(t)
	s := newTestSim(t)
	s.SetState(KeyCumulativeCash, 0)
	s.AddBuilder(mustBuilder(t, "purchase", NewOneTime(s.Start()), NewFixed(-50000), "purchase"))
	g.Expect(s.Run(context.Background())).To(Succeed())

	g.Expect(s.Events()).To(HaveLen(1))
	g.Expect(s.Events()[0].Time).To(Equal(s.Start()))

	h := s.History()
	g.Expect(h).To(HaveLen(1))
	g.Expect(h[0].At).To(Equal(s.Start()))
	g.Expect(h[0].State[KeyCumulativeCash]).To(Equal(-50000.0))
}

func TestRunNoBuilders(t *testing.T) {
	g := NewWithT(t)
	s := newTestSim(t)
	s.SetState("x", 1)
	g.Expect(s.Run(context.Background())).To(Succeed())
	g.Expect(s.Events()).To(BeEmpty())
	g.Expect(s.History()).To(HaveLen(1))
}

func TestRunTwice(t *testing.T) {
	s := newTestSim(t)
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second run err = %v, want ErrAlreadyRun", err)
	}
}

func TestRunCancelled(t *testing.T) {
	s := newTestSim(t)
	s.AddBuilder(mustBuilder(t, "daily", mustInterval(t, 1), NewFixed(1), "daily"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRunRejectsNonFiniteState(t *testing.T) {
	s := newTestSim(t)
	s.SetState(KeyCumulativeCash, 0)
	s.AddBuilder(mustBuilder(t, "inf", NewOneTime(date(2026, 6, 1)), NewFixed(math.Inf(-1)), "inf"))

	err := s.Run(context.Background())
	if !errors.Is(err, ErrNumeric) {
		t.Fatalf("err = %v, want ErrNumeric", err)
	}
	var re *RunError
	if errors.As(err, &re) && !re.Time.Equal(date(2026, 6, 1)) {
		t.Errorf("error reported at %v", re.Time)
	}
}

func TestNewRejectsInvertedRange(t *testing.T) {
	if _, err := New("x", date(2027, 1, 1), date(2026, 1, 1), nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}
