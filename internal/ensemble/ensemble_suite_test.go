package ensemble_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/finsim/internal/dist"
	"github.com/san-kum/finsim/internal/ensemble"
	"github.com/san-kum/finsim/internal/sim"
)

func TestEnsemble(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Ensemble Suite")
}

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// loanFactory models a HELOC whose rate is redrawn quarterly. Trials whose
// sampled term is not positive fail at construction.
func loanFactory(params dist.Params) (*sim.Simulation, error) {
	s, err := sim.New("heloc", start, start.AddDate(3, 0, 0), params)
	if err != nil {
		return nil, err
	}
	s.SetState(sim.KeyCumulativeCash, 0)

	rate, err := dist.NewNormal(params.Float("heloc_rate", 0.07), 0.01)
	if err != nil {
		return nil, err
	}
	rc, err := sim.NewRateChange(rate, "heloc_rate")
	if err != nil {
		return nil, err
	}
	quarterly, err := sim.NewInterval(90*24*time.Hour, nil)
	if err != nil {
		return nil, err
	}
	rb, err := sim.NewEventBuilder("heloc_rate", quarterly, rc, sim.Metadata{{Key: "type", Value: "rate_change"}})
	if err != nil {
		return nil, err
	}

	loan, err := sim.NewVariableRateLoan(50000, params.Float("heloc_rate", 0.07), params.Int("term", 120), "heloc_rate")
	if err != nil {
		return nil, err
	}
	monthly, err := sim.NewInterval(30*24*time.Hour, nil)
	if err != nil {
		return nil, err
	}
	lb, err := sim.NewEventBuilder("heloc", monthly, loan, sim.Metadata{{Key: "type", Value: "heloc"}})
	if err != nil {
		return nil, err
	}

	s.AddBuilder(rb)
	s.AddBuilder(lb)
	return s, nil
}

func dists() map[string]dist.Distribution {
	rate, _ := dist.NewUniform(0.05, 0.09)
	term, _ := dist.NewUniform(-240, 240)
	return map[string]dist.Distribution{"heloc_rate": rate, "term": term}
}

var _ = Describe("Builder", func() {
	var seed int64

	BeforeEach(func() {
		seed = 2024
	})

	It("reproduces an ensemble bit-for-bit from the same seed", func() {
		a, err := ensemble.NewBuilder(loanFactory, dists(), ensemble.WithWorkers(1)).Build(context.Background(), 16, &seed)
		Expect(err).NotTo(HaveOccurred())
		b, err := ensemble.NewBuilder(loanFactory, dists(), ensemble.WithWorkers(8)).Build(context.Background(), 16, &seed)
		Expect(err).NotTo(HaveOccurred())

		Expect(a.Trials).To(HaveLen(16))
		for i := range a.Trials {
			Expect(b.Trials[i].Params).To(Equal(a.Trials[i].Params))
			Expect(b.Trials[i].OK()).To(Equal(a.Trials[i].OK()))
			if !a.Trials[i].OK() {
				continue
			}
			Expect(b.Trials[i].Result.Events).To(Equal(a.Trials[i].Result.Events))
			Expect(b.Trials[i].Result.State).To(Equal(a.Trials[i].Result.State))
		}
	})

	It("gathers trials in index order", func() {
		ens, err := ensemble.NewBuilder(loanFactory, dists(), ensemble.WithWorkers(4)).Build(context.Background(), 12, &seed)
		Expect(err).NotTo(HaveOccurred())
		for i, tr := range ens.Trials {
			Expect(tr.Index).To(Equal(i))
			Expect(tr.Seed).To(Equal(seed + int64(i)))
		}
	})

	It("isolates failing trials from their siblings", func() {
		ens, err := ensemble.NewBuilder(loanFactory, dists()).Build(context.Background(), 40, &seed)
		Expect(err).NotTo(HaveOccurred())

		failed := ens.Failed()
		Expect(failed).NotTo(BeEmpty())
		Expect(ens.Succeeded()).NotTo(BeEmpty())
		Expect(len(failed) + len(ens.Succeeded())).To(Equal(40))

		for _, tr := range failed {
			Expect(tr.Params.Int("term", 1)).To(BeNumerically("<=", 0))
			Expect(errors.Is(tr.Err, sim.ErrConfiguration)).To(BeTrue())
			var te *ensemble.TrialError
			Expect(errors.As(tr.Err, &te)).To(BeTrue())
			Expect(te.Name).To(Equal(tr.Name))
		}
		Expect(ens.Results()).To(HaveLen(len(ens.Succeeded())))
		Expect(ens.Err()).To(HaveOccurred())
	})
})
