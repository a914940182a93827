package config

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/san-kum/finsim/internal/dist"
	"github.com/san-kum/finsim/internal/sim"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.NumSimulations != DefaultNumSimulations {
		t.Errorf("expected %d simulations, got %d", DefaultNumSimulations, cfg.NumSimulations)
	}
	if cfg.Seed == nil || *cfg.Seed != DefaultSeed {
		t.Errorf("expected seed %d", DefaultSeed)
	}
	if cfg.Scenario.Builtin != DefaultScenario {
		t.Errorf("expected builtin scenario, got %+v", cfg.Scenario)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("real_estate", "baseline")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if len(cfg.Dists) != 16 {
		t.Errorf("expected 16 distributions, got %d", len(cfg.Dists))
	}

	delete(cfg.Dists, "appraisal")
	if _, ok := GetPreset("real_estate", "baseline").Dists["appraisal"]; !ok {
		t.Error("preset was mutated through a returned copy")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if GetPreset("real_estate", "nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if GetPreset("nonexistent", "baseline") != nil {
		t.Error("expected nil for nonexistent scenario")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("real_estate")
	if len(presets) != 3 || presets[0] != "baseline" {
		t.Errorf("presets = %v", presets)
	}
	if ListPresets("nonexistent") != nil {
		t.Error("expected nil for nonexistent scenario")
	}
}

// originalJSON is the config shape written by the earlier tooling.
const originalJSON = `{
    "num_simulations": 1000,
    "seed": 42,
    "dists": {
        "heloc_draw": {"type": "UniformDistribution", "low": 100000, "high": 150000},
        "closing_fees": {"type": "TriangularDistribution", "low": 5000, "mode": 10000, "high": 16000},
        "appraisal": {"type": "NormalDistribution", "mean": 300000, "std": 20000},
        "mom_leave_time": {
            "type": "DateDistribution",
            "start": "2028-01-01T00:00:00",
            "end": "2030-12-31T00:00:00"
        }
    }
}`

func TestParseOriginalJSON(t *testing.T) {
	cfg, err := Parse([]byte(originalJSON))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NumSimulations != 1000 || *cfg.Seed != 42 {
		t.Errorf("header %+v", cfg)
	}
	if cfg.Scenario.Builtin != DefaultScenario {
		t.Errorf("scenario = %+v", cfg.Scenario)
	}

	dists, err := cfg.Distributions()
	if err != nil {
		t.Fatal(err)
	}
	if len(dists) != 4 {
		t.Fatalf("got %d dists", len(dists))
	}
	if tri, ok := dists["closing_fees"].(dist.Triangular); !ok || tri.Mode != 10000 {
		t.Errorf("closing_fees = %v", dists["closing_fees"])
	}
	dr, ok := dists["mom_leave_time"].(dist.DateRange)
	if !ok || !dr.End.Equal(time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("mom_leave_time = %v", dists["mom_leave_time"])
	}
}

const inlineYAML = `
name: duplex
num_simulations: 20
seed: 7
dists:
  rent: {type: Normal, mean: 1500, std: 100}
  move_out: {type: DateRange, start: 2027-01-01, end: 2027-12-31}
scenario:
  name: duplex
  start: 2026-01-01
  end: 2028-12-31
  initial_state:
    cumulative_cash: 0
    property_value: 250000
  processes:
    - {type: Appreciation, rate: 0.03}
  builders:
    - name: rate
      metadata: {type: rate_change}
      timing: {type: Interval, interval_days: 90}
      value_gen:
        type: RateChange
        update_key: mortgage_rate
        dist: {type: Normal, mean: 0.06, std: 0.005}
    - name: mortgage
      metadata: {type: mortgage, lender: bank}
      timing: {type: Interval, interval_days: 30}
      value_gen: {type: VariableRateLoan, principal: 200000, initial_rate: 0.06, term_months: 360, rate_key: mortgage_rate}
    - name: rent
      metadata: {type: rent_income}
      timing: {type: Interval, interval_days: 30, start_time: 2026-01-31}
      value_gen: {type: Growing, initial: $rent, growth_rate: {param: rent_growth, default: 0.03}}
    - metadata: {type: lawn}
      timing:
        type: Seasonal
        months: [5, 6, 7, 8, 9]
        inner: {type: Interval, interval_days: 30}
      value_gen: {type: Fixed, value: -60}
    - metadata: {type: repaint}
      timing: {type: OneTime, time: $move_out, delay_days: 14}
      value_gen: {type: Fixed, value: -4000}
`

func TestInlineScenario(t *testing.T) {
	cfg, err := Parse([]byte(inlineYAML))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	moveOut := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	params := dist.Params{"rent": dist.Number(1500), "move_out": dist.Time(moveOut)}
	s, err := cfg.Scenario.Build(params)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Builders()) != 5 || len(s.Processes()) != 1 {
		t.Fatalf("builders %d processes %d", len(s.Builders()), len(s.Processes()))
	}
	if s.Builders()[3].Name != "lawn" {
		t.Errorf("unnamed builder took name %q", s.Builders()[3].Name)
	}
	meta := s.Builders()[1].Metadata()
	if len(meta) != 2 || meta[0].Key != "type" || meta[1].Key != "lender" {
		t.Errorf("metadata order %v", meta)
	}

	s.SetRand(rand.New(rand.NewSource(1)))
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	var repaint, lawnOutOfSeason int
	for _, ev := range s.Events() {
		switch ev.Type() {
		case "repaint":
			repaint++
			if !ev.Time.Equal(moveOut.AddDate(0, 0, 14)) {
				t.Errorf("repaint at %v", ev.Time)
			}
		case "lawn":
			if m := ev.Time.Month(); m < time.May || m > time.September {
				lawnOutOfSeason++
			}
		case "rent_income":
			if ev.Time.Before(time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("rent before its start at %v", ev.Time)
			}
		}
	}
	if repaint != 1 {
		t.Errorf("repaint fired %d times", repaint)
	}
	if lawnOutOfSeason != 0 {
		t.Errorf("%d lawn events out of season", lawnOutOfSeason)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"unknown timing", func() error {
			_, err := TimingSpec{Type: "Hourly"}.Build(nil)
			return err
		}},
		{"missing interval", func() error {
			_, err := TimingSpec{Type: "Interval"}.Build(nil)
			return err
		}},
		{"zero interval", func() error {
			_, err := TimingSpec{Type: "Interval", IntervalDays: Lit(0)}.Build(nil)
			return err
		}},
		{"unknown value", func() error {
			_, err := ValueSpec{Type: "Lottery"}.Build(nil)
			return err
		}},
		{"rate change without key", func() error {
			d := Normal(0.05, 0.01)
			_, err := ValueSpec{Type: "RateChange", Dist: &d}.Build(nil)
			return err
		}},
		{"negative term", func() error {
			_, err := ValueSpec{Type: "VariableRateLoan", Principal: Lit(1000), InitialRate: Lit(0.05), TermMonths: Lit(-12)}.Build(nil)
			return err
		}},
		{"unsampled param", func() error {
			_, err := ValueSpec{Type: "Fixed", Value: Ref("missing")}.Build(dist.Params{})
			return err
		}},
		{"date used as number", func() error {
			_, err := ValueSpec{Type: "Fixed", Value: Ref("when")}.Build(dist.Params{"when": dist.Time(time.Now())})
			return err
		}},
		{"negative std", func() error {
			_, err := Normal(0, -1).Build(nil)
			return err
		}},
		{"missing type", func() error {
			_, err := DistSpec{}.Build(nil)
			return err
		}},
		{"unknown process", func() error {
			_, err := ProcessSpec{Type: "Depreciation", Rate: Lit(0.1)}.Build(nil)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, sim.ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestNegativeStdKeepsCause(t *testing.T) {
	_, err := Normal(0, -1).Build(nil)
	if !errors.Is(err, dist.ErrInvalid) {
		t.Errorf("err = %v, want dist.ErrInvalid in chain", err)
	}
}

func TestNumResolve(t *testing.T) {
	p := dist.Params{"appraisal": dist.Number(300000)}
	tests := []struct {
		name string
		n    Num
		want float64
	}{
		{"literal", Lit(12.5), 12.5},
		{"ref", Ref("appraisal"), 300000},
		{"scaled", Num{Param: "appraisal", Scale: -0.01, set: true}, -3000},
		{"default", Ref("absent").WithDefault(7), 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.n.Resolve(p)
			if err != nil || got != tt.want {
				t.Errorf("Resolve = %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}

func TestValidateRejects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumSimulations = 0
	cfg.Workers = -1
	cfg.Dists["bad"] = Uniform(2, 1)

	err := cfg.Validate()
	if !errors.Is(err, sim.ErrConfiguration) {
		t.Fatalf("err = %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	src, err := Parse([]byte(inlineYAML))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(path, src); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		data, _ := os.ReadFile(path)
		t.Fatalf("load: %v\n%s", err, data)
	}
	if got.NumSimulations != 20 || *got.Seed != 7 || got.Name != "duplex" {
		t.Errorf("header %+v", got)
	}
	if len(got.Scenario.Builders) != 5 {
		t.Fatalf("builders %d", len(got.Scenario.Builders))
	}
	if got.Scenario.Builders[2].Value.GrowthRate.Param != "rent_growth" || !got.Scenario.Builders[2].Value.GrowthRate.HasDefault {
		t.Errorf("growth rate ref lost: %+v", got.Scenario.Builders[2].Value.GrowthRate)
	}
	if got.Scenario.Builders[4].Timing.DelayDays.Value != 14 {
		t.Errorf("delay_days lost")
	}
	if err := got.Validate(); err != nil {
		t.Errorf("reloaded config invalid: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v", err)
	}
}
