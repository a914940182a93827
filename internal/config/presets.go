package config

import (
	"sort"
	"time"
)

var scenarioStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Presets holds named parameter sets per built-in scenario.
var Presets = map[string]map[string]*Config{
	"real_estate": {
		"baseline": {
			Name: "real_estate", NumSimulations: DefaultNumSimulations,
			Dists: map[string]DistSpec{
				"heloc_draw":         Uniform(100000, 150000),
				"heloc_initial_rate": Normal(0.075, 0.005),
				"down_fraction":      Uniform(0.4, 0.6),
				"appraisal":          Normal(300000, 20000),
				"closing_fees":       Triangular(5000, 10000, 16000),
				"seller_rate":        Uniform(0.04, 0.06),
				"seller_term_months": Uniform(60, 120),
				"kitchen_cost":       Triangular(-75000, -40000, -25000),
				"floors_cost":        Triangular(-15000, -10000, -5000),
				"central_air_cost":   Triangular(-10000, -7000, -5000),
				"monthly_rent":       Normal(2000, 200),
				"monthly_lawn":       Normal(-50, 10),
				"monthly_maint":      Normal(-200, 50),
				"rent_growth":        Normal(0.03, 0.01),
				"mom_leave_time":     DateRange(scenarioStart.AddDate(0, 0, 730), scenarioStart.AddDate(0, 0, 1825)),
				"appreciation_rate":  Normal(0.04, 0.005),
			},
		},
		"high_rates": {
			Name: "real_estate", NumSimulations: DefaultNumSimulations,
			Dists: map[string]DistSpec{
				"heloc_draw":         Uniform(120000, 160000),
				"heloc_initial_rate": Normal(0.095, 0.01),
				"down_fraction":      Uniform(0.4, 0.6),
				"appraisal":          Normal(300000, 20000),
				"closing_fees":       Triangular(5000, 10000, 16000),
				"seller_rate":        Uniform(0.06, 0.08),
				"seller_term_months": Uniform(60, 120),
				"monthly_rent":       Normal(1900, 200),
				"rent_growth":        Normal(0.02, 0.01),
				"appreciation_rate":  Normal(0.02, 0.01),
			},
		},
		"quick": {
			Name: "real_estate", NumSimulations: 50,
			Dists: map[string]DistSpec{
				"appraisal":         Normal(300000, 20000),
				"monthly_rent":      Normal(2000, 200),
				"appreciation_rate": Normal(0.04, 0.005),
			},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(scenario, preset string) *Config {
	scenarioPresets, ok := Presets[scenario]
	if !ok {
		return nil
	}
	cfg, ok := scenarioPresets[preset]
	if !ok {
		return nil
	}
	out := *cfg
	out.Dists = make(map[string]DistSpec, len(cfg.Dists))
	for k, v := range cfg.Dists {
		out.Dists[k] = v
	}
	out.Scenario = ScenarioSpec{Builtin: scenario}
	return &out
}

func ListPresets(scenario string) []string {
	scenarioPresets, ok := Presets[scenario]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(scenarioPresets))
	for name := range scenarioPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
