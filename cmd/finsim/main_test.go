package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/finsim/internal/config"
	"github.com/san-kum/finsim/internal/sim"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scenario.Builtin != config.DefaultScenario || len(cfg.Dists) == 0 {
		t.Errorf("default config %+v", cfg.Scenario)
	}

	cfg, err = loadConfig(config.DefaultScenario, "quick", "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NumSimulations != 50 {
		t.Errorf("quick preset runs %d trials", cfg.NumSimulations)
	}

	if _, err := loadConfig("timeshare", "", ""); !errors.Is(err, sim.ErrConfiguration) {
		t.Errorf("unknown scenario err = %v", err)
	}
	if _, err := loadConfig("", "nope", ""); !errors.Is(err, sim.ErrConfiguration) {
		t.Errorf("unknown preset err = %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	data := `{"num_simulations": 7, "seed": 3, "dists": {"monthly_rent": {"type": "UniformDistribution", "low": 1800, "high": 2200}}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig("", "high_rates", path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NumSimulations != 7 || *cfg.Seed != 3 || len(cfg.Dists) != 1 {
		t.Errorf("file config %+v", cfg)
	}
	if scenarioLabel(cfg.Scenario) != config.DefaultScenario {
		t.Errorf("label = %s", scenarioLabel(cfg.Scenario))
	}

	if _, err := loadConfig("", "", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestScenarioLabel(t *testing.T) {
	if got := scenarioLabel(config.ScenarioSpec{Name: "savings"}); got != "savings" {
		t.Errorf("label = %s", got)
	}
	if got := scenarioLabel(config.ScenarioSpec{}); got != "inline" {
		t.Errorf("label = %s", got)
	}
}
