package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/san-kum/finsim/internal/dist"
	"github.com/san-kum/finsim/internal/ensemble"
	"github.com/san-kum/finsim/internal/sim"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// depositFactory fails every trial whose sampled deposit is negative.
func depositFactory(p dist.Params) (*sim.Simulation, error) {
	s, err := sim.New("deposits", start, start.AddDate(1, 0, 0), p)
	if err != nil {
		return nil, err
	}
	s.SetState(sim.KeyCumulativeCash, 0)
	s.SetState(sim.KeyPropertyValue, 1000)

	amount := p.Float("deposit", 0)
	if amount < 0 {
		return nil, errors.New("negative deposit")
	}
	iv, _ := sim.NewInterval(30*24*time.Hour, nil)
	b, err := sim.NewEventBuilder("deposit", iv, sim.NewFixed(amount), sim.Metadata{{Key: "type", Value: "deposit"}})
	if err != nil {
		return nil, err
	}
	s.AddBuilder(b)
	return s, nil
}

func buildEnsemble(t *testing.T) *ensemble.Ensemble {
	t.Helper()
	deposit, _ := dist.NewUniform(-50, 150)
	seed := int64(11)
	ens, err := ensemble.NewBuilder(depositFactory, map[string]dist.Distribution{"deposit": deposit}).
		Build(context.Background(), 12, &seed)
	if err != nil {
		t.Fatal(err)
	}
	return ens
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	ens := buildEnsemble(t)
	runID, err := st.Save(RunMetadata{Name: "deposits", Scenario: "inline"}, ens)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Fatal("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.ID != runID || meta.Seed != 11 || meta.NumTrials != 12 {
		t.Errorf("metadata %+v", meta)
	}
	if meta.Failed != len(ens.Failed()) {
		t.Errorf("failed %d, want %d", meta.Failed, len(ens.Failed()))
	}

	rows, err := st.LoadSummary(runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 12 {
		t.Fatalf("summary rows %d", len(rows))
	}
	for i, row := range rows {
		tr := ens.Trials[i]
		if row.Name != tr.Name || row.Seed != tr.Seed || row.OK() != tr.OK() {
			t.Errorf("row %d = %+v, trial %+v", i, row, tr)
		}
		if tr.OK() {
			want := cents(tr.Result.State[sim.KeyCumulativeCash])
			if !row.FinalCash.Equal(want) {
				t.Errorf("row %d cash %s, want %s", i, row.FinalCash, want)
			}
		}
	}

	names, err := st.TrialNames(runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != len(ens.Succeeded()) {
		t.Fatalf("stored %d trials, want %d", len(names), len(ens.Succeeded()))
	}
	res, err := st.LoadTrial(runID, names[0])
	if err != nil {
		t.Fatal(err)
	}
	if res.Name != names[0] || len(res.Events) == 0 {
		t.Errorf("trial %+v", res)
	}
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	runs, err := st.List()
	if err != nil || len(runs) != 0 {
		t.Fatalf("empty store: %v, %v", runs, err)
	}

	ens := buildEnsemble(t)
	older, _ := st.Save(RunMetadata{Name: "a", Timestamp: time.Now().Add(-time.Hour)}, ens)
	newer, _ := st.Save(RunMetadata{Name: "b"}, ens)
	if err := os.MkdirAll(filepath.Join(dir, "stray"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != newer || runs[1].ID != older {
		t.Errorf("runs %+v", runs)
	}
}

func TestStoreNotFound(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("load err = %v", err)
	}
	if _, err := st.LoadTrial("missing", "Sim_0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("load trial err = %v", err)
	}
}

func TestExport(t *testing.T) {
	st := New(t.TempDir())
	ens := buildEnsemble(t)
	runID, err := st.Save(RunMetadata{Name: "deposits"}, ens)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := st.Export(runID, &buf); err != nil {
		t.Fatal(err)
	}

	var out struct {
		Metadata RunMetadata      `json:"metadata"`
		Sims     []json.RawMessage `json:"sims"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Metadata.ID != runID || len(out.Sims) != len(ens.Succeeded()) {
		t.Errorf("export has %d sims for run %s", len(out.Sims), out.Metadata.ID)
	}

	path := filepath.Join(t.TempDir(), "export.json")
	if err := st.ExportFile(runID, path); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("export file: %v", err)
	}
}
