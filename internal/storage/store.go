package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/san-kum/finsim/internal/ensemble"
	"github.com/san-kum/finsim/internal/sim"
)

var ErrNotFound = errors.New("storage: not found")

const (
	metadataFile = "metadata.json"
	summaryFile  = "summary.csv"
	trialsDir    = "trials"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Scenario  string            `json:"scenario"`
	Timestamp time.Time         `json:"timestamp"`
	Seed      int64             `json:"seed"`
	NumTrials int               `json:"num_trials"`
	Failed    int               `json:"failed"`
	Elapsed   string            `json:"elapsed,omitempty"`
	Dists     map[string]string `json:"dists,omitempty"`
}

// TrialSummary is one row of summary.csv. Money is rounded to cents.
type TrialSummary struct {
	Index         int
	Name          string
	Seed          int64
	Events        int
	FinalCash     decimal.Decimal
	FinalProperty decimal.Decimal
	Error         string
}

// Net is the final cash position plus the property's value.
func (t TrialSummary) Net() decimal.Decimal { return t.FinalCash.Add(t.FinalProperty) }

func (t TrialSummary) OK() bool { return t.Error == "" }

func Summarize(tr ensemble.Trial) TrialSummary {
	out := TrialSummary{Index: tr.Index, Name: tr.Name, Seed: tr.Seed}
	if tr.Err != nil {
		out.Error = tr.Err.Error()
		return out
	}
	out.Events = len(tr.Result.Events)
	out.FinalCash = cents(tr.Result.State[sim.KeyCumulativeCash])
	out.FinalProperty = cents(tr.Result.State[sim.KeyPropertyValue])
	return out
}

func cents(v float64) decimal.Decimal { return decimal.NewFromFloat(v).Round(2) }

var summaryHeader = []string{"trial", "name", "seed", "status", "events", "final_cumulative_cash", "final_property_value", "net_position", "error"}

// Save writes one ensemble as a new run directory and returns its ID.
func (s *Store) Save(meta RunMetadata, ens *ensemble.Ensemble) (string, error) {
	if meta.Name == "" {
		meta.Name = "run"
	}
	runID := fmt.Sprintf("%s_%s_%s", meta.Name, time.Now().Format("20060102T150405"), uuid.NewString()[:8])
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(filepath.Join(runDir, trialsDir), 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	meta.Seed = ens.BaseSeed
	meta.NumTrials = len(ens.Trials)
	meta.Failed = len(ens.Failed())

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	for _, tr := range ens.Succeeded() {
		if err := writeTrial(filepath.Join(runDir, trialsDir, tr.Name+".json"), tr.Result); err != nil {
			return "", fmt.Errorf("trial %s: %w", tr.Name, err)
		}
	}

	rows := make([]TrialSummary, len(ens.Trials))
	for i, tr := range ens.Trials {
		rows[i] = Summarize(tr)
	}
	if err := writeSummary(filepath.Join(runDir, summaryFile), rows); err != nil {
		return "", err
	}

	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTrial(path string, r *sim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.WriteJSON(f)
}

func writeSummary(path string, rows []TrialSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(summaryHeader); err != nil {
		return err
	}
	for _, r := range rows {
		status := "ok"
		if !r.OK() {
			status = "failed"
		}
		rec := []string{
			strconv.Itoa(r.Index),
			r.Name,
			strconv.FormatInt(r.Seed, 10),
			status,
			strconv.Itoa(r.Events),
			r.FinalCash.StringFixed(2),
			r.FinalProperty.StringFixed(2),
			r.Net().StringFixed(2),
			r.Error,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: run %q", ErrNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadTrial(runID, name string) (*sim.Result, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, trialsDir, name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: trial %q in run %q", ErrNotFound, name, runID)
		}
		return nil, err
	}
	defer f.Close()
	return sim.ReadJSON(f)
}

// TrialNames lists the stored trials of a run in trial order.
func (s *Store) TrialNames(runID string) ([]string, error) {
	rows, err := s.LoadSummary(runID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.OK() {
			names = append(names, r.Name)
		}
	}
	return names, nil
}

func (s *Store) LoadSummary(runID string) ([]TrialSummary, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, summaryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: summary of run %q", ErrNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(summaryHeader)

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []TrialSummary{}, nil
	}

	rows := make([]TrialSummary, 0, len(records)-1)
	for i, rec := range records[1:] {
		row, err := parseSummary(rec)
		if err != nil {
			return nil, fmt.Errorf("summary line %d: %w", i+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseSummary(rec []string) (TrialSummary, error) {
	var (
		row TrialSummary
		err error
	)
	if row.Index, err = strconv.Atoi(rec[0]); err != nil {
		return row, err
	}
	row.Name = rec[1]
	if row.Seed, err = strconv.ParseInt(rec[2], 10, 64); err != nil {
		return row, err
	}
	if row.Events, err = strconv.Atoi(rec[4]); err != nil {
		return row, err
	}
	if row.FinalCash, err = decimal.NewFromString(rec[5]); err != nil {
		return row, err
	}
	if row.FinalProperty, err = decimal.NewFromString(rec[6]); err != nil {
		return row, err
	}
	row.Error = rec[8]
	if strings.TrimSpace(rec[3]) == "failed" && row.Error == "" {
		row.Error = "failed"
	}
	return row, nil
}

// ExportData bundles a run's metadata with every stored trial result.
type ExportData struct {
	Metadata RunMetadata   `json:"metadata"`
	Sims     []*sim.Result `json:"sims"`
}

func (s *Store) Export(runID string, w io.Writer) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	names, err := s.TrialNames(runID)
	if err != nil {
		return err
	}

	data := ExportData{Metadata: *meta, Sims: make([]*sim.Result, 0, len(names))}
	for _, name := range names {
		r, err := s.LoadTrial(runID, name)
		if err != nil {
			return err
		}
		data.Sims = append(data.Sims, r)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (s *Store) ExportFile(runID, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Export(runID, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
