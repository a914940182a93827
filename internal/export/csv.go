package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/san-kum/finsim/internal/dist"
	"github.com/san-kum/finsim/internal/sim"
)

// WriteEventsCSV writes one row per event. Columns are time, value, type and
// then every other metadata key seen in any event, sorted.
func WriteEventsCSV(w io.Writer, events []sim.Event) error {
	seen := make(map[string]bool)
	var extra []string
	for _, e := range events {
		for _, f := range e.Metadata {
			if f.Key != "type" && !seen[f.Key] {
				seen[f.Key] = true
				extra = append(extra, f.Key)
			}
		}
	}
	sort.Strings(extra)

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"time", "value", "type"}, extra...)); err != nil {
		return err
	}
	for _, e := range events {
		row := []string{dist.FormatTime(e.Time), formatFloat(e.Value), e.Type()}
		for _, k := range extra {
			v, ok := e.Metadata.Get(k)
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, formatAny(v))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteHistoryCSV writes one row per snapshot with a column per state key.
// Keys missing from a snapshot are left empty.
func WriteHistoryCSV(w io.Writer, h sim.History) error {
	seen := make(map[string]bool)
	var keys []string
	for _, s := range h {
		for k := range s.State {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"time"}, keys...)); err != nil {
		return err
	}
	for _, s := range h {
		row := []string{dist.FormatTime(s.At)}
		for _, k := range keys {
			if v, ok := s.State[k]; ok {
				row = append(row, formatFloat(v))
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func formatAny(v any) string {
	switch v := v.(type) {
	case float64:
		return formatFloat(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
