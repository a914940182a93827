package viz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/san-kum/finsim/internal/storage"
)

// Stats describes a sample of money amounts. Percentiles use nearest rank.
type Stats struct {
	Count int
	Mean  decimal.Decimal
	Min   decimal.Decimal
	P10   decimal.Decimal
	P50   decimal.Decimal
	P90   decimal.Decimal
	Max   decimal.Decimal
}

func Describe(values []decimal.Decimal) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	n := decimal.NewFromInt(int64(len(sorted)))
	return Stats{
		Count: len(sorted),
		Mean:  decimal.Sum(sorted[0], sorted[1:]...).Div(n).Round(2),
		Min:   sorted[0],
		P10:   percentile(sorted, 10),
		P50:   percentile(sorted, 50),
		P90:   percentile(sorted, 90),
		Max:   sorted[len(sorted)-1],
	}
}

func percentile(sorted []decimal.Decimal, p int) decimal.Decimal {
	rank := (p*len(sorted) + 99) / 100
	return sorted[min(max(rank-1, 0), len(sorted)-1)]
}

// FormatMoney renders d rounded to cents with thousands separators, e.g. -$1,234.50.
func FormatMoney(d decimal.Decimal) string {
	s := d.Round(2).Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.Round(2).IsNegative() {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// SummaryTable renders per-metric statistics over the successful trials of a run.
func SummaryTable(rows []storage.TrialSummary) string {
	var cash, property, net []decimal.Decimal
	failed := 0
	for _, r := range rows {
		if !r.OK() {
			failed++
			continue
		}
		cash = append(cash, r.FinalCash)
		property = append(property, r.FinalProperty)
		net = append(net, r.Net())
	}

	var b strings.Builder
	b.WriteString(MetricLabel.Render("trials ") + MetricValue.Render(fmt.Sprint(len(rows))))
	b.WriteString(MetricLabel.Render("  ok ") + StatusOK.Render(fmt.Sprint(len(rows)-failed)))
	b.WriteString(MetricLabel.Render("  failed ") + StatusFailed.Render(fmt.Sprint(failed)))
	b.WriteString("\n\n")

	if len(net) == 0 {
		b.WriteString(Subtle.Render("no successful trials") + "\n")
		return b.String()
	}

	cols := []string{"metric", "mean", "p10", "p50", "p90", "min", "max"}
	widths := []int{16, 15, 15, 15, 15, 15, 15}
	var hdr strings.Builder
	for i, c := range cols {
		hdr.WriteString(pad(c, widths[i], i > 0))
	}
	b.WriteString(HeaderStyle.Render(hdr.String()) + "\n")

	for _, m := range []struct {
		name   string
		values []decimal.Decimal
	}{
		{"cumulative cash", cash},
		{"property value", property},
		{"net position", net},
	} {
		st := Describe(m.values)
		b.WriteString(MetricLabel.Render(pad(m.name, widths[0], false)))
		for i, v := range []decimal.Decimal{st.Mean, st.P10, st.P50, st.P90, st.Min, st.Max} {
			cell := pad(FormatMoney(v), widths[i+1], true)
			if v.IsNegative() {
				b.WriteString(Loss.Render(cell))
			} else {
				b.WriteString(Gain.Render(cell))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func pad(s string, width int, right bool) string {
	if right {
		return fmt.Sprintf("%*s", width, s)
	}
	return fmt.Sprintf("%-*s", width, s)
}
