package viz

import (
	"errors"
	"fmt"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/finsim/internal/sim"
)

var ErrNoData = errors.New("viz: no data to plot")

type PlotOptions struct {
	Width   int
	Height  int
	Caption string
}

func DefaultPlotOptions() PlotOptions {
	return PlotOptions{Width: 80, Height: 10}
}

// Plot draws one series as an ascii line chart.
func Plot(data []float64, opts PlotOptions) (string, error) {
	if len(data) == 0 {
		return "", ErrNoData
	}
	if opts.Width <= 0 {
		opts.Width = 80
	}
	if opts.Height <= 0 {
		opts.Height = 10
	}
	return asciigraph.Plot(data,
		asciigraph.Height(opts.Height),
		asciigraph.Width(opts.Width),
		asciigraph.Precision(0),
		asciigraph.Caption(opts.Caption),
	), nil
}

// PlotHistory charts one state variable across a trial's snapshots.
func PlotHistory(h sim.History, key string, opts PlotOptions) (string, error) {
	values, ok := h.Series(key)
	if !ok {
		return "", fmt.Errorf("%w: %q not in history", ErrNoData, key)
	}
	if opts.Caption == "" {
		opts.Caption = caption(key, h)
	}
	return Plot(values, opts)
}

// PlotCashFlow charts the running sum of a trial's event values.
func PlotCashFlow(r *sim.Result, opts PlotOptions) (string, error) {
	_, totals := r.CashFlow()
	if len(totals) == 0 {
		return "", fmt.Errorf("%w: %s has no events", ErrNoData, r.Name)
	}
	if opts.Caption == "" {
		opts.Caption = "cash flow: " + r.Name
	}
	return Plot(totals, opts)
}

func caption(key string, h sim.History) string {
	if len(h) == 0 {
		return key
	}
	last, _ := h.Last()
	return fmt.Sprintf("%s %s..%s", key, h[0].At.Format("2006-01-02"), last.At.Format("2006-01-02"))
}
