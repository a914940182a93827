// Package export writes a stored trial in formats other tools can read:
// SVG line charts and CSV tables.
package export

import (
	"fmt"
	"strings"

	"github.com/san-kum/finsim/internal/dist"
	"github.com/san-kum/finsim/internal/sim"
)

type Point struct {
	X, Y float64
}

// SeriesToSVG draws points as a single polyline scaled to fill width x height
// with a 10% margin. Fewer than two points yield an empty string.
func SeriesToSVG(points []Point, width, height int, strokeColor, title string) string {
	if len(points) < 2 {
		return ""
	}

	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}
	lowY, highY := minY, maxY

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	var sb strings.Builder

	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	if title != "" {
		fmt.Fprintf(&sb, `<text x="8" y="16" fill="#888899" font-family="monospace" font-size="12">%s</text>
`, escape(title))
	}
	fmt.Fprintf(&sb, `<text x="8" y="%d" fill="#888899" font-family="monospace" font-size="10">min %.2f  max %.2f</text>
`, height-6, lowY, highY)

	fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, strokeColor)
	for i, p := range points {
		x := (p.X - minX) / rangeX * float64(width)
		y := float64(height) - (p.Y-minY)/rangeY*float64(height)

		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}
	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}

// HistoryToSVG charts one state variable against days since the first snapshot.
func HistoryToSVG(h sim.History, key string, width, height int) (string, error) {
	values, ok := h.Series(key)
	if !ok {
		return "", fmt.Errorf("%q not in history", key)
	}
	if len(h) < 2 {
		return "", fmt.Errorf("%q has %d snapshots, need at least 2", key, len(h))
	}
	points := make([]Point, len(h))
	for i, s := range h {
		points[i] = Point{X: float64(dist.Days(s.At.Sub(h[0].At))), Y: values[i]}
	}
	return SeriesToSVG(points, width, height, "#00ccff", key), nil
}

// CashFlowToSVG charts the running sum of event values.
func CashFlowToSVG(r *sim.Result, width, height int) (string, error) {
	times, totals := r.CashFlow()
	if len(times) < 2 {
		return "", fmt.Errorf("%s has %d cash flow points, need at least 2", r.Name, len(times))
	}
	points := make([]Point, len(times))
	for i, t := range times {
		points[i] = Point{X: float64(dist.Days(t.Sub(times[0]))), Y: totals[i]}
	}
	return SeriesToSVG(points, width, height, "#00ff88", "cash flow: "+r.Name), nil
}

func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
