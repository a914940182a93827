// Package optim sweeps scenario parameters over a grid, running one ensemble
// per grid point and ranking the points by an objective.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/san-kum/finsim/internal/dist"
	"github.com/san-kum/finsim/internal/ensemble"
	"github.com/san-kum/finsim/internal/sim"
	"github.com/san-kum/finsim/internal/storage"
)

// Objective scores an ensemble; higher is better.
type Objective func(*ensemble.Ensemble) (float64, error)

// RunFunc runs one ensemble with the given parameters pinned to fixed values.
type RunFunc func(ctx context.Context, fixed map[string]float64) (*ensemble.Ensemble, error)

type Point struct {
	Params   map[string]float64
	Ensemble *ensemble.Ensemble
	Score    float64
	Err      error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("%w: grid needs one value list per parameter", sim.ErrConfiguration)
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("%w: parameter %q has no values", sim.ErrConfiguration, params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search visits every grid point in row-major order. Points whose run or
// objective fails are kept with their error and never chosen as best. The
// returned error is non-nil only on cancellation or when every point failed.
func (g *GridSearch) Search(ctx context.Context, run RunFunc, objective Objective) (Point, []Point, error) {
	points := make([]Point, 0, g.Size())
	if err := g.searchRecursive(ctx, 0, make(map[string]float64), run, objective, &points); err != nil {
		return Point{}, points, err
	}

	best := -1
	for i, p := range points {
		if p.Err == nil && (best < 0 || p.Score > points[best].Score) {
			best = i
		}
	}
	if best < 0 {
		return Point{}, points, errors.New("optim: every grid point failed")
	}
	return points[best], points, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	run RunFunc,
	objective Objective,
	points *[]Point,
) error {
	if depth == len(g.paramNames) {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := Point{Params: current}
		p.Ensemble, p.Err = run(ctx, current)
		if p.Err == nil {
			p.Score, p.Err = objective(p.Ensemble)
		}
		if errors.Is(p.Err, context.Canceled) || errors.Is(p.Err, context.DeadlineExceeded) {
			return p.Err
		}
		*points = append(*points, p)
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, run, objective, points); err != nil {
			return err
		}
	}
	return nil
}

// Pin returns a copy of dists where every fixed parameter always samples its
// given value.
func Pin(dists map[string]dist.Distribution, fixed map[string]float64) (map[string]dist.Distribution, error) {
	out := make(map[string]dist.Distribution, len(dists)+len(fixed))
	for k, d := range dists {
		out[k] = d
	}
	for k, v := range fixed {
		u, err := dist.NewUniform(v, v)
		if err != nil {
			return nil, fmt.Errorf("pin %s: %w", k, err)
		}
		out[k] = u
	}
	return out, nil
}

// MeanNetPosition averages final cumulative cash plus property value over
// the successful trials.
func MeanNetPosition(ens *ensemble.Ensemble) (float64, error) {
	ok := ens.Succeeded()
	if len(ok) == 0 {
		return 0, fmt.Errorf("no successful trials out of %d", len(ens.Trials))
	}
	sum := decimal.Zero
	for _, tr := range ok {
		sum = sum.Add(storage.Summarize(tr).Net())
	}
	return sum.Div(decimal.NewFromInt(int64(len(ok)))).InexactFloat64(), nil
}

// ParseAxis reads one grid axis: "name=v1,v2,..." or "name=low:high:count"
// for count evenly spaced values including both ends.
func ParseAxis(s string) (string, []float64, error) {
	name, spec, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || spec == "" {
		return "", nil, fmt.Errorf("%w: axis %q must look like name=v1,v2 or name=low:high:count", sim.ErrConfiguration, s)
	}

	if parts := strings.Split(spec, ":"); len(parts) == 3 {
		lo, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		hi, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		n, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err := errors.Join(err1, err2, err3); err != nil {
			return "", nil, fmt.Errorf("%w: axis %q: %w", sim.ErrConfiguration, s, err)
		}
		if n < 1 || hi < lo {
			return "", nil, fmt.Errorf("%w: axis %q needs low <= high and count >= 1", sim.ErrConfiguration, s)
		}
		if n == 1 {
			return name, []float64{lo}, nil
		}
		values := make([]float64, n)
		step := (hi - lo) / float64(n-1)
		for i := range values {
			values[i] = lo + float64(i)*step
		}
		values[n-1] = hi
		return name, values, nil
	}

	var values []float64
	for _, f := range strings.Split(spec, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return "", nil, fmt.Errorf("%w: axis %q: bad value %q", sim.ErrConfiguration, s, f)
		}
		values = append(values, v)
	}
	return name, values, nil
}
