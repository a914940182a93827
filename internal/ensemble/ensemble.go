// Package ensemble runs many independent simulation trials under sampled
// parameters and gathers their outcomes in trial order.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/finsim/internal/dist"
	"github.com/san-kum/finsim/internal/sim"
)

// Factory wires a fresh Simulation from one trial's sampled parameters.
type Factory func(params dist.Params) (*sim.Simulation, error)

// Trial is one trial's outcome: a result or the error that ended it.
type Trial struct {
	Index  int
	Name   string
	Seed   int64
	Params dist.Params
	Result *sim.Result
	Err    error
}

func (t Trial) OK() bool { return t.Err == nil }

// TrialError ties a failure to the trial that produced it.
type TrialError struct {
	Index   int
	Name    string
	Seed    int64
	Wrapped error
}

func (e *TrialError) Error() string {
	return fmt.Sprintf("trial %d (%s, seed %d): %v", e.Index, e.Name, e.Seed, e.Wrapped)
}

func (e *TrialError) Unwrap() error { return e.Wrapped }

// Ensemble is the ordered output of one batch.
type Ensemble struct {
	BaseSeed int64
	Trials   []Trial
}

func (e *Ensemble) Succeeded() []Trial { return e.filter(true) }
func (e *Ensemble) Failed() []Trial    { return e.filter(false) }

func (e *Ensemble) filter(ok bool) []Trial {
	out := make([]Trial, 0, len(e.Trials))
	for _, t := range e.Trials {
		if t.OK() == ok {
			out = append(out, t)
		}
	}
	return out
}

// Results returns the successful trial results in trial order.
func (e *Ensemble) Results() []*sim.Result {
	out := make([]*sim.Result, 0, len(e.Trials))
	for _, t := range e.Trials {
		if t.OK() {
			out = append(out, t.Result)
		}
	}
	return out
}

// Err joins every trial failure, or returns nil when all trials succeeded.
func (e *Ensemble) Err() error {
	var errs []error
	for _, t := range e.Trials {
		if t.Err != nil {
			errs = append(errs, t.Err)
		}
	}
	return errors.Join(errs...)
}

type Option func(*Builder)

// WithWorkers bounds the number of trials run concurrently. Values below one
// select GOMAXPROCS.
func WithWorkers(n int) Option { return func(b *Builder) { b.workers = n } }

func WithLogger(l *slog.Logger) Option { return func(b *Builder) { b.logger = l } }

// WithProgress registers a callback invoked once per finished trial. Calls are
// serialized but arrive in completion order, not trial order.
func WithProgress(fn func(Trial)) Option { return func(b *Builder) { b.onTrial = fn } }

// Builder samples parameters, builds and runs trials.
type Builder struct {
	factory Factory
	dists   map[string]dist.Distribution
	keys    []string

	workers int
	logger  *slog.Logger
	onTrial func(Trial)
	now     func() time.Time

	mu sync.Mutex
}

func NewBuilder(factory Factory, dists map[string]dist.Distribution, opts ...Option) *Builder {
	b := &Builder{
		factory: factory,
		dists:   dists,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for k := range dists {
		b.keys = append(b.keys, k)
	}
	sort.Strings(b.keys)
	for _, opt := range opts {
		opt(b)
	}
	if b.workers < 1 {
		b.workers = runtime.GOMAXPROCS(0)
	}
	return b
}

// Build runs n trials. Trial i draws from a source seeded with base+i, where
// base is seed or, when seed is nil, a clock-derived value recorded in the
// returned Ensemble. Failed trials are reported in place; the returned error
// is non-nil only for invalid arguments or cancellation.
func (b *Builder) Build(ctx context.Context, n int, seed *int64) (*Ensemble, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: trial count must be >= 0, got %d", sim.ErrConfiguration, n)
	}
	if b.factory == nil {
		return nil, fmt.Errorf("%w: ensemble has no factory", sim.ErrConfiguration)
	}

	base := b.now().UnixNano()
	if seed != nil {
		base = *seed
	}
	ens := &Ensemble{BaseSeed: base, Trials: make([]Trial, n)}

	b.logger.Info("ensemble started", "trials", n, "seed", base, "workers", b.workers)
	started := b.now()

	var g errgroup.Group
	g.SetLimit(b.workers)
	for i := 0; i < n; i++ {
		idx := i
		g.Go(func() error {
			t := b.runTrial(ctx, idx, base+int64(idx))
			ens.Trials[idx] = t
			b.report(t)
			return nil
		})
	}
	_ = g.Wait()

	failed := len(ens.Failed())
	b.logger.Info("ensemble finished", "trials", n, "failed", failed, "elapsed", b.now().Sub(started))

	if err := ctx.Err(); err != nil {
		return ens, err
	}
	return ens, nil
}

func (b *Builder) runTrial(ctx context.Context, idx int, seed int64) (t Trial) {
	t = Trial{Index: idx, Name: fmt.Sprintf("Sim_%d", idx), Seed: seed}
	defer func() {
		if r := recover(); r != nil {
			t.Result = nil
			t.Err = &TrialError{Index: idx, Name: t.Name, Seed: seed, Wrapped: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		t.Err = &TrialError{Index: idx, Name: t.Name, Seed: seed, Wrapped: err}
		return t
	}

	rng := rand.New(rand.NewSource(seed))
	t.Params = b.Sample(rng)

	s, err := b.factory(t.Params.Clone())
	if err != nil {
		t.Err = &TrialError{Index: idx, Name: t.Name, Seed: seed, Wrapped: err}
		return t
	}
	s.SetName(t.Name)
	s.SetRand(rng)

	if err := s.Run(ctx); err != nil {
		t.Err = &TrialError{Index: idx, Name: t.Name, Seed: seed, Wrapped: err}
		return t
	}
	t.Result = s.Result()
	return t
}

// Sample draws one value per configured distribution, in lexical name order.
func (b *Builder) Sample(r *rand.Rand) dist.Params {
	params := make(dist.Params, len(b.keys))
	for _, k := range b.keys {
		params[k] = b.dists[k].Sample(r)
	}
	return params
}

func (b *Builder) report(t Trial) {
	if t.Err != nil {
		b.logger.Warn("trial failed", "trial", t.Name, "seed", t.Seed, "error", t.Err)
	} else {
		b.logger.Debug("trial finished", "trial", t.Name, "seed", t.Seed, "events", len(t.Result.Events))
	}
	if b.onTrial == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrial(t)
}
