// Package memory provides an in-process grid world that populates cells
// asynchronously, for local runs and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/chunkgen/internal/grid"
	"github.com/JakeFAU/chunkgen/internal/policy/ratelimit"
	"github.com/JakeFAU/chunkgen/internal/scheduler"
)

// ErrWorldUnloaded is returned for requests against a world that is not loaded.
var ErrWorldUnloaded = errors.New("world unloaded")

// FailFunc decides whether populating cell on the given attempt (starting
// at 1) fails.
type FailFunc func(cell grid.Coordinate, attempt int) bool

// FailRandomly fails each attempt with probability rate, using a
// deterministic source seeded by seed.
func FailRandomly(rate float64, seed uint64) FailFunc {
	if rate <= 0 {
		return nil
	}
	var mu sync.Mutex
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return func(grid.Coordinate, int) bool {
		mu.Lock()
		defer mu.Unlock()
		return rng.Float64() < rate
	}
}

// Config tunes a World.
type Config struct {
	// Latency is how long each population takes once it holds a token.
	Latency time.Duration `mapstructure:"latency"`
	// Limit caps population throughput for the world.
	Limit ratelimit.Config `mapstructure:"limit"`
	Fail  FailFunc         `mapstructure:"-"`
}

// World is a named grid whose cells are populated on background goroutines.
type World struct {
	name    string
	latency time.Duration
	fail    FailFunc
	limiter *ratelimit.Limiter
	logger  *zap.Logger

	mu          sync.Mutex
	loaded      bool
	ctx         context.Context
	cancel      context.CancelFunc
	populated   map[grid.Coordinate]struct{}
	attempts    map[grid.Coordinate]int
	outstanding int
	peak        int
	wg          sync.WaitGroup
}

// NewWorld returns a loaded world.
func NewWorld(name string, cfg Config, logger *zap.Logger) *World {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("world", name))
	w := &World{
		name:      name,
		latency:   cfg.Latency,
		fail:      cfg.Fail,
		logger:    logger,
		populated: make(map[grid.Coordinate]struct{}),
		attempts:  make(map[grid.Coordinate]int),
	}
	w.limiter = ratelimit.New(cfg.Limit, func(_ string, d time.Duration) {
		logger.Debug("population throttled", zap.Duration("delay", d))
	})
	w.Load()
	return w
}

// Name returns the world's name.
func (w *World) Name() string {
	return w.name
}

// Load makes the world accept requests. It is a no-op if already loaded.
func (w *World) Load() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loaded {
		return
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.loaded = true
}

// Unload rejects new requests and fails populations that have not finished.
func (w *World) Unload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.loaded {
		return
	}
	w.loaded = false
	w.cancel()
}

// Loaded reports whether the world accepts requests.
func (w *World) Loaded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loaded
}

// Predicate holds while the world is loaded.
func (w *World) Predicate() scheduler.Predicate {
	return w.Loaded
}

// Request implements scheduler.Backend.
func (w *World) Request(cell grid.Coordinate, done func(scheduler.Outcome)) (scheduler.Registration, error) {
	w.mu.Lock()
	if !w.loaded {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrWorldUnloaded, w.name)
	}
	w.attempts[cell]++
	attempt := w.attempts[cell]
	w.outstanding++
	if w.outstanding > w.peak {
		w.peak = w.outstanding
	}
	_, already := w.populated[cell]
	ctx := w.ctx
	w.wg.Add(1)
	w.mu.Unlock()

	reg := &registration{world: w}
	if already {
		w.wg.Done()
		done(scheduler.Success)
		return reg, nil
	}
	go func() {
		defer w.wg.Done()
		done(w.populate(ctx, cell, attempt))
	}()
	return reg, nil
}

func (w *World) populate(ctx context.Context, cell grid.Coordinate, attempt int) scheduler.Outcome {
	if err := w.limiter.Wait(ctx, w.name); err != nil {
		return scheduler.Failure
	}
	if w.latency > 0 {
		timer := time.NewTimer(w.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return scheduler.Failure
		case <-timer.C:
		}
	}
	if ctx.Err() != nil {
		return scheduler.Failure
	}
	if w.fail != nil && w.fail(cell, attempt) {
		w.logger.Debug("cell population failed",
			zap.Stringer("cell", cell), zap.Int("attempt", attempt))
		return scheduler.Failure
	}
	w.mu.Lock()
	w.populated[cell] = struct{}{}
	w.mu.Unlock()
	return scheduler.Success
}

// Populated reports whether cell has been populated.
func (w *World) Populated(cell grid.Coordinate) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.populated[cell]
	return ok
}

// PopulatedCount returns the number of populated cells.
func (w *World) PopulatedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.populated)
}

// Attempts returns how many times cell has been requested.
func (w *World) Attempts(cell grid.Coordinate) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts[cell]
}

// Outstanding returns the number of registrations not yet released.
func (w *World) Outstanding() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.outstanding
}

// Peak returns the highest number of simultaneous registrations seen.
func (w *World) Peak() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.peak
}

// Close unloads the world and waits for background populations to return.
func (w *World) Close() {
	w.Unload()
	w.wg.Wait()
}

type registration struct {
	world *World
	once  sync.Once
}

func (r *registration) Release() {
	r.once.Do(func() {
		r.world.mu.Lock()
		r.world.outstanding--
		r.world.mu.Unlock()
	})
}
