package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chunkgen/internal/grid"
	"github.com/JakeFAU/chunkgen/internal/policy/ratelimit"
	"github.com/JakeFAU/chunkgen/internal/scheduler"
)

func await(t *testing.T, ch <-chan scheduler.Outcome) scheduler.Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("completion not delivered")
		return 0
	}
}

func TestWorldPopulatesCell(t *testing.T) {
	t.Parallel()

	w := NewWorld("world", Config{Latency: time.Millisecond}, nil)
	t.Cleanup(w.Close)
	cell := grid.Coordinate{X: 3, Z: -2}

	ch := make(chan scheduler.Outcome, 1)
	reg, err := w.Request(cell, func(o scheduler.Outcome) { ch <- o })
	require.NoError(t, err)
	require.Equal(t, scheduler.Success, await(t, ch))
	require.True(t, w.Populated(cell))
	require.Equal(t, 1, w.Outstanding())

	reg.Release()
	reg.Release()
	require.Zero(t, w.Outstanding())
	require.Equal(t, 1, w.Peak())
}

func TestWorldAlreadyPopulatedResolvesImmediately(t *testing.T) {
	t.Parallel()

	w := NewWorld("world", Config{}, nil)
	t.Cleanup(w.Close)
	cell := grid.Coordinate{X: 0, Z: 0}

	ch := make(chan scheduler.Outcome, 1)
	reg, err := w.Request(cell, func(o scheduler.Outcome) { ch <- o })
	require.NoError(t, err)
	require.Equal(t, scheduler.Success, await(t, ch))
	reg.Release()

	var got scheduler.Outcome
	reg, err = w.Request(cell, func(o scheduler.Outcome) { got = o })
	require.NoError(t, err)
	require.Equal(t, scheduler.Success, got)
	reg.Release()
	require.Equal(t, 2, w.Attempts(cell))
	require.Equal(t, 1, w.PopulatedCount())
}

func TestWorldFailFuncSeesAttempt(t *testing.T) {
	t.Parallel()

	w := NewWorld("world", Config{
		Fail: func(_ grid.Coordinate, attempt int) bool { return attempt == 1 },
	}, nil)
	t.Cleanup(w.Close)
	cell := grid.Coordinate{X: 1, Z: 1}

	ch := make(chan scheduler.Outcome, 1)
	_, err := w.Request(cell, func(o scheduler.Outcome) { ch <- o })
	require.NoError(t, err)
	require.Equal(t, scheduler.Failure, await(t, ch))
	require.False(t, w.Populated(cell))

	_, err = w.Request(cell, func(o scheduler.Outcome) { ch <- o })
	require.NoError(t, err)
	require.Equal(t, scheduler.Success, await(t, ch))
}

func TestWorldUnloadedRejectsRequests(t *testing.T) {
	t.Parallel()

	w := NewWorld("world", Config{}, nil)
	w.Unload()
	require.False(t, w.Loaded())
	require.False(t, w.Predicate()())

	_, err := w.Request(grid.Coordinate{}, func(scheduler.Outcome) {
		t.Error("done must not be called for a rejected request")
	})
	require.ErrorIs(t, err, ErrWorldUnloaded)

	w.Load()
	require.True(t, w.Loaded())
}

func TestWorldUnloadFailsPendingPopulations(t *testing.T) {
	t.Parallel()

	w := NewWorld("world", Config{Latency: time.Hour}, nil)
	ch := make(chan scheduler.Outcome, 1)
	_, err := w.Request(grid.Coordinate{}, func(o scheduler.Outcome) { ch <- o })
	require.NoError(t, err)

	w.Close()
	require.Equal(t, scheduler.Failure, await(t, ch))
}

func TestWorldThrottlesPopulation(t *testing.T) {
	t.Parallel()

	w := NewWorld("world", Config{Limit: ratelimit.Config{DefaultRPS: 20, DefaultBurst: 1}}, nil)
	t.Cleanup(w.Close)

	start := time.Now()
	ch := make(chan scheduler.Outcome, 3)
	for x := range 3 {
		_, err := w.Request(grid.Coordinate{X: x}, func(o scheduler.Outcome) { ch <- o })
		require.NoError(t, err)
	}
	for range 3 {
		require.Equal(t, scheduler.Success, await(t, ch))
	}
	// Burst 1 at 20 RPS spaces the last two tokens ~50ms apart.
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestWorldDrivesSchedulerRun(t *testing.T) {
	t.Parallel()

	w := NewWorld("world", Config{
		Latency: time.Millisecond,
		Fail: func(c grid.Coordinate, attempt int) bool {
			return c == grid.Coordinate{X: 1, Z: 1} && attempt == 1
		},
	}, nil)
	t.Cleanup(w.Close)

	rng, err := grid.NewRange(0, 0, 3, 3)
	require.NoError(t, err)
	run, err := scheduler.New(w, scheduler.WithPredicate(w.Predicate())).ScheduleRange(rng, 3)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	summary, err := run.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(16), summary.Completed)
	require.Zero(t, summary.Failed)
	require.Equal(t, 2, summary.Passes)
	require.Equal(t, 16, w.PopulatedCount())
	require.LessOrEqual(t, w.Peak(), 3)
	require.Zero(t, w.Outstanding())
}

func TestFailRandomly(t *testing.T) {
	t.Parallel()

	require.Nil(t, FailRandomly(0, 1))

	always := FailRandomly(1, 1)
	require.True(t, always(grid.Coordinate{}, 1))

	a, b := FailRandomly(0.5, 42), FailRandomly(0.5, 42)
	for i := range 20 {
		require.Equal(t, a(grid.Coordinate{X: i}, 1), b(grid.Coordinate{X: i}, 1))
	}
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry([]string{"world_nether", "world"}, Config{}, nil)
	t.Cleanup(r.Close)

	w, err := r.Lookup("world")
	require.NoError(t, err)
	require.Equal(t, "world", w.Name())
	require.Equal(t, []string{"world", "world_nether"}, r.Names())

	_, err = r.Lookup("missing")
	require.ErrorIs(t, err, ErrUnknownWorld)
}
