package scheduler

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/chunkgen/internal/completion"
	"github.com/JakeFAU/chunkgen/internal/grid"
)

const (
	firstPass = 1
	retryPass = 2
)

type request struct {
	cell grid.Coordinate
	reg  Registration
}

// Summary describes how a run ended.
type Summary struct {
	Completed      int64
	Failed         int64
	NeverAttempted int64
	Total          int64
	Passes         int
	Stopped        bool
}

// Run is a single scheduling operation. It is driven entirely by Next and
// makes no progress between calls; it must be used from one goroutine.
type Run struct {
	id          uuid.UUID
	backend     Backend
	predicate   Predicate
	logger      *zap.Logger
	metrics     *Metrics
	total       int64
	concurrency int

	source    grid.Source
	exhausted bool
	events    *completion.Queue[Event]
	inFlight  map[uint64]request
	ticket    uint64

	pass      int
	completed int64
	retry     []grid.Coordinate
	retried   []grid.Coordinate
	recovered int64

	started  bool
	halted   bool
	stopped  bool
	finished bool
	termErr  error
}

func newRun(s *Scheduler, id uuid.UUID, source grid.Source, total int64, concurrency int) *Run {
	return &Run{
		id:          id,
		backend:     s.backend,
		predicate:   s.predicate,
		logger:      s.logger.With(zap.String("run_id", id.String())),
		metrics:     s.metrics,
		total:       total,
		concurrency: concurrency,
		source:      source,
		events:      completion.NewQueue[Event](),
		inFlight:    make(map[uint64]request, concurrency),
		pass:        firstPass,
	}
}

// ID returns the run identifier.
func (r *Run) ID() uuid.UUID {
	return r.id
}

// Total returns the progress denominator.
func (r *Run) Total() int64 {
	return r.total
}

// InFlight reports how many dispatched cells have not completed yet.
func (r *Run) InFlight() int {
	return len(r.inFlight)
}

// Pass returns the current pass number.
func (r *Run) Pass() int {
	return r.pass
}

// Stopped reports whether admission ended early because the predicate failed.
func (r *Run) Stopped() bool {
	return r.stopped
}

// Retried returns the cells that seeded the retry pass, in dispatch order.
func (r *Run) Retried() []grid.Coordinate {
	return append([]grid.Coordinate(nil), r.retried...)
}

// Summary returns the current tallies. NeverAttempted is whatever remains of
// Total once completed and failed cells are accounted for. During the retry
// pass every seeded cell that has not yet succeeded counts as failed, whether
// or not it was dispatched again.
func (r *Run) Summary() Summary {
	failed := int64(len(r.retry))
	if r.pass == retryPass {
		failed = int64(len(r.retried)) - r.recovered
	}
	never := r.total - r.completed - failed
	if never < 0 {
		never = 0
	}
	return Summary{
		Completed:      r.completed,
		Failed:         failed,
		NeverAttempted: never,
		Total:          r.total,
		Passes:         r.pass,
		Stopped:        r.stopped,
	}
}

// Next blocks until the next dispatched cell completes and returns the
// resulting snapshot. It returns ErrDone once every pass has drained. Other
// errors are terminal: ErrBackendUnavailable when nothing could be admitted,
// a *DispatchError after in-flight cells drained, or the context's error if
// ctx ends while waiting (outstanding completions are then abandoned).
func (r *Run) Next(ctx context.Context) (Snapshot, error) {
	if r.finished {
		return Snapshot{}, r.termErr
	}
	if !r.started {
		r.started = true
		if r.total == 0 {
			r.finish(nil)
			return r.snapshot(), nil
		}
		if !r.available() {
			r.logger.Warn("target unavailable before first admission")
			r.finish(ErrBackendUnavailable)
			return Snapshot{}, ErrBackendUnavailable
		}
		r.logger.Info("schedule started",
			zap.Int64("total", r.total),
			zap.Int("concurrency", r.concurrency),
		)
		r.fill(true)
	}

	for len(r.inFlight) == 0 {
		if !r.advancePass() {
			r.finish(nil)
			return Snapshot{}, r.termErr
		}
	}

	evt, err := r.events.Receive(ctx)
	if err != nil {
		r.logger.Warn("schedule abandoned", zap.Int("in_flight", len(r.inFlight)), zap.Error(err))
		r.metrics.abandon(len(r.inFlight))
		r.finish(err)
		return Snapshot{}, err
	}
	r.resolve(evt)
	r.fill(false)
	return r.snapshot(), nil
}

// Snapshots adapts Next into a range-over-func sequence. The sequence ends
// silently on ErrDone; any other error is yielded once as the final element.
func (r *Run) Snapshots(ctx context.Context) iter.Seq2[Snapshot, error] {
	return func(yield func(Snapshot, error) bool) {
		for {
			snap, err := r.Next(ctx)
			if errors.Is(err, ErrDone) {
				return
			}
			if err != nil {
				yield(Snapshot{}, err)
				return
			}
			if !yield(snap, nil) {
				return
			}
		}
	}
}

// Wait drives the run to completion and returns its summary.
func (r *Run) Wait(ctx context.Context) (Summary, error) {
	for _, err := range r.Snapshots(ctx) {
		if err != nil {
			return r.Summary(), err
		}
	}
	return r.Summary(), nil
}

func (r *Run) snapshot() Snapshot {
	return Snapshot{
		Completed: r.completed,
		Failed:    int64(len(r.retry)),
		Total:     r.total,
		Pass:      r.pass,
	}
}

func (r *Run) available() bool {
	return r.predicate == nil || r.predicate()
}

// fill admits cells up to the concurrency bound, polling the predicate before
// each admission. polled means the caller already checked it for the first.
func (r *Run) fill(polled bool) {
	for !r.halted && !r.exhausted && len(r.inFlight) < r.concurrency {
		if !polled && !r.available() {
			r.stop()
			return
		}
		polled = false
		r.admit()
	}
}

// admit pulls one cell and dispatches it. The caller guarantees there is
// room under the concurrency bound.
func (r *Run) admit() {
	cell, ok := r.source.Next()
	if !ok {
		r.exhausted = true
		return
	}
	r.ticket++
	ticket := r.ticket
	events := r.events
	reg, err := r.backend.Request(cell, func(o Outcome) {
		events.Send(Event{Cell: cell, Outcome: o, ticket: ticket})
	})
	if err != nil {
		r.halted = true
		r.termErr = &DispatchError{Cell: cell, Err: err}
		r.logger.Error("dispatch failed; draining in-flight cells",
			zap.Stringer("cell", cell),
			zap.Int("in_flight", len(r.inFlight)),
			zap.Error(err),
		)
		return
	}
	r.inFlight[ticket] = request{cell: cell, reg: reg}
	r.metrics.observeDispatch(r.pass)
	r.logger.Debug("cell dispatched", zap.Stringer("cell", cell), zap.Int("pass", r.pass))
}

func (r *Run) resolve(evt Event) {
	req, ok := r.inFlight[evt.ticket]
	if !ok {
		r.logger.Warn("ignoring unexpected completion", zap.Stringer("cell", evt.Cell))
		return
	}
	delete(r.inFlight, evt.ticket)
	if req.reg != nil {
		req.reg.Release()
	}
	r.metrics.observeCompletion(evt.Outcome)
	if evt.Outcome == Success {
		r.completed++
		if r.pass == retryPass {
			r.recovered++
		}
		return
	}
	r.retry = append(r.retry, req.cell)
	r.logger.Debug("cell failed", zap.Stringer("cell", req.cell), zap.Int("pass", r.pass))
}

func (r *Run) stop() {
	r.halted = true
	r.stopped = true
	r.metrics.observeEarlyStop()
	r.logger.Info("target unavailable; draining in-flight cells",
		zap.Int("in_flight", len(r.inFlight)),
		zap.Int64("completed", r.completed),
	)
}

// advancePass is called with nothing in flight. It starts the retry pass when
// one is due and reports whether there is anything left to wait for.
func (r *Run) advancePass() bool {
	if r.halted || r.pass >= retryPass || len(r.retry) == 0 {
		return false
	}
	if !r.available() {
		r.stop()
		return false
	}
	r.retried = r.retry
	r.retry = nil
	r.pass = retryPass
	r.source = grid.NewSliceSource(r.retried)
	r.exhausted = false
	r.metrics.observeRetryPass()
	r.logger.Info("retrying failed cells", zap.Int("cells", len(r.retried)))
	r.fill(true)
	return len(r.inFlight) > 0 || !r.halted
}

func (r *Run) finish(err error) {
	r.finished = true
	switch {
	case err != nil:
		r.termErr = err
	case r.termErr == nil:
		r.termErr = ErrDone
	}
	if errors.Is(r.termErr, ErrDone) {
		s := r.Summary()
		r.logger.Info("schedule finished",
			zap.Int64("completed", s.Completed),
			zap.Int64("failed", s.Failed),
			zap.Int64("never_attempted", s.NeverAttempted),
			zap.Bool("stopped", s.Stopped),
		)
	}
}
