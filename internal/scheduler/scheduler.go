// Package scheduler drives grid cell population against a backend that can
// only handle a bounded number of outstanding requests. A Run admits cells
// from a source, waits for their asynchronous completions, retries failures
// once, and hands the caller one progress snapshot per completion.
package scheduler

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/chunkgen/internal/grid"
	iduuid "github.com/JakeFAU/chunkgen/internal/id/uuid"
)

// Outcome is the result a backend reports for a single cell.
type Outcome int

// Supported outcomes.
const (
	Success Outcome = iota + 1
	Failure
)

// String returns "success" or "failure".
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Event is a completion signal for one dispatched cell.
type Event struct {
	Cell    grid.Coordinate
	Outcome Outcome

	ticket uint64
}

// Registration is the backend-side interest held for an outstanding cell.
// Release is called once the cell's completion has been observed.
type Registration interface {
	Release()
}

// Backend performs cell population. Request must not block on the work
// itself; it eventually invokes done exactly once, from any goroutine. A
// non-nil error means the cell was not registered and done will not be called.
type Backend interface {
	Request(cell grid.Coordinate, done func(Outcome)) (Registration, error)
}

// Predicate reports whether new cells may still be admitted.
type Predicate func() bool

// Snapshot is the progress reported after each completion.
type Snapshot struct {
	// Completed counts successful cells across all passes.
	Completed int64
	// Failed counts cells that failed in the current pass.
	Failed int64
	// Total is the number of cells the run was asked to populate.
	Total int64
	// Pass is 1 for the initial traversal and 2 for the retry pass.
	Pass int
}

// Percent returns Completed as a percentage of Total, or 0 for an empty run.
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total) * 100
}

// Scheduler creates runs against a single backend.
type Scheduler struct {
	backend   Backend
	predicate Predicate
	logger    *zap.Logger
	metrics   *Metrics
	newID     func() uuid.UUID
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithPredicate sets the continuation predicate polled before each admission.
func WithPredicate(p Predicate) Option {
	return func(s *Scheduler) {
		s.predicate = p
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records run activity on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithIDSource overrides how run IDs are generated.
func WithIDSource(newID func() uuid.UUID) Option {
	return func(s *Scheduler) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// New builds a Scheduler for backend.
func New(backend Backend, opts ...Option) *Scheduler {
	s := &Scheduler{
		backend: backend,
		logger:  zap.NewNop(),
		newID:   iduuid.New().NewRunID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule prepares a run over source. total is the number of cells source
// will yield and is used as the progress denominator. No cell is dispatched
// until the first call to Next.
func (s *Scheduler) Schedule(source grid.Source, total int64, concurrency int) (*Run, error) {
	if concurrency < 1 {
		return nil, ErrInvalidConcurrency
	}
	if total < 0 {
		return nil, ErrInvalidTotal
	}
	if source == nil {
		source = grid.NewSliceSource(nil)
	}
	id := s.newID()
	return newRun(s, id, source, total, concurrency), nil
}

// ScheduleRange validates r and schedules every cell inside it.
func (s *Scheduler) ScheduleRange(r grid.Range, concurrency int) (*Run, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return s.Schedule(r.Cells(), r.Count(), concurrency)
}
