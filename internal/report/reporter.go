// Package report drives a scheduling run to completion and turns its snapshot
// stream into throttled, human-readable progress messages.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/chunkgen/internal/clock/system"
	iduuid "github.com/JakeFAU/chunkgen/internal/id/uuid"
	"github.com/JakeFAU/chunkgen/internal/progress"
	"github.com/JakeFAU/chunkgen/internal/scheduler"
)

const (
	// DefaultThreshold is the minimum percentage-point advance between messages.
	DefaultThreshold = 0.01
	// DefaultDoneMessage is delivered once the run is exhausted.
	DefaultDoneMessage = "Generation completed."
)

// State is a step of the reporting state machine.
type State int

// Reporter states.
const (
	StateInit State = iota
	StateAwaitSnapshot
	StateEmitMessage
	StateError
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitSnapshot:
		return "await_snapshot"
	case StateEmitMessage:
		return "emit_message"
	case StateError:
		return "error"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source yields snapshots until it returns scheduler.ErrDone. *scheduler.Run
// satisfies it.
type Source interface {
	Next(ctx context.Context) (scheduler.Snapshot, error)
}

// Clock supplies event timestamps.
type Clock interface {
	Now() time.Time
}

// Config controls message formatting and throttling.
type Config struct {
	// Region names the area in every message, e.g. the world folder name.
	Region string `mapstructure:"region"`
	// Threshold is the percentage-point advance required before another
	// progress message is emitted. Zero or negative emits every snapshot.
	Threshold float64 `mapstructure:"threshold"`
	// DoneMessage replaces DefaultDoneMessage when set.
	DoneMessage string `mapstructure:"done_message"`
}

// Reporter consumes a Source and reports progress to a Sink.
type Reporter struct {
	cfg     Config
	sink    Sink
	emitter progress.Emitter
	logger  *zap.Logger
	clock   Clock
	newID   func() uuid.UUID
}

// Option customizes a Reporter.
type Option func(*Reporter)

// WithEmitter publishes structured progress events alongside the text messages.
func WithEmitter(e progress.Emitter) Option {
	return func(r *Reporter) {
		r.emitter = e
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(c Clock) Option {
	return func(r *Reporter) {
		if c != nil {
			r.clock = c
		}
	}
}

// New builds a Reporter delivering to sink.
func New(cfg Config, sink Sink, opts ...Option) *Reporter {
	if cfg.DoneMessage == "" {
		cfg.DoneMessage = DefaultDoneMessage
	}
	if sink == nil {
		sink = SinkFunc(func(string) {})
	}
	r := &Reporter{
		cfg:    cfg,
		sink:   sink,
		logger: zap.NewNop(),
		clock:  system.New(),
		newID:  iduuid.New().NewRunID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FormatProgress renders a snapshot the way progress messages are delivered.
func FormatProgress(region string, s scheduler.Snapshot) string {
	return fmt.Sprintf("%s: %d / %d succeeded [%.2f%%], %d failed",
		region, s.Completed, s.Total, s.Percent(), s.Failed)
}

// Run drives src to exhaustion. It returns nil once the done message has been
// delivered, or the error that moved the machine into StateError after that
// error's text has been delivered.
func (r *Reporter) Run(ctx context.Context, src Source) error {
	s := &session{
		Reporter: r,
		src:      src,
		lastPct:  -r.cfg.Threshold,
	}
	state := StateInit
	for state != StateDone {
		state = s.step(ctx, state)
	}
	return s.err
}

type session struct {
	*Reporter
	src Source

	id      [16]byte
	started bool
	last    scheduler.Snapshot
	pending bool
	lastPct float64
	message string
	resume  State
	err     error
}

func (s *session) step(ctx context.Context, state State) State {
	switch state {
	case StateInit:
		snap, err := s.src.Next(ctx)
		switch {
		case errors.Is(err, scheduler.ErrDone):
			s.begin(scheduler.Snapshot{})
			return s.complete()
		case err != nil:
			s.err = err
			return StateError
		}
		s.begin(snap)
		s.accept(snap)
		return StateAwaitSnapshot

	case StateAwaitSnapshot:
		if s.pending {
			s.pending = false
			if s.format() {
				s.resume = StateAwaitSnapshot
				return StateEmitMessage
			}
		}
		snap, err := s.src.Next(ctx)
		switch {
		case errors.Is(err, scheduler.ErrDone):
			return s.complete()
		case err != nil:
			s.err = err
			return StateError
		}
		s.accept(snap)
		return StateAwaitSnapshot

	case StateEmitMessage:
		if s.message != "" {
			s.sink.Deliver(s.message)
		}
		s.message = ""
		return s.resume

	case StateError:
		s.logger.Error("generation failed", zap.String("region", s.cfg.Region), zap.Error(s.err))
		if !s.started {
			s.begin(scheduler.Snapshot{})
		}
		s.emit(progress.StageRunError, s.last, s.err.Error())
		s.sink.Deliver(s.err.Error())
		return StateDone

	default:
		s.err = fmt.Errorf("report: unexpected state %s", state)
		return StateDone
	}
}

// begin resolves the run identity and announces the start.
func (s *session) begin(first scheduler.Snapshot) {
	s.started = true
	var id uuid.UUID
	if ider, ok := s.src.(interface{ ID() uuid.UUID }); ok {
		id = ider.ID()
	}
	if id == uuid.Nil {
		id = s.newID()
	}
	s.id = progress.UUIDToBytes(id)
	s.emit(progress.StageRunStart, scheduler.Snapshot{Total: first.Total, Pass: 1}, "")
}

func (s *session) accept(snap scheduler.Snapshot) {
	if snap.Pass > s.last.Pass && s.last.Pass > 0 {
		s.emit(progress.StageRunRetry, s.last, "")
	}
	s.last = snap
	s.pending = true
	s.emit(progress.StageRunProgress, snap, "")
}

// format builds a message for the pending snapshot if it clears the threshold.
func (s *session) format() bool {
	pct := s.last.Percent()
	if s.cfg.Threshold > 0 && pct-s.lastPct < s.cfg.Threshold {
		return false
	}
	s.lastPct = pct
	s.message = FormatProgress(s.cfg.Region, s.last)
	return true
}

func (s *session) complete() State {
	stage := progress.StageRunDone
	if st, ok := s.src.(interface{ Stopped() bool }); ok && st.Stopped() {
		stage = progress.StageRunStopped
	}
	s.emit(stage, s.last, "")
	s.logger.Info("generation finished",
		zap.String("region", s.cfg.Region),
		zap.Int64("completed", s.last.Completed),
		zap.Int64("failed", s.last.Failed),
		zap.Int64("total", s.last.Total),
		zap.String("result", string(stage)),
	)
	s.message = s.cfg.DoneMessage
	s.resume = StateDone
	return StateEmitMessage
}

func (s *session) emit(stage progress.Stage, snap scheduler.Snapshot, note string) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(progress.Event{
		RunID:     s.id,
		TS:        s.clock.Now(),
		Stage:     stage,
		Region:    s.cfg.Region,
		Completed: snap.Completed,
		Failed:    snap.Failed,
		Total:     snap.Total,
		Pass:      snap.Pass,
		Note:      note,
	})
}
