package report

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Sink receives human-readable progress text. Delivery is best effort and
// must not block the reporter for long.
type Sink interface {
	Deliver(text string)
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(text string)

// Deliver calls f.
func (f SinkFunc) Deliver(text string) {
	f(text)
}

// LogSink writes each message at info level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wraps logger, defaulting to a no-op logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Deliver logs text.
func (s *LogSink) Deliver(text string) {
	s.logger.Info(text)
}

// WriterSink writes one line per message to an io.Writer.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink wraps w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Deliver writes text followed by a newline. Write errors are dropped.
func (s *WriterSink) Deliver(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.w, text)
}

// Recipient is an interactive observer that may disconnect mid-run.
type Recipient interface {
	Connected() bool
	Deliver(text string)
}

// RecipientSink prefers an interactive recipient and falls back to a passive
// sink whenever the recipient is absent or disconnected.
type RecipientSink struct {
	recipient Recipient
	fallback  Sink
}

// NewRecipientSink builds a RecipientSink. A nil fallback drops messages the
// recipient cannot take.
func NewRecipientSink(recipient Recipient, fallback Sink) *RecipientSink {
	return &RecipientSink{recipient: recipient, fallback: fallback}
}

// Deliver routes text to the recipient if connected, else to the fallback.
func (s *RecipientSink) Deliver(text string) {
	if s.recipient != nil && s.recipient.Connected() {
		s.recipient.Deliver(text)
		return
	}
	if s.fallback != nil {
		s.fallback.Deliver(text)
	}
}
