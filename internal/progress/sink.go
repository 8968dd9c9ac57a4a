package progress

import "context"

// Sink consumes batches of progress events. Implementations must honor ctx
// deadlines and tolerate being called from the hub goroutine repeatedly.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it so the reporter does
// not care how events are buffered or persisted.
type Emitter interface {
	Emit(evt Event)
}

// SinkFunc adapts a plain function into a Sink whose Close is a no-op.
type SinkFunc func(ctx context.Context, batch []Event) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

// Close implements Sink.
func (SinkFunc) Close(context.Context) error {
	return nil
}
