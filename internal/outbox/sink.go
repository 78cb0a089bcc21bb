package outbox

import "context"

// Sink consumes batches of envelopes. Implementations must be safe for
// repeated calls and honor ctx deadlines. A sink sees every kind and ignores
// the ones it does not handle.
type Sink interface {
	Consume(ctx context.Context, batch []Envelope) error
	Close(ctx context.Context) error
}

// Emitter queues individual envelopes; Hub satisfies this interface so the
// dispatcher stays agnostic about buffering and delivery.
type Emitter interface {
	Emit(env Envelope)
}

// SinkFunc adapts a function to Sink. Close is a no-op.
type SinkFunc func(ctx context.Context, batch []Envelope) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, batch []Envelope) error {
	return f(ctx, batch)
}

// Close implements Sink.
func (SinkFunc) Close(context.Context) error {
	return nil
}
