package engagement

import "sync/atomic"

// State is the lifecycle of a one-shot delivery.
type State int32

// OneShot states. Sent and Suppressed are terminal.
const (
	StatePending State = iota
	StateSent
	StateSuppressed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSent:
		return "sent"
	case StateSuppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// OneShot is a pending → {sent, suppressed} state machine. The zero value is
// pending and safe for concurrent use.
type OneShot struct {
	state atomic.Int32
}

// State returns the current state.
func (o *OneShot) State() State {
	return State(o.state.Load())
}

// Settled reports whether a terminal state was reached.
func (o *OneShot) Settled() bool {
	return o.State() != StatePending
}

// MarkSent moves pending → sent. It returns false if already settled, in
// which case the caller must not transmit.
func (o *OneShot) MarkSent() bool {
	return o.state.CompareAndSwap(int32(StatePending), int32(StateSent))
}

// MarkSuppressed moves pending → suppressed. It returns false if already settled.
func (o *OneShot) MarkSuppressed() bool {
	return o.state.CompareAndSwap(int32(StatePending), int32(StateSuppressed))
}
