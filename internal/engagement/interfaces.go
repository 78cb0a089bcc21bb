package engagement

import "time"

// Clock returns the current time and schedules deferred callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable deferred callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer before it fired.
	Stop() bool
}

// FrameScheduler runs callbacks at most once per animation frame.
type FrameScheduler interface {
	// RequestFrame schedules fn for the next frame and returns a cancel func.
	RequestFrame(fn func()) (cancel func())
}

// Viewport reports the current scroll geometry of the page.
type Viewport interface {
	Measure() ScrollGeometry
}

// Transport delivers payloads to backend collectors. Implementations must not
// block callers and must swallow their own failures.
type Transport interface {
	// Fire issues a detached request and returns immediately.
	Fire(method, path string, body any)
	// Beacon hands payload to the durable queue. It reports false only when
	// the payload could not be accepted (for example, it failed to serialize).
	Beacon(path string, payload any) bool
}

// AnalyticsSink receives generic analytics events.
type AnalyticsSink interface {
	Track(evt AnalyticsEvent)
}

// SignalSource delivers values of T to subscribers until they unsubscribe.
type SignalSource[T any] interface {
	Subscribe(fn func(T)) Subscription
}

// Subscription releases a signal subscription. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}
