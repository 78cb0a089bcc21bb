// Package system provides wall-clock implementations of the engagement
// clock and frame scheduler.
package system

import (
	"time"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
)

// DefaultFrameInterval approximates one 60 Hz animation frame.
const DefaultFrameInterval = 16 * time.Millisecond

// Clock implements engagement.Clock using the runtime timer.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// AfterFunc runs fn on its own goroutine once d elapses.
func (Clock) AfterFunc(d time.Duration, fn func()) engagement.Timer {
	return time.AfterFunc(d, fn)
}

// Frames coalesces frame requests onto a fixed interval.
type Frames struct {
	interval time.Duration
}

// NewFrames creates a scheduler; a non-positive interval uses DefaultFrameInterval.
func NewFrames(interval time.Duration) *Frames {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Frames{interval: interval}
}

// Interval returns the frame period.
func (f *Frames) Interval() time.Duration {
	return f.interval
}

// RequestFrame runs fn after one frame period.
func (f *Frames) RequestFrame(fn func()) func() {
	t := time.AfterFunc(f.interval, fn)
	return func() { t.Stop() }
}
