// Package manual provides a virtual clock and frame scheduler whose timers only
// fire when the caller advances them. Tests and the session replayer use it to
// drive timing deterministically.
package manual

import (
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
)

// Clock is a virtual engagement.Clock.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*timer
}

type timer struct {
	clock   *Clock
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
	fired   bool
}

// New creates a Clock reading start.
func New(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the virtual time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules fn at Now()+d. It never runs fn synchronously.
func (c *Clock) AfterFunc(d time.Duration, fn func()) engagement.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &timer{clock: c, at: c.now.Add(d), seq: c.seq, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward by d, firing due timers in deadline order on the
// calling goroutine. Each timer observes Now() equal to its deadline.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	c.AdvanceTo(target)
}

// AdvanceTo moves time forward to target. Earlier targets are ignored.
func (c *Clock) AdvanceTo(target time.Time) {
	for {
		c.mu.Lock()
		next := c.nextDue(target)
		if next == nil {
			if target.After(c.now) {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		if next.at.After(c.now) {
			c.now = next.at
		}
		next.fired = true
		c.remove(next)
		c.mu.Unlock()
		next.fn()
	}
}

// Pending returns the number of scheduled, unfired, unstopped timers.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *Clock) nextDue(target time.Time) *timer {
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].at.Before(c.timers[j].at)
	})
	if len(c.timers) == 0 || c.timers[0].at.After(target) {
		return nil
	}
	return c.timers[0]
}

func (c *Clock) remove(t *timer) {
	for i, cand := range c.timers {
		if cand == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.clock.remove(t)
	return true
}

// Frames is a frame scheduler that runs queued callbacks on Flush.
type Frames struct {
	mu      sync.Mutex
	seq     uint64
	pending map[uint64]func()
	order   []uint64
}

// NewFrames creates an empty scheduler.
func NewFrames() *Frames {
	return &Frames{pending: make(map[uint64]func())}
}

// RequestFrame queues fn for the next Flush.
func (f *Frames) RequestFrame(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := f.seq
	f.pending[id] = fn
	f.order = append(f.order, id)
	return func() {
		f.mu.Lock()
		delete(f.pending, id)
		f.mu.Unlock()
	}
}

// Pending returns the number of queued callbacks.
func (f *Frames) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Flush runs every callback queued before the call, in request order.
// Callbacks queued during the flush wait for the next one.
func (f *Frames) Flush() int {
	f.mu.Lock()
	order := f.order
	f.order = nil
	var run []func()
	for _, id := range order {
		if fn, ok := f.pending[id]; ok {
			run = append(run, fn)
			delete(f.pending, id)
		}
	}
	f.mu.Unlock()
	for _, fn := range run {
		fn()
	}
	return len(run)
}
