package engagement

import (
	"math"
	"slices"
	"sync"
)

// ScrollDepthTracker maintains the session's maximum scroll depth and raises
// one notification per milestone crossed.
type ScrollDepthTracker struct {
	viewport   Viewport
	frames     FrameScheduler
	milestones []Milestone

	mu           sync.Mutex
	maxDepth     int
	crossed      map[Milestone]bool
	listeners    []func(Milestone)
	cancelFrame  func()
	framePending bool
	frameGen     uint64
	stopped      bool
	subs         subscriptions
}

// NewScrollDepthTracker builds a tracker; it observes nothing until Start.
func NewScrollDepthTracker(viewport Viewport, frames FrameScheduler, milestones []Milestone) *ScrollDepthTracker {
	p := Policy{Milestones: milestones}
	return &ScrollDepthTracker{
		viewport:   viewport,
		frames:     frames,
		milestones: p.sortedMilestones(),
		crossed:    make(map[Milestone]bool, len(milestones)),
	}
}

// OnMilestone registers fn for milestone notifications. Listeners registered
// after a milestone was crossed do not see it.
func (t *ScrollDepthTracker) OnMilestone(fn func(Milestone)) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Start subscribes to scroll notifications and takes an initial measurement,
// so a document that fits the viewport reports 100 without scrolling.
func (t *ScrollDepthTracker) Start(scroll SignalSource[struct{}]) {
	if scroll != nil {
		t.subs.add(scroll.Subscribe(func(struct{}) { t.handleScroll() }))
	}
	t.Measure()
}

// Stop releases the scroll subscription and any pending frame.
func (t *ScrollDepthTracker) Stop() {
	t.subs.release()
	t.mu.Lock()
	t.stopped = true
	cancel := t.cancelFrame
	t.cancelFrame = nil
	t.framePending = false
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// MaxDepth returns the high-water mark, 0..100.
func (t *ScrollDepthTracker) MaxDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxDepth
}

// Crossed returns the milestones reported so far, ascending.
func (t *ScrollDepthTracker) Crossed() []Milestone {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Milestone, 0, len(t.crossed))
	for _, m := range t.milestones {
		if t.crossed[m] {
			out = append(out, m)
		}
	}
	return out
}

func (t *ScrollDepthTracker) handleScroll() {
	t.mu.Lock()
	if t.stopped || t.framePending {
		t.mu.Unlock()
		return
	}
	if t.frames == nil {
		t.mu.Unlock()
		t.Measure()
		return
	}
	t.framePending = true
	t.frameGen++
	gen := t.frameGen
	t.mu.Unlock()

	cancel := t.frames.RequestFrame(func() {
		t.mu.Lock()
		if gen != t.frameGen {
			t.mu.Unlock()
			return
		}
		t.framePending = false
		t.cancelFrame = nil
		stopped := t.stopped
		t.mu.Unlock()
		if !stopped {
			t.Measure()
		}
	})

	t.mu.Lock()
	if t.framePending && gen == t.frameGen {
		t.cancelFrame = cancel
	}
	t.mu.Unlock()
}

// Measure reads the viewport once and updates depth and milestones.
func (t *ScrollDepthTracker) Measure() {
	if t.viewport == nil {
		return
	}
	depth := ScrollDepth(t.viewport.Measure())

	t.mu.Lock()
	if depth > t.maxDepth {
		t.maxDepth = depth
	}
	var fired []Milestone
	for _, m := range t.milestones {
		if t.crossed[m] || t.maxDepth < int(m) {
			continue
		}
		t.crossed[m] = true
		fired = append(fired, m)
	}
	listeners := slices.Clone(t.listeners)
	t.mu.Unlock()

	for _, m := range fired {
		for _, fn := range listeners {
			fn(m)
		}
	}
}

// ScrollDepth converts a geometry into a percentage in [0,100].
func ScrollDepth(g ScrollGeometry) int {
	scrollable := g.DocumentHeight - g.ViewportHeight
	if scrollable <= 0 {
		return 100
	}
	pct := math.Round(g.ScrollTop / scrollable * 100)
	switch {
	case math.IsNaN(pct) || pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return int(pct)
	}
}
