package pagehost

import (
	"sync"
	"time"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
)

// Page bridges one remote page to its engagement session.
type Page struct {
	id        string
	transport string
	clock     engagement.Clock

	scroll     *engagement.Signal[struct{}]
	visibility *engagement.Signal[engagement.Visibility]
	unload     *engagement.Signal[struct{}]
	vitals     *engagement.Signal[engagement.WebVitalMetric]

	mu       sync.Mutex
	geometry engagement.ScrollGeometry
	lastSeen time.Time
	attached int

	session *engagement.Session
}

func newPage(id, transport string, clock engagement.Clock, initial engagement.ScrollGeometry) *Page {
	return &Page{
		id:         id,
		transport:  transport,
		clock:      clock,
		scroll:     engagement.NewSignal[struct{}]("scroll"),
		visibility: engagement.NewSignal[engagement.Visibility]("visibilitychange"),
		unload:     engagement.NewSignal[struct{}]("pagehide"),
		vitals:     engagement.NewSignal[engagement.WebVitalMetric]("web-vitals"),
		geometry:   initial,
		lastSeen:   clock.Now(),
	}
}

// ID returns the session identifier.
func (p *Page) ID() string { return p.id }

// Transport returns how the page is connected ("ws" or "rest").
func (p *Page) Transport() string { return p.transport }

// Session returns the mounted engagement session.
func (p *Page) Session() *engagement.Session { return p.session }

// Measure implements engagement.Viewport with the latest reported geometry.
func (p *Page) Measure() engagement.ScrollGeometry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.geometry
}

// LastSeen returns when the page last delivered a signal.
func (p *Page) LastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// Touch records activity without a signal, such as a WebSocket pong.
func (p *Page) Touch() {
	now := p.clock.Now()
	p.mu.Lock()
	p.lastSeen = now
	p.mu.Unlock()
}

// Attach marks the page as held open by a live connection. Attached pages
// are never reaped as idle. The returned func detaches and counts as activity.
func (p *Page) Attach() (detach func()) {
	p.mu.Lock()
	p.attached++
	p.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.attached--
			p.mu.Unlock()
			p.Touch()
		})
	}
}

// Attached reports whether a connection currently holds the page open.
func (p *Page) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached > 0
}

func (p *Page) idleSince(cutoff time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached == 0 && p.lastSeen.Before(cutoff)
}

// Deliver applies one signal. Impressions report whether they were recorded;
// every other signal reports true once applied.
func (p *Page) Deliver(sig Signal) (bool, error) {
	if err := sig.Validate(); err != nil {
		return false, err
	}
	p.Touch()
	switch sig.Type {
	case SignalScroll:
		p.mu.Lock()
		p.geometry = sig.Geometry()
		p.mu.Unlock()
		p.scroll.Publish(struct{}{})
	case SignalVisibility:
		p.visibility.Publish(sig.State)
	case SignalUnload:
		p.unload.Publish(struct{}{})
	case SignalVital:
		p.vitals.Publish(sig.Vital())
	case SignalImpression:
		return p.session.ReportImpression(sig.VariantID, sig.Dimension), nil
	}
	return true, nil
}

func (p *Page) environment(frames engagement.FrameScheduler) engagement.Environment {
	return engagement.Environment{
		Clock:      p.clock,
		Viewport:   p,
		Frames:     frames,
		Scroll:     p.scroll,
		Visibility: p.visibility,
		Unload:     p.unload,
		Vitals:     p.vitals,
	}
}

// Summary is the state of a session when it was torn down.
type Summary struct {
	SessionID         string `json:"session_id"`
	SubjectID         string `json:"subject_id"`
	ViewState         string `json:"view_state"`
	ReadState         string `json:"read_state"`
	MaxScrollDepthPct int    `json:"max_scroll_depth_pct"`
	DwellTimeSeconds  int    `json:"dwell_time_seconds"`
}

func (p *Page) summary() Summary {
	s := p.session
	return Summary{
		SessionID:         p.id,
		SubjectID:         s.Subject().ID,
		ViewState:         s.Views().State().String(),
		ReadState:         s.Reads().State().String(),
		MaxScrollDepthPct: s.Scroll().MaxDepth(),
		DwellTimeSeconds:  s.Dwell().ElapsedSeconds(),
	}
}
