package pagehost

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/engagement-telemetry/internal/clock/manual"
	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
)

var epoch = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type sequentialIDs struct {
	n atomic.Int64
}

func (s *sequentialIDs) NewID() (string, error) {
	return fmt.Sprintf("sess-%d", s.n.Add(1)), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) { return "", fmt.Errorf("entropy exhausted") }

type delivery struct {
	sessionID string
	kind      string
	path      string
	body      string
	event     engagement.AnalyticsEvent
}

// recorder captures every delivery across sessions.
type recorder struct {
	mu  sync.Mutex
	all []delivery
}

func (r *recorder) outputs(sessionID string) engagement.Outputs {
	s := &scopedRecorder{r: r, sessionID: sessionID}
	return engagement.Outputs{Transport: s, Sink: s}
}

func (r *recorder) add(d delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, d)
}

func (r *recorder) kind(kind string) []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []delivery
	for _, d := range r.all {
		if d.kind == kind {
			out = append(out, d)
		}
	}
	return out
}

func (r *recorder) events(name string) []delivery {
	var out []delivery
	for _, d := range r.kind("track") {
		if d.event.Name == name {
			out = append(out, d)
		}
	}
	return out
}

type scopedRecorder struct {
	r         *recorder
	sessionID string
}

func (s *scopedRecorder) Fire(_, path string, _ any) {
	s.r.add(delivery{sessionID: s.sessionID, kind: "fire", path: path})
}

func (s *scopedRecorder) Beacon(path string, payload any) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	s.r.add(delivery{sessionID: s.sessionID, kind: "beacon", path: path, body: string(raw)})
	return true
}

func (s *scopedRecorder) Track(evt engagement.AnalyticsEvent) {
	s.r.add(delivery{sessionID: s.sessionID, kind: "track", event: evt})
}

type harness struct {
	clock    *manual.Clock
	frames   *manual.Frames
	rec      *recorder
	registry *Registry
}

func newHarness(cfg Config) (*harness, error) {
	if cfg.Policy.StaleCeilingSeconds == 0 {
		cfg.Policy = engagement.DefaultPolicy()
	}
	h := &harness{
		clock:  manual.New(epoch),
		frames: manual.NewFrames(),
		rec:    &recorder{},
	}
	reg, err := NewRegistry(cfg, &sequentialIDs{}, h.rec.outputs, h.clock, h.frames, nil)
	if err != nil {
		return nil, err
	}
	h.registry = reg
	return h, nil
}

var articleGeometry = engagement.ScrollGeometry{DocumentHeight: 2100, ViewportHeight: 100}

var launchDay = engagement.Subject{ID: "launch-day", Title: "Launch Day", Category: "news"}

func intPtr(v int) *int { return &v }
