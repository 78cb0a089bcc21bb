package engagement_test

import (
	"encoding/json"
	"sync"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
)

type fireCall struct {
	method string
	path   string
}

type beaconCall struct {
	path    string
	payload engagement.ReadMetricsPayload
}

type recordingTransport struct {
	mu      sync.Mutex
	fires   []fireCall
	beacons []beaconCall
}

func (r *recordingTransport) Fire(method, path string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fires = append(r.fires, fireCall{method: method, path: path})
}

func (r *recordingTransport) Beacon(path string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	var decoded engagement.ReadMetricsPayload
	if err := json.Unmarshal(data, &decoded); err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beacons = append(r.beacons, beaconCall{path: path, payload: decoded})
	return true
}

func (r *recordingTransport) Fires() []fireCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fireCall(nil), r.fires...)
}

func (r *recordingTransport) Beacons() []beaconCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]beaconCall(nil), r.beacons...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []engagement.AnalyticsEvent
}

func (s *recordingSink) Track(evt engagement.AnalyticsEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *recordingSink) Named(name string) []engagement.AnalyticsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []engagement.AnalyticsEvent
	for _, evt := range s.events {
		if evt.Name == name {
			out = append(out, evt)
		}
	}
	return out
}

type fakeViewport struct {
	mu sync.Mutex
	g  engagement.ScrollGeometry
}

func newViewport(scrollTop, documentHeight, viewportHeight float64) *fakeViewport {
	return &fakeViewport{g: engagement.ScrollGeometry{
		ScrollTop:      scrollTop,
		DocumentHeight: documentHeight,
		ViewportHeight: viewportHeight,
	}}
}

func (v *fakeViewport) Measure() engagement.ScrollGeometry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.g
}

func (v *fakeViewport) ScrollTo(top float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.g.ScrollTop = top
}

func intPtr(v int) *int { return &v }
