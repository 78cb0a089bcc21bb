// Package replay runs recorded page signal traces through an engagement
// session on a virtual clock and reports every delivery the session made.
// It lets policy changes be checked against real traces without a browser
// or a collector.
package replay

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/engagement-telemetry/internal/clock/manual"
	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
	"github.com/JakeFAU/engagement-telemetry/internal/pagehost"
)

// Trace is one recorded page visit.
type Trace struct {
	SubjectID      string  `json:"subject_id"`
	Title          string  `json:"title,omitempty"`
	Category       string  `json:"category,omitempty"`
	ScrollTop      float64 `json:"scroll_top,omitempty"`
	DocumentHeight float64 `json:"document_height"`
	ViewportHeight float64 `json:"viewport_height"`
	Steps          []Step  `json:"steps"`
	// TeardownAtMS is when the page unmounted; zero means right after the last step.
	TeardownAtMS int64 `json:"teardown_at_ms,omitempty"`
}

// Step is one signal at an offset from mount.
type Step struct {
	AtMS   int64           `json:"at_ms"`
	Signal pagehost.Signal `json:"signal"`
}

// Delivery is one output of the session.
type Delivery struct {
	AtMS    int64           `json:"at_ms"`
	Kind    string          `json:"kind"`
	Method  string          `json:"method,omitempty"`
	Path    string          `json:"path,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
	Event   string          `json:"event,omitempty"`
	Params  map[string]any  `json:"params,omitempty"`
	Dropped bool            `json:"dropped,omitempty"`
}

// Report is the result of one replay.
type Report struct {
	Deliveries []Delivery       `json:"deliveries"`
	Rejected   []string         `json:"rejected,omitempty"`
	Summary    pagehost.Summary `json:"summary"`
}

// Decode reads a trace and checks its steps are in time order.
func Decode(r io.Reader) (Trace, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var t Trace
	if err := dec.Decode(&t); err != nil {
		return Trace{}, fmt.Errorf("decode trace: %w", err)
	}
	var last int64
	for i, s := range t.Steps {
		if s.AtMS < last {
			return Trace{}, fmt.Errorf("step %d at %dms precedes %dms", i, s.AtMS, last)
		}
		last = s.AtMS
	}
	if t.TeardownAtMS != 0 && t.TeardownAtMS < last {
		return Trace{}, fmt.Errorf("teardown at %dms precedes last step at %dms", t.TeardownAtMS, last)
	}
	return t, nil
}

var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Run replays t under policy. Invalid steps are listed in the report and
// skipped, the way the relay would answer them with an error.
func Run(t Trace, policy engagement.Policy, logger *zap.Logger) (Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := manual.New(epoch)
	frames := manual.NewFrames()
	rec := &recorder{clock: clock}

	reg, err := pagehost.NewRegistry(pagehost.Config{Policy: policy, IdleTimeout: 24 * time.Hour}, staticID("replay"),
		func(string) engagement.Outputs { return engagement.Outputs{Transport: rec, Sink: rec} },
		clock, frames, logger)
	if err != nil {
		return Report{}, err
	}
	page, err := reg.Mount(engagement.Subject{ID: t.SubjectID, Title: t.Title, Category: t.Category}, "replay",
		engagement.ScrollGeometry{ScrollTop: t.ScrollTop, DocumentHeight: t.DocumentHeight, ViewportHeight: t.ViewportHeight})
	if err != nil {
		return Report{}, fmt.Errorf("mount: %w", err)
	}

	var report Report
	advance := func(ms int64) {
		clock.AdvanceTo(epoch.Add(time.Duration(ms) * time.Millisecond))
		frames.Flush()
	}
	for i, s := range t.Steps {
		advance(s.AtMS)
		if _, err := reg.Deliver(page.ID(), s.Signal); err != nil {
			report.Rejected = append(report.Rejected, fmt.Sprintf("step %d: %v", i, err))
			continue
		}
		frames.Flush()
	}
	end := t.TeardownAtMS
	if end == 0 && len(t.Steps) > 0 {
		end = t.Steps[len(t.Steps)-1].AtMS
	}
	advance(end)
	summary, err := reg.Teardown(page.ID(), pagehost.ReasonClient)
	if err != nil {
		return Report{}, fmt.Errorf("teardown: %w", err)
	}
	report.Summary = summary
	report.Deliveries = rec.snapshot()
	return report, nil
}

type staticID string

func (s staticID) NewID() (string, error) { return string(s), nil }

type recorder struct {
	clock *manual.Clock

	mu  sync.Mutex
	out []Delivery
}

func (r *recorder) at() int64 {
	return r.clock.Now().Sub(epoch).Milliseconds()
}

func (r *recorder) add(d Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, d)
}

func (r *recorder) snapshot() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery{}, r.out...)
}

func (r *recorder) Fire(method, path string, body any) {
	d := Delivery{AtMS: r.at(), Kind: "fire", Method: method, Path: path}
	if body != nil {
		raw, err := json.Marshal(body)
		d.Body, d.Dropped = raw, err != nil
	}
	r.add(d)
}

func (r *recorder) Beacon(path string, payload any) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		r.add(Delivery{AtMS: r.at(), Kind: "beacon", Path: path, Dropped: true})
		return false
	}
	r.add(Delivery{AtMS: r.at(), Kind: "beacon", Path: path, Body: raw})
	return true
}

func (r *recorder) Track(evt engagement.AnalyticsEvent) {
	r.add(Delivery{AtMS: r.at(), Kind: "event", Event: evt.Name, Params: evt.Params})
}
