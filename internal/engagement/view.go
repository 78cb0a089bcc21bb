package engagement

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ViewCounter sends one view increment per session, after a bounce-filter
// delay measured from session start. Cancel before the delay and nothing is
// sent.
type ViewCounter struct {
	clock     Clock
	transport Transport
	sink      AnalyticsSink
	start     time.Time
	delay     time.Duration
	logger    *zap.Logger

	mu    sync.Mutex
	timer Timer
	state OneShot
}

// NewViewCounter builds a counter for a session that started at start.
func NewViewCounter(
	clock Clock,
	transport Transport,
	sink AnalyticsSink,
	start time.Time,
	delay time.Duration,
	logger *zap.Logger,
) *ViewCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewCounter{
		clock:     clock,
		transport: transport,
		sink:      sink,
		start:     start,
		delay:     delay,
		logger:    logger,
	}
}

// Activate schedules the deferred view signal for subject. Calls after the
// first, or for a subject without an ID, are no-ops.
func (v *ViewCounter) Activate(subject Subject) {
	if !subject.Valid() || v.clock == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.timer != nil || v.state.Settled() {
		return
	}
	remaining := v.delay - v.clock.Now().Sub(v.start)
	if remaining < 0 {
		remaining = 0
	}
	v.timer = v.clock.AfterFunc(remaining, func() { v.fire(subject) })
}

// Cancel stops a pending signal. A view that already fired is unaffected.
func (v *ViewCounter) Cancel() {
	v.mu.Lock()
	timer := v.timer
	v.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
	if v.state.MarkSuppressed() {
		v.logger.Debug("view suppressed before bounce delay")
	}
}

// State reports the delivery state.
func (v *ViewCounter) State() State {
	return v.state.State()
}

func (v *ViewCounter) fire(subject Subject) {
	if !v.state.MarkSent() {
		return
	}
	if v.transport != nil {
		v.transport.Fire(http.MethodPost, IncrementViewsPath(subject.ID), nil)
	}
	if v.sink != nil {
		v.sink.Track(AnalyticsEvent{
			Name: EventArticleView,
			Params: map[string]any{
				"article_id": subject.ID,
				"title":      subject.Title,
				"category":   subject.Category,
			},
		})
	}
	v.logger.Debug("view counted", zap.String("subject_id", subject.ID))
}
