package engagement

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Environment bundles the browser capabilities a session observes. Nil signal
// sources are treated as signals that never fire.
type Environment struct {
	Clock      Clock
	Viewport   Viewport
	Frames     FrameScheduler
	Scroll     SignalSource[struct{}]
	Visibility SignalSource[Visibility]
	Unload     SignalSource[struct{}]
	Vitals     SignalSource[WebVitalMetric]
}

// Outputs are the delivery channels shared by all trackers of a session.
type Outputs struct {
	Transport Transport
	Sink      AnalyticsSink
}

// Session is one engagement session: the lifetime of a mounted page.
type Session struct {
	id      string
	subject Subject
	start   time.Time
	logger  *zap.Logger

	scroll      *ScrollDepthTracker
	dwell       DwellTimer
	views       *ViewCounter
	reads       *ReadMetricsCollector
	impressions *ABImpressionReporter
	vitals      *WebVitalsReporter

	mu       sync.Mutex
	torn     bool
	tornOnce sync.Once
}

// Mount creates a session for subject, subscribes every tracker, and
// schedules the view signal. The session starts at env.Clock.Now().
func Mount(id string, subject Subject, env Environment, out Outputs, policy Policy, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session_id", id), zap.String("subject_id", subject.ID))
	var start time.Time
	if env.Clock != nil {
		start = env.Clock.Now()
	}

	s := &Session{
		id:      id,
		subject: subject,
		start:   start,
		logger:  logger,
		dwell:   NewDwellTimer(env.Clock, start),
	}
	s.scroll = NewScrollDepthTracker(env.Viewport, env.Frames, policy.Milestones)
	s.views = NewViewCounter(env.Clock, out.Transport, out.Sink, start, policy.ViewDelay, logger)
	s.reads = NewReadMetricsCollector(subject, s.scroll, s.dwell, policy, out.Transport, out.Sink, logger)
	s.impressions = NewABImpressionReporter(subject, out.Sink)
	s.vitals = NewWebVitalsReporter(out.Sink, logger)

	if out.Sink != nil && subject.Valid() {
		sink := out.Sink
		s.scroll.OnMilestone(func(m Milestone) {
			sink.Track(AnalyticsEvent{
				Name: EventScrollMilestone,
				Params: map[string]any{
					"article_id": subject.ID,
					"percent":    int(m),
				},
			})
		})
	}

	s.scroll.Start(env.Scroll)
	s.reads.Start(env.Visibility, env.Unload)
	s.vitals.Start(env.Vitals)
	s.views.Activate(subject)
	logger.Debug("engagement session mounted")
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Subject returns the mounted subject.
func (s *Session) Subject() Subject { return s.subject }

// StartTime returns when the session was mounted.
func (s *Session) StartTime() time.Time { return s.start }

// Scroll exposes the session's scroll tracker.
func (s *Session) Scroll() *ScrollDepthTracker { return s.scroll }

// Dwell exposes the session's dwell timer.
func (s *Session) Dwell() DwellTimer { return s.dwell }

// Views exposes the session's view counter.
func (s *Session) Views() *ViewCounter { return s.views }

// Reads exposes the session's read-metrics collector.
func (s *Session) Reads() *ReadMetricsCollector { return s.reads }

// Active reports whether Teardown has not run yet.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.torn
}

// ReportImpression forwards a variant assignment. It is a no-op once the
// session is torn down.
func (s *Session) ReportImpression(variantID *int, dimension Dimension) bool {
	if !s.Active() {
		return false
	}
	return s.impressions.Report(variantID, dimension)
}

// Teardown ends the session: the pending view is cancelled, the read
// collector gets its last send attempt, and every subscription and timer is
// released. It is safe to call more than once.
func (s *Session) Teardown() {
	s.tornOnce.Do(func() {
		s.mu.Lock()
		s.torn = true
		s.mu.Unlock()

		s.views.Cancel()
		s.reads.Stop()
		s.scroll.Stop()
		s.vitals.Stop()
		s.logger.Debug("engagement session torn down",
			zap.String("view_state", s.views.State().String()),
			zap.String("read_state", s.reads.State().String()),
		)
	})
}
