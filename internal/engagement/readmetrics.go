package engagement

import (
	"go.uber.org/zap"
)

// Trigger names the event that ended a read session.
type Trigger string

// Terminal triggers for ReadMetricsCollector.
const (
	TriggerHidden   Trigger = "visibility_hidden"
	TriggerTeardown Trigger = "teardown"
	TriggerUnload   Trigger = "unload"
)

// ReadMetricsCollector beacons one ReadMetricsPayload per session when the
// page is hidden, unloaded, or torn down, whichever comes first.
type ReadMetricsCollector struct {
	subject   Subject
	scroll    *ScrollDepthTracker
	dwell     DwellTimer
	policy    Policy
	transport Transport
	sink      AnalyticsSink
	logger    *zap.Logger

	state OneShot
	subs  subscriptions
}

// NewReadMetricsCollector composes a scroll tracker and dwell timer.
func NewReadMetricsCollector(
	subject Subject,
	scroll *ScrollDepthTracker,
	dwell DwellTimer,
	policy Policy,
	transport Transport,
	sink AnalyticsSink,
	logger *zap.Logger,
) *ReadMetricsCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadMetricsCollector{
		subject:   subject,
		scroll:    scroll,
		dwell:     dwell,
		policy:    policy,
		transport: transport,
		sink:      sink,
		logger:    logger,
	}
}

// Start registers the visibility and unload triggers. Either source may be nil.
func (c *ReadMetricsCollector) Start(visibility SignalSource[Visibility], unload SignalSource[struct{}]) {
	if visibility != nil {
		c.subs.add(visibility.Subscribe(func(v Visibility) {
			if v == VisibilityHidden {
				c.Finalize(TriggerHidden)
			}
		}))
	}
	if unload != nil {
		c.subs.add(unload.Subscribe(func(struct{}) {
			c.Finalize(TriggerUnload)
		}))
	}
}

// Stop is the teardown trigger: it makes the last send attempt and then
// releases the subscriptions.
func (c *ReadMetricsCollector) Stop() {
	c.Finalize(TriggerTeardown)
	c.subs.release()
}

// State reports the delivery state.
func (c *ReadMetricsCollector) State() State {
	return c.state.State()
}

// Snapshot computes the payload as it would be sent now.
func (c *ReadMetricsCollector) Snapshot() ReadMetricsPayload {
	depth := 0
	if c.scroll != nil {
		depth = c.scroll.MaxDepth()
	}
	return ReadMetricsPayload{
		ArticleID:         c.subject.ID,
		DwellTimeSeconds:  c.dwell.ElapsedSeconds(),
		MaxScrollDepthPct: depth,
	}
}

// Finalize settles the session once. It returns true only for the call that
// transmitted the payload.
func (c *ReadMetricsCollector) Finalize(trigger Trigger) bool {
	if c.state.Settled() {
		return false
	}
	if !c.subject.Valid() {
		c.state.MarkSuppressed()
		return false
	}
	payload := c.Snapshot()
	if c.policy.IsOutlier(payload.DwellTimeSeconds, payload.MaxScrollDepthPct) {
		if c.state.MarkSuppressed() {
			c.logger.Debug("read metrics suppressed",
				zap.String("trigger", string(trigger)),
				zap.Int("dwell_seconds", payload.DwellTimeSeconds),
				zap.Int("depth_pct", payload.MaxScrollDepthPct),
			)
		}
		return false
	}
	if !c.state.MarkSent() {
		return false
	}
	if c.transport != nil && !c.transport.Beacon(ReadMetricsPath, payload) {
		c.logger.Debug("read metrics beacon rejected", zap.String("subject_id", payload.ArticleID))
	}
	if c.sink != nil {
		c.sink.Track(AnalyticsEvent{
			Name: EventArticleRead,
			Params: map[string]any{
				"article_id":           payload.ArticleID,
				"title":                c.subject.Title,
				"category":             c.subject.Category,
				"dwell_time_seconds":   payload.DwellTimeSeconds,
				"max_scroll_depth_pct": payload.MaxScrollDepthPct,
				"trigger":              string(trigger),
			},
		})
	}
	return true
}
