package engagement

import (
	"math"

	"go.uber.org/zap"
)

// ObservedMetrics are the web vitals forwarded by WebVitalsReporter.
var ObservedMetrics = []MetricName{MetricLCP, MetricFCP, MetricCLS, MetricTTFB, MetricINP}

// clsScale converts the fractional layout-shift score to an integer.
const clsScale = 1000

// WebVitalsReporter forwards performance-observer callbacks to the analytics
// sink. It does not deduplicate: the browser reports each metric at most once.
type WebVitalsReporter struct {
	sink     AnalyticsSink
	logger   *zap.Logger
	observed map[MetricName]bool
	subs     subscriptions
}

// NewWebVitalsReporter builds a reporter.
func NewWebVitalsReporter(sink AnalyticsSink, logger *zap.Logger) *WebVitalsReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	observed := make(map[MetricName]bool, len(ObservedMetrics))
	for _, name := range ObservedMetrics {
		observed[name] = true
	}
	return &WebVitalsReporter{sink: sink, logger: logger, observed: observed}
}

// Start subscribes to metric callbacks.
func (r *WebVitalsReporter) Start(metrics SignalSource[WebVitalMetric]) {
	if metrics == nil {
		return
	}
	r.subs.add(metrics.Subscribe(r.Forward))
}

// Stop releases the subscription.
func (r *WebVitalsReporter) Stop() {
	r.subs.release()
}

// Forward sends one metric to the sink. Unknown or invalid metrics are dropped.
func (r *WebVitalsReporter) Forward(m WebVitalMetric) {
	if err := m.Validate(); err != nil {
		r.logger.Debug("dropping web vital", zap.Error(err))
		return
	}
	if !r.observed[m.Name] || r.sink == nil {
		return
	}
	r.sink.Track(VitalEvent(m))
}

// VitalEvent converts a metric into the sink's integer-valued event.
func VitalEvent(m WebVitalMetric) AnalyticsEvent {
	return AnalyticsEvent{
		Name: string(m.Name),
		Params: map[string]any{
			"value":           SinkValue(m.Name, m.Value),
			"delta":           SinkValue(m.Name, m.Delta),
			"metric_id":       m.ID,
			"metric_rating":   string(m.Rating),
			"non_interaction": true,
		},
	}
}

// SinkValue rounds v to an integer, rescaling layout shift first.
func SinkValue(name MetricName, v float64) int64 {
	if name == MetricCLS {
		v *= clsScale
	}
	return int64(math.Round(v))
}
