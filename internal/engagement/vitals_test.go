package engagement_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
)

func TestSinkValue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   engagement.MetricName
		value  float64
		expect int64
	}{
		{name: engagement.MetricCLS, value: 0.0423, expect: 42},
		{name: engagement.MetricCLS, value: 0.0005, expect: 1},
		{name: engagement.MetricLCP, value: 2450.6, expect: 2451},
		{name: engagement.MetricINP, value: 88.2, expect: 88},
		{name: engagement.MetricTTFB, value: 0, expect: 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.expect, engagement.SinkValue(tc.name, tc.value), "%s %v", tc.name, tc.value)
	}
}

func TestWebVitalsForwardsObservedMetrics(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	source := engagement.NewSignal[engagement.WebVitalMetric]("vitals")
	reporter := engagement.NewWebVitalsReporter(sink, nil)
	reporter.Start(source)

	source.Publish(engagement.WebVitalMetric{
		Name:   engagement.MetricCLS,
		ID:     "v3-1",
		Value:  0.0423,
		Delta:  0.0123,
		Rating: engagement.RatingGood,
	})

	events := sink.Named("CLS")
	require.Len(t, events, 1)
	require.Equal(t, map[string]any{
		"value":           int64(42),
		"delta":           int64(12),
		"metric_id":       "v3-1",
		"metric_rating":   "good",
		"non_interaction": true,
	}, events[0].Params)
}

func TestWebVitalsDropsUnknownAndInvalidMetrics(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	reporter := engagement.NewWebVitalsReporter(sink, nil)

	reporter.Forward(engagement.WebVitalMetric{Name: "FID", Value: 12})
	reporter.Forward(engagement.WebVitalMetric{Value: 12})
	reporter.Forward(engagement.WebVitalMetric{Name: engagement.MetricLCP, Rating: "meh"})

	require.Empty(t, sink.Named("FID"))
	require.Empty(t, sink.Named(""))
	require.Empty(t, sink.Named("LCP"))
}

func TestWebVitalsStopReleasesSubscription(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	source := engagement.NewSignal[engagement.WebVitalMetric]("vitals")
	reporter := engagement.NewWebVitalsReporter(sink, nil)
	reporter.Start(source)
	require.Equal(t, 1, source.Len())

	reporter.Stop()
	require.Equal(t, 0, source.Len())
	source.Publish(engagement.WebVitalMetric{Name: engagement.MetricFCP, Value: 900})
	require.Empty(t, sink.Named("FCP"))
}
