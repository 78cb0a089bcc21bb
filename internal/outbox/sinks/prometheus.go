package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
	"github.com/JakeFAU/engagement-telemetry/internal/outbox"
)

// PrometheusSink exports engagement activity via Prometheus. It owns all
// collectors for analytics events, beacons, web vitals and read summaries.
type PrometheusSink struct {
	events      *prometheus.CounterVec
	beacons     *prometheus.CounterVec
	milestones  *prometheus.CounterVec
	impressions *prometheus.CounterVec
	vitals      *prometheus.HistogramVec
	readDwell   prometheus.Histogram
	readDepth   prometheus.Histogram

	vitalNames map[string]bool
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engagement_events_total",
			Help: "Analytics events delivered, partitioned by event name.",
		}, []string{"event_name"}),
		beacons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engagement_beacons_total",
			Help: "Beacons delivered, partitioned by endpoint.",
		}, []string{"endpoint"}),
		milestones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engagement_scroll_milestones_total",
			Help: "Scroll milestones reached, partitioned by percent.",
		}, []string{"percent"}),
		impressions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engagement_ab_impressions_total",
			Help: "A/B impressions, partitioned by dimension and variant.",
		}, []string{"dimension", "variant_id"}),
		vitals: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engagement_web_vital_value",
			Help:    "Reported web-vital values (milliseconds, CLS scaled by 1000).",
			Buckets: []float64{10, 25, 50, 100, 200, 500, 800, 1000, 1800, 2500, 4000, 10000},
		}, []string{"metric"}),
		readDwell: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engagement_read_dwell_seconds",
			Help:    "Dwell time of reported read sessions.",
			Buckets: []float64{2, 5, 10, 30, 60, 120, 300, 600, 1800, 7200},
		}),
		readDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engagement_read_scroll_depth_pct",
			Help:    "Maximum scroll depth of reported read sessions.",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
		vitalNames: make(map[string]bool, len(engagement.ObservedMetrics)),
	}
	for _, name := range engagement.ObservedMetrics {
		s.vitalNames[string(name)] = true
	}
	for _, collector := range []prometheus.Collector{
		s.events,
		s.beacons,
		s.milestones,
		s.impressions,
		s.vitals,
		s.readDwell,
		s.readDepth,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register engagement collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []outbox.Envelope) error {
	for _, env := range batch {
		switch env.Kind {
		case outbox.KindBeacon:
			s.beacons.WithLabelValues(env.Endpoint).Inc()
		case outbox.KindAnalytics:
			s.consumeEvent(env)
		}
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(env outbox.Envelope) {
	s.events.WithLabelValues(env.Name).Inc()
	switch {
	case env.Name == engagement.EventScrollMilestone:
		if pct, ok := numberParam(env.Params, "percent"); ok {
			s.milestones.WithLabelValues(strconv.Itoa(int(pct))).Inc()
		}
	case env.Name == engagement.EventABImpression:
		dimension, _ := env.Params["dimension"].(string)
		variant, ok := numberParam(env.Params, "variant_id")
		if dimension != "" && ok {
			s.impressions.WithLabelValues(dimension, strconv.Itoa(int(variant))).Inc()
		}
	case env.Name == engagement.EventArticleRead:
		if dwell, ok := numberParam(env.Params, "dwell_time_seconds"); ok {
			s.readDwell.Observe(dwell)
		}
		if depth, ok := numberParam(env.Params, "max_scroll_depth_pct"); ok {
			s.readDepth.Observe(depth)
		}
	case s.vitalNames[env.Name]:
		if value, ok := numberParam(env.Params, "value"); ok {
			s.vitals.WithLabelValues(env.Name).Observe(value)
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func numberParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
