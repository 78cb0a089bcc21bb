package engagement

import (
	"errors"
	"fmt"
	"net/url"
)

// Subject identifies the content rendered by the page.
type Subject struct {
	// ID is the article slug or content identifier.
	ID string
	// Title and Category are passed through to analytics events untouched.
	Title    string
	Category string
}

// Valid reports whether the subject can be attributed in payloads.
func (s Subject) Valid() bool {
	return s.ID != ""
}

// ScrollGeometry is one scroll measurement, in CSS pixels.
type ScrollGeometry struct {
	ScrollTop      float64
	DocumentHeight float64
	ViewportHeight float64
}

// Visibility mirrors document.visibilityState.
type Visibility string

// Supported visibility states.
const (
	VisibilityVisible Visibility = "visible"
	VisibilityHidden  Visibility = "hidden"
)

// Milestone is a scroll-depth percentage threshold.
type Milestone int

// DefaultMilestones are the thresholds reported by ScrollDepthTracker.
var DefaultMilestones = []Milestone{25, 50, 75, 100}

// ReadMetricsPayload is the end-of-session engagement summary.
type ReadMetricsPayload struct {
	ArticleID         string `json:"article_id"`
	DwellTimeSeconds  int    `json:"dwell_time_seconds"`
	MaxScrollDepthPct int    `json:"max_scroll_depth_pct"`
}

// Dimension names an independent A/B experiment axis on a page.
type Dimension string

// Known experiment dimensions. Other values are accepted as-is.
const (
	DimensionTitle Dimension = "title"
	DimensionImage Dimension = "image"
)

// MetricName identifies a web-vital metric.
type MetricName string

// Web vitals observed by WebVitalsReporter.
const (
	MetricLCP  MetricName = "LCP"
	MetricFCP  MetricName = "FCP"
	MetricCLS  MetricName = "CLS"
	MetricTTFB MetricName = "TTFB"
	MetricINP  MetricName = "INP"
)

// Rating is the browser's coarse quality bucket for a metric value.
type Rating string

// Supported ratings.
const (
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs-improvement"
	RatingPoor             Rating = "poor"
)

// WebVitalMetric is one performance-observer callback payload.
type WebVitalMetric struct {
	Name   MetricName `json:"name"`
	ID     string     `json:"id"`
	Value  float64    `json:"value"`
	Delta  float64    `json:"delta"`
	Rating Rating     `json:"rating"`
}

// Validate rejects metrics the reporter cannot forward.
func (m WebVitalMetric) Validate() error {
	if m.Name == "" {
		return errors.New("metric name is required")
	}
	switch m.Rating {
	case "", RatingGood, RatingNeedsImprovement, RatingPoor:
	default:
		return fmt.Errorf("unknown rating %q", m.Rating)
	}
	return nil
}

// Analytics event names emitted by the trackers.
const (
	EventArticleView     = "article_view"
	EventScrollMilestone = "scroll_milestone"
	EventArticleRead     = "article_read"
	EventABImpression    = "ab_impression"
)

// AnalyticsEvent is one record for the generic analytics integration.
type AnalyticsEvent struct {
	Name   string         `json:"event_name"`
	Params map[string]any `json:"params"`
}

// Backend endpoints.
const (
	ReadMetricsPath = "/analytics/read-metrics/"
)

// IncrementViewsPath returns the view-count endpoint for a subject.
func IncrementViewsPath(subjectID string) string {
	return fmt.Sprintf("/articles/%s/increment_views/", url.PathEscape(subjectID))
}
