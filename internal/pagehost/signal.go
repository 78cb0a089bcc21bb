package pagehost

import (
	"errors"
	"fmt"
	"math"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
)

// SignalType names a page signal.
type SignalType string

// Supported signal types.
const (
	SignalScroll     SignalType = "scroll"
	SignalVisibility SignalType = "visibility"
	SignalUnload     SignalType = "unload"
	SignalVital      SignalType = "vital"
	SignalImpression SignalType = "impression"
)

// ErrInvalidSignal wraps every rejection of a malformed signal.
var ErrInvalidSignal = errors.New("invalid signal")

// Signal is one message from a page.
type Signal struct {
	Type SignalType `json:"type"`

	// Scroll geometry, in CSS pixels.
	ScrollTop      float64 `json:"scroll_top,omitempty"`
	DocumentHeight float64 `json:"document_height,omitempty"`
	ViewportHeight float64 `json:"viewport_height,omitempty"`

	// State is the document visibility state.
	State engagement.Visibility `json:"state,omitempty"`

	// Web-vital fields.
	Name   engagement.MetricName `json:"name,omitempty"`
	ID     string                `json:"id,omitempty"`
	Value  float64               `json:"value,omitempty"`
	Delta  float64               `json:"delta,omitempty"`
	Rating engagement.Rating     `json:"rating,omitempty"`

	// Impression fields. A null variant means the page holds no assignment.
	Dimension engagement.Dimension `json:"dimension,omitempty"`
	VariantID *int                 `json:"variant_id,omitempty"`
}

// Geometry returns the scroll fields as a measurement.
func (s Signal) Geometry() engagement.ScrollGeometry {
	return engagement.ScrollGeometry{
		ScrollTop:      s.ScrollTop,
		DocumentHeight: s.DocumentHeight,
		ViewportHeight: s.ViewportHeight,
	}
}

// Vital returns the web-vital fields as a metric.
func (s Signal) Vital() engagement.WebVitalMetric {
	return engagement.WebVitalMetric{
		Name:   s.Name,
		ID:     s.ID,
		Value:  s.Value,
		Delta:  s.Delta,
		Rating: s.Rating,
	}
}

// Validate rejects signals a Page cannot apply.
func (s Signal) Validate() error {
	switch s.Type {
	case SignalScroll:
		return ValidateGeometry(s.Geometry())
	case SignalVisibility:
		if s.State != engagement.VisibilityVisible && s.State != engagement.VisibilityHidden {
			return fmt.Errorf("%w: visibility state %q", ErrInvalidSignal, s.State)
		}
	case SignalUnload:
	case SignalVital:
		if err := s.Vital().Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignal, err)
		}
	case SignalImpression:
		if s.Dimension == "" {
			return fmt.Errorf("%w: impression requires dimension", ErrInvalidSignal)
		}
	case "":
		return fmt.Errorf("%w: type is required", ErrInvalidSignal)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSignal, s.Type)
	}
	return nil
}

// ValidateGeometry rejects negative offsets and empty viewports. A document
// no taller than its viewport is valid and measures as fully read.
func ValidateGeometry(g engagement.ScrollGeometry) error {
	for _, v := range []float64{g.ScrollTop, g.DocumentHeight, g.ViewportHeight} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: scroll geometry must be finite", ErrInvalidSignal)
		}
	}
	if g.ScrollTop < 0 || g.DocumentHeight < 0 {
		return fmt.Errorf("%w: negative scroll geometry", ErrInvalidSignal)
	}
	if g.ViewportHeight <= 0 {
		return fmt.Errorf("%w: viewport height must be positive", ErrInvalidSignal)
	}
	return nil
}
