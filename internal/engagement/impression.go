package engagement

import "sync"

// ABImpressionReporter sends at most one impression per experiment dimension.
type ABImpressionReporter struct {
	subject Subject
	sink    AnalyticsSink

	mu   sync.Mutex
	sent map[Dimension]*OneShot
}

// NewABImpressionReporter builds a reporter for one session.
func NewABImpressionReporter(subject Subject, sink AnalyticsSink) *ABImpressionReporter {
	return &ABImpressionReporter{
		subject: subject,
		sink:    sink,
		sent:    make(map[Dimension]*OneShot),
	}
}

// Report records the assignment of variantID for dimension. A nil variant
// means the visitor is not enrolled. It returns true when an event was sent.
func (r *ABImpressionReporter) Report(variantID *int, dimension Dimension) bool {
	if variantID == nil || dimension == "" {
		return false
	}
	if !r.flag(dimension).MarkSent() {
		return false
	}
	if r.sink != nil {
		r.sink.Track(AnalyticsEvent{
			Name: EventABImpression,
			Params: map[string]any{
				"article_id": r.subject.ID,
				"variant_id": *variantID,
				"dimension":  string(dimension),
			},
		})
	}
	return true
}

// Reported reports whether dimension already produced an impression.
func (r *ABImpressionReporter) Reported(dimension Dimension) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	flag, ok := r.sent[dimension]
	return ok && flag.State() == StateSent
}

func (r *ABImpressionReporter) flag(dimension Dimension) *OneShot {
	r.mu.Lock()
	defer r.mu.Unlock()
	flag, ok := r.sent[dimension]
	if !ok {
		flag = &OneShot{}
		r.sent[dimension] = flag
	}
	return flag
}
