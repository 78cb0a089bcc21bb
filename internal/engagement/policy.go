package engagement

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Policy holds the tunable thresholds of the trackers.
type Policy struct {
	// ViewDelay is the bounce filter before a view counts.
	ViewDelay time.Duration
	// BounceMinDwellSeconds and BounceMinDepthPct form the bounce floor: a
	// session below both is not reported.
	BounceMinDwellSeconds int
	BounceMinDepthPct     int
	// StaleCeilingSeconds suppresses sessions with longer dwell times.
	StaleCeilingSeconds int
	// Milestones are the scroll thresholds, reported in ascending order.
	Milestones []Milestone
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		ViewDelay:             2 * time.Second,
		BounceMinDwellSeconds: 2,
		BounceMinDepthPct:     10,
		StaleCeilingSeconds:   7200,
		Milestones:            append([]Milestone(nil), DefaultMilestones...),
	}
}

// Validate checks the policy is internally consistent.
func (p Policy) Validate() error {
	if p.ViewDelay < 0 {
		return errors.New("view delay must be >= 0")
	}
	if p.BounceMinDwellSeconds < 0 || p.BounceMinDepthPct < 0 || p.BounceMinDepthPct > 100 {
		return errors.New("bounce floor out of range")
	}
	if p.StaleCeilingSeconds <= p.BounceMinDwellSeconds {
		return fmt.Errorf("stale ceiling %ds must exceed bounce dwell %ds", p.StaleCeilingSeconds, p.BounceMinDwellSeconds)
	}
	for _, m := range p.Milestones {
		if m <= 0 || m > 100 {
			return fmt.Errorf("milestone %d out of range", m)
		}
	}
	return nil
}

// IsOutlier reports whether a finished session should be suppressed.
func (p Policy) IsOutlier(dwellSeconds, depthPct int) bool {
	if dwellSeconds < p.BounceMinDwellSeconds && depthPct < p.BounceMinDepthPct {
		return true
	}
	return dwellSeconds > p.StaleCeilingSeconds
}

func (p Policy) sortedMilestones() []Milestone {
	out := append([]Milestone(nil), p.Milestones...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
