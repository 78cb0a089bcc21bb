package engagement

import (
	"math"
	"time"
)

// DwellTimer measures wall-clock time since the session started.
type DwellTimer struct {
	clock Clock
	start time.Time
}

// NewDwellTimer anchors a timer at start.
func NewDwellTimer(clock Clock, start time.Time) DwellTimer {
	return DwellTimer{clock: clock, start: start}
}

// Start returns the anchor timestamp.
func (d DwellTimer) Start() time.Time {
	return d.start
}

// ElapsedSeconds returns the rounded whole seconds since start, never negative.
func (d DwellTimer) ElapsedSeconds() int {
	if d.clock == nil {
		return 0
	}
	elapsed := d.clock.Now().Sub(d.start)
	if elapsed <= 0 {
		return 0
	}
	return int(math.Round(elapsed.Seconds()))
}
