package engagement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/engagement-telemetry/internal/clock/manual"
	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
)

type readFixture struct {
	clock      *manual.Clock
	viewport   *fakeViewport
	scroll     *engagement.ScrollDepthTracker
	transport  *recordingTransport
	sink       *recordingSink
	collector  *engagement.ReadMetricsCollector
	visibility *engagement.Signal[engagement.Visibility]
	unload     *engagement.Signal[struct{}]
}

func newReadFixture(subject engagement.Subject) *readFixture {
	clk := manual.New(time.Unix(1_700_000_000, 0))
	viewport := newViewport(0, 1100, 100)
	scroll := engagement.NewScrollDepthTracker(viewport, nil, engagement.DefaultMilestones)
	scroll.Start(nil)
	f := &readFixture{
		clock:      clk,
		viewport:   viewport,
		scroll:     scroll,
		transport:  &recordingTransport{},
		sink:       &recordingSink{},
		visibility: engagement.NewSignal[engagement.Visibility]("visibility"),
		unload:     engagement.NewSignal[struct{}]("unload"),
	}
	f.collector = engagement.NewReadMetricsCollector(
		subject,
		scroll,
		engagement.NewDwellTimer(clk, clk.Now()),
		engagement.DefaultPolicy(),
		f.transport,
		f.sink,
		nil,
	)
	f.collector.Start(f.visibility, f.unload)
	return f
}

func (f *readFixture) engage(dwellSeconds, depthPct int) {
	f.viewport.ScrollTo(float64(depthPct * 10))
	f.scroll.Measure()
	f.clock.Advance(time.Duration(dwellSeconds) * time.Second)
}

func TestReadMetricsOutlierPolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		dwell int
		depth int
		sent  bool
	}{
		{name: "bounce", dwell: 1, depth: 5, sent: false},
		{name: "stale tab", dwell: 7201, depth: 80, sent: false},
		{name: "bounce floor boundary", dwell: 2, depth: 10, sent: true},
		{name: "short visit with scroll", dwell: 1, depth: 10, sent: true},
		{name: "long read without scroll", dwell: 30, depth: 0, sent: true},
		{name: "stale ceiling boundary", dwell: 7200, depth: 50, sent: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newReadFixture(engagement.Subject{ID: "article-1"})
			f.engage(tc.dwell, tc.depth)
			f.visibility.Publish(engagement.VisibilityHidden)

			beacons := f.transport.Beacons()
			if !tc.sent {
				require.Empty(t, beacons)
				require.Equal(t, engagement.StateSuppressed, f.collector.State())
				return
			}
			require.Len(t, beacons, 1)
			require.Equal(t, engagement.ReadMetricsPath, beacons[0].path)
			require.Equal(t, engagement.ReadMetricsPayload{
				ArticleID:         "article-1",
				DwellTimeSeconds:  tc.dwell,
				MaxScrollDepthPct: tc.depth,
			}, beacons[0].payload)
			require.Equal(t, engagement.StateSent, f.collector.State())
		})
	}
}

func TestReadMetricsSendsOnceAcrossTriggers(t *testing.T) {
	t.Parallel()

	f := newReadFixture(engagement.Subject{ID: "article-2", Title: "T", Category: "C"})
	f.engage(45, 60)

	f.visibility.Publish(engagement.VisibilityHidden)
	f.unload.Publish(struct{}{})
	f.collector.Stop()
	f.visibility.Publish(engagement.VisibilityHidden)

	require.Len(t, f.transport.Beacons(), 1)
	reads := f.sink.Named(engagement.EventArticleRead)
	require.Len(t, reads, 1)
	require.Equal(t, string(engagement.TriggerHidden), reads[0].Params["trigger"])
	require.Equal(t, 0, f.visibility.Len())
	require.Equal(t, 0, f.unload.Len())
}

func TestReadMetricsIgnoresVisibleAndSendsOnTeardown(t *testing.T) {
	t.Parallel()

	f := newReadFixture(engagement.Subject{ID: "article-3"})
	f.engage(12, 30)
	f.visibility.Publish(engagement.VisibilityVisible)
	require.Empty(t, f.transport.Beacons())

	f.collector.Stop()
	beacons := f.transport.Beacons()
	require.Len(t, beacons, 1)
	require.Equal(t, 12, beacons[0].payload.DwellTimeSeconds)
}

func TestReadMetricsUnloadTrigger(t *testing.T) {
	t.Parallel()

	f := newReadFixture(engagement.Subject{ID: "article-4"})
	f.engage(3, 0)
	f.unload.Publish(struct{}{})

	require.Len(t, f.transport.Beacons(), 1)
	require.False(t, f.collector.Finalize(engagement.TriggerTeardown))
}

func TestReadMetricsSuppressedBounceIsTerminal(t *testing.T) {
	t.Parallel()

	f := newReadFixture(engagement.Subject{ID: "article-5"})
	f.engage(1, 0)
	f.visibility.Publish(engagement.VisibilityHidden)

	f.engage(60, 90)
	f.collector.Stop()

	require.Empty(t, f.transport.Beacons())
	require.Equal(t, engagement.StateSuppressed, f.collector.State())
}

func TestReadMetricsMissingSubjectNoops(t *testing.T) {
	t.Parallel()

	f := newReadFixture(engagement.Subject{})
	f.engage(60, 90)
	f.collector.Stop()

	require.Empty(t, f.transport.Beacons())
	require.Empty(t, f.sink.Named(engagement.EventArticleRead))
}
