package engagement_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/engagement-telemetry/internal/clock/manual"
	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
)

type sessionFixture struct {
	clock      *manual.Clock
	frames     *manual.Frames
	viewport   *fakeViewport
	scroll     *engagement.Signal[struct{}]
	visibility *engagement.Signal[engagement.Visibility]
	unload     *engagement.Signal[struct{}]
	vitals     *engagement.Signal[engagement.WebVitalMetric]
	transport  *recordingTransport
	sink       *recordingSink
	session    *engagement.Session
}

func mountSession(subject engagement.Subject) *sessionFixture {
	f := &sessionFixture{
		clock:      manual.New(time.Unix(1_700_000_000, 0)),
		frames:     manual.NewFrames(),
		viewport:   newViewport(0, 2100, 100),
		scroll:     engagement.NewSignal[struct{}]("scroll"),
		visibility: engagement.NewSignal[engagement.Visibility]("visibility"),
		unload:     engagement.NewSignal[struct{}]("unload"),
		vitals:     engagement.NewSignal[engagement.WebVitalMetric]("vitals"),
		transport:  &recordingTransport{},
		sink:       &recordingSink{},
	}
	f.session = engagement.Mount("sess-1", subject, engagement.Environment{
		Clock:      f.clock,
		Viewport:   f.viewport,
		Frames:     f.frames,
		Scroll:     f.scroll,
		Visibility: f.visibility,
		Unload:     f.unload,
		Vitals:     f.vitals,
	}, engagement.Outputs{Transport: f.transport, Sink: f.sink}, engagement.DefaultPolicy(), nil)
	return f
}

func (f *sessionFixture) scrollTo(top float64) {
	f.viewport.ScrollTo(top)
	f.scroll.Publish(struct{}{})
	f.frames.Flush()
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	subject := engagement.Subject{ID: "budget-vote", Title: "Budget vote", Category: "politics"}
	f := mountSession(subject)
	require.Equal(t, "sess-1", f.session.ID())
	require.True(t, f.session.Active())

	f.clock.Advance(2500 * time.Millisecond)
	require.Equal(t, []fireCall{{method: http.MethodPost, path: "/articles/budget-vote/increment_views/"}}, f.transport.Fires())
	views := f.sink.Named(engagement.EventArticleView)
	require.Len(t, views, 1)
	require.Equal(t, "politics", views[0].Params["category"])

	f.scrollTo(1000)
	f.scrollTo(600)
	require.Equal(t, 50, f.session.Scroll().MaxDepth())
	milestones := f.sink.Named(engagement.EventScrollMilestone)
	require.Len(t, milestones, 2)
	require.Equal(t, 25, milestones[0].Params["percent"])
	require.Equal(t, 50, milestones[1].Params["percent"])

	require.True(t, f.session.ReportImpression(intPtr(7), engagement.DimensionTitle))
	f.vitals.Publish(engagement.WebVitalMetric{Name: engagement.MetricLCP, ID: "l1", Value: 1800.4})
	require.Len(t, f.sink.Named("LCP"), 1)

	f.clock.Advance(40 * time.Second)
	f.session.Teardown()
	f.session.Teardown()

	require.False(t, f.session.Active())
	beacons := f.transport.Beacons()
	require.Len(t, beacons, 1)
	require.Equal(t, engagement.ReadMetricsPayload{
		ArticleID:         "budget-vote",
		DwellTimeSeconds:  43,
		MaxScrollDepthPct: 50,
	}, beacons[0].payload)
	require.Equal(t, engagement.StateSent, f.session.Views().State())
	require.Equal(t, engagement.StateSent, f.session.Reads().State())
}

func TestSessionTeardownReleasesEverything(t *testing.T) {
	t.Parallel()

	f := mountSession(engagement.Subject{ID: "quick-look"})
	require.Equal(t, 1, f.clock.Pending())
	f.viewport.ScrollTo(300)
	f.scroll.Publish(struct{}{})
	require.Equal(t, 1, f.frames.Pending())

	f.clock.Advance(time.Second)
	f.session.Teardown()

	require.Equal(t, 0, f.clock.Pending())
	require.Equal(t, 0, f.frames.Pending())
	require.Equal(t, 0, f.scroll.Len())
	require.Equal(t, 0, f.visibility.Len())
	require.Equal(t, 0, f.unload.Len())
	require.Equal(t, 0, f.vitals.Len())
	require.Empty(t, f.transport.Fires())
	require.Equal(t, engagement.StateSuppressed, f.session.Views().State())

	f.clock.Advance(time.Minute)
	f.scroll.Publish(struct{}{})
	require.Empty(t, f.transport.Fires())
	require.False(t, f.session.ReportImpression(intPtr(1), engagement.DimensionImage))
	require.Empty(t, f.sink.Named(engagement.EventABImpression))
}

func TestSessionHiddenThenTeardownSendsOnce(t *testing.T) {
	t.Parallel()

	f := mountSession(engagement.Subject{ID: "long-read"})
	f.scrollTo(2000)
	f.clock.Advance(90 * time.Second)

	f.visibility.Publish(engagement.VisibilityHidden)
	f.session.Teardown()

	beacons := f.transport.Beacons()
	require.Len(t, beacons, 1)
	require.Equal(t, 100, beacons[0].payload.MaxScrollDepthPct)
	require.Len(t, f.sink.Named(engagement.EventScrollMilestone), 4)
}

func TestSessionWithoutSubjectStaysSilent(t *testing.T) {
	t.Parallel()

	f := mountSession(engagement.Subject{})
	f.scrollTo(2000)
	f.clock.Advance(time.Minute)
	f.session.Teardown()

	require.Empty(t, f.transport.Fires())
	require.Empty(t, f.transport.Beacons())
	require.Empty(t, f.sink.Named(engagement.EventScrollMilestone))
	require.Empty(t, f.sink.Named(engagement.EventArticleView))
}
