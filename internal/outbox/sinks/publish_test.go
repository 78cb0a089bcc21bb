package sinks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
	"github.com/JakeFAU/engagement-telemetry/internal/outbox"
	"github.com/JakeFAU/engagement-telemetry/internal/publisher/memory"
)

// TestPublishSinkPublishesAnalyticsOnly ensures one message per analytics event.
func TestPublishSinkPublishesAnalyticsOnly(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink, err := NewPublishSink(pub, "engagement-events", nil)
	require.NoError(t, err)

	batch := []outbox.Envelope{
		readBeacon(engagement.ReadMetricsPayload{ArticleID: "a", DwellTimeSeconds: 5}),
		analytics(engagement.EventArticleView, map[string]any{"article_id": "a"}),
		analytics("LCP", map[string]any{"value": int64(1800)}),
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "engagement-events", msgs[0].Topic)
	first, ok := msgs[0].Payload.(AnalyticsMessage)
	require.True(t, ok)
	require.Equal(t, engagement.EventArticleView, first.EventName)
	require.Equal(t, testSessionID, first.SessionID)
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, string, any) (string, error) {
	f.calls++
	return "", errors.New("topic not found")
}

// TestPublishSinkJoinsErrors attempts the whole batch before reporting failures.
func TestPublishSinkJoinsErrors(t *testing.T) {
	t.Parallel()

	pub := &failingPublisher{}
	sink, err := NewPublishSink(pub, "t", nil)
	require.NoError(t, err)

	err = sink.Consume(context.Background(), []outbox.Envelope{
		analytics(engagement.EventArticleView, nil),
		analytics(engagement.EventArticleRead, nil),
	})
	require.Error(t, err)
	require.Equal(t, 2, pub.calls)
	require.ErrorContains(t, err, "publish article_read")
}
