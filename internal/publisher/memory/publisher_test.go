package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "engagement-events", map[string]any{"event_name": "article_view"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "web-vitals", "LCP")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, []any{"LCP"}, pub.OnTopic("web-vitals"))

	msgs[0].Topic = "modified"
	require.Equal(t, "engagement-events", pub.Messages()[0].Topic)
}

func TestPublisherHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Publish(ctx, "t", "x")
	require.Error(t, err)
	require.Empty(t, New().Messages())
}
