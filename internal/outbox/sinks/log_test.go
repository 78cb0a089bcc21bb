package sinks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
	"github.com/JakeFAU/engagement-telemetry/internal/outbox"
)

func TestLogSinkLogsEachEnvelope(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Consume(context.Background(), []outbox.Envelope{
		analytics(engagement.EventArticleView, map[string]any{"article_id": "a"}),
		readBeacon(engagement.ReadMetricsPayload{ArticleID: "a"}),
	}))

	entries := logs.FilterMessage("engagement envelope").All()
	require.Len(t, entries, 2)
	require.Equal(t, engagement.EventArticleView, entries[0].ContextMap()["event_name"])
	require.Equal(t, engagement.ReadMetricsPath, entries[1].ContextMap()["endpoint"])
}
