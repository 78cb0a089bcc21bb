package sinks

import (
	"encoding/json"
	"time"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
	"github.com/JakeFAU/engagement-telemetry/internal/outbox"
)

const testSessionID = "0192a8f2-0000-7000-8000-000000000001"

var testTS = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func readBeacon(payload engagement.ReadMetricsPayload) outbox.Envelope {
	body, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return outbox.Envelope{
		SessionID: testSessionID,
		TS:        testTS,
		Kind:      outbox.KindBeacon,
		Endpoint:  engagement.ReadMetricsPath,
		Body:      body,
	}
}

func analytics(name string, params map[string]any) outbox.Envelope {
	return outbox.Envelope{
		SessionID: testSessionID,
		TS:        testTS,
		Kind:      outbox.KindAnalytics,
		Name:      name,
		Params:    params,
	}
}

type staticIDs struct{ id string }

func (s staticIDs) NewID() (string, error) { return s.id, nil }
