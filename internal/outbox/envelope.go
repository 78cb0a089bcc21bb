package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind separates beacon payloads from analytics events.
type Kind string

// Supported envelope kinds.
const (
	KindBeacon    Kind = "beacon"
	KindAnalytics Kind = "analytics"
)

// Envelope is one queued delivery.
type Envelope struct {
	// SessionID attributes the envelope to the engagement session that produced it.
	SessionID string `json:"session_id,omitempty"`
	// TS is the UTC time the payload was handed to the outbox.
	TS   time.Time `json:"ts"`
	Kind Kind      `json:"kind"`
	// Endpoint and Body are set for beacons. Body is already serialized.
	Endpoint string          `json:"endpoint,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
	// Name and Params are set for analytics events.
	Name   string         `json:"name,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Validate performs coarse validation on envelopes.
func (e Envelope) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindBeacon:
		if e.Endpoint == "" {
			return errors.New("beacon requires endpoint")
		}
		if len(e.Body) == 0 {
			return errors.New("beacon requires body")
		}
	case KindAnalytics:
		if e.Name == "" {
			return errors.New("analytics event requires name")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}

// Partition splits a batch by kind, preserving order.
func Partition(batch []Envelope) (beacons, events []Envelope) {
	for _, env := range batch {
		switch env.Kind {
		case KindBeacon:
			beacons = append(beacons, env)
		case KindAnalytics:
			events = append(events, env)
		}
	}
	return beacons, events
}
