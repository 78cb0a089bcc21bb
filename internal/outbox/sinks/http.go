package sinks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/engagement-telemetry/internal/outbox"
)

// BeaconConfig configures the HTTP collector sink.
type BeaconConfig struct {
	// BaseURL is prepended to each envelope endpoint.
	BaseURL string
	// Timeout bounds each request. Zero keeps the client's timeout.
	Timeout time.Duration
	// UserAgent is sent with every request when set.
	UserAgent string
}

// BeaconSink POSTs queued beacons to the backend collector. Collector
// failures are transport failures: logged at debug and never retried.
type BeaconSink struct {
	client  *http.Client
	baseURL string
	agent   string
	logger  *zap.Logger
}

// NewBeaconSink builds a sink. A nil client uses a dedicated client with cfg.Timeout.
func NewBeaconSink(client *http.Client, cfg BeaconConfig, logger *zap.Logger) (*BeaconSink, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("collector base url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BeaconSink{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		agent:   cfg.UserAgent,
		logger:  logger,
	}, nil
}

// Consume sends every beacon in the batch and ignores analytics envelopes.
func (s *BeaconSink) Consume(ctx context.Context, batch []outbox.Envelope) error {
	beacons, _ := outbox.Partition(batch)
	for _, env := range beacons {
		if err := ctx.Err(); err != nil {
			s.logger.Debug("beacon delivery interrupted", zap.Error(err), zap.Int("remaining", len(beacons)))
			return nil
		}
		s.send(ctx, env)
	}
	return nil
}

func (s *BeaconSink) send(ctx context.Context, env outbox.Envelope) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+env.Endpoint, bytes.NewReader(env.Body))
	if err != nil {
		s.logger.Debug("beacon request build failed", zap.String("endpoint", env.Endpoint), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.agent != "" {
		req.Header.Set("User-Agent", s.agent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("beacon delivery failed", zap.String("endpoint", env.Endpoint), zap.Error(err))
		return
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Debug("beacon response close failed", zap.Error(closeErr))
		}
	}()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		s.logger.Debug("beacon response drain failed", zap.Error(err))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		s.logger.Debug("beacon rejected by collector",
			zap.String("endpoint", env.Endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("session_id", env.SessionID),
		)
	}
}

// Close implements the Sink interface; it performs no action.
func (s *BeaconSink) Close(context.Context) error {
	return nil
}
