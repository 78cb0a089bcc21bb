// Package dispatcher is the relay's engagement transport: fire-and-forget
// collector requests go out on detached goroutines, while beacons and
// analytics events are handed to the outbox.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
	"github.com/JakeFAU/engagement-telemetry/internal/metrics"
	"github.com/JakeFAU/engagement-telemetry/internal/outbox"
)

// Limiter decides whether a fire-and-forget request for key may go out now.
type Limiter interface {
	Allow(key string) bool
}

// Config configures the Dispatcher.
type Config struct {
	// BaseURL is the collector origin every path is resolved against.
	BaseURL string
	// Timeout bounds each detached request (default 5s).
	Timeout time.Duration
	// UserAgent is sent with every request when set.
	UserAgent string
	// MaxInFlight caps concurrent detached requests (default 64).
	MaxInFlight int
}

const (
	defaultTimeout     = 5 * time.Second
	defaultMaxInFlight = 64
)

// Dispatcher implements engagement.Transport and engagement.AnalyticsSink.
// None of its methods block on the network or return errors.
type Dispatcher struct {
	cfg     Config
	client  *http.Client
	emitter outbox.Emitter
	limiter Limiter
	clock   engagement.Clock
	logger  *zap.Logger

	slots chan struct{}
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New constructs a Dispatcher. A nil client uses http.DefaultClient and a nil
// limiter admits everything.
func New(
	cfg Config,
	client *http.Client,
	emitter outbox.Emitter,
	limiter Limiter,
	clock engagement.Clock,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("collector base url is required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:     cfg,
		client:  client,
		emitter: emitter,
		limiter: limiter,
		clock:   clock,
		logger:  logger,
		slots:   make(chan struct{}, cfg.MaxInFlight),
	}, nil
}

// Fire issues a detached request and returns immediately.
func (d *Dispatcher) Fire(method, path string, body any) {
	d.fire("", method, path, body)
}

// Beacon serializes payload synchronously and queues it for durable delivery.
func (d *Dispatcher) Beacon(path string, payload any) bool {
	return d.beacon("", path, payload)
}

// Track queues an analytics event.
func (d *Dispatcher) Track(evt engagement.AnalyticsEvent) {
	d.track("", evt)
}

// ForSession returns a transport that attributes its deliveries to sessionID.
func (d *Dispatcher) ForSession(sessionID string) *Scoped {
	return &Scoped{d: d, sessionID: sessionID}
}

// Close stops accepting fire-and-forget requests and waits for the in-flight
// ones to finish or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher close wait: %w", ctx.Err())
	}
}

func (d *Dispatcher) fire(sessionID, method, path string, body any) {
	key := endpointKey(path)
	logger := d.logger.With(
		zap.String("method", method),
		zap.String("path", path),
		zap.String("session_id", sessionID),
	)

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			metrics.ObserveFire(key, metrics.FireMalformed)
			logger.Debug("fire body serialization failed", zap.Error(err))
			return
		}
		payload = raw
	}
	if d.limiter != nil && !d.limiter.Allow(key) {
		metrics.ObserveFire(key, metrics.FireRateLimited)
		logger.Debug("fire dropped by rate limiter")
		return
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		metrics.ObserveFire(key, metrics.FireClosed)
		logger.Debug("fire dropped after close")
		return
	}
	select {
	case d.slots <- struct{}{}:
	default:
		d.mu.RUnlock()
		metrics.ObserveFire(key, metrics.FireSaturated)
		logger.Debug("fire dropped, too many requests in flight")
		return
	}
	d.wg.Add(1)
	d.mu.RUnlock()

	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()
		defer func() {
			if r := recover(); r != nil {
				metrics.ObserveFire(key, metrics.FireFailed)
				logger.Debug("fire panicked", zap.Any("panic", r))
			}
		}()
		metrics.ObserveFire(key, d.send(method, path, payload, logger))
	}()
}

func (d *Dispatcher) send(method, path string, payload []byte, logger *zap.Logger) string {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.cfg.BaseURL+path, body)
	if err != nil {
		logger.Debug("fire request build failed", zap.Error(err))
		return metrics.FireFailed
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		logger.Debug("fire request failed", zap.Error(err))
		return metrics.FireFailed
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Debug("fire response close failed", zap.Error(closeErr))
		}
	}()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.Debug("fire response drain failed", zap.Error(err))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		logger.Debug("fire rejected by collector", zap.Int("status", resp.StatusCode))
		return metrics.FireRejected
	}
	return metrics.FireOK
}

func (d *Dispatcher) beacon(sessionID, path string, payload any) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		metrics.ObserveBeaconRejected()
		d.logger.Debug("beacon serialization failed",
			zap.String("path", path),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return false
	}
	d.emitter.Emit(outbox.Envelope{
		SessionID: sessionID,
		TS:        d.clock.Now().UTC(),
		Kind:      outbox.KindBeacon,
		Endpoint:  path,
		Body:      raw,
	})
	return true
}

func (d *Dispatcher) track(sessionID string, evt engagement.AnalyticsEvent) {
	if evt.Name == "" {
		return
	}
	d.emitter.Emit(outbox.Envelope{
		SessionID: sessionID,
		TS:        d.clock.Now().UTC(),
		Kind:      outbox.KindAnalytics,
		Name:      evt.Name,
		Params:    evt.Params,
	})
}

// endpointKey buckets paths by their first segment, so every article's
// increment_views call shares one limiter.
func endpointKey(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	if trimmed == "" {
		return "root"
	}
	return trimmed
}

// Scoped is a Dispatcher view bound to one engagement session.
type Scoped struct {
	d         *Dispatcher
	sessionID string
}

// Fire implements engagement.Transport.
func (s *Scoped) Fire(method, path string, body any) {
	s.d.fire(s.sessionID, method, path, body)
}

// Beacon implements engagement.Transport.
func (s *Scoped) Beacon(path string, payload any) bool {
	return s.d.beacon(s.sessionID, path, payload)
}

// Track implements engagement.AnalyticsSink.
func (s *Scoped) Track(evt engagement.AnalyticsEvent) {
	s.d.track(s.sessionID, evt)
}

var (
	_ engagement.Transport     = (*Dispatcher)(nil)
	_ engagement.AnalyticsSink = (*Dispatcher)(nil)
	_ engagement.Transport     = (*Scoped)(nil)
	_ engagement.AnalyticsSink = (*Scoped)(nil)
)
