package outbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const tracerName = "github.com/JakeFAU/engagement-telemetry/internal/outbox"

// Config controls buffering and batching for the Hub.
//   - BufferSize: size of the internal channel (default 4096).
//   - MaxBatchEvents: flush once this many envelopes queue (default 500).
//   - MaxBatchWait: flush after this duration even if the batch is small (default 250ms).
//   - SinkTimeout: per-sink timeout while flushing (default 10s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 500
	defaultMaxBatchWait   = 250 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Hub buffers envelopes and fans them out to registered sinks. It is safe for
// concurrent use and never blocks callers.
type Hub struct {
	cfg         Config
	sinks       []Sink
	queue       chan Envelope
	stopCh      chan struct{}
	doneCh      chan struct{}
	logger      *zap.Logger
	dropLimiter rateLimiter
	dropped     atomic.Int64
	droppedAll  atomic.Int64
	delivered   atomic.Int64

	// mu orders sends against Close so nothing lands in the queue after
	// the drain starts.
	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub initializes a Hub and starts the background batching goroutine.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:         cfg,
		sinks:       append([]Sink(nil), sinks...),
		queue:       make(chan Envelope, cfg.BufferSize),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      logger,
		dropLimiter: rateLimiter{interval: dropLogInterval},
	}
	go h.run()
	return h
}

// Emit enqueues an envelope. It never blocks; if the buffer is full the
// envelope is dropped and a rate-limited warning is logged. Envelopes emitted
// after Close are discarded.
func (h *Hub) Emit(env Envelope) {
	if h == nil {
		return
	}
	if err := env.Validate(); err != nil {
		h.logger.Debug("discarding invalid envelope", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.droppedAll.Add(1)
		return
	}
	select {
	case h.queue <- env:
	default:
		h.dropped.Add(1)
		h.droppedAll.Add(1)
		if h.dropLimiter.Allow(time.Now()) {
			count := h.dropped.Swap(0)
			h.logger.Warn("outbox envelopes dropped due to backpressure", zap.Int64("dropped", count))
		}
	}
}

// Pending returns the number of envelopes waiting in the buffer.
func (h *Hub) Pending() int {
	if h == nil {
		return 0
	}
	return len(h.queue)
}

// Dropped returns the total number of envelopes discarded for backpressure
// or because the hub was closed.
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.droppedAll.Load()
}

// Delivered returns the total number of envelopes handed to the sinks.
func (h *Hub) Delivered() int64 {
	if h == nil {
		return 0
	}
	return h.delivered.Load()
}

// Close drains remaining envelopes, flushes and closes the sinks, and blocks
// until the background goroutine exits or ctx ends. It is safe to call
// multiple times.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("outbox close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	batch := make([]Envelope, 0, h.cfg.MaxBatchEvents)
	timer := time.NewTimer(h.cfg.MaxBatchWait)
	timer.Stop()
	timerActive := false
	for {
		select {
		case env := <-h.queue:
			batch = h.enqueue(batch, env, timer, &timerActive)
		case <-timer.C:
			timerActive = false
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-h.stopCh:
			h.drain(batch, timer, &timerActive)
			return
		}
	}
}

func (h *Hub) enqueue(batch []Envelope, env Envelope, timer *time.Timer, timerActive *bool) []Envelope {
	batch = append(batch, env)
	if len(batch) >= h.cfg.MaxBatchEvents {
		h.flush(batch)
		batch = batch[:0]
		h.stopTimer(timer, timerActive)
	} else if !*timerActive {
		timer.Reset(h.cfg.MaxBatchWait)
		*timerActive = true
	}
	return batch
}

func (h *Hub) drain(batch []Envelope, timer *time.Timer, timerActive *bool) {
	h.stopTimer(timer, timerActive)
	for {
		select {
		case env := <-h.queue:
			batch = append(batch, env)
			if len(batch) >= h.cfg.MaxBatchEvents {
				h.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				h.flush(batch)
			}
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) stopTimer(timer *time.Timer, timerActive *bool) {
	if !*timerActive {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	*timerActive = false
}

func (h *Hub) flush(batch []Envelope) {
	if len(batch) == 0 {
		return
	}
	copyBatch := append([]Envelope(nil), batch...)
	baseCtx, span := otel.Tracer(tracerName).Start(h.cfg.BaseContext, "outbox.flush")
	span.SetAttributes(attribute.Int("outbox.batch_size", len(copyBatch)))
	defer span.End()

	failed := 0
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(baseCtx, h.cfg.SinkTimeout)
		if err := h.consume(ctx, sink, copyBatch); err != nil {
			failed++
			span.RecordError(err)
			h.logger.Warn("outbox sink consume failed", zap.Error(err))
		}
		cancel()
	}
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d sinks failed", failed))
	}
	h.delivered.Add(int64(len(copyBatch)))
}

func (h *Hub) consume(ctx context.Context, sink Sink, batch []Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return sink.Consume(ctx, batch)
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("outbox sink close failed", zap.Error(err))
		}
	}
}

type rateLimiter struct {
	interval time.Duration
	last     atomic.Int64
}

func (r *rateLimiter) Allow(now time.Time) bool {
	if r == nil || r.interval <= 0 {
		return true
	}
	nano := now.UnixNano()
	last := r.last.Load()
	if nano-last < r.interval.Nanoseconds() {
		return false
	}
	return r.last.CompareAndSwap(last, nano)
}
