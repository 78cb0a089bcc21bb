package pagehost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
	"github.com/JakeFAU/engagement-telemetry/internal/metrics"
)

// ErrSessionNotFound is returned for unknown or already torn-down sessions.
var ErrSessionNotFound = errors.New("session not found")

// Teardown reasons recorded in metrics and logs.
const (
	ReasonClient     = "client"
	ReasonDisconnect = "disconnect"
	ReasonIdle       = "idle"
	ReasonShutdown   = "shutdown"
)

// IDGenerator produces session identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// OutputsFunc returns the delivery channels for a new session.
type OutputsFunc func(sessionID string) engagement.Outputs

// Config configures the Registry.
type Config struct {
	Policy engagement.Policy
	// IdleTimeout tears down pages silent for longer (default 30m).
	IdleTimeout time.Duration
	// ReapInterval is how often Run scans for idle pages (default 1m).
	ReapInterval time.Duration
}

const (
	defaultIdleTimeout  = 30 * time.Minute
	defaultReapInterval = time.Minute
)

// Registry owns the mounted pages. It is safe for concurrent use.
type Registry struct {
	cfg     Config
	ids     IDGenerator
	outputs OutputsFunc
	clock   engagement.Clock
	frames  engagement.FrameScheduler
	logger  *zap.Logger

	mu    sync.Mutex
	pages map[string]*Page
}

// NewRegistry builds a Registry.
func NewRegistry(
	cfg Config,
	ids IDGenerator,
	outputs OutputsFunc,
	clock engagement.Clock,
	frames engagement.FrameScheduler,
	logger *zap.Logger,
) (*Registry, error) {
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if outputs == nil {
		return nil, fmt.Errorf("outputs are required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = defaultReapInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:     cfg,
		ids:     ids,
		outputs: outputs,
		clock:   clock,
		frames:  frames,
		logger:  logger,
		pages:   make(map[string]*Page),
	}, nil
}

// Mount starts a session for subject with the page's initial geometry.
func (r *Registry) Mount(subject engagement.Subject, transport string, initial engagement.ScrollGeometry) (*Page, error) {
	if err := ValidateGeometry(initial); err != nil {
		return nil, err
	}
	id, err := r.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	page := newPage(id, transport, r.clock, initial)
	page.session = engagement.Mount(id, subject, page.environment(r.frames), r.outputs(id), r.cfg.Policy, r.logger)

	r.mu.Lock()
	r.pages[id] = page
	r.mu.Unlock()

	metrics.SessionMounted(transport)
	r.logger.Debug("page mounted",
		zap.String("session_id", id),
		zap.String("subject_id", subject.ID),
		zap.String("transport", transport),
	)
	return page, nil
}

// Get returns a mounted page.
func (r *Registry) Get(id string) (*Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	page, ok := r.pages[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return page, nil
}

// Deliver applies sig to the page with id.
func (r *Registry) Deliver(id string, sig Signal) (bool, error) {
	page, err := r.Get(id)
	if err != nil {
		return false, err
	}
	accepted, err := page.Deliver(sig)
	metrics.ObserveSignal(string(sig.Type), err == nil)
	return accepted, err
}

// Teardown unmounts the page with id and returns its final state.
func (r *Registry) Teardown(id, reason string) (Summary, error) {
	r.mu.Lock()
	page, ok := r.pages[id]
	delete(r.pages, id)
	r.mu.Unlock()
	if !ok {
		return Summary{}, ErrSessionNotFound
	}
	return r.teardown(page, reason), nil
}

// TeardownAll unmounts every page and returns how many were mounted.
func (r *Registry) TeardownAll(reason string) int {
	r.mu.Lock()
	pages := make([]*Page, 0, len(r.pages))
	for id, page := range r.pages {
		pages = append(pages, page)
		delete(r.pages, id)
	}
	r.mu.Unlock()
	for _, page := range pages {
		r.teardown(page, reason)
	}
	return len(pages)
}

// Len returns the number of mounted pages.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

// Reap tears down unattached pages idle since before now minus the idle
// timeout.
func (r *Registry) Reap(now time.Time) int {
	cutoff := now.Add(-r.cfg.IdleTimeout)
	r.mu.Lock()
	var idle []*Page
	for id, page := range r.pages {
		if page.idleSince(cutoff) {
			idle = append(idle, page)
			delete(r.pages, id)
		}
	}
	r.mu.Unlock()
	for _, page := range idle {
		r.teardown(page, ReasonIdle)
	}
	return len(idle)
}

// Run reaps idle pages every ReapInterval until ctx ends, then tears down
// whatever is still mounted.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if n := r.TeardownAll(ReasonShutdown); n > 0 {
				r.logger.Info("torn down pages on shutdown", zap.Int("count", n))
			}
			return
		case <-ticker.C:
			if n := r.Reap(r.clock.Now()); n > 0 {
				r.logger.Info("reaped idle pages", zap.Int("count", n))
			}
		}
	}
}

func (r *Registry) teardown(page *Page, reason string) Summary {
	page.session.Teardown()
	metrics.SessionEnded(reason)
	summary := page.summary()
	r.logger.Debug("page torn down",
		zap.String("session_id", page.id),
		zap.String("reason", reason),
		zap.String("read_state", summary.ReadState),
	)
	return summary
}
