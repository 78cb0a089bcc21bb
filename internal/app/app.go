// Package app builds the relay's dependencies and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/engagement-telemetry/internal/api"
	"github.com/JakeFAU/engagement-telemetry/internal/clock/system"
	"github.com/JakeFAU/engagement-telemetry/internal/config"
	"github.com/JakeFAU/engagement-telemetry/internal/dispatcher"
	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
	"github.com/JakeFAU/engagement-telemetry/internal/id/uuid"
	"github.com/JakeFAU/engagement-telemetry/internal/logging"
	"github.com/JakeFAU/engagement-telemetry/internal/metrics"
	"github.com/JakeFAU/engagement-telemetry/internal/outbox"
	"github.com/JakeFAU/engagement-telemetry/internal/outbox/sinks"
	"github.com/JakeFAU/engagement-telemetry/internal/pagehost"
	"github.com/JakeFAU/engagement-telemetry/internal/policy/ratelimit"
	"github.com/JakeFAU/engagement-telemetry/internal/policy/simple"
	memorypublisher "github.com/JakeFAU/engagement-telemetry/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/engagement-telemetry/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/engagement-telemetry/internal/storage/gcs"
	localstorage "github.com/JakeFAU/engagement-telemetry/internal/storage/local"
	memorystorage "github.com/JakeFAU/engagement-telemetry/internal/storage/memory"
	pgstore "github.com/JakeFAU/engagement-telemetry/internal/storage/postgres"
	"github.com/JakeFAU/engagement-telemetry/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry prometheus.Registerer

	apiServer    *api.Server
	pages        *pagehost.Registry
	dispatch     *dispatcher.Dispatcher
	hub          *outbox.Hub
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	analytics    sinks.Publisher
	storage      *storage.Client
	redis        *redis.Client
	readStore    *pgstore.ReadMetricsStore
	checks       []api.Check

	tracerShutdown func(context.Context) error
}

// Option customizes Build.
type Option func(*App)

// WithLogger replaces the configured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithRegisterer registers outbox collectors with reg instead of the default registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registry = reg }
}

// Handler returns the relay's HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and reaps idle pages until ctx is canceled, then shuts
// everything down.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		a.pages.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	<-reaperDone

	return a.Close(shutdownCtx)
}

// Close tears down remaining sessions, drains the outbox, and releases
// infrastructure clients.
func (a *App) Close(ctx context.Context) error {
	if a.pages != nil {
		if n := a.pages.TeardownAll(pagehost.ReasonShutdown); n > 0 {
			a.logger.Info("torn down sessions", zap.Int("count", n))
		}
	}
	var errs []error
	if a.dispatch != nil {
		if err := a.dispatch.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure() {
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.readStore != nil {
		a.readStore.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}

// Build creates the application's dependencies. On error, whatever was
// already opened is closed before returning.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
		a.logger = logger
	}
	if a.registry == nil {
		a.registry = prometheus.DefaultRegisterer
	}
	if err := a.build(ctx); err != nil {
		a.abort()
		return nil, err
	}
	return a, nil
}

const abortTimeout = 5 * time.Second

// abort releases whatever a failed build already started.
func (a *App) abort() {
	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	if a.dispatch != nil {
		if err := a.dispatch.Close(ctx); err != nil {
			a.logger.Warn("dispatcher close failed", zap.Error(err))
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("outbox close failed", zap.Error(err))
		}
	}
	a.closeInfrastructure()
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg
	a.logger.Info("building application dependencies", zap.Int("server_port", cfg.Server.Port))

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Tracing.ServiceName,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("tracer init failed: %w", err)
		}
		a.tracerShutdown = tp.Shutdown
	}

	sinkList, err := a.setupSinks(ctx)
	if err != nil {
		return err
	}
	a.hub = outbox.NewHub(outbox.Config{
		BufferSize:     cfg.Outbox.BufferSize,
		MaxBatchEvents: cfg.Outbox.MaxBatchEvents,
		MaxBatchWait:   cfg.Outbox.MaxBatchWait,
		SinkTimeout:    cfg.Outbox.SinkTimeout,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("outbox"),
	}, sinkList...)
	if err := metrics.RegisterOutbox(a.registry, a.hub); err != nil {
		a.logger.Warn("outbox metrics not registered", zap.Error(err))
	}
	a.logger.Info("outbox initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", cfg.Outbox.BufferSize),
		zap.Duration("max_batch_wait", cfg.Outbox.MaxBatchWait),
	)

	clock := system.New()
	a.dispatch, err = dispatcher.New(dispatcher.Config{
		BaseURL:     cfg.Collector.BaseURL,
		Timeout:     cfg.Collector.Timeout,
		UserAgent:   cfg.Collector.UserAgent,
		MaxInFlight: cfg.Collector.MaxInFlight,
	}, nil, a.hub, a.setupLimiter(), clock, a.logger.Named("dispatcher"))
	if err != nil {
		return fmt.Errorf("dispatcher init failed: %w", err)
	}

	a.pages, err = pagehost.NewRegistry(pagehost.Config{
		Policy:       cfg.EngagementPolicy(),
		IdleTimeout:  cfg.Relay.IdleTimeout,
		ReapInterval: cfg.Relay.ReapInterval,
	}, uuid.NewUUIDGenerator(), a.outputs, clock, system.NewFrames(cfg.Relay.FrameInterval), a.logger.Named("engagement"))
	if err != nil {
		return fmt.Errorf("page registry init failed: %w", err)
	}

	a.apiServer = api.NewServer(a.pages, a.checks, api.Options{
		AllowedOrigins: cfg.Relay.AllowedOrigins,
		MaxMessageSize: cfg.Relay.MaxMessageSize,
		PingInterval:   cfg.Relay.PingInterval,
	}, a.logger.Named("api"))
	return nil
}

func (a *App) outputs(sessionID string) engagement.Outputs {
	scoped := a.dispatch.ForSession(sessionID)
	return engagement.Outputs{Transport: scoped, Sink: scoped}
}

func (a *App) setupLimiter() dispatcher.Limiter {
	c := a.cfg.Collector
	if c.RateLimitRPS <= 0 {
		a.logger.Info("collector rate limiter disabled, using simple policy")
		return simple.New()
	}
	a.logger.Info("collector rate limiter enabled",
		zap.Float64("rps", c.RateLimitRPS),
		zap.Int("burst", c.RateLimitBurst),
	)
	return ratelimit.New(ratelimit.Config{RPS: c.RateLimitRPS, Burst: c.RateLimitBurst})
}

//nolint:gocognit // One branch per sink toggle.
func (a *App) setupSinks(ctx context.Context) ([]outbox.Sink, error) {
	cfg := a.cfg
	var list []outbox.Sink
	if cfg.Sinks.Beacon {
		s, err := sinks.NewBeaconSink(nil, sinks.BeaconConfig{
			BaseURL:   cfg.Collector.BaseURL,
			Timeout:   cfg.Collector.Timeout,
			UserAgent: cfg.Collector.UserAgent,
		}, a.logger.Named("beacon_sink"))
		if err != nil {
			return nil, fmt.Errorf("beacon sink init failed: %w", err)
		}
		list = append(list, s)
	}
	if cfg.Sinks.Log {
		list = append(list, sinks.NewLogSink(a.logger.Named("log_sink")))
	}
	if cfg.Sinks.Prometheus {
		s, err := sinks.NewPrometheusSink(a.registry)
		if err != nil {
			return nil, fmt.Errorf("prometheus sink init failed: %w", err)
		}
		list = append(list, s)
	}
	if cfg.Sinks.Archive {
		blobs, err := a.setupStorage(ctx)
		if err != nil {
			return nil, err
		}
		s, err := sinks.NewArchiveSink(blobs, uuid.NewUUIDGenerator(), cfg.Storage.Prefix, a.logger.Named("archive_sink"))
		if err != nil {
			return nil, fmt.Errorf("archive sink init failed: %w", err)
		}
		list = append(list, s)
	}
	if cfg.Sinks.Store {
		if err := a.setupDatabase(ctx); err != nil {
			return nil, err
		}
		list = append(list, sinks.NewStoreSink(a.readStore, a.logger.Named("store_sink")))
	}
	if cfg.Sinks.Redis {
		if err := a.setupRedis(ctx); err != nil {
			return nil, err
		}
		s, err := sinks.NewRedisSink(a.redis, sinks.RedisConfig{
			Key:    cfg.Redis.Key,
			MaxLen: cfg.Redis.MaxLen,
		}, a.logger.Named("redis_sink"))
		if err != nil {
			return nil, fmt.Errorf("redis sink init failed: %w", err)
		}
		list = append(list, s)
	}
	if cfg.Sinks.PubSub {
		if err := a.setupPublisher(ctx); err != nil {
			return nil, err
		}
		s, err := sinks.NewPublishSink(a.analytics, cfg.PubSub.TopicName, a.logger.Named("publish_sink"))
		if err != nil {
			return nil, fmt.Errorf("publish sink init failed: %w", err)
		}
		list = append(list, s)
	}
	if len(list) == 0 {
		a.logger.Warn("no outbox sinks configured, engagement data will be discarded")
	}
	return list, nil
}

func (a *App) setupStorage(ctx context.Context) (sinks.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		a.logger.Info("using GCS archive backend", zap.String("bucket", a.cfg.Storage.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case config.StorageLocal:
		a.logger.Info("using local archive backend", zap.String("path", a.cfg.Storage.LocalDir))
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	default:
		a.logger.Info("using in-memory archive backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupDatabase(ctx context.Context) error {
	store, err := pgstore.NewReadMetricsStore(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		Table:           a.cfg.DB.Table,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("read metrics store init failed: %w", err)
	}
	a.readStore = store
	a.checks = append(a.checks, api.Check{Name: "postgres", Ping: store.Ping})
	a.logger.Info("read metrics store initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupRedis(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.redis = client
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	a.checks = append(a.checks, api.Check{Name: "redis", Ping: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}})
	a.logger.Info("redis sink connected", zap.String("addr", a.cfg.Redis.Addr), zap.String("key", a.cfg.Redis.Key))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("No Pub/Sub project configured, using in-memory publisher")
		a.analytics = memorypublisher.New()
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	var opts []gcppublisher.Option
	if a.cfg.PubSub.OrderingKey {
		opts = append(opts, gcppublisher.WithOrderingKey(func(payload any) string {
			if msg, ok := payload.(sinks.AnalyticsMessage); ok {
				return msg.SessionID
			}
			return ""
		}))
	}
	a.publisher = gcppublisher.New(client, a.cfg.PubSub.TopicName, opts...)
	a.analytics = a.publisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}
