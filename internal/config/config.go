// Package config loads and validates relay configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Collector CollectorConfig `mapstructure:"collector"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Sinks     SinksConfig     `mapstructure:"sinks"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CollectorConfig points the dispatcher at the backend collector.
type CollectorConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	MaxInFlight    int           `mapstructure:"max_in_flight"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// PolicyConfig holds the engagement thresholds.
type PolicyConfig struct {
	ViewDelay             time.Duration `mapstructure:"view_delay"`
	BounceMinDwellSeconds int           `mapstructure:"bounce_min_dwell_seconds"`
	BounceMinDepthPct     int           `mapstructure:"bounce_min_depth_pct"`
	StaleCeilingSeconds   int           `mapstructure:"stale_ceiling_seconds"`
	Milestones            []int         `mapstructure:"milestones"`
}

// OutboxConfig tunes the delivery buffer.
type OutboxConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// SinksConfig toggles outbox sinks.
type SinksConfig struct {
	Beacon     bool `mapstructure:"beacon"`
	Log        bool `mapstructure:"log"`
	Prometheus bool `mapstructure:"prometheus"`
	Archive    bool `mapstructure:"archive"`
	Store      bool `mapstructure:"store"`
	Redis      bool `mapstructure:"redis"`
	PubSub     bool `mapstructure:"pubsub"`
}

// PubSubConfig holds the analytics topic.
type PubSubConfig struct {
	ProjectID   string `mapstructure:"project_id"`
	TopicName   string `mapstructure:"topic_name"`
	OrderingKey bool   `mapstructure:"ordering_key"`
}

// StorageConfig selects the archive blob store.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	Bucket   string `mapstructure:"bucket"`
	LocalDir string `mapstructure:"local_dir"`
	Prefix   string `mapstructure:"prefix"`
}

// DBConfig controls access to the read-metrics database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// RedisConfig configures the analytics list sink.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// RelayConfig governs mounted pages.
type RelayConfig struct {
	FrameInterval  time.Duration `mapstructure:"frame_interval"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	ReapInterval   time.Duration `mapstructure:"reap_interval"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
}

// TracingConfig configures the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Storage backends.
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENGAGEMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := engagement.DefaultPolicy()
	milestones := make([]int, 0, len(def.Milestones))
	for _, m := range def.Milestones {
		milestones = append(milestones, int(m))
	}

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("collector.base_url", "http://localhost:8000")
	v.SetDefault("collector.timeout", 5*time.Second)
	v.SetDefault("collector.user_agent", "engagement-relay/0.1")
	v.SetDefault("collector.max_in_flight", 64)
	v.SetDefault("collector.rate_limit_rps", 50)
	v.SetDefault("collector.rate_limit_burst", 100)
	v.SetDefault("policy.view_delay", def.ViewDelay)
	v.SetDefault("policy.bounce_min_dwell_seconds", def.BounceMinDwellSeconds)
	v.SetDefault("policy.bounce_min_depth_pct", def.BounceMinDepthPct)
	v.SetDefault("policy.stale_ceiling_seconds", def.StaleCeilingSeconds)
	v.SetDefault("policy.milestones", milestones)
	v.SetDefault("outbox.buffer_size", 4096)
	v.SetDefault("outbox.max_batch_events", 500)
	v.SetDefault("outbox.max_batch_wait", 250*time.Millisecond)
	v.SetDefault("outbox.sink_timeout", 10*time.Second)
	v.SetDefault("sinks.beacon", true)
	v.SetDefault("sinks.log", false)
	v.SetDefault("sinks.prometheus", true)
	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.prefix", "engagement")
	v.SetDefault("db.table", "read_metrics")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key", "engagement:analytics")
	v.SetDefault("redis.max_len", 100000)
	v.SetDefault("relay.frame_interval", 16*time.Millisecond)
	v.SetDefault("relay.idle_timeout", 30*time.Minute)
	v.SetDefault("relay.reap_interval", time.Minute)
	v.SetDefault("relay.max_message_size", 4096)
	v.SetDefault("relay.ping_interval", 30*time.Second)
	v.SetDefault("tracing.service_name", "engagementd")
	v.SetDefault("tracing.sample_ratio", 0.1)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.Collector.BaseURL) == "" {
		return fmt.Errorf("collector.base_url is required")
	}
	if c.Collector.Timeout <= 0 {
		return fmt.Errorf("collector.timeout must be > 0")
	}
	if err := c.EngagementPolicy().Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if c.Outbox.BufferSize <= 0 {
		return fmt.Errorf("outbox.buffer_size must be > 0")
	}
	if c.Sinks.Store && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when sinks.store is enabled")
	}
	if c.Sinks.Redis && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set when sinks.redis is enabled")
	}
	if c.Sinks.PubSub && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when sinks.pubsub is enabled")
	}
	if c.Sinks.Archive {
		switch c.Storage.Backend {
		case StorageMemory:
		case StorageLocal:
			if c.Storage.LocalDir == "" {
				return fmt.Errorf("storage.local_dir must be set for the local backend")
			}
		case StorageGCS:
			if c.Storage.Bucket == "" {
				return fmt.Errorf("storage.bucket must be set for the gcs backend")
			}
		default:
			return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
		}
	}
	if c.Relay.IdleTimeout <= 0 {
		return fmt.Errorf("relay.idle_timeout must be > 0")
	}
	if c.Tracing.Enabled && c.Tracing.ServiceName == "" {
		return fmt.Errorf("tracing.service_name must be set when tracing is enabled")
	}
	return nil
}

// EngagementPolicy converts the policy section into tracker thresholds.
func (c Config) EngagementPolicy() engagement.Policy {
	milestones := make([]engagement.Milestone, 0, len(c.Policy.Milestones))
	for _, m := range c.Policy.Milestones {
		milestones = append(milestones, engagement.Milestone(m))
	}
	return engagement.Policy{
		ViewDelay:             c.Policy.ViewDelay,
		BounceMinDwellSeconds: c.Policy.BounceMinDwellSeconds,
		BounceMinDepthPct:     c.Policy.BounceMinDepthPct,
		StaleCeilingSeconds:   c.Policy.StaleCeilingSeconds,
		Milestones:            milestones,
	}
}
