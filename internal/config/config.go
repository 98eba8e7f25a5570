package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/lifeline/internal/cost"
	"github.com/sells-group/lifeline/internal/fallback"
	"github.com/sells-group/lifeline/internal/store"
	"github.com/sells-group/lifeline/internal/upstream"
)

// DevJWTSecret is the placeholder signing secret used when none is configured.
const DevJWTSecret = "dev-secret-change-me"

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Upstream   UpstreamConfig   `yaml:"upstream" mapstructure:"upstream"`
	Stream     StreamConfig     `yaml:"stream" mapstructure:"stream"`
	Billing    cost.Rates       `yaml:"billing" mapstructure:"billing"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimit           float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst           int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	MaxBodyBytes        int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// UpstreamConfig holds the server-owned completion endpoint settings.
type UpstreamConfig struct {
	Protocol          string   `yaml:"protocol" mapstructure:"protocol"`
	BaseURL           string   `yaml:"base_url" mapstructure:"base_url"`
	APIKey            string   `yaml:"api_key" mapstructure:"api_key"`
	Model             string   `yaml:"model" mapstructure:"model"`
	FallbackModels    []string `yaml:"fallback_models" mapstructure:"fallback_models"`
	StreamTimeoutSecs int      `yaml:"stream_timeout_secs" mapstructure:"stream_timeout_secs"`
	SyncTimeoutSecs   int      `yaml:"sync_timeout_secs" mapstructure:"sync_timeout_secs"`
	MaxRetries        int      `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelayMs      int      `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	Temperature       float64  `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens         int64    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// StreamConfig configures the progress stream.
type StreamConfig struct {
	KeepAliveSecs int `yaml:"keepalive_secs" mapstructure:"keepalive_secs"`
}

// AuthConfig configures session tokens.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	CookieName    string `yaml:"cookie_name" mapstructure:"cookie_name"`
	TokenTTLHours int    `yaml:"token_ttl_hours" mapstructure:"token_ttl_hours"`
}

// RetryConfig configures retries around settlement transactions.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// MonitoringConfig configures the background stats checker and its alerts.
// A zero threshold disables that alert.
type MonitoringConfig struct {
	Enabled             bool   `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs   int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int    `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	WebhookURL          string `yaml:"webhook_url" mapstructure:"webhook_url"`
	GuestRunThreshold   int    `yaml:"guest_run_threshold" mapstructure:"guest_run_threshold"`
	PointsThreshold     int    `yaml:"points_threshold" mapstructure:"points_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Defaults returns the upstream defaults used to build candidates.
func (u UpstreamConfig) Defaults() upstream.Defaults {
	return upstream.Defaults{
		Protocol:  upstream.Protocol(u.Protocol),
		BaseURL:   u.BaseURL,
		APIKey:    u.APIKey,
		Model:     u.Model,
		Fallbacks: u.FallbackModels,
	}
}

// Scheduler returns the fallback scheduler settings.
func (u UpstreamConfig) Scheduler() fallback.Config {
	return fallback.Config{
		MaxRetries: u.MaxRetries,
		RetryDelay: time.Duration(u.RetryDelayMs) * time.Millisecond,
	}
}

// StreamTimeout is the per-attempt timeout for streaming requests.
func (u UpstreamConfig) StreamTimeout() time.Duration {
	return time.Duration(u.StreamTimeoutSecs) * time.Second
}

// SyncTimeout is the per-attempt timeout for non-streaming requests.
func (u UpstreamConfig) SyncTimeout() time.Duration {
	return time.Duration(u.SyncTimeoutSecs) * time.Second
}

// KeepAlive is the interval between stream keep-alive comments.
func (s StreamConfig) KeepAlive() time.Duration {
	return time.Duration(s.KeepAliveSecs) * time.Second
}

// TokenTTL is the lifetime of issued session tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLHours) * time.Hour
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LIFELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 1.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.max_body_bytes", 2<<20)
	v.SetDefault("server.shutdown_timeout_secs", 15)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "lifeline.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("upstream.protocol", string(upstream.ProtocolOpenAI))
	v.SetDefault("upstream.base_url", "https://api.openai.com/v1")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.model", "gemini-3-pro-preview")
	v.SetDefault("upstream.fallback_models", []string{"grok-4-1-fast-non-reasoning", "gemini-3-pro-preview", "grok-4-mini-thinking-tahoe"})
	v.SetDefault("upstream.stream_timeout_secs", 300)
	v.SetDefault("upstream.sync_timeout_secs", 180)
	v.SetDefault("upstream.max_retries", fallback.DefaultMaxRetries)
	v.SetDefault("upstream.retry_delay_ms", 2000)
	v.SetDefault("upstream.temperature", upstream.DefaultTemperature)
	v.SetDefault("upstream.max_tokens", upstream.DefaultMaxTokens)
	v.SetDefault("stream.keepalive_secs", 15)
	v.SetDefault("billing.cost_per_analysis", cost.DefaultRates().PerAnalysis)
	v.SetDefault("billing.free_init_points", cost.DefaultRates().FreeInitPoints)
	v.SetDefault("auth.jwt_secret", DevJWTSecret)
	v.SetDefault("auth.cookie_name", "token")
	v.SetDefault("auth.token_ttl_hours", 30*24)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 50)
	v.SetDefault("retry.max_backoff_ms", 1000)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.guest_run_threshold", 0)
	v.SetDefault("monitoring.points_threshold", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it starts. Mode is
// one of "serve", "analyze" or "store". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve", "analyze", "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Billing.PerAnalysis < 0 || c.Billing.FreeInitPoints < 0 {
		errs = append(errs, "billing values must be >= 0")
	}

	if mode == "serve" || mode == "analyze" {
		if strings.TrimSpace(c.Upstream.Model) == "" {
			errs = append(errs, "upstream.model is required")
		}
		if c.Upstream.StreamTimeoutSecs <= 0 || c.Upstream.SyncTimeoutSecs <= 0 {
			errs = append(errs, "upstream timeouts must be > 0")
		}
		if c.Upstream.MaxRetries < 0 {
			errs = append(errs, "upstream.max_retries must be >= 0")
		}
		switch upstream.Protocol(c.Upstream.Protocol) {
		case "", upstream.ProtocolOpenAI, upstream.ProtocolAnthropic:
		default:
			errs = append(errs, fmt.Sprintf("upstream.protocol %q must be openai or anthropic", c.Upstream.Protocol))
		}
		if c.Upstream.RetryDelayMs < 0 {
			errs = append(errs, "upstream.retry_delay_ms must be >= 0")
		}
	}

	if mode == "serve" {
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Stream.KeepAliveSecs <= 0 {
			errs = append(errs, "stream.keepalive_secs must be > 0")
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, "auth.jwt_secret is required")
		}
		if c.Monitoring.Enabled && c.Monitoring.LookbackWindowHours <= 0 {
			errs = append(errs, "monitoring.lookback_window_hours must be > 0")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
