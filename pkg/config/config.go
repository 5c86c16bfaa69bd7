package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"catalogsync/pkg/validation"
)

type Config struct {
	Backend struct {
		BaseURL    string        `yaml:"base_url"`
		Timeout    time.Duration `yaml:"timeout"`
		AuthMode   string        `yaml:"auth_mode"` // bearer, cookie or both
		UserAgent  string        `yaml:"user_agent"`
		RateLimit  struct {
			Enabled           bool    `yaml:"enabled"`
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"backend"`

	Events struct {
		Enabled           bool          `yaml:"enabled"`
		URL               string        `yaml:"url"`
		SockJS            bool          `yaml:"sockjs"`
		NewMovieTopic     string        `yaml:"new_movie_topic"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		ReadTimeout       time.Duration `yaml:"read_timeout"`
		WriteTimeout      time.Duration `yaml:"write_timeout"`
		HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
		AutoRefreshViews  bool          `yaml:"auto_refresh_views"`

		Reconnect struct {
			InitialInterval time.Duration `yaml:"initial_interval"`
			MaxInterval     time.Duration `yaml:"max_interval"`
			Multiplier      float64       `yaml:"multiplier"`
			Jitter          float64       `yaml:"jitter"`
			MaxElapsedTime  time.Duration `yaml:"max_elapsed_time"`
			MaxAttempts     int           `yaml:"max_attempts"`
		} `yaml:"reconnect"`
	} `yaml:"events"`

	TMDB struct {
		Enabled     bool          `yaml:"enabled"`
		BaseURL     string        `yaml:"base_url"`
		APIKey      string        `yaml:"api_key"`
		BearerToken string        `yaml:"bearer_token"`
		Language    string        `yaml:"language"`
		Timeout     time.Duration `yaml:"timeout"`
		CacheTTL    time.Duration `yaml:"cache_ttl"`

		Breaker struct {
			FailureThreshold    int           `yaml:"failure_threshold"`
			Timeout             time.Duration `yaml:"timeout"`
			MaxRequestsHalfOpen int           `yaml:"max_requests_half_open"`
		} `yaml:"breaker"`
	} `yaml:"tmdb"`

	Notifications struct {
		TTL      time.Duration `yaml:"ttl"`
		ErrorTTL time.Duration `yaml:"error_ttl"`
	} `yaml:"notifications"`

	Views struct {
		ClampToTotalPages bool `yaml:"clamp_to_total_pages"`
	} `yaml:"views"`

	Reactions struct {
		RollbackOnFailure bool `yaml:"rollback_on_failure"`
	} `yaml:"reactions"`

	Session struct {
		Store    string `yaml:"store"` // memory, file or redis
		FilePath string `yaml:"file_path"`
		Redis    struct {
			Address  string `yaml:"address"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"session"`

	Status struct {
		Enabled         bool          `yaml:"enabled"`
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

		RateLimit struct {
			Enabled           bool    `yaml:"enabled"`
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"rate_limit"`
	} `yaml:"status"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Backend
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url must not be empty")
	}
	if err := validation.ValidateURL(c.Backend.BaseURL); err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be > 0")
	}
	switch c.Backend.AuthMode {
	case "bearer", "cookie", "both":
	default:
		return fmt.Errorf("backend.auth_mode must be one of bearer, cookie, both")
	}
	if c.Backend.RateLimit.Enabled {
		if c.Backend.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("backend.rate_limit.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.Backend.RateLimit.Burst <= 0 {
			return fmt.Errorf("backend.rate_limit.burst must be > 0 when rate limiting is enabled")
		}
	}

	// Events
	if c.Events.Enabled {
		if c.Events.URL == "" {
			return fmt.Errorf("events.url must not be empty when events.enabled=true")
		}
		if err := validation.ValidateURL(c.Events.URL); err != nil {
			return fmt.Errorf("events.url: %w", err)
		}
		if c.Events.NewMovieTopic == "" {
			return fmt.Errorf("events.new_movie_topic must not be empty when events.enabled=true")
		}
		if c.Events.HeartbeatInterval == 0 {
			return fmt.Errorf("events.heartbeat_interval must not be zero, use a negative value to disable heart-beats")
		}
		if c.Events.HeartbeatInterval > 0 && c.Events.ReadTimeout <= c.Events.HeartbeatInterval {
			return fmt.Errorf("events.read_timeout must be greater than events.heartbeat_interval")
		}
		r := c.Events.Reconnect
		if r.InitialInterval <= 0 {
			return fmt.Errorf("events.reconnect.initial_interval must be > 0")
		}
		if r.MaxInterval < r.InitialInterval {
			return fmt.Errorf("events.reconnect.max_interval must be >= initial_interval")
		}
		if r.Multiplier < 1 {
			return fmt.Errorf("events.reconnect.multiplier must be >= 1")
		}
		if r.Jitter < 0 || r.Jitter > 1 {
			return fmt.Errorf("events.reconnect.jitter must be within [0, 1]")
		}
		if r.MaxAttempts < 0 {
			return fmt.Errorf("events.reconnect.max_attempts must be >= 0")
		}
	}

	// TMDB
	if c.TMDB.Enabled {
		if c.TMDB.BaseURL == "" {
			return fmt.Errorf("tmdb.base_url must not be empty when tmdb.enabled=true")
		}
		if c.TMDB.APIKey == "" && c.TMDB.BearerToken == "" {
			return fmt.Errorf("tmdb.api_key or tmdb.bearer_token is required when tmdb.enabled=true")
		}
		if c.TMDB.Breaker.FailureThreshold <= 0 {
			return fmt.Errorf("tmdb.breaker.failure_threshold must be > 0")
		}
	}

	// Notifications
	if c.Notifications.TTL <= 0 {
		return fmt.Errorf("notifications.ttl must be > 0")
	}
	if c.Notifications.ErrorTTL <= 0 {
		return fmt.Errorf("notifications.error_ttl must be > 0")
	}

	// Session
	switch c.Session.Store {
	case "memory":
	case "file":
		if c.Session.FilePath == "" {
			return fmt.Errorf("session.file_path must not be empty when session.store=file")
		}
	case "redis":
		if c.Session.Redis.Address == "" {
			return fmt.Errorf("session.redis.address must not be empty when session.store=redis")
		}
		if c.Session.Redis.PoolSize <= 0 {
			return fmt.Errorf("session.redis.pool_size must be > 0 when session.store=redis")
		}
	default:
		return fmt.Errorf("session.store must be one of memory, file, redis")
	}

	// Status
	if c.Status.Enabled && c.Status.Address == "" {
		return fmt.Errorf("status.address must not be empty when status.enabled=true")
	}
	if c.Status.RateLimit.Enabled {
		if c.Status.RateLimit.RequestsPerSecond <= 0 || c.Status.RateLimit.Burst <= 0 {
			return fmt.Errorf("status.rate_limit requires requests_per_second and burst > 0")
		}
		if c.Status.RateLimit.MaxConcurrent < 0 {
			return fmt.Errorf("status.rate_limit.max_concurrent must be >= 0")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Backend.BaseURL = "http://localhost:8080"
	cfg.Backend.Timeout = 15 * time.Second
	cfg.Backend.AuthMode = "bearer"
	cfg.Backend.UserAgent = "catalogsync/1.0"
	cfg.Backend.RateLimit.Enabled = false
	cfg.Backend.RateLimit.RequestsPerSecond = 20
	cfg.Backend.RateLimit.Burst = 40

	cfg.Events.Enabled = true
	cfg.Events.URL = "http://localhost:8080/ws"
	cfg.Events.SockJS = true
	cfg.Events.NewMovieTopic = "/topic/new-movie"
	cfg.Events.HeartbeatInterval = 10 * time.Second
	cfg.Events.ReadTimeout = 30 * time.Second
	cfg.Events.WriteTimeout = 10 * time.Second
	cfg.Events.HandshakeTimeout = 10 * time.Second
	cfg.Events.AutoRefreshViews = false
	cfg.Events.Reconnect.InitialInterval = 500 * time.Millisecond
	cfg.Events.Reconnect.MaxInterval = 30 * time.Second
	cfg.Events.Reconnect.Multiplier = 2.0
	cfg.Events.Reconnect.Jitter = 0.25
	cfg.Events.Reconnect.MaxElapsedTime = 10 * time.Minute
	cfg.Events.Reconnect.MaxAttempts = 20

	cfg.TMDB.Enabled = false
	cfg.TMDB.BaseURL = "https://api.themoviedb.org/3"
	cfg.TMDB.Language = "en-US"
	cfg.TMDB.Timeout = 10 * time.Second
	cfg.TMDB.CacheTTL = 10 * time.Minute
	cfg.TMDB.Breaker.FailureThreshold = 5
	cfg.TMDB.Breaker.Timeout = 30 * time.Second
	cfg.TMDB.Breaker.MaxRequestsHalfOpen = 1

	cfg.Notifications.TTL = 5 * time.Second
	cfg.Notifications.ErrorTTL = 6 * time.Second

	cfg.Views.ClampToTotalPages = true

	cfg.Reactions.RollbackOnFailure = true

	cfg.Session.Store = "memory"
	cfg.Session.Redis.Address = "localhost:6379"
	cfg.Session.Redis.PoolSize = 5
	cfg.Session.Redis.Prefix = "catalogsync:session:"

	cfg.Status.Enabled = true
	cfg.Status.Address = "127.0.0.1:9400"
	cfg.Status.ReadTimeout = 10 * time.Second
	cfg.Status.WriteTimeout = 10 * time.Second
	cfg.Status.ShutdownTimeout = 10 * time.Second
	cfg.Status.RateLimit.Enabled = false
	cfg.Status.RateLimit.RequestsPerSecond = 50
	cfg.Status.RateLimit.Burst = 100
	cfg.Status.RateLimit.MaxConcurrent = 64

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "catalogsync"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("CATALOGSYNC_BACKEND_URL"); url != "" {
		c.Backend.BaseURL = strings.TrimRight(url, "/")
	}
	if url := os.Getenv("CATALOGSYNC_EVENTS_URL"); url != "" {
		c.Events.URL = url
	}
	if level := os.Getenv("CATALOGSYNC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if key := os.Getenv("CATALOGSYNC_TMDB_API_KEY"); key != "" {
		c.TMDB.APIKey = key
		c.TMDB.Enabled = true
	}
	if token := os.Getenv("CATALOGSYNC_TMDB_BEARER_TOKEN"); token != "" {
		c.TMDB.BearerToken = token
		c.TMDB.Enabled = true
	}
	if addr := os.Getenv("CATALOGSYNC_STATUS_ADDRESS"); addr != "" {
		c.Status.Address = addr
	}
}
