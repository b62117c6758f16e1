package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Alwanly/lunch-match-sync/pkg/poll"
	"github.com/Alwanly/lunch-match-sync/pkg/pubsub"
	"github.com/Alwanly/lunch-match-sync/pkg/retry"
)

// EventsChannel is the Redis channel the dev server publishes state changes on.
const EventsChannel = "lunch-events"

type ServerConfig struct {
	ServerAddr    string
	DatabasePath  string
	AdminUsername string
	AdminPassword string
	// RedisEnabled turns on event publishing; the server works without it
	RedisEnabled bool
	Redis        pubsub.RedisConfig
	// MessageRate and MessageBurst limit message posting per user
	MessageRate  time.Duration
	MessageBurst int
}

// LoadServerConfig reads dev server config from environment or returns defaults
func LoadServerConfig() (*ServerConfig, error) {
	return &ServerConfig{
		ServerAddr:    envOrDefault("SERVER_ADDR", ":8080"),
		DatabasePath:  envOrDefault("DATABASE_PATH", "./data/lunch.db"),
		AdminUsername: envOrDefault("ADMIN_USER", "admin"),
		AdminPassword: envOrDefault("ADMIN_PASSWORD", "password"),
		RedisEnabled:  envBool("REDIS_ENABLED", false),
		Redis:         redisFromEnv(pubsub.RedisConfig{Host: "localhost", Port: 6379}),
		MessageRate:   envDuration("MESSAGE_RATE", 500*time.Millisecond),
		MessageBurst:  envInt("MESSAGE_BURST", 5),
	}, nil
}

type ClientConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	// UserID addresses push nudges; required when nudges are enabled
	UserID         string        `yaml:"user_id"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// CacheStrategy is none, bridge or delegated
	CacheStrategy string        `yaml:"cache_strategy"`
	Poll          PollSettings  `yaml:"poll"`
	Retry         RetrySettings `yaml:"retry"`
	Nudge         NudgeSettings `yaml:"nudge"`
}

type PollSettings struct {
	MatchInterval    time.Duration `yaml:"match_interval"`
	ChatInterval     time.Duration `yaml:"chat_interval"`
	Immediate        bool          `yaml:"immediate"`
	DetectVisibility bool          `yaml:"detect_visibility"`
	StopOnMatch      bool          `yaml:"stop_on_match"`
	ShowError        bool          `yaml:"show_error"`
	ErrorAutoHide    time.Duration `yaml:"error_auto_hide"`
}

type RetrySettings struct {
	// MaxRetries of zero disables retrying within a tick
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
}

type NudgeSettings struct {
	Enabled  bool               `yaml:"enabled"`
	Redis    pubsub.RedisConfig `yaml:"redis"`
	Channel  string             `yaml:"channel"`
	MinDelay time.Duration      `yaml:"min_delay"`
	Burst    int                `yaml:"burst"`
}

// DefaultClientConfig returns the client defaults used before any file or env override.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:        "http://localhost:8080",
		RequestTimeout: 10 * time.Second,
		CacheStrategy:  "none",
		Poll: PollSettings{
			MatchInterval:    3 * time.Second,
			ChatInterval:     3 * time.Second,
			Immediate:        true,
			DetectVisibility: true,
			StopOnMatch:      true,
			ShowError:        true,
			ErrorAutoHide:    5 * time.Second,
		},
		Retry: RetrySettings{
			MaxRetries:     2,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2.0,
		},
		Nudge: NudgeSettings{
			Redis:    pubsub.RedisConfig{Host: "localhost", Port: 6379},
			Channel:  EventsChannel,
			MinDelay: 500 * time.Millisecond,
			Burst:    3,
		},
	}
}

// LoadClientConfig applies the YAML file at path (optional) over the defaults,
// then environment overrides. CLI flags are applied by the caller.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.BaseURL = envOrDefault("LUNCH_API_URL", cfg.BaseURL)
	cfg.Token = envOrDefault("LUNCH_TOKEN", cfg.Token)
	cfg.UserID = envOrDefault("LUNCH_USER_ID", cfg.UserID)
	cfg.RequestTimeout = envDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.CacheStrategy = envOrDefault("CACHE_STRATEGY", cfg.CacheStrategy)

	cfg.Poll.MatchInterval = envDuration("MATCH_POLL_INTERVAL", cfg.Poll.MatchInterval)
	cfg.Poll.ChatInterval = envDuration("CHAT_POLL_INTERVAL", cfg.Poll.ChatInterval)
	cfg.Poll.StopOnMatch = envBool("STOP_ON_MATCH", cfg.Poll.StopOnMatch)
	cfg.Poll.DetectVisibility = envBool("DETECT_VISIBILITY", cfg.Poll.DetectVisibility)

	cfg.Retry.MaxRetries = envInt("FETCH_MAX_RETRIES", cfg.Retry.MaxRetries)
	cfg.Retry.InitialBackoff = envDuration("FETCH_INITIAL_BACKOFF", cfg.Retry.InitialBackoff)
	cfg.Retry.MaxBackoff = envDuration("FETCH_MAX_BACKOFF", cfg.Retry.MaxBackoff)
	if v := os.Getenv("FETCH_BACKOFF_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retry.Multiplier = f
		}
	}

	cfg.Nudge.Enabled = envBool("NUDGE_ENABLED", cfg.Nudge.Enabled)
	cfg.Nudge.Redis = redisFromEnv(cfg.Nudge.Redis)

	return cfg, nil
}

// Validate rejects configurations that cannot poll.
func (c *ClientConfig) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	}
	if c.Poll.MatchInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: match_interval %s", poll.ErrInvalidInterval, c.Poll.MatchInterval))
	}
	if c.Poll.ChatInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: chat_interval %s", poll.ErrInvalidInterval, c.Poll.ChatInterval))
	}
	if c.Poll.ErrorAutoHide < 0 {
		errs = append(errs, errors.New("error_auto_hide must not be negative"))
	}
	if c.Nudge.Enabled && c.Nudge.Burst <= 0 {
		errs = append(errs, errors.New("nudge burst must be positive"))
	}
	if c.Nudge.Enabled && c.UserID == "" {
		errs = append(errs, errors.New("user_id is required when nudges are enabled"))
	}
	return errors.Join(errs...)
}

// MatchPollConfig is the session config for the match poller.
func (c *ClientConfig) MatchPollConfig() poll.Config {
	return c.pollConfig(c.Poll.MatchInterval)
}

// ChatPollConfig is the session config for the chat poller.
func (c *ClientConfig) ChatPollConfig() poll.Config {
	return c.pollConfig(c.Poll.ChatInterval)
}

func (c *ClientConfig) pollConfig(interval time.Duration) poll.Config {
	return poll.Config{
		Interval:             interval,
		Immediate:            c.Poll.Immediate,
		DetectVisibility:     c.Poll.DetectVisibility,
		ShowError:            c.Poll.ShowError,
		ErrorAutoHideTimeout: c.Poll.ErrorAutoHide,
	}
}

func (c *ClientConfig) RetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:     c.Retry.MaxRetries,
		InitialBackoff: c.Retry.InitialBackoff,
		MaxBackoff:     c.Retry.MaxBackoff,
		Multiplier:     c.Retry.Multiplier,
		Jitter:         true,
	}
}

func redisFromEnv(def pubsub.RedisConfig) pubsub.RedisConfig {
	return pubsub.RedisConfig{
		Host:     envOrDefault("REDIS_HOST", def.Host),
		Port:     envInt("REDIS_PORT", def.Port),
		Password: envOrDefault("REDIS_PASSWORD", def.Password),
		DB:       envInt("REDIS_DB", def.DB),
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// envDuration accepts Go durations ("750ms") or whole seconds ("5").
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if i, err := strconv.Atoi(v); err == nil {
		return time.Duration(i) * time.Second
	}
	return def
}
