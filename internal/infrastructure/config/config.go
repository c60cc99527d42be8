package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Agent     AgentConfig
	Stream    StreamConfig
	History   HistoryConfig
	Session   SessionConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8600"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// AgentConfig holds backend agent service configuration.
type AgentConfig struct {
	BaseURL         string        `envconfig:"AGENT_BASE_URL" default:"http://localhost:9700"`
	DispatchTimeout time.Duration `envconfig:"AGENT_DISPATCH_TIMEOUT" default:"30s"`
	MaxRetries      int           `envconfig:"AGENT_MAX_RETRIES" default:"3"`
	RateLimit       float64       `envconfig:"AGENT_RATE_LIMIT" default:"50"`
	RateBurst       int           `envconfig:"AGENT_RATE_BURST" default:"100"`
}

// StreamConfig holds stream ingestion configuration.
type StreamConfig struct {
	IdleTimeout time.Duration `envconfig:"STREAM_IDLE_TIMEOUT" default:"60s"`
}

// HistoryConfig holds per-widget history capacity overrides. Zero means
// the widget spec's own capacity applies.
type HistoryConfig struct {
	DreamCapacity     int `envconfig:"HISTORY_DREAM_CAPACITY" default:"0"`
	OmniCapacity      int `envconfig:"HISTORY_OMNI_CAPACITY" default:"0"`
	KnowledgeCapacity int `envconfig:"HISTORY_KNOWLEDGE_CAPACITY" default:"0"`
	ProductCapacity   int `envconfig:"HISTORY_PRODUCT_CAPACITY" default:"0"`
}

// SessionConfig holds session lifecycle configuration.
type SessionConfig struct {
	TTL           time.Duration `envconfig:"SESSION_TTL" default:"30m"`
	SweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"5m"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8600",
			Host: "0.0.0.0",
		},
		Agent: AgentConfig{
			BaseURL:         "http://localhost:9700",
			DispatchTimeout: 30 * time.Second,
			MaxRetries:      3,
			RateLimit:       50,
			RateBurst:       100,
		},
		Stream: StreamConfig{
			IdleTimeout: 60 * time.Second,
		},
		Session: SessionConfig{
			TTL:           30 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
