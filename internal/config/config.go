// Package config loads application configuration from environment variables.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the driftboard server and the embedded
// sync defaults handed to clients.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// API server (Fiber)
	ListenAddr     string `envconfig:"LISTEN_ADDR" default:":8080"`
	CORSOrigins    string `envconfig:"CORS_ORIGINS"`
	RateLimitRPS   int    `envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst int    `envconfig:"RATE_LIMIT_BURST" default:"200"`

	// Auth: "none", "api-key" or "jwt"
	AuthMode  string `envconfig:"AUTH_MODE" default:"none"`
	APIKey    string `envconfig:"API_KEY"`
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Stream + metrics listener (net/http)
	StreamListenAddr string `envconfig:"STREAM_LISTEN_ADDR" default:":8081"`

	// Presence
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"12s"`
	PresenceTTL       time.Duration `envconfig:"PRESENCE_TTL" default:"30s"`

	// Feeds
	FeedCap             int           `envconfig:"FEED_CAP" default:"50"`
	NoticeDismissDelay  time.Duration `envconfig:"NOTICE_DISMISS_DELAY" default:"5s"`

	// Stream reconnect backoff
	ReconnectBaseDelay time.Duration `envconfig:"RECONNECT_BASE_DELAY" default:"500ms"`
	ReconnectMaxDelay  time.Duration `envconfig:"RECONNECT_MAX_DELAY" default:"30s"`
	DegradedThreshold  int           `envconfig:"DEGRADED_THRESHOLD" default:"5"`

	// Planner
	ResumeTokenTTL time.Duration `envconfig:"RESUME_TOKEN_TTL" default:"30m"`

	// Storage: empty path keeps everything in memory
	DBPath   string `envconfig:"DB_PATH"`
	SeedPath string `envconfig:"SEED_PATH"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// AuthEnabled returns true unless auth mode is "none".
func (c *Config) AuthEnabled() bool {
	return c.AuthMode != "" && c.AuthMode != "none"
}

// Durable returns true when a sqlite path is configured.
func (c *Config) Durable() bool {
	return c.DBPath != ""
}
