// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the friendchat service.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string        `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=4096"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST,default=5"`
	RateLimitRefill time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
	SendBuffer      int           `env:"SEND_BUFFER,default=256"`

	DatabasePath string        `env:"DATABASE_PATH,default=friendchat.db"`
	TokenSecret  string        `env:"TOKEN_SECRET"`
	TokenTTL     time.Duration `env:"TOKEN_TTL,default=24h"`

	// RoomCapacity caps how many participants may share a room. Zero keeps
	// rooms unbounded; two enforces strict two-party chats.
	RoomCapacity  int           `env:"ROOM_CAPACITY,default=0"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL,default=0s"`
	SweepGrace    time.Duration `env:"SWEEP_GRACE,default=2m"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	LogFormat       string        `env:"LOG_FORMAT,default=text"`
}

func defaultConfig() Config {
	return Config{
		Port:            ":8080",
		AllowedOrigins:  "http://localhost:8080",
		MaxMessageSize:  4096,
		RateLimitBurst:  5,
		RateLimitRefill: time.Second,
		SendBuffer:      256,
		DatabasePath:    "friendchat.db",
		TokenTTL:        24 * time.Hour,
		SweepGrace:      2 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() Config {
	return defaultConfig()
}

// LoadConfig reads an optional .env file and then the process environment.
// Unset variables fall back to their defaults.
func LoadConfig(dotenvFiles ...string) (Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return sanitizeConfig(cfg), nil
}

func sanitizeConfig(cfg Config) Config {
	defaults := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = defaults.RateLimitBurst
	}

	if cfg.RateLimitRefill <= 0 {
		cfg.RateLimitRefill = defaults.RateLimitRefill
	}

	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaults.SendBuffer
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaults.DatabasePath
	}

	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaults.TokenTTL
	}

	if cfg.RoomCapacity < 0 {
		cfg.RoomCapacity = 0
	}

	if cfg.SweepInterval < 0 {
		cfg.SweepInterval = 0
	}

	if cfg.SweepGrace < 0 {
		cfg.SweepGrace = 0
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}

	return cfg
}

// RateLimit returns the per-connection rate limit settings.
func (c Config) RateLimit() RateLimitConfig {
	return RateLimitConfig{
		Burst:          c.RateLimitBurst,
		RefillInterval: c.RateLimitRefill,
	}
}

// Origins returns the configured allowed origins as a list.
func (c Config) Origins() []string {
	return parseOrigins(c.AllowedOrigins)
}

func parseOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
