package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"3000"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Comma-separated list; "*" allows any origin for both CORS and the live channel.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" default:"*"`

	MultiPollSubscriptions bool `env:"MULTI_POLL_SUBSCRIPTIONS" default:"false"`
	VoteRejectionNotices   bool `env:"VOTE_REJECTION_NOTICES" default:"false"`
	MaxOptions             int  `env:"MAX_OPTIONS" default:"20"`
	MaxClientsPerPoll      int  `env:"MAX_CLIENTS_PER_POLL" default:"0"`

	CreateRateLimit float64 `env:"CREATE_RATE_LIMIT" default:"5"`
	CreateRateBurst int     `env:"CREATE_RATE_BURST" default:"10"`

	// Live-channel protection; 0 disables the respective limit.
	MaxConnections      int     `env:"MAX_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	VoteRateLimit       float64 `env:"VOTE_RATE_LIMIT" default:"0"`
	VoteRateBurst       int     `env:"VOTE_RATE_BURST" default:"10"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func validate(cfg *Config) error {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", cfg.Port)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	if cfg.MaxOptions < 2 {
		return errors.New("MAX_OPTIONS must be at least 2")
	}
	if cfg.MaxClientsPerPoll < 0 {
		return errors.New("MAX_CLIENTS_PER_POLL must not be negative")
	}
	if cfg.CreateRateLimit <= 0 {
		return errors.New("CREATE_RATE_LIMIT must be positive")
	}
	if cfg.CreateRateBurst < 1 {
		return errors.New("CREATE_RATE_BURST must be at least 1")
	}
	if cfg.MaxConnections < 0 || cfg.MaxConnectionsPerIP < 0 {
		return errors.New("MAX_CONNECTIONS and MAX_CONNECTIONS_PER_IP must not be negative")
	}
	if cfg.VoteRateLimit < 0 {
		return errors.New("VOTE_RATE_LIMIT must not be negative")
	}
	if cfg.VoteRateLimit > 0 && cfg.VoteRateBurst < 1 {
		return errors.New("VOTE_RATE_BURST must be at least 1 when VOTE_RATE_LIMIT is set")
	}
	if len(cfg.AllowedOrigins) == 0 {
		return errors.New("ALLOWED_ORIGINS must not be empty")
	}

	return nil
}
