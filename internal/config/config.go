// Package config loads the server configuration from the environment.
// An optional .env file in the working directory is applied first.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the qchat backend.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"host=localhost user=user password=password dbname=qchatdb port=5432 sslmode=disable"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// JWTSecret validates the identity tokens issued by the auth service.
	JWTSecret      string   `env:"JWT_SECRET,required,notEmpty"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// MatchTimeout is how long a WaitingTicket may sit in the queue.
	MatchTimeout    time.Duration `env:"MATCH_TIMEOUT" envDefault:"5s"`
	SweepInterval   time.Duration `env:"MATCH_SWEEP_INTERVAL" envDefault:"1s"`
	ProfileCacheTTL time.Duration `env:"PROFILE_CACHE_TTL" envDefault:"5m"`
	StorageTimeout  time.Duration `env:"STORAGE_TIMEOUT" envDefault:"5s"`

	ClientSendBuffer int `env:"CLIENT_SEND_BUFFER" envDefault:"256"`
}

// Load reads .env (if present) and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the hub cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.MatchTimeout <= 0 {
		errs = append(errs, errors.New("MATCH_TIMEOUT must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("MATCH_SWEEP_INTERVAL must be positive"))
	}
	if c.StorageTimeout <= 0 {
		errs = append(errs, errors.New("STORAGE_TIMEOUT must be positive"))
	}
	if c.ProfileCacheTTL < 0 {
		errs = append(errs, errors.New("PROFILE_CACHE_TTL must not be negative"))
	}
	if c.ClientSendBuffer <= 0 {
		errs = append(errs, errors.New("CLIENT_SEND_BUFFER must be positive"))
	}
	return errors.Join(errs...)
}
