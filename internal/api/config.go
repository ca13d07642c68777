// Package api provides the HTTP server for rxledger. JSON endpoints live in
// the v1 subpackage; this package owns the echo instance, middleware and
// lifecycle.
package api

import (
	"fmt"
	"net"
	"time"

	"github.com/rxledger/rxledger/internal/conf"
	"github.com/rxledger/rxledger/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 5 * time.Minute // a submission waits for block inclusion
	DefaultIdleTimeout  = 120 * time.Second

	DefaultShutdownTimeout = 10 * time.Second

	// DefaultBodyLimit bounds uploaded images.
	DefaultBodyLimit = "12M"
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen string // host:port

	AllowedOrigins []string // CORS allowed origins

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string // e.g. "12M"

	Debug bool
}

// ConfigFromSettings builds a Config from the webserver settings.
func ConfigFromSettings(settings conf.WebServerSettings) *Config {
	return &Config{
		Listen:          settings.Listen,
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
		Debug:           settings.Debug,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}
