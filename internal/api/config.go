// Package api provides the HTTP command surface for the induction planning
// core: decision generation, optimization runs, what-if simulations, status
// sweeps, and the server-sent event stream.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/inductor-io/inductor/internal/config"
)

const (
	defaultPort       = 8080
	maxPort           = 65535
	defaultHost       = "0.0.0.0"
	defaultCORSMaxAge = 86400
	defaultTimeout    = 30 * time.Second
	defaultLogLevel   = slog.LevelInfo

	// SSE responses stay open indefinitely; the write timeout applies only
	// to the regular request surface, so streams get their own deadline of
	// zero via http.ResponseController.
	defaultMaxRequestSize int64 = 1 << 20
)

var (
	// ErrInvalidPort indicates the port number is outside 1-65535.
	ErrInvalidPort = errors.New("invalid port")

	// ErrEmptyHost indicates the server host address is empty.
	ErrEmptyHost = errors.New("host cannot be empty")

	// ErrInvalidTimeout indicates a zero or negative server timeout.
	ErrInvalidTimeout = errors.New("server timeouts must be positive")

	// ErrInvalidMaxRequestSize indicates the max request size is not positive.
	ErrInvalidMaxRequestSize = errors.New("max request size must be positive")
)

type (
	// ServerConfig holds HTTP server configuration. Pure configuration,
	// no runtime dependencies.
	ServerConfig struct {
		Port               int
		Host               string
		ReadTimeout        time.Duration
		WriteTimeout       time.Duration
		ShutdownTimeout    time.Duration
		LogLevel           slog.Level
		MaxRequestSize     int64
		CORSAllowedOrigins []string
		CORSAllowedMethods []string
		CORSAllowedHeaders []string
		CORSMaxAge         int
	}

	// CORSConfig adapts the server's CORS fields to the middleware interface.
	CORSConfig struct {
		AllowedOrigins []string
		AllowedMethods []string
		AllowedHeaders []string
		MaxAge         int
	}
)

// LoadServerConfig loads server configuration from environment variables
// with sensible defaults.
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            config.GetEnvInt("INDUCTOR_SERVER_PORT", defaultPort),
		Host:            config.GetEnvStr("INDUCTOR_SERVER_HOST", defaultHost),
		ReadTimeout:     config.GetEnvDuration("INDUCTOR_SERVER_READ_TIMEOUT", defaultTimeout),
		WriteTimeout:    config.GetEnvDuration("INDUCTOR_SERVER_WRITE_TIMEOUT", defaultTimeout),
		ShutdownTimeout: config.GetEnvDuration("INDUCTOR_SERVER_SHUTDOWN_TIMEOUT", defaultTimeout),
		LogLevel:        config.GetEnvLogLevel("INDUCTOR_SERVER_LOG_LEVEL", defaultLogLevel),
		MaxRequestSize:  config.GetEnvInt64("INDUCTOR_MAX_REQUEST_SIZE", defaultMaxRequestSize),
		CORSAllowedOrigins: config.ParseCommaSeparatedList(
			config.GetEnvStr("INDUCTOR_CORS_ALLOWED_ORIGINS", "*"),
		),
		CORSAllowedMethods: config.ParseCommaSeparatedList(
			config.GetEnvStr("INDUCTOR_CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
		),
		CORSAllowedHeaders: config.ParseCommaSeparatedList(
			config.GetEnvStr("INDUCTOR_CORS_ALLOWED_HEADERS",
				"Content-Type,X-Correlation-ID,Idempotency-Key,Last-Event-ID"),
		),
		CORSMaxAge: config.GetEnvInt("INDUCTOR_CORS_MAX_AGE", defaultCORSMaxAge),
	}
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ToCORSConfig converts the CORS fields to the middleware provider.
func (c *ServerConfig) ToCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: c.CORSAllowedMethods,
		AllowedHeaders: c.CORSAllowedHeaders,
		MaxAge:         c.CORSMaxAge,
	}
}

// GetAllowedOrigins implements middleware.CORSConfig.
func (c *CORSConfig) GetAllowedOrigins() []string { return c.AllowedOrigins }

// GetAllowedMethods implements middleware.CORSConfig.
func (c *CORSConfig) GetAllowedMethods() []string { return c.AllowedMethods }

// GetAllowedHeaders implements middleware.CORSConfig.
func (c *CORSConfig) GetAllowedHeaders() []string { return c.AllowedHeaders }

// GetMaxAge implements middleware.CORSConfig.
func (c *CORSConfig) GetMaxAge() int { return c.MaxAge }

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > maxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, maxPort)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: read=%v write=%v shutdown=%v",
			ErrInvalidTimeout, c.ReadTimeout, c.WriteTimeout, c.ShutdownTimeout)
	}

	if c.MaxRequestSize <= 0 {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidMaxRequestSize, c.MaxRequestSize)
	}

	return nil
}
