package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inductor-io/inductor/internal/api/middleware"
	"github.com/inductor-io/inductor/internal/bus"
	"github.com/inductor-io/inductor/internal/decision"
	"github.com/inductor-io/inductor/internal/optimizer"
	"github.com/inductor-io/inductor/internal/simulator"
	"github.com/inductor-io/inductor/internal/statusloop"
)

// Version is the service version reported by health responses. Overridden
// at build time with -ldflags.
var Version = "1.0.0-dev"

// Dependencies are the runtime collaborators injected into the server.
// Configuration (what) stays in ServerConfig; dependencies (how) live here.
type Dependencies struct {
	Engine      *decision.Engine
	Registry    *optimizer.Registry
	Simulator   *simulator.Simulator
	Loop        *statusloop.Loop
	Bus         *bus.Bus
	RateLimiter middleware.RateLimiter
}

// Server is the HTTP command surface.
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	logger      *slog.Logger
	config      *ServerConfig
	startTime   time.Time
	engine      *decision.Engine
	registry    *optimizer.Registry
	simulator   *simulator.Simulator
	loop        *statusloop.Loop
	bus         *bus.Bus
	rateLimiter middleware.RateLimiter
	idempotency *idempotencyCache
}

// NewServer creates the HTTP server with the full middleware chain wired.
func NewServer(cfg *ServerConfig, deps Dependencies) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	server := &Server{
		logger:      logger,
		config:      cfg,
		engine:      deps.Engine,
		registry:    deps.Registry,
		simulator:   deps.Simulator,
		loop:        deps.Loop,
		bus:         deps.Bus,
		rateLimiter: deps.RateLimiter,
		idempotency: newIdempotencyCache(),
	}

	mux := http.NewServeMux()
	server.setupRoutes(mux)

	if deps.RateLimiter == nil {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	// Middleware executes top-to-bottom: correlation id first so every
	// downstream log line and error carries it, recovery before any
	// handler work, rate limiting before expensive operations.
	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithRateLimit(deps.RateLimiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	server.handler = handler
	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Handler exposes the fully wired handler chain, for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server and blocks until shutdown. SIGINT and
// SIGTERM trigger a graceful drain.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting induction API server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

// shutdown drains in-flight requests within the shutdown timeout, then
// releases the server's own resources. The status loop, run registry, bus,
// and store are owned by main and closed there in dependency order.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed", slog.Any("error", err))

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if closer, ok := s.rateLimiter.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("Failed to close rate limiter", slog.Any("error", err))
		}
	}

	s.logger.Info("Server shutdown completed successfully")

	return nil
}
