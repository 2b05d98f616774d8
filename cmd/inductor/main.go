// Package main provides the Inductor induction planning service.
//
// The service assembles the nightly induction decision surface for a metro
// fleet: rule-based ranking, multi-objective optimization, what-if
// simulation, and the autonomous status loop, all behind one HTTP API.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/inductor-io/inductor/internal/api"
	"github.com/inductor-io/inductor/internal/api/middleware"
	"github.com/inductor-io/inductor/internal/bus"
	"github.com/inductor-io/inductor/internal/config"
	"github.com/inductor-io/inductor/internal/decision"
	"github.com/inductor-io/inductor/internal/optimizer"
	"github.com/inductor-io/inductor/internal/simulator"
	"github.com/inductor-io/inductor/internal/statusloop"
	"github.com/inductor-io/inductor/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "inductor"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting Inductor service",
		slog.String("service", name),
		slog.String("version", version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	scoring, err := config.LoadScoringFile(config.GetEnvStr("INDUCTOR_SCORING_FILE", ""))
	if err != nil {
		logger.Error("Failed to load scoring configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Scoring weights loaded",
		slog.Float64("certificate", scoring.Weights.Certificate),
		slog.Float64("workorder", scoring.Weights.WorkOrder),
		slog.Float64("branding", scoring.Weights.Branding),
		slog.Float64("mileage", scoring.Weights.Mileage),
		slog.Float64("cleaning", scoring.Weights.Cleaning),
		slog.Float64("stabling", scoring.Weights.Stabling),
	)

	rateLimitConfig := middleware.LoadRateLimitConfig()
	rateLimiter := middleware.NewInMemoryRateLimiter(rateLimitConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", rateLimitConfig.GlobalRPS),
		slog.Int("client_rps", rateLimitConfig.ClientRPS),
	)

	store, closeStore := buildFleetStore(logger)
	defer closeStore()

	eventBus := bus.New(logger, busOptions(scoring)...)
	defer eventBus.Close()

	mirror := startMirror(eventBus, logger)
	if mirror != nil {
		defer mirror.Stop()
	}

	engine := decision.NewEngine(store, eventBus, logger,
		decision.WithWeights(scoring.Weights),
	)

	registry := optimizer.NewRegistry(store, eventBus, logger,
		optimizer.WithRegistryWeights(scoring.Weights),
	)
	defer registry.Close()

	sim := simulator.New(store, engine, registry, logger)

	loop := statusloop.New(store, eventBus, logger)
	if err := loop.Start(); err != nil {
		logger.Error("Failed to start status loop", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer loop.Stop()

	server := api.NewServer(serverConfig, api.Dependencies{
		Engine:      engine,
		Registry:    registry,
		Simulator:   sim,
		Loop:        loop,
		Bus:         eventBus,
		RateLimiter: rateLimiter,
	})

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("Inductor service stopped")
}

// buildFleetStore connects to PostgreSQL when DATABASE_URL is set and falls
// back to the in-memory store for single-node trials. The returned closer is
// safe to defer either way.
func buildFleetStore(logger *slog.Logger) (storage.FleetStore, func()) {
	storageConfig := storage.LoadConfig()

	if err := storageConfig.Validate(); err != nil {
		logger.Warn("DATABASE_URL not set - using in-memory fleet store",
			slog.String("note", "fleet state will not survive a restart"),
		)

		return storage.NewMemoryFleetStore(), func() {}
	}

	conn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Fleet store initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
		slog.Int("database_max_open_conns", storageConfig.MaxOpenConns),
		slog.Int("database_max_idle_conns", storageConfig.MaxIdleConns),
		slog.Duration("database_conn_max_lifetime", storageConfig.ConnMaxLifetime),
		slog.Duration("database_conn_max_idle_time", storageConfig.ConnMaxIdleTime),
	)

	return storage.NewPostgresFleetStore(conn, logger), func() { _ = conn.Close() }
}

// busOptions maps scoring-file policy overrides onto the bus defaults.
func busOptions(scoring *config.ScoringFile) []bus.Option {
	if len(scoring.Policies) == 0 {
		return nil
	}

	table := bus.DefaultPolicyTable()

	for topic, policy := range scoring.Policies {
		table[bus.Topic(topic)] = bus.Policy(policy)
	}

	return []bus.Option{bus.WithPolicyTable(table)}
}

// startMirror wires the Kafka event mirror when brokers are configured.
// Returns nil when the mirror is disabled.
func startMirror(eventBus *bus.Bus, logger *slog.Logger) *bus.Mirror {
	mirrorConfig := bus.LoadMirrorConfig()
	if !mirrorConfig.Enabled() {
		logger.Info("Kafka mirror disabled",
			slog.String("note", "Set KAFKA_BROKERS to mirror events off-process"),
		)

		return nil
	}

	mirror, err := bus.StartMirror(eventBus, mirrorConfig, nil, logger)
	if err != nil {
		logger.Error("Failed to start kafka mirror", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Kafka mirror started",
		slog.Int("brokers", len(mirrorConfig.Brokers)),
		slog.String("topic", mirrorConfig.Topic),
	)

	return mirror
}
