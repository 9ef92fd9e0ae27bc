// Package main is the entry point for the procflow orchestration server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/venlo/procflow/internal/bus"
	"github.com/venlo/procflow/internal/catalog"
	"github.com/venlo/procflow/internal/config"
	"github.com/venlo/procflow/internal/dispatch"
	"github.com/venlo/procflow/internal/engine"
	"github.com/venlo/procflow/internal/history"
	"github.com/venlo/procflow/internal/observability"
	"github.com/venlo/procflow/internal/stats"
	"github.com/venlo/procflow/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "procflow", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Stores: Postgres when configured, in-memory otherwise.
	stores, closeStores, err := buildStores(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}

	// Event bus and the optional Redis bridge.
	eventBus := bus.New(logger.Named("bus"))
	var bridge *bus.RedisBridge
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("redis ping failed", zap.Error(err))
			return 1
		}
		bridge = bus.NewRedisBridge(client, cfg.Redis.ChannelPrefix)
		defer client.Close()
	}

	ledger := history.NewLedger(stores.history)
	ledger.OnAppend(dispatch.LedgerHook(metrics))

	// The catalog's reference check closes over the engine, which in turn
	// resolves definitions through the catalog.
	var eng *engine.Engine
	cat := catalog.New(stores.definitions, func(ctx context.Context, definitionID string) (bool, error) {
		if eng == nil {
			return true, nil
		}
		return eng.ExistsForDefinition(ctx, definitionID)
	})

	numbers := engine.NewNumberGenerator(cfg.Engine.InstanceNumberPrefix)
	eng = engine.NewEngine(stores.instances, stores.steps, ledger, eventBus, cat, numbers, logger.Named("engine"))
	tracker := engine.NewTracker(eng, stores.steps, ledger, eventBus, logger.Named("tracker"), cfg.Engine.DefaultMaxRetries)

	dispatch.Register(eventBus, logger.Named("dispatch"), metrics, bridge)

	// Seed definitions from disk.
	loader := catalog.NewLoader(cat)
	seeded, err := loader.LoadAll(ctx, cfg.Definitions.Directories)
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}
	metrics.DefinitionsLoaded.Set(float64(len(seeded)))
	logger.Info("definitions loaded", zap.Int("count", len(seeded)))

	statsProvider := stats.NewProvider(cat, eng)

	readinessChecks := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool {
			total, _, err := cat.Counts(context.Background())
			return err == nil && total > 0
		},
	}
	if hc, ok := stores.instances.(observability.HealthChecker); ok {
		readinessChecks.InstanceStore = hc
	}
	if bridge != nil {
		readinessChecks.EventBridge = bridge
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:  cfg,
		Logger:  logger.Named("http"),
		Metrics: metrics,
		Ready:   observability.HandleReady(readinessChecks),
		Catalog: cat,
		Engine:  eng,
		Tracker: tracker,
		Ledger:  ledger,
		Stats:   statsProvider,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests, then let
	// in-flight event deliveries finish before closing stores.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	eventBus.Close()

	if closeStores != nil {
		closeStores()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// storeSet bundles the persistence backends for all components.
type storeSet struct {
	definitions catalog.Store
	instances   engine.InstanceStore
	steps       engine.StepStore
	history     history.Store
}

// buildStores creates the persistence layer based on config. Returns a
// closer for the shared connection pool when Postgres is used.
func buildStores(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (storeSet, func(), error) {
	if !cfg.Enabled {
		logger.Info("using in-memory stores")
		return storeSet{
			definitions: catalog.NewMemoryStore(),
			instances:   engine.NewMemoryInstanceStore(),
			steps:       engine.NewMemoryStepStore(),
			history:     history.NewMemoryStore(),
		}, nil, nil
	}

	dsn := cfg.DSN()
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return storeSet{}, nil, fmt.Errorf("parse DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return storeSet{}, nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return storeSet{}, nil, fmt.Errorf("ping: %w", err)
	}

	logger.Info("using postgres stores")
	return storeSet{
		definitions: catalog.NewPgStore(pool),
		instances:   engine.NewPgInstanceStore(pool),
		steps:       engine.NewPgStepStore(pool),
		history:     history.NewPgStore(pool),
	}, pool.Close, nil
}
