// Command engine launches the swap order execution engine: the HTTP/
// WebSocket API, the execution worker pool, and their shared Postgres/
// Redis dependencies.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"

	"github.com/swaprouter/engine/internal/audit"
	"github.com/swaprouter/engine/internal/config"
	"github.com/swaprouter/engine/internal/httpapi"
	"github.com/swaprouter/engine/internal/notify"
	"github.com/swaprouter/engine/internal/observability"
	"github.com/swaprouter/engine/internal/orchestrator"
	"github.com/swaprouter/engine/internal/queue"
	"github.com/swaprouter/engine/internal/store/migrations"
	"github.com/swaprouter/engine/internal/store/postgres"
	semconv "github.com/swaprouter/engine/internal/telemetry"
	"github.com/swaprouter/engine/internal/venue"
	"github.com/swaprouter/engine/internal/venue/mock"
	"github.com/swaprouter/engine/internal/worker"
	"github.com/swaprouter/engine/lib/telemetry"
)

const (
	engineLoggerPrefix       = "engine "
	httpShutdownTimeout      = 5 * time.Second
	workerShutdownTimeout    = 10 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	redisShutdownTimeout     = 2 * time.Second
	httpReadHeaderTimeout    = 5 * time.Second
	quoteTimeout             = 2 * time.Second
	dlqCapacity              = 1000
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stdout, engineLoggerPrefix, log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	semconv.SetEnvironment(cfg.Telemetry.Environment)
	logger.Printf("configuration loaded: port=%d env=%s", cfg.Port, cfg.Telemetry.Environment)

	if err := migrations.Apply(ctx, cfg.DB.DSN(), logger); err != nil {
		logger.Fatalf("apply migrations: %v", err)
	}

	pgPool, err := postgres.Connect(ctx, cfg.DB.DSN(), cfg.DB.PoolMin, cfg.DB.PoolMax)
	if err != nil {
		logger.Fatalf("connect postgres: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatalf("connect redis: %v", err)
	}

	_, telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatalf("init telemetry: %v", err)
	}

	store := postgres.New(pgPool)

	registry := venue.NewRegistry()
	for _, adapter := range mock.DefaultVenues() {
		registry.Register(adapter)
	}
	aggregator := venue.NewAggregator(registry, quoteTimeout)

	bus := audit.New(store)
	hub := notify.New()

	dlq := observability.NewDeadLetterQueue(dlqCapacity)
	q, err := queue.New(ctx, redisClient, queue.Options{MaxAttempts: cfg.Queue.MaxAttempts}, dlq)
	if err != nil {
		logger.Fatalf("init queue: %v", err)
	}

	orch := orchestrator.New(store, registry, aggregator, bus, hub, cfg.WalletAddress)
	pool := worker.New(q, orch, worker.Options{Concurrency: cfg.Queue.Concurrency})
	pool.Run()
	logger.Printf("worker pool started: concurrency=%d", cfg.Queue.Concurrency)

	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpapi.New(store, q, bus, hub, pgPool, redisClient).Handler(),
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("http server: %v", err)
		}
	})
	logger.Printf("http server listening on %s", apiServer.Addr)

	logger.Print("engine started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpShutdownTimeout+workerShutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	performGracefulShutdown(shutdownCtx, logger, apiServer, pool, redisClient, pgPool, telemetryShutdown)
	lifecycle.Wait()
	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func performGracefulShutdown(ctx context.Context, logger *log.Logger, server *http.Server, pool *worker.Pool, redisClient *redis.Client, pgPool *pgxpool.Pool, telemetryShutdown func(context.Context) error) {
	step := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Printf("shutdown: %s...", name)
		if err := fn(stepCtx); err != nil {
			logger.Printf("shutdown: %s failed: %v", name, err)
			return
		}
		logger.Printf("shutdown: %s completed", name)
	}

	step("stopping http server", httpShutdownTimeout, func(stepCtx context.Context) error {
		return server.Shutdown(stepCtx)
	})
	step("draining worker pool", workerShutdownTimeout, func(stepCtx context.Context) error {
		return pool.Shutdown(stepCtx)
	})
	step("closing redis client", redisShutdownTimeout, func(context.Context) error {
		return redisClient.Close()
	})
	step("shutting down telemetry", telemetryShutdownTimeout, telemetryShutdown)

	logger.Print("shutdown: closing postgres pool")
	pgPool.Close()
}
