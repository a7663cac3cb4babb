package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/logrelay/internal/adapter/api"
	"github.com/V4T54L/logrelay/internal/adapter/metrics"
	"github.com/V4T54L/logrelay/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/logrelay/internal/adapter/repository/redis"
	"github.com/V4T54L/logrelay/internal/pkg/config"
	"github.com/V4T54L/logrelay/internal/pkg/logger"
	"github.com/V4T54L/logrelay/internal/pkg/tracing"
	"github.com/V4T54L/logrelay/internal/usecase"
)

const (
	processingInterval = 1 * time.Second
	retryCount         = 3
	retryBackoff       = 1 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	if cfg.RedisAddr == "" || cfg.PostgresURL == "" {
		log.Error("archive consumer requires REDIS_ADDR and POSTGRES_URL")
		os.Exit(1)
	}
	log.Info("starting archive consumer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := func(context.Context) error { return nil }
	if cfg.TraceStdout {
		shutdownTracing, err = tracing.Setup("logrelay-consumer", os.Stderr)
		if err != nil {
			log.Error("failed to set up tracing", "error", err)
			os.Exit(1)
		}
		log.Info("exporting traces to stderr")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisAddr)
	if err != nil {
		log.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to redis")

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Error("failed to open postgres connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	log.Info("connected to postgres")

	// Hostname keeps consumer names stable across restarts so pending
	// entries are re-read by the same instance.
	consumerName, err := os.Hostname()
	if err != nil {
		log.Warn("could not get hostname for consumer name, using default", "error", err)
		consumerName = "archiver-default"
	}

	recordRepo := redisrepo.NewRecordRepository(redisClient, log, cfg.RedisStream, cfg.RedisDLQStream, nil)
	if err := recordRepo.EnsureGroup(ctx, cfg.ConsumerGroup); err != nil {
		log.Error("failed to create consumer group", "error", err)
		os.Exit(1)
	}
	archiveRepo := postgres.NewArchiveRepository(db, log)
	if err := archiveRepo.EnsureSchema(ctx); err != nil {
		log.Error("failed to prepare archive schema", "error", err)
		os.Exit(1)
	}

	m := metrics.NewIngestMetrics(prometheus.DefaultRegisterer)
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           api.NewAdminRouter(nil, prometheus.DefaultGatherer, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("starting metrics server", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()
	processLogsUseCase := usecase.NewProcessLogsUseCase(recordRepo, archiveRepo, m, log, cfg.ConsumerGroup, consumerName, retryCount, retryBackoff)

	ticker := time.NewTicker(processingInterval)
	defer ticker.Stop()

	log.Info("archive consumer started", "group", cfg.ConsumerGroup, "consumer", consumerName)

Loop:
	for {
		select {
		case <-ticker.C:
			// Drain everything available before waiting for the next tick.
			for {
				processed, err := processLogsUseCase.ProcessBatch(ctx)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						log.Error("error processing batch", "error", err)
					}
					break
				}
				if processed == 0 {
					break
				}
			}
		case <-ctx.Done():
			log.Info("context cancelled, shutting down consumer loop")
			break Loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", "error", err)
	}
	log.Info("archive consumer shut down gracefully")
}
