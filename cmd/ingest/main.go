package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/V4T54L/logrelay/internal/adapter/api"
	"github.com/V4T54L/logrelay/internal/adapter/metrics"
	"github.com/V4T54L/logrelay/internal/adapter/pii"
	"github.com/V4T54L/logrelay/internal/adapter/repository/daily"
	redisrepo "github.com/V4T54L/logrelay/internal/adapter/repository/redis"
	"github.com/V4T54L/logrelay/internal/adapter/repository/spool"
	"github.com/V4T54L/logrelay/internal/adapter/tcp"
	"github.com/V4T54L/logrelay/internal/domain"
	"github.com/V4T54L/logrelay/internal/pkg/config"
	"github.com/V4T54L/logrelay/internal/pkg/logger"
	"github.com/V4T54L/logrelay/internal/ratelimit"
	"github.com/V4T54L/logrelay/internal/usecase"
)

const (
	redisHealthInterval = 5 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("ingest service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("ingest service shut down gracefully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewIngestMetrics(prometheus.DefaultRegisterer)

	store, err := daily.NewStore(cfg.LogDir, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// --- Optional Redis: record mirror, admin views, shared limiter ---
	var (
		redisClient *redis.Client
		publisher   domain.RecordPublisher
		adminUC     *usecase.AdminStreamUseCase
	)
	if cfg.RedisAddr != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisAddr)
		if err != nil {
			return err
		}
		redisClient = redis.NewClient(redisOpts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("could not connect to redis, mirroring will resume when it is reachable", "error", err)
		}

		var sp *spool.Spool
		if cfg.MirrorSpoolDir != "" {
			sp, err = spool.New(cfg.MirrorSpoolDir, cfg.MirrorSpoolSegmentBytes, cfg.MirrorSpoolMaxBytes, logger)
			if err != nil {
				return err
			}
			defer sp.Close()
		}

		recordRepo := redisrepo.NewRecordRepository(redisClient, logger, cfg.RedisStream, cfg.RedisDLQStream, sp)
		go recordRepo.StartHealthCheck(ctx, redisHealthInterval)
		publisher = recordRepo
		adminUC = usecase.NewAdminStreamUseCase(redisrepo.NewAdminRepository(redisClient, logger), cfg.RedisStream)
	}

	g, gctx := errgroup.WithContext(ctx)

	var limiter domain.RateLimiter
	switch cfg.RateLimitBackend {
	case config.BackendRedis:
		limiter = ratelimit.NewRedisSlidingWindow(redisClient, cfg.RateLimit, cfg.RateWindow, logger)
	default:
		memLimiter := ratelimit.NewSlidingWindow(cfg.RateLimit, cfg.RateWindow)
		g.Go(func() error {
			memLimiter.Run(gctx, cfg.RateSweepInterval, func(evicted int) {
				m.TrackedClients.Set(float64(memLimiter.Clients()))
				if evicted > 0 {
					logger.Debug("evicted idle rate-limit clients", "count", evicted)
				}
			})
			return nil
		})
		limiter = memLimiter
	}
	logger.Info("rate limiter configured", "backend", cfg.RateLimitBackend, "limit", cfg.RateLimit, "window", cfg.RateWindow)

	ingestUseCase := usecase.NewIngestLogUseCase(limiter, store, publisher, m, logger)
	if len(cfg.MirrorRedactFields) > 0 {
		redactor, err := pii.NewRedactor(cfg.MirrorRedactFields, logger)
		if err != nil {
			return err
		}
		ingestUseCase.WithRedactor(redactor)
	}

	// --- TCP ingest server ---
	server := tcp.NewServer(cfg.ListenAddr, ingestUseCase, m, logger, tcp.ServerConfig{
		MaxFrameSize:   cfg.MaxFrameSize,
		IdleTimeout:    cfg.IdleTimeout,
		MaxConnections: cfg.MaxConnections,
	})
	if err := server.Start(); err != nil {
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("stopping tcp server")
		return server.Stop()
	})

	// --- Admin and metrics server ---
	adminServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           api.NewAdminRouter(adminUC, prometheus.DefaultGatherer, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return adminServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
