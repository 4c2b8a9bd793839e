package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/rebase-analytics/ibreport/internal/config"
	"github.com/rebase-analytics/ibreport/internal/telemetry"
	"github.com/rebase-analytics/ibreport/pkg/cache"
	"github.com/rebase-analytics/ibreport/pkg/logging"
	"github.com/rebase-analytics/ibreport/pkg/metrics"
	"github.com/rebase-analytics/ibreport/pkg/ratelimit"
	"github.com/rebase-analytics/ibreport/pkg/redash"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load(getEnv("IBREPORT_CONFIG", ""))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCfg, err := logging.NewConfig(cfg.Log.Level, cfg.Log.Format, "report-server", os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid logging configuration")
	}
	logging.Setup(logCfg)
	logger := logging.NewLogger("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "report-server", cfg.Telemetry)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up tracing")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("Trace flush failed")
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	var queries queryRunner
	if cfg.Redash.URL != "" {
		redashCfg := redash.Config{
			URL:          cfg.Redash.URL,
			APIKey:       cfg.Redash.APIKey,
			UserAgent:    cfg.UserAgent,
			PollInterval: cfg.Redash.PollIntervalDuration(),
			CacheTTL:     cfg.Redash.CacheTTLDuration(),
		}
		var opts []redash.Option
		if redisClient != nil {
			redashCfg.Throttle = ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))
			opts = append(opts, redash.WithCache(cache.NewManager(redisClient)))
		}
		c, err := redash.New(redashCfg, opts...)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Redash client")
		}
		queries = c
	} else {
		logger.Warn().Msg("redash.url is not configured - export endpoint disabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newMux(redisClient, queries),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("user_agent", cfg.UserAgent).
		Msg("Starting report server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}

func newMux(redisClient *redis.Client, queries queryRunner) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(redisClient))
	mux.Handle("GET /metrics", metrics.Handler())
	if queries != nil {
		mux.Handle("GET /redash/{id}", requestID(exportHandler(queries)))
	}
	return mux
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
