package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cvbuilder/api/internal/cache"
	"cvbuilder/api/internal/config"
	"cvbuilder/api/internal/errorlog"
	"cvbuilder/api/internal/handlers"
	"cvbuilder/api/internal/jobs"
	"cvbuilder/api/internal/log"
	"cvbuilder/api/internal/server"
	"cvbuilder/api/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	sessions, dbPool, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open session store")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	var errorStore errorlog.Store = errorlog.NewMemoryRing(cfg.Analytics.ErrorCap)
	if redisClient != nil {
		errorStore = errorlog.NewRedisRing(redisClient, cfg.Redis.ErrorKey, cfg.Analytics.ErrorCap)
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if objectStore != nil {
		if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure bucket failed")
		}
	}

	logger.Info().
		Str("store", sessions.Kind()).
		Str("error_log", errorStore.Kind()).
		Bool("object_store", objectStore != nil).
		Msg("backends ready")

	handlerSet := handlers.NewHandlerSet(logger, cfg, handlers.Backends{
		Sessions: sessions,
		Errors:   errorStore,
		DB:       dbPool,
		Cache:    redisClient,
		Objects:  objectStore,
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(sessions, cfg.Analytics.SweepSchedule, cfg.Analytics.IdleTimeout, log.Component(logger, "sweep"))
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if scheduler != nil {
		wait := scheduler.Stop()
		wait()
	}

	if db != nil {
		db.Close()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
