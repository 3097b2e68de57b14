package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"cvbuilder/api/internal/config"
	"cvbuilder/api/internal/database"
	"cvbuilder/api/internal/log"
	"cvbuilder/api/internal/repository"
)

// openSessionStore picks the SessionStore variant from analytics.store.
// "auto" means postgres when a DSN is configured and the degraded null
// store otherwise. The pool is nil for non-postgres stores.
func openSessionStore(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (repository.SessionStore, *pgxpool.Pool, error) {
	opts := repository.Options{
		CompletedStep: cfg.Analytics.CompletedStep,
		IdleTimeout:   cfg.Analytics.IdleTimeout,
	}
	storeLog := log.Component(logger, "store")

	kind := cfg.Analytics.Store
	if kind == "auto" || kind == "" {
		kind = "null"
		if cfg.Postgres.DSN != "" {
			kind = "postgres"
		}
	}

	switch kind {
	case "memory":
		return repository.NewMemoryStore(opts), nil, nil
	case "null":
		return repository.NewNullStore(opts, storeLog), nil, nil
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := database.EnsureSchema(ctx, pool, storeLog); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repository.NewPostgresStore(pool, opts), pool, nil
	}
	return nil, nil, fmt.Errorf("unknown analytics store %q", kind)
}
