package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openleague/auctioneer/internal/storage/postgres"
)

func setupDatabase(ctx context.Context, cfg DatabaseConfig) (*postgres.Pool, error) {
	pool, err := postgres.NewPool(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")
	return pool, nil
}
