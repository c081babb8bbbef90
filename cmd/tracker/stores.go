package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"solana-position-tracker/internal/config"
	"solana-position-tracker/internal/storage"
	chstore "solana-position-tracker/internal/storage/clickhouse"
	"solana-position-tracker/internal/storage/memory"
	"solana-position-tracker/internal/storage/migrations"
	pgstore "solana-position-tracker/internal/storage/postgres"
)

// stores bundles the storage backends selected by configuration.
type stores struct {
	events    storage.EventStore
	overrides storage.OverrideStore
	cursors   storage.CursorStore
	closers   []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores connects the configured backend. Overrides and cursors always
// live in postgres unless memory is selected; clickhouse only holds events.
func openStores(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*stores, error) {
	if cfg.Backend == config.BackendMemory {
		logger.Info("using in-memory storage")
		return &stores{
			events:    memory.NewEventStore(),
			overrides: memory.NewOverrideStore(),
			cursors:   memory.NewCursorStore(),
		}, nil
	}

	s := &stores{}
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, pgstore.PoolOptions{MaxConns: cfg.PostgresMaxConns})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	s.closers = append(s.closers, pool.Close)

	if cfg.MigrateOnStart {
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("applied postgres migrations", zap.Strings("files", applied))
		}
	}

	s.events = pgstore.NewEventStore(pool)
	s.overrides = pgstore.NewOverrideStore(pool)
	s.cursors = pgstore.NewCursorStore(pool)

	if cfg.Backend == config.BackendClickhouse {
		var conn *chstore.Conn
		if cfg.MigrateOnStart {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
		}
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		s.closers = append(s.closers, func() { conn.Close() })
		s.events = chstore.NewEventStore(conn)
		logger.Info("using clickhouse event store")
	}

	return s, nil
}
