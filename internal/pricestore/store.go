package pricestore

import (
	"context"
	"fmt"

	"github.com/wonny/signal-backtest/internal/contracts"
	"github.com/wonny/signal-backtest/pkg/config"
	"github.com/wonny/signal-backtest/pkg/database"
)

// Store is a price table opened from configuration
type Store interface {
	contracts.PriceReader
	contracts.PriceWriter
	Close() error
}

// postgresStore owns the pool it reads from
type postgresStore struct {
	*PostgresStore
	db *database.DB
}

func (s *postgresStore) Close() error {
	s.db.Close()
	return nil
}

// Open connects to the store selected by cfg.StoreDriver and prepares its schema
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := database.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(db.Pool)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &postgresStore{PostgresStore: store, db: db}, nil

	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		store, err := NewSQLiteStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
