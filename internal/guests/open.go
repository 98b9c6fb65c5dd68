package guests

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aura-invite/backend/config"
	"github.com/aura-invite/backend/pkg/database"
)

// Open connects the configured backend, applies migrations and returns the store with
// its close function.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.DSN(), int32(cfg.MaxConns), logger)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return NewPostgresRepository(pool), pool.Close, nil
	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return NewSQLiteRepository(db), func() { _ = db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}
