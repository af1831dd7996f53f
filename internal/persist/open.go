package persist

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kittyledger/server/internal/config"
	"github.com/kittyledger/server/internal/kv"
	"github.com/kittyledger/server/internal/persist/sqlite"
)

// OpenStore opens the kv store selected by cfg.Driver and brings its schema
// up to date.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (kv.Store, error) {
	switch cfg.Driver {
	case "memory":
		log.Warn("using in-memory store, state is lost on shutdown")
		return kv.NewMemoryStore(), nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("sqlite store ready", zap.String("path", cfg.SQLitePath))
		return s, nil
	case "postgres":
		db, err := NewDB(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		if err := RunMigrations(ctx, db.Pool, log); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("postgres store ready", zap.Int("max_conns", cfg.MaxOpenConns))
		return NewKVStore(db), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
