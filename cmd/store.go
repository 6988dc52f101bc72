package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wildfire-cli/internal/store"
)

// runsDBName is the SQLite run history file kept next to the workspace.
const runsDBName = "runs.db"

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = filepath.Join(cfg.WorkspaceDir(), runsDBName)
			if err := os.MkdirAll(cfg.WorkspaceDir(), 0o755); err != nil {
				return nil, eris.Wrap(err, "create workspace dir")
			}
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("postgres store requires store.database_url (WILDFIRE_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
