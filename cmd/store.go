package cmd

import (
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/devlink/internal/config"
	"github.com/nextlevelbuilder/devlink/internal/store"
	"github.com/nextlevelbuilder/devlink/internal/store/pg"
	"github.com/nextlevelbuilder/devlink/internal/store/sqlite"
	"github.com/nextlevelbuilder/devlink/internal/store/sqlstore"
)

// openStore opens and migrates the configured backend: Postgres when a
// DSN is set, otherwise the local SQLite file.
func openStore(cfg *config.Config) (*sqlstore.SQLStore, error) {
	sc := store.StoreConfig{
		PostgresDSN: cfg.Database.PostgresDSN,
		SQLitePath:  cfg.Database.SQLitePath,
	}
	if sc.IsManaged() {
		st, err := pg.Open(sc.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		slog.Info("store ready", "backend", "postgres")
		return st, nil
	}

	st, err := sqlite.Open(sc.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", sc.SQLitePath, err)
	}
	slog.Info("store ready", "backend", "sqlite", "path", sc.SQLitePath)
	return st, nil
}

func storeBackend(cfg *config.Config) string {
	if cfg.Database.PostgresDSN != "" {
		return "postgres"
	}
	return "sqlite (" + cfg.Database.SQLitePath + ")"
}
