package backend

import (
	"context"
	"fmt"

	"hisab/internal/log"
	"hisab/internal/remote"
	"hisab/internal/storage"
)

// Open builds the router described by config. The local store is always
// opened; the remote one only when a database URL is configured.
func Open(ctx context.Context, config Config, logger *log.Logger) (*Router, error) {
	if logger == nil {
		logger = log.NewDiscard()
	}
	logger = logger.WithComponent(log.ComponentBackend)

	if config.SQLiteDBPath == "" {
		return nil, fmt.Errorf("SQLite database path is required")
	}
	local, err := storage.NewLocalStore(config.SQLiteDBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	logger.Info("Initialized local backend", log.FieldBackend, LocalBackend, "db_path", config.SQLiteDBPath)

	router := &Router{Local: local}
	if config.DatabaseURL == "" {
		return router, nil
	}

	rs, err := remote.Open(ctx, config.DatabaseURL, logger)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("failed to initialize PostgreSQL store: %w", err)
	}
	router.Remote = rs
	logger.Info("Initialized remote backend", log.FieldBackend, RemoteBackend)
	return router, nil
}
