package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/config"
	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL schema",
	Long: `Apply the embedded schema migrations to DATABASE_URL.

Migrations are idempotent; running them on an up-to-date database changes nothing.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != config.StoragePostgres {
		return errors.New("migrate requires STORAGE_DRIVER=postgres")
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Storage.DatabaseURL, db.PoolOptions{MaxConns: 1, MinConns: 0})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool.Pool); err != nil {
		return err
	}

	logger.Info("database migrations applied")
	return nil
}
