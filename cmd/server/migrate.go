package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/config"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage/mongo"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply postgres migrations or create mongo indexes",
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		cmd.Println("Running migrations...")
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
		}
	case config.DriverMongo:
		cmd.Println("Creating indexes...")
		store, err := mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		defer store.Close(context.Background())
		if err := store.EnsureIndexes(ctx); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "create indexes").Wrap(err)
		}
	default:
		cmd.Println("memory store needs no migrations")
		return nil
	}

	cmd.Println("Migrations completed successfully")
	return nil
}
