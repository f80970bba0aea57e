package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/fleet-rides/internal/config"
	"github.com/example/fleet-rides/internal/logging"
	"github.com/example/fleet-rides/internal/storage"
)

func newMigrateCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations to PG_DSN",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return err
			}
			if cfg.PGDSN == "" {
				return errors.New("PG_DSN is required to migrate")
			}
			logger := logging.Component(logging.NewLogger(cfg.LogLevel), "migrate")
			return runMigrations(cmd.Context(), cfg.PGDSN, dir, logger)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory holding *.sql migrations")
	return cmd
}

func runMigrations(ctx context.Context, dsn, dir string, logger *slog.Logger) error {
	store, err := storage.NewPostgresStore(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	applied, err := storage.Migrate(ctx, store.DB(), dir, logger)
	if err != nil {
		return err
	}
	logger.Info("migrations complete", "applied", applied)
	return nil
}
