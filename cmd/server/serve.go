package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/example/fleet-rides/internal/auth"
	"github.com/example/fleet-rides/internal/config"
	"github.com/example/fleet-rides/internal/dispatch"
	"github.com/example/fleet-rides/internal/geo"
	httpapi "github.com/example/fleet-rides/internal/http"
	"github.com/example/fleet-rides/internal/jobs"
	"github.com/example/fleet-rides/internal/logging"
	"github.com/example/fleet-rides/internal/payments"
	"github.com/example/fleet-rides/internal/ride"
	"github.com/example/fleet-rides/internal/storage"
	"github.com/example/fleet-rides/internal/vehicle"
)

func newServeCommand() *cobra.Command {
	var migrationsDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return serve(cmd.Context(), cfg, migrationsDir)
		},
	}
	cmd.Flags().StringVar(&migrationsDir, "migrations", "migrations", "directory applied on start when MIGRATE=true")
	return cmd
}

// stores is what the API needs from persistence, whichever backend serves it.
type stores interface {
	storage.ActiveRides
	storage.Vehicles
	storage.Riders
	storage.RideSummaries
	storage.Reports
}

func serve(ctx context.Context, cfg config.ServerConfig, migrationsDir string) error {
	logger := logging.NewLogger(cfg.LogLevel)
	var checks []func(context.Context) error

	var db stores
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if cfg.RunMigrations {
			if _, err := storage.Migrate(ctx, pg.DB(), migrationsDir, logging.Component(logger, "migrate")); err != nil {
				return err
			}
		}
		db = pg
		checks = append(checks, pg.Ping)
	} else {
		logger.Warn("PG_DSN not set, using in-memory storage")
		db = storage.NewMemoryStore()
	}

	var (
		jobStore    jobs.Store
		searchIndex geo.Index
	)
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		jobStore = jobs.NewRedisStore(rc, cfg.RedisJobPrefix, cfg.JobTTL, logger)
		searchIndex = geo.NewRedisIndex(rc, cfg.SearchKeyPrefix, cfg.SearchPendingTTL, cfg.SearchResultTTL)
		checks = append(checks, func(ctx context.Context) error { return rc.Ping(ctx).Err() })
	} else {
		logger.Warn("REDIS_ADDR not set, using in-memory job store and search index")
		jobStore = jobs.NewMemoryStore(cfg.JobTTL)
		searchIndex = geo.NewMemoryIndex(cfg.SearchPendingTTL, cfg.SearchResultTTL)
	}

	dispatcher := newDispatcher(cfg, logger)
	defer dispatcher.Close()

	var gateway payments.Gateway = payments.LocalGateway{}
	if cfg.StripeAPIKey != "" {
		gateway = payments.NewStripeGateway(cfg.StripeAPIKey)
	} else {
		logger.Warn("STRIPE_API_KEY not set, card payment methods are accepted unverified")
	}

	warnDevelopmentSecret(cfg, logger)

	rides := ride.NewService(ride.Deps{
		Rides:      db,
		Riders:     db,
		Summaries:  db,
		Jobs:       jobStore,
		Dispatcher: dispatcher,
		Logger:     logger,
	}, ride.OptionsFromConfig(cfg))

	srv := httpapi.NewServer(httpapi.Deps{
		Rides:         rides,
		Vehicles:      vehicle.NewService(db, db, jobStore, dispatcher, logger),
		Catalog:       vehicle.NewCatalog(db, searchIndex, dispatcher, catalogOptions(cfg), logger),
		Cards:         payments.NewService(db, gateway, logger),
		Verifier:      auth.NewVerifier(cfg.JWTSecret),
		Ready:         readiness(checks),
		WatchInterval: cfg.WatchInterval,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fleet-rides listening", "addr", cfg.HTTPAddr, "transport", cfg.DispatchTransport)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newDispatcher(cfg config.ServerConfig, logger *slog.Logger) dispatch.Dispatcher {
	retry := dispatch.DefaultRetryPolicy()
	retry.Attempts = cfg.DispatchConnectAttempts
	retry.Backoff = cfg.DispatchConnectBackoff

	switch cfg.DispatchTransport {
	case "kafka":
		return dispatch.NewKafkaDispatcher(cfg.KafkaBrokers, retry, logger)
	case "amqp":
		return dispatch.NewAMQPDispatcher(cfg.AMQPURL, cfg.AMQPExchange, retry, logger)
	default:
		logger.Warn("dispatching to log only", "transport", cfg.DispatchTransport)
		return dispatch.NewLogDispatcher(logger)
	}
}

func warnDevelopmentSecret(cfg config.ServerConfig, logger *slog.Logger) {
	if cfg.UsesDefaultJWTSecret() {
		logger.Warn("JWT_SECRET not set, tokens are verified with the development secret")
	}
}

func catalogOptions(cfg config.ServerConfig) vehicle.CatalogOptions {
	return vehicle.CatalogOptions{
		SearchChannel:     cfg.Channels.SearchVehicles,
		MaxRange:          cfg.MaxRange,
		TestUserID:        cfg.TestUserID,
		TestVehicleQRCode: cfg.TestVehicleQRCode,
	}
}

func readiness(checks []func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
