package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/auth"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/config"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/logger"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/metrics"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/middleware"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/server"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage/memory"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage/mongo"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage/postgres"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	cmd.Flags().Bool("skip-migrate", false, "do not apply migrations or indexes on startup")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	logger.Init(logger.Config{Env: cfg.LogEnv, Level: cfg.LogLevel})
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	skipMigrate, _ := cmd.Flags().GetBool("skip-migrate")
	store, err := openStore(ctx, cfg, !skipMigrate)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn("store close failed", zap.Error(err))
		}
	}()

	limiter, closeLimiter, err := newLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	tokens := auth.NewTokenService(auth.TokenConfig{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	svc := auth.NewService(store, auth.NewCredentialHasher(bcrypt.DefaultCost), tokens, auth.WithRecorder(collector))

	srv := server.New(cfg, server.Deps{
		Store:    store,
		Auth:     svc,
		Limiter:  limiter,
		Metrics:  collector,
		Registry: reg,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("learning path backend listening", zap.String("addr", cfg.HTTPAddress()), zap.String("store", cfg.StoreDriver))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return oops.Code("HTTP_SERVER_FAILED").Wrap(err)
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown error", zap.Error(err))
	}
	return nil
}

// Postgres entry points, replaced in tests.
var (
	runMigrations = postgres.RunMigrations
	openPostgres  = func(ctx context.Context, url string) (storage.Store, error) {
		s, err := postgres.Open(ctx, url)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
)

// openStore connects to the configured backend, retrying while it comes up, and
// optionally brings its schema up to date.
func openStore(ctx context.Context, cfg config.Config, prepare bool) (storage.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		// Migrations run inside the retried open so a database that is still starting gets the same backoff.
		store, err := storage.Connect(ctx, cfg.StoreConnectAttempts, func(ctx context.Context) (storage.Store, error) {
			s, err := openPostgres(ctx, cfg.DatabaseURL)
			if err != nil {
				return nil, err
			}
			if prepare {
				if err := runMigrations(cfg.DatabaseURL); err != nil {
					_ = s.Close(ctx)
					return nil, oops.Code("MIGRATION_FAILED").Wrap(err)
				}
			}
			return s, nil
		})
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("driver", cfg.StoreDriver).Wrap(err)
		}
		return store, nil

	case config.DriverMongo:
		var ms *mongo.Store
		store, err := storage.Connect(ctx, cfg.StoreConnectAttempts, func(ctx context.Context) (storage.Store, error) {
			s, err := mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
			if err != nil {
				return nil, err
			}
			ms = s
			return s, nil
		})
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("driver", cfg.StoreDriver).Wrap(err)
		}
		if prepare {
			if err := ms.EnsureIndexes(ctx); err != nil {
				_ = store.Close(ctx)
				return nil, oops.Code("MIGRATION_FAILED").Wrap(err)
			}
		}
		return store, nil

	default:
		logger.L().Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(), nil
	}
}

// newLimiter picks the redis limiter when REDIS_URL is set so limits hold across instances.
func newLimiter(ctx context.Context, cfg config.Config) (middleware.Limiter, func(), error) {
	if cfg.RedisURL == "" {
		return middleware.NewMemoryLimiter(cfg.LoginRatePerMinute), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, oops.Code("CONFIG_INVALID").With("key", "REDIS_URL").Wrap(err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, oops.Code("REDIS_CONNECT_FAILED").Wrap(err)
	}
	closeFn := func() { _ = client.Close() }
	return middleware.NewRedisLimiter(client, "lpd:rl:", cfg.LoginRatePerMinute), closeFn, nil
}
