// @title        RBAC Auth API
// @version      1.0
// @description  Registration, login, role-gated routes and audited admin promotion.
// @BasePath     /
//
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rbac-authz/auth-api/internal/api"
	"github.com/rbac-authz/auth-api/internal/api/handler"
	"github.com/rbac-authz/auth-api/internal/core/ports"
	"github.com/rbac-authz/auth-api/internal/core/service"
	"github.com/rbac-authz/auth-api/internal/infrastructure/config"
	"github.com/rbac-authz/auth-api/internal/infrastructure/db/mongo"
	"github.com/rbac-authz/auth-api/internal/infrastructure/db/postgres"
	"github.com/rbac-authz/auth-api/internal/infrastructure/db/redis"
	"github.com/rbac-authz/auth-api/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "auth-api",
	})
	log.Info().Str("env", cfg.Env).Str("store", cfg.StoreDriver).Msg("starting auth api")

	checks := make(map[string]handler.Pinger)

	store, closeStore, err := openStore(ctx, cfg, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	var lock ports.PromotionLocker
	if cfg.Redis.Addr != "" {
		rdb, err := redis.Connect(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()

		lock = redis.NewPromotionLock(rdb, cfg.Redis.PromotionLockTTL, logger.Component("promotion-lock"))
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		log.Warn().Msg("REDIS_ADDR not set; promotions rely on store isolation only")
	}

	// --- Core services ---
	tokenOpts := []service.TokenOption{service.WithLeeway(cfg.Token.Leeway)}
	if cfg.Token.Issuer != "" {
		tokenOpts = append(tokenOpts, service.WithIssuer(cfg.Token.Issuer))
	}
	tokens, err := service.NewTokenService(cfg.Token.Secret, tokenOpts...)
	if err != nil {
		return err
	}

	passwords := service.NewPasswordHasher(service.Argon2Params{
		MemoryKiB:   cfg.Argon2.MemoryKiB,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
	})

	gate := service.NewGate(tokens, store, logger.Component("gate"))
	authService := service.NewAuthService(store, passwords, tokens, cfg.Token.TTL, logger.Component("auth"))
	promotions := service.NewPromotionService(store, gate, lock, logger.Component("promotion"))
	audit := service.NewAuditService(store, gate)

	boot := service.NewBootstrapService(store, passwords, logger.Component("bootstrap"))
	if err := bootstrap(ctx, cfg, boot, log); err != nil {
		return err
	}

	// --- HTTP ---
	e := api.NewRouter(api.Dependencies{
		Auth:       authService,
		Authorizer: gate,
		Promotions: promotions,
		Audit:      audit,
		Checks:     checks,
		Log:        logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	log.Info().Msg("auth api stopped")
	return nil
}

// openStore connects the configured backend, prepares its indexes or schema
// and registers a readiness check for it.
func openStore(ctx context.Context, cfg *config.Config, checks map[string]handler.Pinger) (ports.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Postgres.DSN})
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		checks["postgres"] = db.PingContext
		return postgres.NewAuthRepository(db), closeSQL(db), nil

	default:
		client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, nil, err
		}
		repo := mongo.NewAuthRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		checks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		return repo, func() { _ = client.Disconnect(context.Background()) }, nil
	}
}

func closeSQL(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

func bootstrap(ctx context.Context, cfg *config.Config, svc *service.BootstrapService, log zerolog.Logger) error {
	if err := svc.SeedRoles(ctx); err != nil {
		return err
	}
	if !cfg.Bootstrap.Enabled() {
		return nil
	}

	created, err := svc.EnsureAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		log.Info().Str("email", cfg.Bootstrap.AdminEmail).Msg("bootstrap admin created")
	}
	return nil
}
