package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/tasklist/apiserver/config"
	"github.com/tasklist/apiserver/internal/db"
	"github.com/tasklist/apiserver/internal/mq"
	"github.com/tasklist/apiserver/internal/password"
	"github.com/tasklist/apiserver/internal/ratelimit"
	"github.com/tasklist/apiserver/internal/services"
	"github.com/tasklist/apiserver/internal/storage"
	"github.com/tasklist/apiserver/internal/store"
	"github.com/tasklist/apiserver/internal/token"
)

// App holds the services and the connections they depend on. The HTTP
// server and the CLI commands share it.
type App struct {
	Auth    *services.AuthService
	Users   *services.UserService
	Limiter *ratelimit.Limiter

	log     *slog.Logger
	db      *sql.DB
	events  *mq.MQ
	archive *storage.Storage
	redis   *redis.Client
}

// NewApp connects the configured store and optional backends and builds the
// services. Optional backends that are not configured stay nil.
func NewApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	app := &App{log: log}
	if err := app.build(ctx, cfg); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) build(ctx context.Context, cfg config.Config) error {
	log := app.log

	repo, err := app.openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}

	hasher, err := password.NewHasher(cfg.Auth.BcryptCost, cfg.Auth.HashConcurrency)
	if err != nil {
		return err
	}
	codec, err := token.NewCodec(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.TokenIssuer)
	if err != nil {
		return err
	}

	opts := []services.Option{
		services.WithLogger(log),
		services.WithStoreTimeout(cfg.Database.StoreTimeout),
	}

	app.events, err = mq.Open(ctx, cfg.MQ)
	if err != nil {
		return fmt.Errorf("open event publisher: %w", err)
	}
	if app.events != nil {
		opts = append(opts, services.WithEventPublisher(app.events))
		log.Info("account events enabled", "backend", cfg.MQ.Backend)
	}

	app.archive, err = storage.Open(ctx, cfg.Archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	if app.archive != nil {
		opts = append(opts, services.WithArchive(app.archive))
		log.Info("deleted-account archive enabled", "backend", cfg.Archive.Backend, "bucket", app.archive.Bucket())
	}

	if cfg.RateLimit.Enabled {
		app.redis, err = ratelimit.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("rate limiting disabled", "error", err)
		}
		app.Limiter = ratelimit.New(cfg.RateLimit, app.redis, log)
	}

	app.Auth = services.NewAuthService(repo, hasher, codec, opts...)
	app.Users = services.NewUserService(repo, hasher, opts...)
	return nil
}

func (app *App) openStore(ctx context.Context, cfg config.DatabaseConfig) (services.UserRepository, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		app.db = conn
		return store.NewUserRepository(conn), nil
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		app.db = conn
		return store.NewSQLiteUserRepository(conn), nil
	case config.DriverMemory:
		app.log.Warn("using in-memory credential store; accounts are lost on exit")
		return store.NewMemoryUserRepository(), nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}

// Close releases every connection the App opened.
func (app *App) Close() error {
	var errs []error
	if app.events != nil {
		errs = append(errs, app.events.Close())
	}
	if app.archive != nil {
		errs = append(errs, app.archive.Close())
	}
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	return errors.Join(errs...)
}
