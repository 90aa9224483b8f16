package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	goredis "github.com/redis/go-redis/v9"
	"github.com/vadimbarashkov/short-links/internal/adapter/repository/memory"
	"github.com/vadimbarashkov/short-links/internal/adapter/repository/postgres"
	"github.com/vadimbarashkov/short-links/internal/adapter/repository/redis"
	"github.com/vadimbarashkov/short-links/internal/clicks"
	"github.com/vadimbarashkov/short-links/internal/config"
	"github.com/vadimbarashkov/short-links/internal/entity"
	"github.com/vadimbarashkov/short-links/internal/keygen"
	"github.com/vadimbarashkov/short-links/internal/usecase"
	"golang.org/x/sync/errgroup"

	delivery "github.com/vadimbarashkov/short-links/internal/adapter/delivery/http"
	pgpkg "github.com/vadimbarashkov/short-links/pkg/postgres"
)

type linkRepository interface {
	Create(ctx context.Context, link *entity.Link) (*entity.Link, error)
	GetByShortKey(ctx context.Context, shortKey string) (*entity.Link, error)
	GetByLongURL(ctx context.Context, longURL string) (*entity.Link, error)
	Update(ctx context.Context, link *entity.Link) (*entity.Link, error)
	Delete(ctx context.Context, shortKey string) error
	DeleteAll(ctx context.Context) error
	ListAll(ctx context.Context) ([]*entity.Link, error)
}

// Run wires the service together and blocks until ctx is cancelled or a
// component fails. Pending clicks are flushed before it returns.
func Run(ctx context.Context, cfg *config.Config, logger *httplog.Logger) error {
	const op = "app.Run"

	repo, closeRepo, err := newLinkRepository(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer closeRepo()

	svc, err := newService(ctx, cfg, repo, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        svc.handler,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", "addr", server.Addr, "env", cfg.Env, "storage", cfg.Storage)

		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		if err := svc.clicks.Run(ctx, cfg.FlushPeriod); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}

type service struct {
	handler http.Handler
	clicks  *clicks.Aggregator
}

// newService builds the use case stack on top of repo and warms the key
// generator from the links already stored.
func newService(ctx context.Context, cfg *config.Config, repo linkRepository, logger *httplog.Logger) (*service, error) {
	agg := clicks.NewAggregator(repo, logger.Logger)

	registry := usecase.NewRegistry(
		repo,
		keygen.New(
			keygen.WithLength(cfg.KeyLength),
			keygen.WithMaxRetries(cfg.KeyMaxRetries),
		),
		validator.New(),
		usecase.WithDomain(cfg.Domain),
		usecase.WithDefaultLifespan(cfg.DefaultLifespanDays),
		usecase.WithEvictHook(agg.Discard),
	)

	claimed, err := registry.Warm(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to warm key generator: %w", err)
	}
	logger.Info("key generator warmed", "keys", claimed)

	var routerOpts []delivery.RouterOption
	if cfg.Env != config.EnvProd {
		routerOpts = append(routerOpts, delivery.WithPurge(), delivery.WithSeed())
	}

	return &service{
		handler: delivery.NewRouter(logger, usecase.New(registry, agg), routerOpts...),
		clicks:  agg,
	}, nil
}

func newLinkRepository(ctx context.Context, cfg *config.Config, logger *httplog.Logger) (linkRepository, func(), error) {
	var (
		repo    linkRepository
		closers []func()
	)

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := pgpkg.New(
			ctx,
			cfg.Postgres.DSN(),
			pgpkg.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
			pgpkg.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
			pgpkg.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
			pgpkg.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
			pgpkg.WithConnectRetry(cfg.Postgres.ConnectAttempts, cfg.Postgres.RetryInterval),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		closers = append(closers, func() { db.Close() })

		if err := pgpkg.RunMigrations(cfg.MigrationsPath, cfg.Postgres.DSN()); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		repo = postgres.NewLinkRepository(db)
	default:
		repo = memory.NewLinkRepository()
	}

	if cfg.Redis.Enabled {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { client.Close() })

		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis is unreachable, links will be read from storage", "addr", cfg.Redis.Addr, "err", err)
		}

		repo = redis.NewCachedLinkRepository(repo, client, cfg.Redis.TTL, logger.Logger)
	}

	return repo, closeAll, nil
}
