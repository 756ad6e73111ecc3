package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	login "github.com/goliatone/go-login"
	"github.com/goliatone/go-login/config"
	"github.com/goliatone/go-login/notify"
	"github.com/goliatone/go-login/session"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// app holds the shared dependencies of every command
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *bun.DB
	redis  *redis.Client
	repo   login.RepositoryManager
	creds  *login.HashPool
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if cfg.GetDebug() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	hasher, err := login.NewHasher(cfg.GetHashAlgorithm(), cfg.GetHashCost(), cfg.GetPepper())
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		repo:   login.NewRepositoryManager(db),
		creds:  login.NewHashPool(hasher, cfg.Auth.HashWorkers),
	}

	if cfg.Redis.URL != "" {
		client, err := openRedis(ctx, cfg.Redis.URL)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		a.redis = client
	}

	return a, nil
}

func openDB(cfg *config.Config) (*bun.DB, error) {
	var db *bun.DB

	switch cfg.Database.Driver {
	case "postgres":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN)))
		db = bun.NewDB(sqldb, pgdialect.New())
	case "sqlite":
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	if cfg.GetDebug() {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	return db, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// stores returns the session and carried notification stores
func (a *app) stores() (session.Store, notify.CarriedStore) {
	if a.redis != nil {
		return session.NewRedisStore(a.redis), notify.NewRedisStore(a.redis, a.cfg.GetCarriedTTL())
	}
	a.logger.Warn("no redis configured, sessions are kept in memory")
	return session.NewMemoryStore(), notify.NewMemoryStore(a.cfg.GetCarriedTTL())
}

func (a *app) Close() error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	return a.db.Close()
}
