// Package app wires configuration into a running engine: store, session
// store, notification bus and token service.
package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"missionhub/internal/core"
	"missionhub/internal/notify"
	"missionhub/internal/repository"
	"missionhub/internal/repository/memory"
	"missionhub/internal/session"
	"missionhub/pkg/config"
	"missionhub/pkg/content"
	"missionhub/pkg/database"
	"missionhub/pkg/logger"
	"missionhub/pkg/utils"
)

// App holds the wired components
type App struct {
	Config   *config.Config
	Store    *repository.Store
	Engine   core.MissionEngine
	Tokens   core.TokenService
	Bus      *notify.LocalBus
	RedisBus *notify.RedisBus // nil without redis

	redis   *goredis.Client
	closers []func()
}

// New wires every component from cfg
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	utils.SetStoreTimeout(cfg.Store.OpTimeout)
	a := &App{Config: cfg, Bus: notify.NewLocalBus()}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	var theory core.TheoryStore = session.NewMemoryStore(cfg.Redis.TheoryTTL, nil)
	var notifier core.Notifier = a.Bus
	if cfg.Redis.Enabled {
		rdb, err := OpenRedis(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		theory = session.NewRedisStore(rdb, cfg.Redis.TheoryTTL)
		a.RedisBus = notify.NewRedisBus(rdb, cfg.Redis.Channel, a.Bus)
		notifier = a.RedisBus
		logger.Infof("redis connected at %s", cfg.Redis.Addr)
	}

	a.Tokens = core.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)
	a.Engine = core.NewMissionEngine(store, core.EngineOptions{
		Theory:          theory,
		Notifier:        notifier,
		DefaultTimezone: cfg.Engine.DefaultTimezone,
	})
	return a, nil
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// OpenStore opens the configured progress store, migrating and seeding
// when asked to
func OpenStore(ctx context.Context, cfg *config.Config) (*repository.Store, error) {
	var store *repository.Store

	switch cfg.Store.Driver {
	case "memory":
		store = memory.NewStore().Store
		logger.Warn("using in-memory progress store; progress is lost on restart")
	default:
		dbCfg := database.FromConfig(cfg.Database)
		if cfg.Store.AutoMigrate {
			if _, err := Migrate(ctx, dbCfg); err != nil {
				return nil, err
			}
		}
		pool, err := database.NewPGXPool(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect progress store: %w", err)
		}
		store = repository.NewPostgresStore(pool)
		logger.Info("connected to PostgreSQL progress store")
	}

	if cfg.Store.SeedFile != "" {
		stats, err := Seed(ctx, store, cfg.Store.SeedFile)
		if err != nil {
			store.Close()
			return nil, err
		}
		logger.Infof("seeded %d missions, %d activities, %d windows, %d badges from %s",
			stats.Missions, stats.Activities, stats.Windows, stats.Badges, cfg.Store.SeedFile)
	}
	return store, nil
}

// Migrate applies pending schema migrations
func Migrate(ctx context.Context, dbCfg database.Config) ([]string, error) {
	db, err := database.NewDB(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect for migration: %w", err)
	}
	defer db.Close()

	applied, err := db.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	for _, v := range applied {
		logger.Infof("applied migration %s", v)
	}
	return applied, nil
}

// Seed loads a content bundle into sink
func Seed(ctx context.Context, sink content.Sink, path string) (content.Stats, error) {
	bundle, err := content.Load(path)
	if err != nil {
		return content.Stats{}, err
	}
	stats, err := bundle.Apply(ctx, sink)
	if err != nil {
		return stats, fmt.Errorf("seed %s: %w", path, err)
	}
	return stats, nil
}

// OpenRedis connects and pings
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}
