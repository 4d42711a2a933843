// Package app opens the stores, cache and session manager shared by the
// server, the worker and questctl.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/questlog/internal/cache"
	"github.com/benvon/questlog/internal/catalog"
	"github.com/benvon/questlog/internal/config"
	"github.com/benvon/questlog/internal/database"
	"github.com/benvon/questlog/internal/engine"
	"github.com/benvon/questlog/internal/store"
	"github.com/benvon/questlog/internal/syncer"
	"github.com/benvon/questlog/internal/tracker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Runtime holds the opened backends. Fields for backends that are not
// configured are nil.
type Runtime struct {
	Config     *config.Config
	DB         *database.DB
	Tree       store.Tree
	Redis      *redis.Client
	Cache      cache.Cache
	Remote     *syncer.RemoteStore
	Reconciler *syncer.Reconciler
	Catalog    catalog.Provider
	Manager    *tracker.Manager

	logger  *zap.Logger
	closers []func() error
}

// Open connects every configured backend and builds the session manager
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...tracker.ManagerOption) (*Runtime, error) {
	rt := &Runtime{Config: cfg, logger: logger}

	if err := rt.openTree(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	if err := rt.openCache(); err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.Catalog = catalog.NewFileProvider(cfg.CatalogPath)
	if cfg.CatalogSource == config.CatalogStore {
		rt.Catalog = catalog.NewTreeProvider(rt.Tree, rt.Catalog)
	}
	c, err := rt.Catalog.Load(ctx)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	logger.Info("catalog_loaded",
		zap.String("source", cfg.CatalogSource),
		zap.Int("tasks", len(c.Tasks)),
		zap.Int("achievements", len(c.Achievements)),
		zap.Int("ranked_tasks", len(c.RankedTasks)),
	)

	rt.Remote = syncer.NewRemoteStore(rt.Tree)
	rt.Reconciler = syncer.NewReconciler(syncer.NewLocalStore(rt.Cache), rt.Remote, logger)

	managerOpts := append([]tracker.ManagerOption{
		tracker.WithCatalogProvider(rt.Catalog),
		tracker.WithLogger(logger),
	}, opts...)
	rt.Manager = tracker.NewManager(engine.New(c), rt.Reconciler, managerOpts...)
	return rt, nil
}

func (rt *Runtime) openTree(ctx context.Context) error {
	cfg := rt.Config
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		rt.DB = db
		rt.closers = append(rt.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		rt.Tree = database.NewTree(db, rt.logger)
		rt.logger.Info("connected_to_database")
	case config.StoreBadger:
		tree, err := store.OpenBadgerTree(cfg.BadgerPath, rt.logger)
		if err != nil {
			return err
		}
		rt.Tree = tree
		rt.closers = append(rt.closers, tree.Close)
		rt.logger.Info("opened_badger_store", zap.String("path", cfg.BadgerPath))
	default:
		tree := store.NewMemoryTree()
		rt.Tree = tree
		rt.closers = append(rt.closers, tree.Close)
		rt.logger.Warn("using_memory_store")
	}
	return nil
}

func (rt *Runtime) openCache() error {
	cfg := rt.Config
	if cfg.CacheBackend != config.CacheRedis {
		rt.Cache = cache.NewMemoryCache()
		rt.closers = append(rt.closers, rt.Cache.Close)
		return nil
	}

	client, err := cache.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	rt.Redis = client
	rt.Cache = cache.NewRedisCache(client, cfg.CacheTTL)
	rt.closers = append(rt.closers, client.Close)
	rt.logger.Info("connected_to_redis")
	return nil
}

// Activity returns the activity repository, or nil when the store is not PostgreSQL
func (rt *Runtime) Activity() *database.UserActivityRepository {
	if rt.DB == nil {
		return nil
	}
	return database.NewUserActivityRepository(rt.DB)
}

// Checks returns a health check per opened backend
func (rt *Runtime) Checks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"store": func(ctx context.Context) error {
			_, err := rt.Tree.ChildKeys(ctx, store.CatalogRoot)
			return err
		},
	}
	if rt.DB != nil {
		checks["database"] = rt.DB.Ping
	}
	if rt.Redis != nil {
		checks["cache"] = func(ctx context.Context) error {
			return rt.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Close releases every backend in reverse order of opening
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
