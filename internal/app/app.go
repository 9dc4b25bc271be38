// Package app assembles the engine from configuration: local storage, the
// remote document store and everything built on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/cartstore"
	"github.com/fjod/go_cart/cartsync/internal/checkout"
	"github.com/fjod/go_cart/cartsync/internal/config"
	"github.com/fjod/go_cart/cartsync/internal/history"
	"github.com/fjod/go_cart/cartsync/internal/httpapi"
	"github.com/fjod/go_cart/cartsync/internal/inventory"
	"github.com/fjod/go_cart/cartsync/internal/kv"
	"github.com/fjod/go_cart/cartsync/internal/mirror"
	"github.com/fjod/go_cart/cartsync/internal/reconcile"
	"github.com/fjod/go_cart/cartsync/internal/remote"
	"github.com/fjod/go_cart/cartsync/internal/staging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisNamespace = "cartsync"

type App struct {
	Config *config.Config
	Logger *zap.Logger

	Local  kv.Store
	Remote remote.DocumentStore

	Carts       *cartstore.Registry
	Mirror      *mirror.Mirror
	Stock       *inventory.Catalog
	Journal     *reconcile.Journal
	Coordinator *checkout.Coordinator
	Reconciler  *reconcile.Reconciler
	History     *history.Service

	closers []func(context.Context) error
}

// Build opens both stores and wires the engine. Close releases them.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	local, err := a.openLocal(ctx)
	if err != nil {
		return nil, err
	}
	a.Local = local
	a.closers = append(a.closers, func(context.Context) error { return local.Close() })

	docs, err := a.openRemote(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Remote = remote.NewBreakerStore(docs, remote.BreakerSettings{
		Name:        "remote-store",
		MaxFailures: cfg.BreakerMaxFailures,
	}, log)

	orders := remote.NewOrders(a.Remote)
	notifications := remote.NewNotifications(a.Remote)

	a.Carts = cartstore.NewRegistry(local)
	a.Mirror = mirror.New(a.Remote, log)
	a.Stock = inventory.NewCatalog(a.Remote, log)
	a.Journal = reconcile.NewJournal(local)
	a.Coordinator = checkout.NewCoordinator(checkout.Deps{
		Carts:         a.Carts,
		Staging:       staging.NewBuffer(local),
		Orders:        orders,
		Notifications: notifications,
		Mirror:        a.Mirror,
		Journal:       a.Journal,
		Stock:         a.Stock,
		Logger:        log,
	}, checkout.Options{CallTimeout: cfg.RemoteCallTimeout})
	a.Reconciler = reconcile.NewReconciler(a.Journal, a.Coordinator, log)
	a.History = history.NewService(orders, notifications, log)

	return a, nil
}

func (a *App) openLocal(ctx context.Context) (kv.Store, error) {
	switch a.Config.KVBackend {
	case config.KVBackendSQLite:
		store, err := kv.NewSQLiteStore(a.Config.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open local store: %w", err)
		}
		a.Logger.Info("local store ready", zap.String("backend", "sqlite"), zap.String("path", a.Config.SQLitePath))
		return store, nil
	case config.KVBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Logger.Info("local store ready", zap.String("backend", "redis"), zap.String("addr", a.Config.RedisAddr))
		return kv.NewRedisStore(client, redisNamespace), nil
	case config.KVBackendMemory:
		a.Logger.Warn("local store is in-memory; carts will not survive a restart")
		return kv.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown kv backend %q", a.Config.KVBackend)
}

func (a *App) openRemote(ctx context.Context) (remote.DocumentStore, error) {
	switch a.Config.RemoteBackend {
	case config.RemoteBackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		store, err := remote.OpenMongoStore(connectCtx, a.Config.MongoURI, a.Config.MongoDBName)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.Logger.Info("remote store ready", zap.String("backend", "mongo"), zap.String("database", a.Config.MongoDBName))
		return store, nil
	case config.RemoteBackendMemory:
		a.Logger.Warn("remote store is in-memory; orders are lost on exit")
		return remote.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown remote backend %q", a.Config.RemoteBackend)
}

// Router builds the HTTP API over the engine.
func (a *App) Router() http.Handler {
	return httpapi.NewRouter(httpapi.Handlers{
		Cart:     httpapi.NewCartHandler(a.Carts, a.Mirror, a.Reconciler, a.Logger, a.Config.RemoteCallTimeout),
		Checkout: httpapi.NewCheckoutHandler(a.Coordinator, a.Logger),
		History:  httpapi.NewHistoryHandler(a.History, a.Logger),
	}, a.Logger, a.Config.RequestTimeout)
}

// Close releases stores in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
