package svc

import (
	"context"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"polyfolio/internal/application/port"
	"polyfolio/internal/application/service"
	"polyfolio/internal/application/store"
	syncuc "polyfolio/internal/application/usecase/sync"
	"polyfolio/internal/domain/model"
	"polyfolio/internal/infrastructure/config"
	"polyfolio/internal/infrastructure/exchange/polymarket"
	"polyfolio/internal/infrastructure/storage"
	"polyfolio/internal/infrastructure/storage/composite"
	"polyfolio/internal/infrastructure/storage/postgres"
	redisrepo "polyfolio/internal/infrastructure/storage/redis"
	"polyfolio/internal/infrastructure/storage/sqlite"
	"polyfolio/internal/infrastructure/storage/ttlcache"
)

// ServiceContext wires the whole application: storage, upstream clients,
// the state store and the caches. It is the single place dependencies are
// constructed and the single place they are torn down.
type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	redisClient *redisclient.Client
	kvStore     port.KeyValueStore
	snapshots   port.SnapshotRepo
	history     port.HistoryRepo
	markets     *ttlcache.Cache[model.MarketRef]

	prices *polymarket.PricesClient
	data   *polymarket.DataClient
	feed   port.MarketFeed

	store   *store.Store
	cache   *service.QuoteCache
	fetcher *service.PriceFetcher

	closerChain []func() error
}

// New builds and validates every dependency in order. On any failure the
// resources initialized so far are closed before the error returns.
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeComponents(); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInitFailed, err)
	}

	timeout := sc.Config.RequestTimeout()
	sc.prices = polymarket.NewPricesClient(sc.Config.Upstream.ClobURL, timeout)
	sc.data = polymarket.NewDataClient(sc.Config.Upstream.DataURL, sc.Config.Upstream.User, timeout)

	if sc.Config.Upstream.WsEnabled {
		sc.feed = polymarket.NewMarketEventFeed(sc.Config.Upstream.WsURL)
	}

	sc.store = store.New()
	sc.cache = service.NewQuoteCache(sc.Config.QuoteTTL())
	sc.fetcher = service.NewPriceFetcher(sc.prices, sc.cache)

	if len(sc.statuses()) == 0 {
		return ErrNoStatuses
	}

	log.Info().
		Str("clob", sc.Config.Upstream.ClobURL).
		Str("data", sc.Config.Upstream.DataURL).
		Bool("ws", sc.Config.Upstream.WsEnabled).
		Msg("components initialized")
	return nil
}

// initializeStorage brings up the key-value layer and the snapshot
// repository. Redis backs the shared cache when enabled, otherwise an
// in-process store does. SQLite and Postgres are mutually exclusive per
// config validation.
func (sc *ServiceContext) initializeStorage() error {
	if sc.Config.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	} else {
		sc.kvStore = storage.NewMemoryStore()
	}
	sc.markets = ttlcache.New[model.MarketRef](sc.kvStore, "polyfolio", sc.cacheTTL())

	if sc.Config.SQLite.Enabled {
		repo, err := sqlite.New(sc.Config.SQLite.Path)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		sc.snapshots = repo
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing sqlite connection")
			return repo.Close()
		})
		history, err := sqlite.NewHistoryRepo(repo.GetDB())
		if err != nil {
			return fmt.Errorf("sqlite history: %w", err)
		}
		sc.history = history
		log.Info().Str("path", sc.Config.SQLite.Path).Msg("sqlite snapshot repo initialized")
	}

	if sc.Config.Postgres.Enabled {
		repo, err := postgres.New(sc.Config.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		sc.snapshots = repo
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing postgres connection")
			return repo.Close()
		})
		history, err := postgres.NewHistoryRepo(repo.GetDB())
		if err != nil {
			return fmt.Errorf("postgres history: %w", err)
		}
		sc.history = history
		log.Info().Msg("postgres snapshot repo initialized")
	}

	return nil
}

func (sc *ServiceContext) initRedis() error {
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     sc.Config.Redis.Addr,
		Password: sc.Config.Redis.Password,
		DB:       sc.Config.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	sc.redisClient = rdb
	// memory layer in front keeps hot lookups off the network
	sc.kvStore = composite.New(storage.NewMemoryStore(), redisrepo.New(rdb, sc.Config.Redis.Prefix))
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", sc.Config.Redis.Addr).
		Int("db", sc.Config.Redis.DB).
		Msg("redis initialized")
	return nil
}

func (sc *ServiceContext) cacheTTL() time.Duration {
	return time.Duration(sc.Config.Redis.CacheTTLm) * time.Minute
}

func (sc *ServiceContext) statuses() []model.PositionStatus {
	out := make([]model.PositionStatus, 0, len(sc.Config.App.PositionStatuses))
	for _, s := range sc.Config.App.PositionStatuses {
		out = append(out, model.PositionStatus(s))
	}
	return out
}

// Store exposes the app state store to the presentation layer.
func (sc *ServiceContext) Store() *store.Store { return sc.store }

// QuoteCache exposes the live quote cache.
func (sc *ServiceContext) QuoteCache() *service.QuoteCache { return sc.cache }

// Markets exposes the persisted market metadata cache.
func (sc *ServiceContext) Markets() *ttlcache.Cache[model.MarketRef] { return sc.markets }

// BuildSyncServiceDeps assembles the dependency set for the sync use case.
func (sc *ServiceContext) BuildSyncServiceDeps() syncuc.ServiceDeps {
	return syncuc.ServiceDeps{
		Store:     sc.store,
		Cache:     sc.cache,
		Fetcher:   sc.fetcher,
		Positions: sc.data,
		Balance:   sc.data,
		Feed:      sc.feed,
		Snapshots: sc.snapshots,
		History:   sc.history,
		Markets:   sc.markets,

		Statuses:         sc.statuses(),
		PriceInterval:    sc.Config.PriceRefresh(),
		BalanceInterval:  sc.Config.BalanceRefresh(),
		PositionInterval: sc.Config.PositionRefresh(),
		RequestTimeout:   sc.Config.RequestTimeout(),
	}
}

// Close releases all resources in reverse initialization order.
func (sc *ServiceContext) Close() error {
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	return nil
}
