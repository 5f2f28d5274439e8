package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"polyfolio/internal/application/port"
	"polyfolio/internal/application/service"
	"polyfolio/internal/application/store"
	"polyfolio/internal/domain/model"
	domainsvc "polyfolio/internal/domain/service"
	"polyfolio/internal/infrastructure/storage/ttlcache"
)

const (
	taskPrices    = "prices"
	taskBalance   = "balance"
	taskPositions = "positions"
)

type ServiceDeps struct {
	Store     *store.Store
	Cache     *service.QuoteCache
	Fetcher   *service.PriceFetcher
	Positions port.PositionAPI
	Balance   port.BalanceAPI
	Feed      port.MarketFeed                  // optional push feed
	Snapshots port.SnapshotRepo                // optional persistence
	History   port.HistoryRepo                 // optional valuation history
	Markets   *ttlcache.Cache[model.MarketRef] // optional metadata cache

	Statuses         []model.PositionStatus
	PriceInterval    time.Duration
	BalanceInterval  time.Duration
	PositionInterval time.Duration
	RequestTimeout   time.Duration
}

// Service owns the background synchronization: it schedules the poll
// loops, reconciles what they fetch into the state store, consumes market
// events and keeps the derived portfolio current.
type Service struct {
	deps      ServiceDeps
	portfolio *service.PortfolioService
}

func NewService(deps ServiceDeps) *Service {
	return &Service{
		deps:      deps,
		portfolio: service.NewPortfolioService(deps.Store, deps.Cache, deps.Snapshots, deps.History),
	}
}

// Run blocks until ctx is cancelled. Poll loops degrade silently on
// upstream failure; the next tick is the retry.
func (s *Service) Run(ctx context.Context) error {
	s.rehydrate(ctx)

	updates, unsubscribe := s.deps.Store.Subscribe()
	defer unsubscribe()
	go s.recomputeLoop(ctx, updates)

	sched := service.NewScheduler(ctx, s.deps.RequestTimeout)
	sched.Schedule(taskPositions, s.deps.PositionInterval, s.refreshPositions, true)
	sched.Schedule(taskBalance, s.deps.BalanceInterval, s.refreshBalance, true)
	sched.Schedule(taskPrices, s.deps.PriceInterval, s.refreshPrices, true)

	if s.deps.Feed != nil {
		go s.eventLoop(ctx)
	}

	log.Info().
		Dur("prices", s.deps.PriceInterval).
		Dur("balance", s.deps.BalanceInterval).
		Dur("positions", s.deps.PositionInterval).
		Msg("sync loops started")

	<-ctx.Done()
	sched.StopAll()
	return ctx.Err()
}

func (s *Service) rehydrate(ctx context.Context) {
	if s.deps.Snapshots == nil {
		return
	}
	snap, ok, err := s.deps.Snapshots.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("state snapshot load failed, starting cold")
		return
	}
	if !ok {
		return
	}
	s.deps.Store.Hydrate(snap)
	log.Info().Time("saved_at", snap.SavedAt).Int("positions", len(snap.Positions)).Msg("state rehydrated")
}

// recomputeLoop re-derives the portfolio after each committed state
// transaction. The revision gate inside Recompute keeps it to one
// derivation per transaction and breaks the write-notify cycle.
func (s *Service) recomputeLoop(ctx context.Context, updates <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			s.portfolio.Recompute(ctx, time.Now())
		}
	}
}

// refreshPositions fetches each configured status partition in parallel,
// then reconciles them in order into one canonical collection. The
// collection replaces the stored one wholesale.
func (s *Service) refreshPositions(ctx context.Context) {
	sources := make([][]model.PositionRecord, len(s.deps.Statuses))

	g, gctx := errgroup.WithContext(ctx)
	for i, status := range s.deps.Statuses {
		g.Go(func() error {
			records, err := s.deps.Positions.PositionsByStatus(gctx, status)
			if err != nil {
				return err
			}
			sources[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("position refresh failed, keeping last known set")
		return
	}

	merged := domainsvc.Settle(domainsvc.Reconcile(sources...))
	s.cacheMarkets(ctx, merged)
	s.deps.Store.Update(func(tx *store.Tx) {
		tx.SetPositions(merged)
	})
}

func (s *Service) refreshBalance(ctx context.Context) {
	balance, err := s.deps.Balance.Balance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("balance refresh failed, keeping last known value")
		return
	}
	s.deps.Store.Update(func(tx *store.Tx) {
		tx.SetBalance(balance)
	})
}

func (s *Service) refreshPrices(ctx context.Context) {
	keys := s.quoteKeys()
	if len(keys) == 0 {
		return
	}
	before := s.deps.Cache.Revision()
	s.deps.Fetcher.ResolvePrices(ctx, keys)
	if s.deps.Cache.Revision() != before {
		s.deps.Store.Update(func(tx *store.Tx) {
			tx.BumpQuotes()
		})
	}
}

// RefreshPrices is the user-triggered refresh. Unlike the background
// loop it surfaces the upstream error so the UI can show it inline.
func (s *Service) RefreshPrices(ctx context.Context) error {
	keys := s.quoteKeys()
	if len(keys) == 0 {
		return nil
	}
	before := s.deps.Cache.Revision()
	_, err := s.deps.Fetcher.Refresh(ctx, keys)
	if s.deps.Cache.Revision() != before {
		s.deps.Store.Update(func(tx *store.Tx) {
			tx.BumpQuotes()
		})
	}
	return err
}

// quoteKeys derives the BUY-side quote keys for every position that has
// an outcome to price.
func (s *Service) quoteKeys() []model.QuoteKey {
	snap := s.deps.Store.Snapshot()
	seen := make(map[string]struct{}, len(snap.Positions))
	keys := make([]model.QuoteKey, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		id := p.OutcomeIdentifier()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, model.QuoteKey{InstrumentID: id, Side: model.SideBuy})
	}
	return keys
}

// eventLoop waits for the first reconciled position set, subscribes the
// market feed for those markets and applies updates as they arrive.
func (s *Service) eventLoop(ctx context.Context) {
	marketIDs := s.waitForMarkets(ctx)
	if len(marketIDs) == 0 {
		return
	}

	events, err := s.deps.Feed.Subscribe(ctx, marketIDs)
	if err != nil {
		log.Warn().Err(err).Str("feed", s.deps.Feed.Name()).Msg("market feed subscribe failed, polling only")
		return
	}
	log.Info().Str("feed", s.deps.Feed.Name()).Int("markets", len(marketIDs)).Msg("market feed subscribed")

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-events:
			if !ok {
				return
			}
			s.applyMarketUpdate(ctx, u)
		}
	}
}

func (s *Service) waitForMarkets(ctx context.Context) []string {
	updates, unsubscribe := s.deps.Store.Subscribe()
	defer unsubscribe()

	for {
		ids := s.marketIDs()
		if len(ids) > 0 {
			return ids
		}
		select {
		case <-ctx.Done():
			return nil
		case <-updates:
		}
	}
}

func (s *Service) marketIDs() []string {
	snap := s.deps.Store.Snapshot()
	seen := make(map[string]struct{}, len(snap.Positions))
	ids := make([]string, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		id := p.MarketID
		if id == "" {
			id = p.Market.ID
		}
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// applyMarketUpdate patches the affected positions' market view and
// re-runs settlement so wins and losses show up without waiting for the
// next poll. A status-only event falls back to the cached market metadata
// for the outcome set, so settlement can still resolve won and lost.
func (s *Service) applyMarketUpdate(ctx context.Context, u model.MarketUpdate) {
	outcomes := u.Outcomes
	if len(outcomes) == 0 && s.deps.Markets != nil {
		if cached, ok := s.deps.Markets.Get(ctx, "market", u.MarketID); ok {
			outcomes = cached.Outcomes
		}
	}

	snap := s.deps.Store.Snapshot()
	touched := false

	for i, p := range snap.Positions {
		if p.MarketID != u.MarketID && p.Market.ID != u.MarketID {
			continue
		}
		if u.Status != "" {
			snap.Positions[i].Market.Status = u.Status
		}
		if len(outcomes) > 0 {
			snap.Positions[i].Market.Outcomes = outcomes
		}
		touched = true
	}
	if !touched {
		return
	}

	merged := domainsvc.Settle(domainsvc.Dedupe(snap.Positions))
	s.cacheMarkets(ctx, merged)
	s.deps.Store.Update(func(tx *store.Tx) {
		tx.SetPositions(merged)
	})
}

// cacheMarkets keeps market metadata warm for consumers outside the poll
// path (detail views, lookups after the feed reports a bare market id).
func (s *Service) cacheMarkets(ctx context.Context, records []model.PositionRecord) {
	if s.deps.Markets == nil {
		return
	}
	for _, p := range records {
		id := p.Market.ID
		if id == "" {
			id = p.MarketID
		}
		if id == "" {
			continue
		}
		if err := s.deps.Markets.Put(ctx, "market", id, p.Market); err != nil {
			log.Warn().Err(err).Str("market", id).Msg("market metadata cache write failed")
			return
		}
	}
}
