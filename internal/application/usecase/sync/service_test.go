package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polyfolio/internal/application/service"
	"polyfolio/internal/application/store"
	"polyfolio/internal/domain/model"
	"polyfolio/internal/infrastructure/storage"
	"polyfolio/internal/infrastructure/storage/ttlcache"
)

type fakePositionAPI struct {
	byStatus map[model.PositionStatus][]model.PositionRecord
	err      error
}

func (f *fakePositionAPI) PositionsByStatus(_ context.Context, status model.PositionStatus) ([]model.PositionRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byStatus[status], nil
}

type fakeBalanceAPI struct {
	balance decimal.Decimal
	err     error
}

func (f *fakeBalanceAPI) Balance(context.Context) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.balance, nil
}

type fakePriceAPI struct {
	prices map[string]decimal.Decimal
	calls  int
	err    error
}

func (f *fakePriceAPI) BulkPrices(_ context.Context, keys []model.QuoteKey) (map[string]decimal.Decimal, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]decimal.Decimal)
	for _, k := range keys {
		if px, ok := f.prices[k.InstrumentID]; ok {
			out[k.InstrumentID] = px
		}
	}
	return out, nil
}

func (f *fakePriceAPI) Price(_ context.Context, key model.QuoteKey) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.prices[key.InstrumentID], nil
}

func position(id, marketID, outcomeID string, updated time.Time) model.PositionRecord {
	return model.PositionRecord{
		ID:        id,
		MarketID:  marketID,
		OutcomeID: outcomeID,
		Status:    model.StatusFilled,
		Volume:    decimal.NewFromInt(10),
		UpdatedAt: updated,
		Market:    model.MarketRef{ID: marketID, Status: "active"},
	}
}

func newTestService(positions *fakePositionAPI, balance *fakeBalanceAPI, prices *fakePriceAPI) (*Service, *store.Store) {
	st := store.New()
	cache := service.NewQuoteCache(service.DefaultQuoteTTL)
	var deps ServiceDeps
	deps.Store = st
	deps.Cache = cache
	deps.Positions = positions
	deps.Balance = balance
	if prices != nil {
		deps.Fetcher = service.NewPriceFetcher(prices, cache)
	}
	deps.Markets = ttlcache.New[model.MarketRef](storage.NewMemoryStore(), "polyfolio", time.Minute)
	deps.Statuses = []model.PositionStatus{model.StatusOpen, model.StatusFilled}
	return NewService(deps), st
}

func TestRefreshPositionsMergesStatusPartitions(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	stale := position("p1", "m1", "o1", base)
	fresh := position("p1", "m1", "o1", base.Add(time.Minute))
	fresh.Volume = decimal.NewFromInt(25)

	api := &fakePositionAPI{byStatus: map[model.PositionStatus][]model.PositionRecord{
		model.StatusOpen:   {stale},
		model.StatusFilled: {fresh, position("p2", "m2", "o2", base)},
	}}
	svc, st := newTestService(api, &fakeBalanceAPI{}, nil)

	svc.refreshPositions(context.Background())

	snap := st.Snapshot()
	if len(snap.Positions) != 2 {
		t.Fatalf("positions = %d, want 2", len(snap.Positions))
	}
	if !snap.Positions[0].Volume.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("duplicate not resolved to newest record, volume = %s", snap.Positions[0].Volume)
	}
}

func TestRefreshPositionsKeepsLastSetOnError(t *testing.T) {
	api := &fakePositionAPI{byStatus: map[model.PositionStatus][]model.PositionRecord{
		model.StatusFilled: {position("p1", "m1", "o1", time.Now())},
	}}
	svc, st := newTestService(api, &fakeBalanceAPI{}, nil)

	svc.refreshPositions(context.Background())
	if len(st.Snapshot().Positions) != 1 {
		t.Fatal("expected initial fetch to populate positions")
	}

	api.err = errors.New("upstream down")
	svc.refreshPositions(context.Background())
	if len(st.Snapshot().Positions) != 1 {
		t.Fatal("failed refresh must not clear the stored positions")
	}
}

func TestRefreshBalanceWritesThrough(t *testing.T) {
	balance := &fakeBalanceAPI{balance: decimal.NewFromFloat(123.45)}
	svc, st := newTestService(&fakePositionAPI{}, balance, nil)

	svc.refreshBalance(context.Background())
	if got := st.Snapshot().Balance; !got.Equal(decimal.NewFromFloat(123.45)) {
		t.Fatalf("balance = %s, want 123.45", got)
	}

	balance.err = errors.New("upstream down")
	balance.balance = decimal.Zero
	svc.refreshBalance(context.Background())
	if got := st.Snapshot().Balance; !got.Equal(decimal.NewFromFloat(123.45)) {
		t.Fatalf("failed refresh overwrote balance, got %s", got)
	}
}

func TestRefreshPricesBumpsQuoteRevision(t *testing.T) {
	api := &fakePositionAPI{byStatus: map[model.PositionStatus][]model.PositionRecord{
		model.StatusFilled: {position("p1", "m1", "tok1", time.Now())},
	}}
	prices := &fakePriceAPI{prices: map[string]decimal.Decimal{
		"tok1": decimal.NewFromFloat(0.62),
	}}
	svc, st := newTestService(api, &fakeBalanceAPI{}, prices)

	svc.refreshPositions(context.Background())
	before := st.Snapshot().QuotesRev

	svc.refreshPrices(context.Background())
	if got := st.Snapshot().QuotesRev; got != before+1 {
		t.Fatalf("QuotesRev = %d, want %d", got, before+1)
	}
	if prices.calls != 1 {
		t.Fatalf("bulk calls = %d, want 1", prices.calls)
	}
}

func TestRefreshPricesUserTriggeredSurfacesError(t *testing.T) {
	api := &fakePositionAPI{byStatus: map[model.PositionStatus][]model.PositionRecord{
		model.StatusFilled: {position("p1", "m1", "tok1", time.Now())},
	}}
	prices := &fakePriceAPI{err: errors.New("rate limited")}
	svc, _ := newTestService(api, &fakeBalanceAPI{}, prices)

	svc.refreshPositions(context.Background())
	if err := svc.RefreshPrices(context.Background()); err == nil {
		t.Fatal("expected upstream error to surface on explicit refresh")
	}
}

func TestApplyMarketUpdateSettlesWinners(t *testing.T) {
	p := position("p1", "m1", "yes", time.Now())
	p.Outcome = model.OutcomeRef{ID: "yes", Value: "Yes"}
	api := &fakePositionAPI{byStatus: map[model.PositionStatus][]model.PositionRecord{
		model.StatusFilled: {p},
	}}
	svc, st := newTestService(api, &fakeBalanceAPI{}, nil)
	svc.refreshPositions(context.Background())

	svc.applyMarketUpdate(context.Background(), model.MarketUpdate{
		MarketID: "m1",
		Status:   model.MarketStatusClosed,
		Outcomes: []model.OutcomeRef{
			{ID: "yes", Value: "Yes", Price: decimal.NewFromInt(1)},
			{ID: "no", Value: "No", Price: decimal.Zero},
		},
	})

	snap := st.Snapshot()
	if got := snap.Positions[0].Status; got != model.StatusWon {
		t.Fatalf("status = %s, want %s", got, model.StatusWon)
	}
}

func TestApplyMarketUpdateStatusOnlyUsesCachedOutcomes(t *testing.T) {
	p := position("p1", "m1", "yes", time.Now())
	p.Outcome = model.OutcomeRef{ID: "yes", Value: "Yes"}
	api := &fakePositionAPI{byStatus: map[model.PositionStatus][]model.PositionRecord{
		model.StatusFilled: {p},
	}}
	svc, st := newTestService(api, &fakeBalanceAPI{}, nil)

	// the stored position never saw the outcome set, only the cache did
	svc.refreshPositions(context.Background())
	err := svc.deps.Markets.Put(context.Background(), "market", "m1", model.MarketRef{
		ID:     "m1",
		Status: "active",
		Outcomes: []model.OutcomeRef{
			{ID: "yes", Value: "Yes", Price: decimal.NewFromInt(1)},
			{ID: "no", Value: "No", Price: decimal.Zero},
		},
	})
	if err != nil {
		t.Fatalf("cache warm failed: %v", err)
	}

	svc.applyMarketUpdate(context.Background(), model.MarketUpdate{
		MarketID: "m1",
		Status:   model.MarketStatusClosed,
	})

	got := st.Snapshot()
	if len(got.Positions[0].Market.Outcomes) == 0 {
		t.Fatal("cached outcome set was not applied on a status-only event")
	}
	if got.Positions[0].Status != model.StatusWon {
		t.Fatalf("status = %s, want %s", got.Positions[0].Status, model.StatusWon)
	}
}

func TestApplyMarketUpdateIgnoresUnrelatedMarket(t *testing.T) {
	api := &fakePositionAPI{byStatus: map[model.PositionStatus][]model.PositionRecord{
		model.StatusFilled: {position("p1", "m1", "o1", time.Now())},
	}}
	svc, st := newTestService(api, &fakeBalanceAPI{}, nil)
	svc.refreshPositions(context.Background())
	before := st.Snapshot().Version

	svc.applyMarketUpdate(context.Background(), model.MarketUpdate{MarketID: "other", Status: model.MarketStatusClosed})
	if got := st.Snapshot().Version; got != before {
		t.Fatalf("unrelated update bumped version %d -> %d", before, got)
	}
}
