package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"polyfolio/internal/application/port"
	"polyfolio/internal/application/store"
	domainsvc "polyfolio/internal/domain/service"
)

// PortfolioService keeps the derived portfolio snapshot in the state store
// current. Recomputation is gated on the revisions of its three inputs
// (balance, positions, quote cache), so a transaction that touches both
// balance and positions triggers exactly one recompute and unrelated state
// churn triggers none.
type PortfolioService struct {
	store   *store.Store
	cache   *QuoteCache
	repo    port.SnapshotRepo // optional persistence of the recomputed state
	history port.HistoryRepo  // optional valuation history

	lastBalanceRev   uint64
	lastPositionsRev uint64
	lastQuotesRev    uint64
	seeded           bool
}

func NewPortfolioService(st *store.Store, cache *QuoteCache, repo port.SnapshotRepo, history port.HistoryRepo) *PortfolioService {
	return &PortfolioService{store: st, cache: cache, repo: repo, history: history}
}

// Recompute re-derives the portfolio if any input moved since the last
// call. Returns true when a new snapshot was written.
func (p *PortfolioService) Recompute(ctx context.Context, now time.Time) bool {
	snap := p.store.Snapshot()
	quotesRev := p.cache.Revision()

	if p.seeded &&
		snap.BalanceRev == p.lastBalanceRev &&
		snap.PositionsRev == p.lastPositionsRev &&
		quotesRev == p.lastQuotesRev {
		return false
	}
	p.lastBalanceRev = snap.BalanceRev
	p.lastPositionsRev = snap.PositionsRev
	p.lastQuotesRev = quotesRev
	p.seeded = true

	portfolio := domainsvc.ComputeSnapshot(snap.Balance, snap.Positions, p.cache.Lookup(), now)
	p.store.Update(func(tx *store.Tx) {
		tx.SetPortfolio(portfolio)
	})

	log.Debug().
		Str("balance", portfolio.Balance.String()).
		Str("positions_value", portfolio.PositionsValue.String()).
		Str("total_value", portfolio.TotalValue.String()).
		Msg("portfolio recomputed")

	if p.repo != nil {
		if err := p.repo.Save(ctx, p.store.Persistable(now)); err != nil {
			log.Warn().Err(err).Msg("state snapshot persist failed")
		}
	}
	if p.history != nil {
		if err := p.history.Append(ctx, portfolio); err != nil {
			log.Warn().Err(err).Msg("portfolio history append failed")
		}
	}
	return true
}
