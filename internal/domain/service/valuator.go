package service

import (
	"time"

	"github.com/shopspring/decimal"

	"polyfolio/internal/domain/model"
)

// QuoteLookup resolves the freshest known price for an outcome id.
// It may return stale prices; staleness handling belongs to the caller.
type QuoteLookup func(outcomeID string) (decimal.Decimal, bool)

var defaultPrice = decimal.NewFromFloat(0.5)

// ResolveCurrentPrice picks the price a position is valued at. Fallback
// order: live quote for the outcome, the record's embedded current price,
// its probability, then 0.5.
func ResolveCurrentPrice(p model.PositionRecord, quotes QuoteLookup) decimal.Decimal {
	if quotes != nil {
		if px, ok := quotes(p.OutcomeIdentifier()); ok {
			return px
		}
	}
	if !p.CurrentPrice.IsZero() {
		return p.CurrentPrice
	}
	if !p.Probability.IsZero() {
		return p.Probability
	}
	return defaultPrice
}

// PositionValue is volume times the resolved current price. A zero-volume
// position is worth nothing no matter what the record claims. When the
// resolved price is zero the embedded precomputed value stands in.
func PositionValue(p model.PositionRecord, quotes QuoteLookup) decimal.Decimal {
	if p.Volume.IsZero() {
		return decimal.Zero
	}
	px := ResolveCurrentPrice(p, quotes)
	if px.IsZero() && !p.CurrentValue.IsZero() {
		return p.CurrentValue
	}
	return p.Volume.Mul(px)
}

// Open reports whether a position counts toward the live portfolio value:
// filled, not settled lost, on a market that still trades, and worth
// something.
func Open(p model.PositionRecord, quotes QuoteLookup) bool {
	if p.Status != model.StatusFilled {
		return false
	}
	if p.Market.Closed() {
		return false
	}
	return !PositionValue(p, quotes).IsZero()
}

// ComputeSnapshot derives the portfolio valuation from the cash balance,
// the reconciled positions and the freshest known price per position.
func ComputeSnapshot(balance decimal.Decimal, positions []model.PositionRecord, quotes QuoteLookup, now time.Time) model.PortfolioSnapshot {
	positionsValue := decimal.Zero
	for _, p := range positions {
		if !Open(p, quotes) {
			continue
		}
		positionsValue = positionsValue.Add(PositionValue(p, quotes))
	}
	return model.PortfolioSnapshot{
		Balance:        balance,
		PositionsValue: positionsValue,
		TotalValue:     balance.Add(positionsValue),
		ComputedAt:     now,
	}
}
