package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is the derived valuation of the whole account:
// cash balance plus the live value of open positions. It is recomputed,
// never mutated in place.
type PortfolioSnapshot struct {
	Balance        decimal.Decimal `json:"balance"`
	PositionsValue decimal.Decimal `json:"positions_value"`
	TotalValue     decimal.Decimal `json:"total_value"`
	ComputedAt     time.Time       `json:"computed_at"`
}

// StateSnapshot is the serialized form of the application state that
// survives restarts. The portfolio is rehydrated as-is and recomputed on
// the first poll.
type StateSnapshot struct {
	Balance   decimal.Decimal   `json:"balance"`
	Positions []PositionRecord  `json:"positions"`
	Portfolio PortfolioSnapshot `json:"portfolio"`
	SavedAt   time.Time         `json:"saved_at"`
}

// MarketUpdate is a push event from the market feed: a market changed
// status or its outcome prices moved.
type MarketUpdate struct {
	MarketID string       `json:"market_id"`
	Status   string       `json:"status"`
	Outcomes []OutcomeRef `json:"outcomes"`
	Ts       int64        `json:"ts_ms"`
}
