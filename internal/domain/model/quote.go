package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order-book side a quote was taken from.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// QuoteKey identifies a quote: one instrument on one side of the book.
type QuoteKey struct {
	InstrumentID string
	Side         Side
}

// Quote is the last fetched price for a (instrument, side) pair.
// Prices on prediction markets live in [0, 1].
type Quote struct {
	InstrumentID string          `json:"instrument_id"`
	Side         Side            `json:"side"`
	Price        decimal.Decimal `json:"price"`
	FetchedAt    time.Time       `json:"fetched_at"`
}

// Key returns the cache identity of the quote.
func (q Quote) Key() QuoteKey {
	return QuoteKey{InstrumentID: q.InstrumentID, Side: q.Side}
}
