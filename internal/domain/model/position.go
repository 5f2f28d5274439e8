package model

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a position as reported upstream
// or derived during reconciliation.
type PositionStatus string

const (
	StatusOpen      PositionStatus = "open"
	StatusFilled    PositionStatus = "filled"
	StatusClosed    PositionStatus = "closed"
	StatusCancelled PositionStatus = "cancelled"
	StatusWon       PositionStatus = "won"
	StatusLost      PositionStatus = "lost"
	StatusNotFilled PositionStatus = "not_filled"
)

// MarketStatusClosed marks a market that no longer trades.
const MarketStatusClosed = "closed"

// OutcomeRef describes one outcome of a market. Index is -1 when the
// upstream payload carried no positional information.
type OutcomeRef struct {
	ID    string          `json:"id"`
	Index int             `json:"index"`
	Value string          `json:"value"`
	Price decimal.Decimal `json:"price"`
}

// Resolved reports whether this outcome's price has settled to 1.0,
// i.e. the market resolved in its favor.
func (o OutcomeRef) Resolved() bool {
	return o.Price.Equal(decimal.NewFromInt(1))
}

// MarketRef is the market a position belongs to.
type MarketRef struct {
	ID       string       `json:"id"`
	Slug     string       `json:"slug"`
	Name     string       `json:"name"`
	Status   string       `json:"status"`
	Outcomes []OutcomeRef `json:"outcomes,omitempty"`
}

// Closed reports whether the market no longer trades.
func (m MarketRef) Closed() bool { return m.Status == MarketStatusClosed }

// ResolvedOutcome returns the outcome whose price settled to 1.0, if any.
func (m MarketRef) ResolvedOutcome() (OutcomeRef, bool) {
	for _, o := range m.Outcomes {
		if o.Resolved() {
			return o, true
		}
	}
	return OutcomeRef{}, false
}

// PositionRecord is one holding as reported by an upstream source. Records
// for the same holding can arrive from several status-partitioned queries
// and from market update events; reconciliation collapses them.
type PositionRecord struct {
	ID           string          `json:"id,omitempty"`
	MarketID     string          `json:"market_id"`
	OutcomeID    string          `json:"outcome_id"`
	Status       PositionStatus  `json:"status"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	Volume       decimal.Decimal `json:"volume"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	CurrentValue decimal.Decimal `json:"current_value"`
	Probability  decimal.Decimal `json:"probability"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CreatedAt    time.Time       `json:"created_at"`
	Market       MarketRef       `json:"market"`
	Outcome      OutcomeRef      `json:"outcome"`
}

// CanonicalKey derives the identity used to deduplicate records. The upstream
// id wins when present; otherwise the key degrades through market slug or id
// combined with the outcome's id, then its index, then its raw value. A record
// is never dropped for lacking identity, it just keys on whatever is left.
func (p PositionRecord) CanonicalKey() string {
	if p.ID != "" {
		return p.ID
	}
	market := p.Market.Slug
	if market == "" {
		market = p.MarketID
	}
	if market == "" {
		market = p.Market.ID
	}
	outcome := p.OutcomeID
	if outcome == "" {
		outcome = p.Outcome.ID
	}
	if outcome == "" && p.Outcome.Index >= 0 {
		outcome = "idx:" + strconv.Itoa(p.Outcome.Index)
	}
	if outcome == "" {
		outcome = p.Outcome.Value
	}
	return market + "|" + outcome
}

// EffectiveTime is the record's recency for last-write-wins merging:
// updatedAt, falling back to createdAt, falling back to the zero time.
func (p PositionRecord) EffectiveTime() time.Time {
	if !p.UpdatedAt.IsZero() {
		return p.UpdatedAt
	}
	return p.CreatedAt
}

// OutcomeIdentifier is the outcome id used for quote lookups and
// won/lost resolution, preferring the top-level field.
func (p PositionRecord) OutcomeIdentifier() string {
	if p.OutcomeID != "" {
		return p.OutcomeID
	}
	return p.Outcome.ID
}

// Equivalent reports whether two records are the same holding in the same
// state, used to skip redundant state-store writes.
func (p PositionRecord) Equivalent(other PositionRecord) bool {
	return p.CanonicalKey() == other.CanonicalKey() &&
		p.Status == other.Status &&
		p.Volume.Equal(other.Volume) &&
		p.EntryPrice.Equal(other.EntryPrice) &&
		p.CurrentPrice.Equal(other.CurrentPrice) &&
		p.EffectiveTime().Equal(other.EffectiveTime()) &&
		p.Market.Status == other.Market.Status
}
