package port

import (
	"context"

	"github.com/shopspring/decimal"

	"polyfolio/internal/domain/model"
)

// PriceAPI is the upstream quote surface. BulkPrices tolerates partial
// responses: a key missing from the returned map means "price unknown",
// not a failed batch.
type PriceAPI interface {
	BulkPrices(ctx context.Context, keys []model.QuoteKey) (map[string]decimal.Decimal, error)
	Price(ctx context.Context, key model.QuoteKey) (decimal.Decimal, error)
}

// PositionAPI returns the caller's positions filtered by status.
type PositionAPI interface {
	PositionsByStatus(ctx context.Context, status model.PositionStatus) ([]model.PositionRecord, error)
}

// BalanceAPI returns the current cash balance.
type BalanceAPI interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// MarketFeed pushes market update events for the given market ids.
type MarketFeed interface {
	Name() string
	Subscribe(ctx context.Context, marketIDs []string) (<-chan model.MarketUpdate, error)
}
