package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"polyfolio/internal/application/port"
	"polyfolio/internal/domain/model"
)

// HistoryRepo is the postgres flavor of the portfolio valuation history.
type HistoryRepo struct {
	db *sql.DB
}

func NewHistoryRepo(db *sql.DB) (*HistoryRepo, error) {
	r := &HistoryRepo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

func (hr *HistoryRepo) migrate(ctx context.Context) error {
	_, err := hr.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS portfolio_history (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  balance TEXT NOT NULL,
  positions_value TEXT NOT NULL,
  total_value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_portfolio_history_ts ON portfolio_history(ts_ms);
`)
	return err
}

func (hr *HistoryRepo) Append(ctx context.Context, snap model.PortfolioSnapshot) error {
	_, err := hr.db.ExecContext(ctx, `
		INSERT INTO portfolio_history(ts_ms, balance, positions_value, total_value)
		VALUES($1, $2, $3, $4)
	`, snap.ComputedAt.UnixMilli(), snap.Balance.String(), snap.PositionsValue.String(), snap.TotalValue.String())
	return err
}

func (hr *HistoryRepo) Recent(ctx context.Context, limit int) ([]model.PortfolioSnapshot, error) {
	rows, err := hr.db.QueryContext(ctx, `
		SELECT ts_ms, balance, positions_value, total_value
		FROM portfolio_history
		ORDER BY ts_ms DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PortfolioSnapshot
	for rows.Next() {
		var tsMs int64
		var balance, positionsValue, totalValue string
		if err := rows.Scan(&tsMs, &balance, &positionsValue, &totalValue); err != nil {
			return nil, err
		}
		snap := model.PortfolioSnapshot{ComputedAt: time.UnixMilli(tsMs).UTC()}
		snap.Balance, _ = decimal.NewFromString(balance)
		snap.PositionsValue, _ = decimal.NewFromString(positionsValue)
		snap.TotalValue, _ = decimal.NewFromString(totalValue)
		out = append(out, snap)
	}
	return out, rows.Err()
}

var _ port.HistoryRepo = (*HistoryRepo)(nil)
