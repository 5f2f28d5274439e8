package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"polyfolio/internal/application/port"
	"polyfolio/internal/domain/model"
)

// Repo is the postgres flavor of the snapshot repository, for deployments
// that already run a database instead of a local sqlite file.
type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

// GetDB exposes the handle so sibling repos can share the connection.
func (r *Repo) GetDB() *sql.DB { return r.db }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS state_snapshots (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_state_snapshots_ts ON state_snapshots(ts_ms);
`)
	return err
}

func (r *Repo) Save(ctx context.Context, snap model.StateSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO state_snapshots(ts_ms, payload) VALUES($1, $2)`,
		snap.SavedAt.UnixMilli(), string(payload))
	return err
}

func (r *Repo) Load(ctx context.Context) (model.StateSnapshot, bool, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM state_snapshots ORDER BY ts_ms DESC, id DESC LIMIT 1`).
		Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StateSnapshot{}, false, nil
	}
	if err != nil {
		return model.StateSnapshot{}, false, err
	}

	var snap model.StateSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return model.StateSnapshot{}, false, nil
	}
	return snap, true, nil
}

var _ port.SnapshotRepo = (*Repo)(nil)
