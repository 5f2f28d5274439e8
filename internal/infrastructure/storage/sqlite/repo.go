package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"polyfolio/internal/application/port"
	"polyfolio/internal/domain/model"
)

// Repo persists serialized application-state snapshots in an embedded
// sqlite database so the portfolio survives restarts.
type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

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
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
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
		`INSERT INTO state_snapshots(ts_ms, payload) VALUES(?, ?)`,
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
		// corrupted row: treat as absent rather than fail startup
		return model.StateSnapshot{}, false, nil
	}
	return snap, true, nil
}

var _ port.SnapshotRepo = (*Repo)(nil)
