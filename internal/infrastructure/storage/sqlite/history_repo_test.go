package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polyfolio/internal/domain/model"
)

func TestHistoryAppendAndRecent(t *testing.T) {
	repo, err := New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	defer repo.Close()

	history, err := NewHistoryRepo(repo.GetDB())
	if err != nil {
		t.Fatalf("failed to create history repo: %v", err)
	}

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		snap := model.PortfolioSnapshot{
			Balance:        decimal.NewFromInt(100),
			PositionsValue: decimal.NewFromInt(int64(i * 10)),
			TotalValue:     decimal.NewFromInt(int64(100 + i*10)),
			ComputedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := history.Append(ctx, snap); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	got, err := history.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if !got[0].TotalValue.Equal(decimal.NewFromInt(120)) {
		t.Errorf("newest entry first: got total %s, want 120", got[0].TotalValue)
	}
	if !got[0].ComputedAt.After(got[1].ComputedAt) {
		t.Errorf("entries not ordered newest first: %v then %v", got[0].ComputedAt, got[1].ComputedAt)
	}
}

func TestHistoryRecentEmpty(t *testing.T) {
	repo, err := New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	defer repo.Close()

	history, err := NewHistoryRepo(repo.GetDB())
	if err != nil {
		t.Fatalf("failed to create history repo: %v", err)
	}

	got, err := history.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no entries, got %d", len(got))
	}
}
