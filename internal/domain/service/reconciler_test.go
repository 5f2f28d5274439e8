package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polyfolio/internal/domain/model"
)

func record(id, marketID, outcomeID string, updatedAt time.Time) model.PositionRecord {
	return model.PositionRecord{
		ID:        id,
		MarketID:  marketID,
		OutcomeID: outcomeID,
		Status:    model.StatusFilled,
		UpdatedAt: updatedAt,
	}
}

func TestReconcileIdempotent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := []model.PositionRecord{
		record("p1", "m1", "o1", base),
		record("p2", "m1", "o2", base.Add(time.Minute)),
	}

	once := Reconcile(src)
	twice := Reconcile(src, src)

	if len(once) != 2 || len(twice) != 2 {
		t.Fatalf("expected 2 records, got %d and %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID {
			t.Errorf("record %d differs: %s vs %s", i, once[i].ID, twice[i].ID)
		}
	}
}

func TestReconcileLastWriteWins(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	older := record("p1", "m1", "o1", t1)
	older.Volume = decimal.NewFromInt(5)
	newer := record("p1", "m1", "o1", t2)
	newer.Volume = decimal.NewFromInt(9)

	for _, sources := range [][][]model.PositionRecord{
		{{older}, {newer}},
		{{newer}, {older}},
	} {
		got := Reconcile(sources...)
		if len(got) != 1 {
			t.Fatalf("expected 1 record, got %d", len(got))
		}
		if !got[0].Volume.Equal(newer.Volume) {
			t.Errorf("expected newer record to win, got volume %s", got[0].Volume)
		}
		if !got[0].UpdatedAt.Equal(t2) {
			t.Errorf("expected updatedAt %v, got %v", t2, got[0].UpdatedAt)
		}
	}
}

func TestReconcileEqualTimestampsKeepsLast(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := record("p1", "m1", "o1", ts)
	first.Volume = decimal.NewFromInt(1)
	second := record("p1", "m1", "o1", ts)
	second.Volume = decimal.NewFromInt(2)

	got := Reconcile([]model.PositionRecord{first}, []model.PositionRecord{second})
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if !got[0].Volume.Equal(second.Volume) {
		t.Errorf("tie should keep the last processed record, got volume %s", got[0].Volume)
	}
}

func TestReconcileFallbackIdentity(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	withID := record("p1", "m1", "", t1)
	withID.Outcome = model.OutcomeRef{ID: "o1", Index: 0}
	withID.ID = ""
	noID := record("", "m1", "", t2)
	noID.Outcome = model.OutcomeRef{ID: "o1", Index: 0}

	got := Reconcile([]model.PositionRecord{withID}, []model.PositionRecord{noID})
	if len(got) != 1 {
		t.Fatalf("records sharing (market, outcome id) should merge, got %d", len(got))
	}
	if !got[0].UpdatedAt.Equal(t2) {
		t.Errorf("expected the later record, got updatedAt %v", got[0].UpdatedAt)
	}
}

func TestReconcileOutcomeIndexFallback(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := record("", "m1", "", ts)
	a.Outcome = model.OutcomeRef{Index: 1, Value: "No"}
	b := record("", "m1", "", ts.Add(time.Second))
	b.Outcome = model.OutcomeRef{Index: 1, Value: "No"}
	c := record("", "m1", "", ts)
	c.Outcome = model.OutcomeRef{Index: 0, Value: "Yes"}

	got := Reconcile([]model.PositionRecord{a, b, c})
	if len(got) != 2 {
		t.Fatalf("expected index-keyed merge to yield 2 records, got %d", len(got))
	}
}

func TestReconcileMissingTimestampsLowestPrecedence(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	timed := record("p1", "m1", "o1", ts)
	timed.Volume = decimal.NewFromInt(3)
	untimed := record("p1", "m1", "o1", time.Time{})
	untimed.Volume = decimal.NewFromInt(7)

	got := Reconcile([]model.PositionRecord{timed}, []model.PositionRecord{untimed})
	if !got[0].Volume.Equal(timed.Volume) {
		t.Errorf("record without timestamps must not supersede a timed one, got volume %s", got[0].Volume)
	}
}

func TestSettleNotFilled(t *testing.T) {
	rec := record("p1", "m1", "o1", time.Now())
	rec.Market = model.MarketRef{ID: "m1", Status: model.MarketStatusClosed}

	got := Settle([]model.PositionRecord{rec})
	if got[0].Status != model.StatusNotFilled {
		t.Errorf("zero-volume position on closed market should be not_filled, got %s", got[0].Status)
	}
}

func TestSettleWonAndLost(t *testing.T) {
	one := decimal.NewFromInt(1)
	market := model.MarketRef{
		ID:     "m1",
		Status: model.MarketStatusClosed,
		Outcomes: []model.OutcomeRef{
			{ID: "o1", Index: 0, Price: one},
			{ID: "o2", Index: 1, Price: decimal.Zero},
		},
	}

	winner := record("p1", "m1", "o1", time.Now())
	winner.Volume = decimal.NewFromInt(10)
	winner.EntryPrice = decimal.NewFromFloat(0.4)
	winner.Market = market

	loser := record("p2", "m1", "o2", time.Now())
	loser.Volume = decimal.NewFromInt(10)
	loser.EntryPrice = decimal.NewFromFloat(0.6)
	loser.Market = market

	got := Settle([]model.PositionRecord{winner, loser})
	if got[0].Status != model.StatusWon {
		t.Errorf("expected won, got %s", got[0].Status)
	}
	if got[1].Status != model.StatusLost {
		t.Errorf("expected lost, got %s", got[1].Status)
	}
}

func TestSettleOpenMarketUntouched(t *testing.T) {
	rec := record("p1", "m1", "o1", time.Now())
	rec.Market = model.MarketRef{ID: "m1", Status: "open"}

	got := Settle([]model.PositionRecord{rec})
	if got[0].Status != model.StatusFilled {
		t.Errorf("open market position should keep its status, got %s", got[0].Status)
	}
}
