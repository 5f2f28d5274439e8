package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"polyfolio/internal/domain/model"
)

func TestPositionsByStatusDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("status"); got != "filled" {
			t.Errorf("expected status=filled, got %q", got)
		}
		if got := r.URL.Query().Get("user"); got != "0xabc" {
			t.Errorf("expected user=0xabc, got %q", got)
		}
		w.Write([]byte(`[
			{
				"id": "p1",
				"market_id": "m1",
				"outcome_id": "o1",
				"status": "filled",
				"entry_price": "0.40",
				"size": "10",
				"cur_price": "0.55",
				"updated_at": "2026-03-01T12:00:00Z",
				"market": {"id": "m1", "slug": "rates-up", "status": "open",
					"outcomes": [{"id": "o1", "index": 0, "value": "Yes", "price": "0.55"}]},
				"outcome": {"id": "o1", "index": 0, "value": "Yes"}
			},
			{
				"market_id": "m2",
				"status": "open",
				"size": "not-a-number",
				"updated_at": "garbage",
				"outcome": {"value": "No"}
			}
		]`))
	}))
	defer srv.Close()

	client := NewDataClient(srv.URL, "0xabc", 0)
	got, err := client.PositionsByStatus(context.Background(), model.StatusFilled)
	if err != nil {
		t.Fatalf("PositionsByStatus failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}

	first := got[0]
	if !first.Volume.Equal(decimal.NewFromInt(10)) || !first.EntryPrice.Equal(decimal.NewFromFloat(0.4)) {
		t.Errorf("decoded fields wrong: volume=%s entry=%s", first.Volume, first.EntryPrice)
	}
	if first.UpdatedAt.IsZero() {
		t.Error("RFC3339 timestamp should parse")
	}
	if first.Market.Slug != "rates-up" || len(first.Market.Outcomes) != 1 {
		t.Errorf("market ref wrong: %+v", first.Market)
	}

	// the sloppy record degrades instead of failing the batch
	second := got[1]
	if !second.Volume.IsZero() {
		t.Errorf("malformed size should read as zero, got %s", second.Volume)
	}
	if !second.UpdatedAt.IsZero() {
		t.Error("unparsable timestamp should read as zero time")
	}
	if second.Outcome.Index != -1 {
		t.Errorf("absent index should read as -1, got %d", second.Outcome.Index)
	}
	if second.CanonicalKey() != "m2|No" {
		t.Errorf("fallback identity should use outcome value, got %q", second.CanonicalKey())
	}
}

func TestBulkPricesPartialAndMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"tok1": {"BUY": "0.52"},
			"tok2": {"BUY": "oops"}
		}`))
	}))
	defer srv.Close()

	client := NewPricesClient(srv.URL, 0)
	got, err := client.BulkPrices(context.Background(), []model.QuoteKey{
		{InstrumentID: "tok1", Side: model.SideBuy},
		{InstrumentID: "tok2", Side: model.SideBuy},
		{InstrumentID: "tok3", Side: model.SideBuy},
	})
	if err != nil {
		t.Fatalf("BulkPrices failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected only the parsable key, got %d", len(got))
	}
	if !got["tok1"].Equal(decimal.NewFromFloat(0.52)) {
		t.Errorf("expected 0.52, got %s", got["tok1"])
	}
}

func TestBalanceDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balance": "1234.56"}`))
	}))
	defer srv.Close()

	client := NewDataClient(srv.URL, "0xabc", 0)
	got, err := client.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !got.Equal(decimal.NewFromFloat(1234.56)) {
		t.Errorf("expected 1234.56, got %s", got)
	}
}

func TestNon2xxSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewPricesClient(srv.URL, 0)
	if _, err := client.BulkPrices(context.Background(), []model.QuoteKey{{InstrumentID: "tok1", Side: model.SideBuy}}); err == nil {
		t.Error("expected an error for a non-2xx response")
	}
}
