package polymarket

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"polyfolio/internal/application/port"
	"polyfolio/internal/domain/model"
)

// DataClient talks to the data API: positions filtered by status and the
// account's cash balance.
type DataClient struct {
	baseURL string
	user    string
	client  *http.Client
}

func NewDataClient(baseURL, user string, timeout time.Duration) *DataClient {
	if baseURL == "" {
		baseURL = "https://data-api.polymarket.com"
	}
	return &DataClient{
		baseURL: baseURL,
		user:    user,
		client:  newHTTPClient(timeout),
	}
}

type outcomePayload struct {
	ID    string `json:"id"`
	Index *int   `json:"index"`
	Value string `json:"value"`
	Price string `json:"price"`
}

type marketPayload struct {
	ID       string           `json:"id"`
	Slug     string           `json:"slug"`
	Question string           `json:"question"`
	Status   string           `json:"status"`
	Outcomes []outcomePayload `json:"outcomes"`
}

type positionPayload struct {
	ID           string         `json:"id"`
	MarketID     string         `json:"market_id"`
	OutcomeID    string         `json:"outcome_id"`
	Status       string         `json:"status"`
	EntryPrice   string         `json:"entry_price"`
	Size         string         `json:"size"`
	CurPrice     string         `json:"cur_price"`
	CurrentValue string         `json:"current_value"`
	Probability  string         `json:"probability"`
	UpdatedAt    string         `json:"updated_at"`
	CreatedAt    string         `json:"created_at"`
	Market       marketPayload  `json:"market"`
	Outcome      outcomePayload `json:"outcome"`
}

// PositionsByStatus returns the account's positions in the given status.
func (c *DataClient) PositionsByStatus(ctx context.Context, status model.PositionStatus) ([]model.PositionRecord, error) {
	params := url.Values{}
	params.Set("user", c.user)
	params.Set("status", string(status))

	var payload []positionPayload
	if err := getJSON(ctx, c.client, c.baseURL, "/positions", params, &payload); err != nil {
		return nil, err
	}

	out := make([]model.PositionRecord, 0, len(payload))
	for _, p := range payload {
		out = append(out, p.toRecord())
	}
	return out, nil
}

func (p positionPayload) toRecord() model.PositionRecord {
	return model.PositionRecord{
		ID:           p.ID,
		MarketID:     p.MarketID,
		OutcomeID:    p.OutcomeID,
		Status:       model.PositionStatus(p.Status),
		EntryPrice:   parseDecimal(p.EntryPrice),
		Volume:       parseDecimal(p.Size),
		CurrentPrice: parseDecimal(p.CurPrice),
		CurrentValue: parseDecimal(p.CurrentValue),
		Probability:  parseDecimal(p.Probability),
		UpdatedAt:    parseTime(p.UpdatedAt),
		CreatedAt:    parseTime(p.CreatedAt),
		Market:       p.Market.toRef(),
		Outcome:      p.Outcome.toRef(),
	}
}

func (m marketPayload) toRef() model.MarketRef {
	outcomes := make([]model.OutcomeRef, 0, len(m.Outcomes))
	for _, o := range m.Outcomes {
		outcomes = append(outcomes, o.toRef())
	}
	return model.MarketRef{
		ID:       m.ID,
		Slug:     m.Slug,
		Name:     m.Question,
		Status:   m.Status,
		Outcomes: outcomes,
	}
}

func (o outcomePayload) toRef() model.OutcomeRef {
	idx := -1
	if o.Index != nil {
		idx = *o.Index
	}
	return model.OutcomeRef{
		ID:    o.ID,
		Index: idx,
		Value: o.Value,
		Price: parseDecimal(o.Price),
	}
}

// parseDecimal is tolerant: a missing or malformed field reads as zero.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Decimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}
	}
	return d
}

// parseTime is tolerant: unparsable timestamps read as the zero time,
// which reconciliation treats as lowest precedence.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

type balanceResp struct {
	Balance string `json:"balance"`
}

// Balance returns the account's cash balance. A missing field reads as
// zero, never as unknown.
func (c *DataClient) Balance(ctx context.Context) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("user", c.user)

	var resp balanceResp
	if err := getJSON(ctx, c.client, c.baseURL, "/balance", params, &resp); err != nil {
		return decimal.Decimal{}, err
	}
	return parseDecimal(resp.Balance), nil
}

var (
	_ port.PositionAPI = (*DataClient)(nil)
	_ port.BalanceAPI  = (*DataClient)(nil)
)
