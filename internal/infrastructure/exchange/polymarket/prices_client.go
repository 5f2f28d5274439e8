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

// PricesClient talks to the CLOB price endpoints: one bulk call for a set
// of (token, side) pairs and a single-key fallback.
type PricesClient struct {
	baseURL string
	client  *http.Client
}

func NewPricesClient(baseURL string, timeout time.Duration) *PricesClient {
	if baseURL == "" {
		baseURL = "https://clob.polymarket.com"
	}
	return &PricesClient{
		baseURL: baseURL,
		client:  newHTTPClient(timeout),
	}
}

type bulkPriceReq struct {
	TokenID string `json:"token_id"`
	Side    string `json:"side"`
}

// BulkPrices posts all requested keys in one call. The response maps token
// id to per-side price strings; tokens the venue does not answer for are
// simply absent, which callers treat as "price unknown".
func (c *PricesClient) BulkPrices(ctx context.Context, keys []model.QuoteKey) (map[string]decimal.Decimal, error) {
	if len(keys) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	payload := make([]bulkPriceReq, 0, len(keys))
	for _, k := range keys {
		payload = append(payload, bulkPriceReq{TokenID: k.InstrumentID, Side: string(k.Side)})
	}

	// token id -> side -> price string
	var resp map[string]map[string]string
	if err := postJSON(ctx, c.client, c.baseURL, "/prices", payload, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]decimal.Decimal, len(resp))
	for _, k := range keys {
		sides, ok := resp[k.InstrumentID]
		if !ok {
			continue
		}
		raw, ok := sides[string(k.Side)]
		if !ok {
			continue
		}
		px, err := decimal.NewFromString(raw)
		if err != nil {
			continue // unparsable price is a per-key miss, not a batch error
		}
		out[k.InstrumentID] = px
	}
	return out, nil
}

type singlePriceResp struct {
	Price string `json:"price"`
}

// Price fetches one (token, side) pair.
func (c *PricesClient) Price(ctx context.Context, key model.QuoteKey) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("token_id", key.InstrumentID)
	params.Set("side", string(key.Side))

	var resp singlePriceResp
	if err := getJSON(ctx, c.client, c.baseURL, "/price", params, &resp); err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(resp.Price)
}

var _ port.PriceAPI = (*PricesClient)(nil)
