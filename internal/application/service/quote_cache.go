package service

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polyfolio/internal/domain/model"
	domainsvc "polyfolio/internal/domain/service"
)

// DefaultQuoteTTL is the shortest interval that stays inside the upstream
// rate limit.
const DefaultQuoteTTL = 30 * time.Second

// QuoteCache holds the last fetched price per (instrument, side). Entries
// past their TTL read as misses but stay retrievable through Peek until
// overwritten; nothing is swept proactively.
type QuoteCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[model.QuoteKey]model.Quote
	rev     uint64
}

func NewQuoteCache(ttl time.Duration) *QuoteCache {
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	return &QuoteCache{
		ttl:     ttl,
		entries: make(map[model.QuoteKey]model.Quote),
	}
}

func (c *QuoteCache) TTL() time.Duration { return c.ttl }

// Fresh reports whether a quote is still within its TTL at the given time.
func (c *QuoteCache) Fresh(q model.Quote, now time.Time) bool {
	return now.Sub(q.FetchedAt) < c.ttl
}

// Get returns a hit only for a fresh entry. A stale entry is a miss but is
// not deleted; the caller decides whether to re-fetch or fall back.
func (c *QuoteCache) Get(key model.QuoteKey, now time.Time) (model.Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.entries[key]
	if !ok || !c.Fresh(q, now) {
		return model.Quote{}, false
	}
	return q, true
}

// Peek returns whatever is cached regardless of freshness.
func (c *QuoteCache) Peek(key model.QuoteKey) (model.Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.entries[key]
	return q, ok
}

// Put stores a quote, replacing any previous entry for its key.
func (c *QuoteCache) Put(q model.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[q.Key()] = q
	c.rev++
}

// Revision increments on every write; consumers use it as the cache's
// input identity when deciding whether derived values need recomputing.
func (c *QuoteCache) Revision() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rev
}

// Snapshot copies the full entry map.
func (c *QuoteCache) Snapshot() map[model.QuoteKey]model.Quote {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[model.QuoteKey]model.Quote, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Lookup adapts the cache to the valuator's price resolver: freshest known
// price for an instrument, BUY side preferred, staleness ignored.
func (c *QuoteCache) Lookup() domainsvc.QuoteLookup {
	return func(instrumentID string) (decimal.Decimal, bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if q, ok := c.entries[model.QuoteKey{InstrumentID: instrumentID, Side: model.SideBuy}]; ok {
			return q.Price, true
		}
		if q, ok := c.entries[model.QuoteKey{InstrumentID: instrumentID, Side: model.SideSell}]; ok {
			return q.Price, true
		}
		return decimal.Decimal{}, false
	}
}
