package exchange

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FilterCache is the process-wide precision/filter cache (spec.md §9:
// "the exchange precision/filter cache is a process-global... read-mostly
// structure with refresh-on-miss; concurrent reads require no locking").
// Reads go through sync.Map (lock-free); misses are deduplicated across
// concurrent callers with singleflight, grounded on the x/sync donation
// from stadam23-Eve-flipper and ChoSanghyuk-blackholedex.
type FilterCache struct {
	client Client
	ttl    time.Duration

	entries sync.Map // symbol -> cacheEntry
	group   singleflight.Group
}

type cacheEntry struct {
	filter   SymbolFilter
	fetchedAt time.Time
}

// NewFilterCache builds a cache backed by client, refreshing an entry once
// it is older than ttl.
func NewFilterCache(client Client, ttl time.Duration) *FilterCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &FilterCache{client: client, ttl: ttl}
}

// Get returns the symbol's filter, fetching (and caching) the full exchange
// info on a miss or stale entry. Concurrent misses for the same symbol
// collapse into a single upstream call.
func (c *FilterCache) Get(ctx context.Context, symbol string) (SymbolFilter, error) {
	if v, ok := c.entries.Load(symbol); ok {
		e := v.(cacheEntry)
		if time.Since(e.fetchedAt) < c.ttl {
			return e.filter, nil
		}
	}

	v, err, _ := c.group.Do("refresh", func() (any, error) {
		filters, err := c.client.GetExchangeInfo(ctx)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		for _, f := range filters {
			c.entries.Store(f.Symbol, cacheEntry{filter: f, fetchedAt: now})
		}
		return filters, nil
	})
	if err != nil {
		// Refresh failed: serve a stale entry if one exists rather than
		// blocking the scanner on a transient exchange error.
		if v2, ok := c.entries.Load(symbol); ok {
			return v2.(cacheEntry).filter, nil
		}
		return SymbolFilter{}, err
	}
	_ = v

	if e, ok := c.entries.Load(symbol); ok {
		return e.(cacheEntry).filter, nil
	}
	return SymbolFilter{}, ErrSymbolNotFound(symbol)
}

// symbolNotFoundError names a missing symbol for callers that want to
// distinguish "unknown symbol" from a transient fetch failure.
type symbolNotFoundError string

func (e symbolNotFoundError) Error() string { return "symbol not found in exchange info: " + string(e) }

// ErrSymbolNotFound builds the sentinel error for an unknown symbol.
func ErrSymbolNotFound(symbol string) error { return symbolNotFoundError(symbol) }
