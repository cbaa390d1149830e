package engine

import (
	"log"
	"sync"

	"github.com/pablotenorio6/polymarket-bot/internal/clob"
)

// cachedOrder pairs a signed request with the terms it was signed at,
// so a stale entry can be detected instead of submitted.
type cachedOrder struct {
	req    *clob.OrderRequest
	price  float64
	shares float64
}

// Cache holds orders signed ahead of need. EIP-712 signing costs a
// few milliseconds; doing it when the market is locked instead of
// when the trigger fires keeps the submission hot path to one HTTP
// round trip.
type Cache struct {
	builder *clob.OrderBuilder

	mu       sync.Mutex
	marketID string
	buys     map[string]cachedOrder
	stops    map[string]cachedOrder
}

// NewCache creates an empty cache. A nil builder leaves every Warm a
// no-op, which is the monitor-only degradation.
func NewCache(builder *clob.OrderBuilder) *Cache {
	return &Cache{
		builder: builder,
		buys:    make(map[string]cachedOrder),
		stops:   make(map[string]cachedOrder),
	}
}

// Warm pre-signs one FOK buy per outcome token at the entry price.
// Warming a different market first drops everything signed for the
// previous one.
func (c *Cache) Warm(marketID, upToken, downToken string, entryPrice, size float64) {
	if c.builder == nil {
		return
	}

	price := clob.RoundPrice(entryPrice)
	shares := clob.SharesFor(size, price)

	c.mu.Lock()
	defer c.mu.Unlock()

	if marketID != c.marketID {
		c.buys = make(map[string]cachedOrder)
		c.stops = make(map[string]cachedOrder)
		c.marketID = marketID
	}

	for _, tokenID := range []string{upToken, downToken} {
		if tokenID == "" {
			continue
		}
		if cached, ok := c.buys[tokenID]; ok && cached.price == price && cached.shares == shares {
			continue
		}
		req, err := c.builder.BuildFOKBuy(tokenID, price, shares)
		if err != nil {
			log.Printf("[presign] buy for %s: %v", shortToken(tokenID), err)
			continue
		}
		c.buys[tokenID] = cachedOrder{req: req, price: price, shares: shares}
	}
}

// WarmStopLoss pre-signs one FOK sell at the minimum tradable price,
// selling into whatever liquidity exists when the stop fires.
func (c *Cache) WarmStopLoss(tokenID string, shares float64) {
	if c.builder == nil || tokenID == "" {
		return
	}

	req, err := c.builder.BuildFOKSell(tokenID, clob.MinSellPrice, shares)
	if err != nil {
		log.Printf("[presign] stop for %s: %v", shortToken(tokenID), err)
		return
	}

	c.mu.Lock()
	c.stops[tokenID] = cachedOrder{req: req, price: clob.MinSellPrice, shares: shares}
	c.mu.Unlock()
}

// HasStopLoss reports whether a stop sell is armed for the token.
func (c *Cache) HasStopLoss(tokenID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.stops[tokenID]
	return ok
}

// TakeBuy removes and returns the pre-signed buy for a token, but
// only when it was signed at the given price. An order leaves the
// cache exactly once; a failed submission never puts it back.
func (c *Cache) TakeBuy(tokenID string, price float64) *clob.OrderRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.buys[tokenID]
	if !ok {
		return nil
	}
	delete(c.buys, tokenID)
	if cached.price != clob.RoundPrice(price) {
		return nil
	}
	return cached.req
}

// TakeStopLoss removes and returns the pre-signed stop sell for a
// token, or nil.
func (c *Cache) TakeStopLoss(tokenID string) *clob.OrderRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.stops[tokenID]
	if !ok {
		return nil
	}
	delete(c.stops, tokenID)
	return cached.req
}

// Clear drops every cached order.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marketID = ""
	c.buys = make(map[string]cachedOrder)
	c.stops = make(map[string]cachedOrder)
}

func shortToken(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10] + "..."
}
