package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	tickerURL = "https://api.binance.com/api/v3/ticker/price?symbol=BTCUSDT"

	// The spot reference only decorates status logs; a slightly stale
	// value is fine and keeps us far from Binance rate limits.
	cacheDuration = 2 * time.Second
)

// Client fetches the BTC spot price from Binance. The up/down markets
// settle on this number, so the slow-path status line shows it next
// to the outcome prices.
type Client struct {
	httpClient *http.Client

	mu        sync.Mutex
	cached    float64
	fetchedAt time.Time
}

// NewClient creates a spot price client.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
}

// BTCPrice returns the current BTC/USDT spot price, serving a cached
// value when fresh enough.
func (c *Client) BTCPrice(ctx context.Context) (float64, error) {
	c.mu.Lock()
	if time.Since(c.fetchedAt) < cacheDuration && c.cached > 0 {
		price := c.cached
		c.mu.Unlock()
		return price, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tickerURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("binance request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("binance returned status %d", resp.StatusCode)
	}

	var result struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	price, err := strconv.ParseFloat(result.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price: %w", err)
	}

	c.mu.Lock()
	c.cached = price
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return price, nil
}
