package feed

import (
	"context"
	"log"
	"time"
)

const (
	// seedWait bounds how long SetMarket waits for the websocket to
	// produce both tokens before seeding from HTTP.
	seedWait     = 3 * time.Second
	seedInterval = 100 * time.Millisecond
)

// priceAPI is the slice of the CLOB client the source needs.
type priceAPI interface {
	Midpoint(ctx context.Context, tokenID string) (float64, error)
	Midpoints(ctx context.Context, tokenIDs []string) (map[string]float64, error)
}

// Source answers "what do these tokens trade at right now". It
// prefers the websocket trade table and falls back to batched HTTP
// midpoints; a token it cannot price is omitted from the result, it
// never substitutes a default.
type Source struct {
	feed *WSFeed
	api  priceAPI
	wait time.Duration
}

// NewSource combines a websocket feed with an HTTP fallback.
func NewSource(feed *WSFeed, api priceAPI) *Source {
	return &Source{feed: feed, api: api, wait: seedWait}
}

// WithSeedWait overrides the post-subscribe wait (useful for testing).
func (s *Source) WithSeedWait(d time.Duration) *Source {
	s.wait = d
	return s
}

// SetMarket rebuilds the feed around a new token set, then waits a
// bounded time for the stream to cover both tokens before seeding the
// gaps from one HTTP batch call.
func (s *Source) SetMarket(ctx context.Context, tokenIDs []string) {
	s.feed.Reset(tokenIDs)

	deadline := time.Now().Add(s.wait)
	for time.Now().Before(deadline) {
		if s.feed.HasAll(tokenIDs) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(seedInterval):
		}
	}

	seeded := s.fetchHTTP(ctx, tokenIDs)
	for id, price := range seeded {
		s.feed.Seed(id, price)
	}
	log.Printf("[feed] stream quiet after %s, seeded %d/%d prices over HTTP",
		s.wait, len(seeded), len(tokenIDs))
}

// Prices returns the current price per token. Websocket prices win;
// tokens the stream has not covered are fetched over HTTP. A token
// missing from the result has no known price.
func (s *Source) Prices(ctx context.Context, tokenIDs []string) map[string]float64 {
	out := make(map[string]float64, len(tokenIDs))
	var missing []string
	for _, id := range tokenIDs {
		if p, ok := s.feed.Price(id); ok {
			out[id] = p
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out
	}

	for id, price := range s.fetchHTTP(ctx, missing) {
		out[id] = price
		s.feed.Seed(id, price)
	}
	return out
}

// fetchHTTP resolves prices over HTTP: one batch call, then a
// per-token pass for anything the batch failed to cover.
func (s *Source) fetchHTTP(ctx context.Context, tokenIDs []string) map[string]float64 {
	out, err := s.api.Midpoints(ctx, tokenIDs)
	if err != nil {
		log.Printf("[feed] batch midpoints failed: %v", err)
		out = make(map[string]float64, len(tokenIDs))
	}

	for _, id := range tokenIDs {
		if _, ok := out[id]; ok {
			continue
		}
		price, err := s.api.Midpoint(ctx, id)
		if err != nil {
			log.Printf("[feed] no price for %s: %v", shortToken(id), err)
			continue
		}
		out[id] = price
	}
	return out
}

// shortToken truncates long token ids for log lines.
func shortToken(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10] + "..."
}
