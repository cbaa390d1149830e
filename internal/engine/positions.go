package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pablotenorio6/polymarket-bot/internal/market"
)

// Position is one held outcome-token lot.
type Position struct {
	ID         string
	Market     *market.Market
	TokenID    string
	Side       string // "UP" or "DOWN"
	Shares     float64
	EntryPrice float64
	OpenedAt   time.Time

	// Managed by the risk checks under the book lock.
	noPriceCount int
	exiting      bool
}

// Cost returns the USDC spent opening the position.
func (p *Position) Cost() float64 {
	return p.Shares * p.EntryPrice
}

// NewPosition assigns a fresh id and timestamps the entry.
func NewPosition(m *market.Market, tokenID, side string, shares, entryPrice float64) *Position {
	return &Position{
		ID:         uuid.NewString(),
		Market:     m,
		TokenID:    tokenID,
		Side:       side,
		Shares:     shares,
		EntryPrice: entryPrice,
		OpenedAt:   time.Now(),
	}
}

// Book tracks open positions, at most one per token. One coarse mutex
// covers every mutation; the trading loop and the sell workers are
// the only writers and neither holds the lock across I/O.
type Book struct {
	mu        sync.Mutex
	positions map[string]*Position
}

// NewBook creates an empty position book.
func NewBook() *Book {
	return &Book{positions: make(map[string]*Position)}
}

// Open registers a position. A second position on the same token is
// refused.
func (b *Book) Open(p *Position) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.positions[p.TokenID]; exists {
		return fmt.Errorf("position already open on token %s", p.TokenID)
	}
	b.positions[p.TokenID] = p
	return nil
}

// Get returns the position on a token, or nil.
func (b *Book) Get(tokenID string) *Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions[tokenID]
}

// Has reports whether any of the tokens carries a position.
func (b *Book) Has(tokenIDs ...string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range tokenIDs {
		if _, ok := b.positions[id]; ok {
			return true
		}
	}
	return false
}

// Remove deregisters the position on a token and returns it, or nil
// when none was open.
func (b *Book) Remove(tokenID string) *Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.positions[tokenID]
	delete(b.positions, tokenID)
	return p
}

// List returns a snapshot of the open positions.
func (b *Book) List() []*Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out
}

// Len returns the number of open positions.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.positions)
}

// recordMiss bumps the consecutive missing-price counter and reports
// the new count. A token no longer in the book counts zero.
func (b *Book) recordMiss(tokenID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[tokenID]
	if !ok {
		return 0
	}
	p.noPriceCount++
	return p.noPriceCount
}

// recordPrice clears the missing-price counter.
func (b *Book) recordPrice(tokenID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.positions[tokenID]; ok {
		p.noPriceCount = 0
	}
}

// beginExit marks a position as having a sell in flight so a slow
// submission cannot be doubled by the next tick. Returns false when
// an exit is already pending or the position is gone.
func (b *Book) beginExit(tokenID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[tokenID]
	if !ok || p.exiting {
		return false
	}
	p.exiting = true
	return true
}

// exitPending reports whether a sell is in flight for the token.
func (b *Book) exitPending(tokenID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[tokenID]
	return ok && p.exiting
}

// abortExit clears the in-flight marker after a failed sell so the
// next tick retries.
func (b *Book) abortExit(tokenID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.positions[tokenID]; ok {
		p.exiting = false
	}
}
