package engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/pablotenorio6/polymarket-bot/internal/clob"
	"github.com/pablotenorio6/polymarket-bot/internal/market"
)

// orderSubmitter is the slice of the CLOB client the engine needs.
type orderSubmitter interface {
	PostOrder(ctx context.Context, order *clob.OrderRequest) (*clob.OrderResponse, error)
}

// Notifier receives human-facing trade event messages. Implementations
// must not block.
type Notifier interface {
	Notify(text string)
}

// TraderConfig carries the entry-side trading parameters.
type TraderConfig struct {
	TriggerPrice float64
	EntryPrice   float64
	PositionSize float64
	MaxAttempts  int
}

// Trader watches the two outcome prices of the locked market and
// fires a momentum entry when one of them crosses the trigger. A nil
// builder puts it in monitor-only mode: evaluation still runs and
// logs, nothing is ever submitted.
type Trader struct {
	cfg      TraderConfig
	builder  *clob.OrderBuilder
	client   orderSubmitter
	cache    *Cache
	book     *Book
	notifier Notifier

	mu           sync.Mutex
	marketID     string
	attempts     int
	warnedNoSign bool
}

// NewTrader wires the execution engine. notifier may be nil.
func NewTrader(cfg TraderConfig, builder *clob.OrderBuilder, client orderSubmitter, cache *Cache, book *Book, notifier Notifier) *Trader {
	return &Trader{
		cfg:      cfg,
		builder:  builder,
		client:   client,
		cache:    cache,
		book:     book,
		notifier: notifier,
	}
}

// ResetAttempts starts a fresh attempt budget for a new market.
func (t *Trader) ResetAttempts(marketID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.marketID != marketID {
		t.marketID = marketID
		t.attempts = 0
	}
}

// Attempts returns the submission attempts spent on the current
// market.
func (t *Trader) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// EvaluateAndBuy checks the trigger condition and, when it fires,
// submits one FOK buy at the configured entry price. It returns the
// opened position, or nil when nothing was opened this tick.
//
// The up token is evaluated first; only when it stays under the
// trigger does the down token get a look. The attempt counter is
// spent before submission, so a submission that dies mid-flight
// still burns an attempt. A fill caps the counter at the maximum:
// one position per market, no averaging in.
func (t *Trader) EvaluateAndBuy(ctx context.Context, m *market.Market, prices map[string]float64) *Position {
	if m == nil {
		return nil
	}

	tokenID, side := t.pickSide(m, prices)
	if tokenID == "" {
		return nil
	}

	if t.builder == nil || t.client == nil {
		t.mu.Lock()
		warned := t.warnedNoSign
		t.warnedNoSign = true
		t.mu.Unlock()
		if !warned {
			log.Printf("[trader] %s trigger at %.2f but no signing key, monitoring only", side, prices[tokenID])
		}
		return nil
	}

	if t.book.Has(m.UpTokenID, m.DownTokenID) {
		return nil
	}

	t.mu.Lock()
	if t.marketID != m.ConditionID {
		t.marketID = m.ConditionID
		t.attempts = 0
	}
	if t.attempts >= t.cfg.MaxAttempts {
		t.mu.Unlock()
		return nil
	}
	t.attempts++
	attempt := t.attempts
	t.mu.Unlock()

	entryPrice := clob.RoundPrice(t.cfg.EntryPrice)
	shares := clob.SharesFor(t.cfg.PositionSize, entryPrice)

	order := t.cache.TakeBuy(tokenID, entryPrice)
	if order == nil {
		var err error
		order, err = t.builder.BuildFOKBuy(tokenID, entryPrice, shares)
		if err != nil {
			log.Printf("[trader] build %s buy: %v", side, err)
			return nil
		}
	}

	log.Printf("[trader] %s at %.2f >= %.2f, buying %.2f shares at %.2f (attempt %d/%d)",
		side, prices[tokenID], t.cfg.TriggerPrice, shares, entryPrice, attempt, t.cfg.MaxAttempts)

	resp, err := t.client.PostOrder(ctx, order)
	if err != nil {
		log.Printf("[trader] submit %s buy: %v", side, err)
		return nil
	}
	if !resp.Filled() {
		log.Printf("[trader] %s buy not filled: status=%s %s", side, resp.Status, resp.ErrorMsg)
		return nil
	}

	pos := NewPosition(m, tokenID, side, shares, entryPrice)
	if err := t.book.Open(pos); err != nil {
		// Filled but unplaceable should be impossible with one
		// trading goroutine; keep the inventory visible regardless.
		log.Printf("[trader] record position: %v", err)
		return nil
	}

	t.mu.Lock()
	t.attempts = t.cfg.MaxAttempts
	t.mu.Unlock()

	t.cache.WarmStopLoss(tokenID, shares)

	log.Printf("[trader] filled: %s %.2f shares at %.2f (order %s)", side, shares, entryPrice, resp.OrderID)
	if t.notifier != nil {
		t.notifier.Notify(fmt.Sprintf("🟢 Bought %s: %.2f shares @ $%.2f\n%s", side, shares, entryPrice, m.Question))
	}
	return pos
}

// pickSide applies the trigger rule. Unknown prices never trigger.
func (t *Trader) pickSide(m *market.Market, prices map[string]float64) (tokenID, side string) {
	if p, ok := prices[m.UpTokenID]; ok && p >= t.cfg.TriggerPrice {
		return m.UpTokenID, "UP"
	}
	if p, ok := prices[m.DownTokenID]; ok && p >= t.cfg.TriggerPrice {
		return m.DownTokenID, "DOWN"
	}
	return "", ""
}
