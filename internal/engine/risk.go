package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/pablotenorio6/polymarket-bot/internal/clob"
)

// RiskConfig carries the exit-side parameters.
type RiskConfig struct {
	StopLossPrice    float64
	EnableStopLoss   bool
	TakeProfitPrice  float64
	EnableTakeProfit bool
	MaxPositions     int

	// Consecutive ticks without a price before a position is treated
	// as resolved and dropped from the book.
	NoPriceThreshold int
}

// DefaultNoPriceThreshold is the miss count at which a priceless
// token is presumed resolved. At a 100ms poll that is about a second
// of silence on top of the HTTP fallback failing.
const DefaultNoPriceThreshold = 10

// RiskManager runs the per-tick exit checks over the position book.
// Sells are submitted by a small worker pool so a slow exchange
// round trip never stalls the trading loop; the in-flight marker on
// the position stops the next tick from doubling the order.
type RiskManager struct {
	cfg      RiskConfig
	builder  *clob.OrderBuilder
	client   orderSubmitter
	cache    *Cache
	book     *Book
	notifier Notifier

	sells chan sellJob
}

type sellJob struct {
	pos    *Position
	order  *clob.OrderRequest
	reason string
}

const sellWorkers = 2

// NewRiskManager wires the exit engine and starts its sell workers;
// they drain until ctx ends. notifier may be nil.
func NewRiskManager(ctx context.Context, cfg RiskConfig, builder *clob.OrderBuilder, client orderSubmitter, cache *Cache, book *Book, notifier Notifier) *RiskManager {
	if cfg.NoPriceThreshold <= 0 {
		cfg.NoPriceThreshold = DefaultNoPriceThreshold
	}
	r := &RiskManager{
		cfg:      cfg,
		builder:  builder,
		client:   client,
		cache:    cache,
		book:     book,
		notifier: notifier,
		sells:    make(chan sellJob, 16),
	}
	for i := 0; i < sellWorkers; i++ {
		go r.sellWorker(ctx)
	}
	return r
}

// CanOpenNewPosition enforces the concurrent-position cap.
func (r *RiskManager) CanOpenNewPosition() bool {
	return r.book.Len() < r.cfg.MaxPositions
}

// CheckStopLosses walks the book against the tick's prices. A token
// with no price for NoPriceThreshold consecutive ticks is presumed
// resolved and dropped; redemption of its winnings is someone else's
// job. A price at or under the stop fires the exit.
func (r *RiskManager) CheckStopLosses(ctx context.Context, prices map[string]float64) {
	if !r.cfg.EnableStopLoss {
		return
	}

	for _, pos := range r.book.List() {
		tokenID := pos.TokenID

		// Arm lazily: a position opened through the fallback path or
		// restored after a reconnect may not have its stop signed yet.
		if r.builder != nil && !r.cache.HasStopLoss(tokenID) {
			r.cache.WarmStopLoss(tokenID, pos.Shares)
		}

		price, ok := prices[tokenID]
		if !ok {
			misses := r.book.recordMiss(tokenID)
			if misses >= r.cfg.NoPriceThreshold {
				log.Printf("[risk] %s unpriced for %d ticks, presuming resolved", pos.Side, misses)
				r.book.Remove(tokenID)
			}
			continue
		}
		r.book.recordPrice(tokenID)

		if price <= r.cfg.StopLossPrice {
			r.exit(ctx, pos, fmt.Sprintf("stop-loss: %.2f <= %.2f", price, r.cfg.StopLossPrice))
		}
	}
}

// CheckTakeProfit closes winners at the configured price. Removal
// from the book makes the stop-loss pass a no-op for the same token
// in the same tick.
func (r *RiskManager) CheckTakeProfit(ctx context.Context, prices map[string]float64) {
	if !r.cfg.EnableTakeProfit {
		return
	}

	for _, pos := range r.book.List() {
		price, ok := prices[pos.TokenID]
		if !ok {
			continue
		}
		if price >= r.cfg.TakeProfitPrice {
			r.exit(ctx, pos, fmt.Sprintf("take-profit: %.2f >= %.2f", price, r.cfg.TakeProfitPrice))
		}
	}
}

// exit queues a liquidation sell for a position. The pre-signed stop
// is preferred; a fresh FOK sell at the floor price is the fallback.
func (r *RiskManager) exit(ctx context.Context, pos *Position, reason string) {
	if r.builder == nil || r.client == nil {
		log.Printf("[risk] %s hit (%s) but no signing key, cannot exit", pos.Side, reason)
		return
	}
	if !r.book.beginExit(pos.TokenID) {
		return
	}

	order := r.cache.TakeStopLoss(pos.TokenID)
	if order == nil {
		var err error
		order, err = r.builder.BuildFOKSell(pos.TokenID, clob.MinSellPrice, pos.Shares)
		if err != nil {
			log.Printf("[risk] build exit sell for %s: %v", pos.Side, err)
			r.book.abortExit(pos.TokenID)
			return
		}
	}

	select {
	case r.sells <- sellJob{pos: pos, order: order, reason: reason}:
	case <-ctx.Done():
		r.book.abortExit(pos.TokenID)
	}
}

// sellWorker submits queued exits. A confirmed fill deregisters the
// position; anything else clears the in-flight marker so the next
// tick re-fires with a freshly built order.
func (r *RiskManager) sellWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.sells:
			r.submitSell(ctx, job)
		}
	}
}

func (r *RiskManager) submitSell(ctx context.Context, job sellJob) {
	resp, err := r.client.PostOrder(ctx, job.order)
	if err != nil {
		log.Printf("[risk] exit sell for %s: %v", job.pos.Side, err)
		r.book.abortExit(job.pos.TokenID)
		return
	}
	if !resp.Filled() {
		log.Printf("[risk] exit sell for %s not filled: status=%s %s", job.pos.Side, resp.Status, resp.ErrorMsg)
		r.book.abortExit(job.pos.TokenID)
		return
	}

	r.book.Remove(job.pos.TokenID)
	log.Printf("[risk] closed %s %.2f shares (%s)", job.pos.Side, job.pos.Shares, job.reason)
	if r.notifier != nil {
		r.notifier.Notify(fmt.Sprintf("🔴 Closed %s: %.2f shares (%s)\n%s",
			job.pos.Side, job.pos.Shares, job.reason, job.pos.Market.Question))
	}
}
