package bot

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/pablotenorio6/polymarket-bot/internal/clob"
	"github.com/pablotenorio6/polymarket-bot/internal/config"
	"github.com/pablotenorio6/polymarket-bot/internal/engine"
	"github.com/pablotenorio6/polymarket-bot/internal/feed"
	"github.com/pablotenorio6/polymarket-bot/internal/market"
	"github.com/pablotenorio6/polymarket-bot/internal/pricefeed"
	"github.com/pablotenorio6/polymarket-bot/internal/redeem"
	"github.com/pablotenorio6/polymarket-bot/internal/telegram"
	"github.com/pablotenorio6/polymarket-bot/internal/wallet"
)

const (
	redeemInterval = time.Hour

	// Tick latency is averaged and logged every this many fast ticks.
	latencyLogEvery = 600

	// How often "no live market" is worth repeating.
	idleLogEvery = 10 * time.Second
)

// Orchestrator owns the trading loop. One goroutine runs both speeds:
// the slow path locks onto the live 15-minute market and rebuilds the
// per-market state, the fast path prices the two outcome tokens and
// runs entry then exit checks. The websocket listener is the only
// other writer and it only touches its own price table.
type Orchestrator struct {
	cfg     *config.Config
	tg      *telegram.Bot
	locator *market.Locator
	wsFeed  *feed.WSFeed
	source  *feed.Source
	client  *clob.Client
	builder *clob.OrderBuilder
	cache   *engine.Cache
	book    *engine.Book
	trader  *engine.Trader
	riskCfg engine.RiskConfig
	redeem  *redeem.Manager
	spot    *pricefeed.Client

	current    *market.Market
	lastRedeem time.Time
	lastIdle   time.Time

	tickCount int
	tickTotal time.Duration
}

// New assembles the full trading stack. w may be nil: everything
// still runs in monitor-only mode, just without order submission or
// redemption.
func New(cfg *config.Config, w *wallet.Wallet, tg *telegram.Bot) *Orchestrator {
	client := clob.NewClient(clob.Credentials{
		APIKey:     cfg.CLOBApiKey,
		Secret:     cfg.CLOBSecret,
		Passphrase: cfg.CLOBPassphrase,
	})

	var builder *clob.OrderBuilder
	var redeemer *redeem.Manager
	if w != nil {
		builder = clob.NewOrderBuilder(w, clob.BuilderConfig{
			FunderAddress: cfg.FunderAddress,
			SignatureType: cfg.SignatureType,
		})
		redeemer = redeem.NewManager(w, cfg.FunderAddress, cfg.PolygonRPCURL, int64(cfg.PolygonChainID))
	}

	wsFeed := feed.NewWSFeed()
	book := engine.NewBook()
	cache := engine.NewCache(builder)

	var notifier engine.Notifier
	if tg != nil {
		notifier = tg
	}

	return &Orchestrator{
		cfg:     cfg,
		tg:      tg,
		locator: market.NewLocator(),
		wsFeed:  wsFeed,
		source:  feed.NewSource(wsFeed, client),
		client:  client,
		builder: builder,
		cache:   cache,
		book:    book,
		trader: engine.NewTrader(engine.TraderConfig{
			TriggerPrice: cfg.TriggerPrice,
			EntryPrice:   cfg.EntryPrice,
			PositionSize: cfg.MaxPositionSize,
			MaxAttempts:  cfg.MaxAttemptsPerMarket,
		}, builder, client, cache, book, notifier),
		riskCfg: engine.RiskConfig{
			StopLossPrice:    cfg.StopLossPrice,
			EnableStopLoss:   cfg.EnableStopLoss,
			TakeProfitPrice:  cfg.TakeProfitPrice,
			EnableTakeProfit: cfg.EnableTakeProfit,
			MaxPositions:     cfg.MaxConcurrentPositions,
		},
		redeem: redeemer,
		spot:   pricefeed.NewClient(),
	}
}

// Run drives the loop until the context is cancelled. The tick rate
// is fixed: each iteration sleeps whatever remains of the poll
// interval after the work, so a slow tick does not shift the cadence
// by more than its own overrun.
func (o *Orchestrator) Run(ctx context.Context) error {
	trading := o.builder != nil
	mode := "LIVE"
	if !trading {
		mode = "MONITOR-ONLY"
	}
	log.Printf("[bot] starting in %s mode", mode)
	log.Printf("[bot] config: trigger=%.2f entry=%.2f stop=%.2f size=$%.2f poll=%s",
		o.cfg.TriggerPrice, o.cfg.EntryPrice, o.cfg.StopLossPrice,
		o.cfg.MaxPositionSize, o.cfg.PollInterval)

	go func() {
		if err := o.wsFeed.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("[bot] feed stopped: %v", err)
		}
	}()
	defer o.wsFeed.Close()

	risk := engine.NewRiskManager(ctx, o.riskCfg, o.builder, o.client, o.cache, o.book, o.notifier())

	for {
		select {
		case <-ctx.Done():
			o.logShutdown()
			return ctx.Err()
		default:
		}

		start := time.Now()
		o.tick(ctx, risk)
		elapsed := time.Since(start)
		o.recordLatency(elapsed)

		if remaining := o.cfg.PollInterval - elapsed; remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
}

// OpenPositions describes the open inventory, for shutdown reporting.
func (o *Orchestrator) OpenPositions() []string {
	var out []string
	for _, p := range o.book.List() {
		out = append(out, fmt.Sprintf("%s %.2f shares @ %.2f (%s)",
			p.Side, p.Shares, p.EntryPrice, p.Market.Question))
	}
	return out
}

func (o *Orchestrator) notifier() engine.Notifier {
	if o.tg == nil {
		return nil
	}
	return o.tg
}

// tick runs one iteration. A panic in any component is contained to
// the tick: position state lives in the book, not on the stack, so
// skipping a beat is safer than dying mid-market.
func (o *Orchestrator) tick(ctx context.Context, risk *engine.RiskManager) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bot] tick panic: %v\n%s", r, debug.Stack())
		}
	}()

	now := time.Now()
	if o.current == nil || !now.Before(o.current.EndTime) {
		o.slowPath(ctx)
		if o.current == nil {
			return
		}
	}

	o.fastPath(ctx, risk)
}

// slowPath re-locks the live market and rebuilds everything keyed to
// it: feed subscriptions, the pre-signed cache, the attempt budget.
// It also fires the hourly redemption sweep.
func (o *Orchestrator) slowPath(ctx context.Context) {
	o.maybeRedeem(ctx)

	m, err := o.locator.Refresh(ctx)
	if err != nil {
		log.Printf("[bot] market discovery: %v", err)
		return
	}
	if m == nil {
		o.current = nil
		if time.Since(o.lastIdle) >= idleLogEvery {
			o.lastIdle = time.Now()
			log.Printf("[bot] no live market, waiting for next window")
		}
		return
	}
	if o.current != nil && o.current.ConditionID == m.ConditionID {
		o.current = m
		return
	}

	o.current = m
	o.source.SetMarket(ctx, m.TokenIDs())
	o.cache.Warm(m.ConditionID, m.UpTokenID, m.DownTokenID, o.cfg.EntryPrice, o.cfg.MaxPositionSize)
	o.trader.ResetAttempts(m.ConditionID)
	o.client.Warmup(ctx)

	o.logMarketStatus(ctx, m)
	if o.tg != nil {
		if err := o.tg.NotifyMarketLocked(m.Question, m.EndTime); err != nil {
			log.Printf("[bot] telegram: %v", err)
		}
	}
}

// fastPath prices the two locked tokens, then runs entry before the
// exit checks. A position filled this tick is deliberately not
// stop-checked until the next one; the entry itself just confirmed
// the price far above the stop.
func (o *Orchestrator) fastPath(ctx context.Context, risk *engine.RiskManager) {
	m := o.current
	prices := o.source.Prices(ctx, m.TokenIDs())

	if risk.CanOpenNewPosition() {
		o.trader.EvaluateAndBuy(ctx, m, prices)
	}

	risk.CheckStopLosses(ctx, prices)
	risk.CheckTakeProfit(ctx, prices)
}

// maybeRedeem kicks the redemption sweep at most once per interval,
// fire and forget.
func (o *Orchestrator) maybeRedeem(ctx context.Context) {
	if o.redeem == nil || time.Since(o.lastRedeem) < redeemInterval {
		return
	}
	o.lastRedeem = time.Now()
	go o.redeem.CheckAndRedeem(ctx)
}

// logMarketStatus prints the freshly locked market next to the BTC
// spot price the contract will settle on.
func (o *Orchestrator) logMarketStatus(ctx context.Context, m *market.Market) {
	line := fmt.Sprintf("locked %q until %s", m.Question, m.EndTime.Format("15:04:05"))
	if o.spot != nil {
		if spot, err := o.spot.BTCPrice(ctx); err == nil {
			line += fmt.Sprintf(" (BTC spot $%.0f)", spot)
		}
	}
	log.Printf("[bot] %s", line)
}

// recordLatency keeps a running average of fast-tick cost and logs it
// periodically, the cheapest possible view of loop health.
func (o *Orchestrator) recordLatency(d time.Duration) {
	o.tickCount++
	o.tickTotal += d
	if o.tickCount%latencyLogEvery == 0 {
		avg := o.tickTotal / time.Duration(latencyLogEvery)
		o.tickTotal = 0
		log.Printf("[bot] avg tick latency %.1fms over last %d ticks",
			float64(avg.Microseconds())/1000, latencyLogEvery)
	}
}

func (o *Orchestrator) logShutdown() {
	log.Printf("[bot] shutting down")
	open := o.OpenPositions()
	if len(open) == 0 {
		return
	}
	log.Printf("[bot] %d open position(s) need manual attention:", len(open))
	for _, p := range open {
		log.Printf("[bot]   %s", p)
	}
}
