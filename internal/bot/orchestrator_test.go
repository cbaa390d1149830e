package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pablotenorio6/polymarket-bot/internal/clob"
	"github.com/pablotenorio6/polymarket-bot/internal/config"
	"github.com/pablotenorio6/polymarket-bot/internal/engine"
	"github.com/pablotenorio6/polymarket-bot/internal/feed"
	"github.com/pablotenorio6/polymarket-bot/internal/market"
	"github.com/pablotenorio6/polymarket-bot/internal/wallet"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// gammaFixture serves one live event per bucket slug, switchable
// between windows.
type gammaFixture struct {
	mu      sync.Mutex
	markets map[string]gammaPayload // slug -> payload
}

type gammaPayload struct {
	conditionID string
	upToken     string
	downToken   string
	start       time.Time
	end         time.Time
}

func (g *gammaFixture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		p, ok := g.markets[r.URL.Query().Get("slug")]
		g.mu.Unlock()
		if !ok {
			fmt.Fprint(w, "[]")
			return
		}
		resp := []map[string]any{{
			"slug":      r.URL.Query().Get("slug"),
			"active":    true,
			"closed":    false,
			"startTime": p.start.UTC().Format(time.RFC3339),
			"endDate":   p.end.UTC().Format(time.RFC3339),
			"markets": []map[string]any{{
				"conditionId":  p.conditionID,
				"question":     "Bitcoin Up or Down",
				"slug":         r.URL.Query().Get("slug"),
				"clobTokenIds": fmt.Sprintf(`["%s","%s"]`, p.upToken, p.downToken),
				"outcomes":     `["Up","Down"]`,
			}},
		}}
		json.NewEncoder(w).Encode(resp)
	}
}

// clobFixture answers midpoint batches with fixed prices.
type clobFixture struct {
	mu     sync.Mutex
	prices map[string]string
}

func (c *clobFixture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/midpoints":
			c.mu.Lock()
			out := make(map[string]string, len(c.prices))
			for k, v := range c.prices {
				out[k] = v
			}
			c.mu.Unlock()
			json.NewEncoder(w).Encode(out)
		case "/ok":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}
}

// newTestOrchestrator wires an Orchestrator against local fixtures.
// The websocket feed points at a dead endpoint; the HTTP fallback
// carries all pricing, which is exactly the degraded mode the hybrid
// source must survive.
func newTestOrchestrator(t *testing.T, gamma *gammaFixture, clobFx *clobFixture, now func() time.Time) (*Orchestrator, *engine.Book) {
	t.Helper()

	gammaSrv := httptest.NewServer(gamma.handler())
	t.Cleanup(gammaSrv.Close)
	clobSrv := httptest.NewServer(clobFx.handler())
	t.Cleanup(clobSrv.Close)

	cfg := &config.Config{
		TriggerPrice:           0.96,
		EntryPrice:             0.97,
		StopLossPrice:          0.80,
		MaxPositionSize:        5,
		PollInterval:           10 * time.Millisecond,
		MaxConcurrentPositions: 2,
		MaxAttemptsPerMarket:   3,
		EnableStopLoss:         true,
	}

	w, err := wallet.NewWalletFromHex(testKey)
	require.NoError(t, err)
	builder := clob.NewOrderBuilder(w, clob.BuilderConfig{})

	client := clob.NewClient(clob.Credentials{}).WithBaseURL(clobSrv.URL)
	wsFeed := feed.NewWSFeed().WithURL("ws://127.0.0.1:1/ws/market")
	book := engine.NewBook()
	cache := engine.NewCache(builder)

	o := &Orchestrator{
		cfg:     cfg,
		locator: market.NewLocator().WithBaseURL(gammaSrv.URL).WithClock(now),
		wsFeed:  wsFeed,
		source:  feed.NewSource(wsFeed, client).WithSeedWait(time.Millisecond),
		client:  client,
		builder: builder,
		cache:   cache,
		book:    book,
		trader: engine.NewTrader(engine.TraderConfig{
			TriggerPrice: cfg.TriggerPrice,
			EntryPrice:   cfg.EntryPrice,
			PositionSize: cfg.MaxPositionSize,
			MaxAttempts:  cfg.MaxAttemptsPerMarket,
		}, builder, client, cache, book, nil),
		riskCfg: engine.RiskConfig{
			StopLossPrice:  cfg.StopLossPrice,
			EnableStopLoss: cfg.EnableStopLoss,
			MaxPositions:   cfg.MaxConcurrentPositions,
		},
		// spot deliberately nil: no live Binance calls from tests.
	}
	return o, book
}

func bucketSlug(at time.Time) string {
	return fmt.Sprintf("btc-updown-15m-%d", at.Truncate(15*time.Minute).Unix())
}

func TestSlowPathLocksAndWarms(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2025, time.June, 15, 14, 7, 0, 0, loc)
	bucket := now.Truncate(15 * time.Minute)

	gamma := &gammaFixture{markets: map[string]gammaPayload{
		bucketSlug(now): {
			conditionID: "0xc1", upToken: "101", downToken: "102",
			start: bucket, end: bucket.Add(15 * time.Minute),
		},
	}}
	clobFx := &clobFixture{prices: map[string]string{"101": "0.50", "102": "0.50"}}

	o, _ := newTestOrchestrator(t, gamma, clobFx, func() time.Time { return now })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	risk := engine.NewRiskManager(ctx, o.riskCfg, o.builder, o.client, o.cache, o.book, nil)

	o.tick(ctx, risk)

	require.NotNil(t, o.current)
	assert.Equal(t, "0xc1", o.current.ConditionID)
	assert.NotNil(t, o.cache.TakeBuy("101", 0.97), "entry pre-signed on lock")
	assert.Zero(t, o.trader.Attempts())
}

func TestFastPathBuysAndStops(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2025, time.June, 15, 14, 7, 0, 0, loc)
	bucket := now.Truncate(15 * time.Minute)

	gamma := &gammaFixture{markets: map[string]gammaPayload{
		bucketSlug(now): {
			conditionID: "0xc1", upToken: "101", downToken: "102",
			start: bucket, end: bucket.Add(15 * time.Minute),
		},
	}}
	clobFx := &clobFixture{prices: map[string]string{"101": "0.97", "102": "0.03"}}

	o, book := newTestOrchestrator(t, gamma, clobFx, func() time.Time { return now })

	// clobFixture has no /order endpoint, so the buy submission fails
	// and the attempt is burned without a position. That is the
	// trigger wiring this test cares about.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	risk := engine.NewRiskManager(ctx, o.riskCfg, o.builder, o.client, o.cache, o.book, nil)

	o.tick(ctx, risk)
	assert.Equal(t, 1, o.trader.Attempts(), "trigger price must spend an attempt")
	assert.Zero(t, book.Len())
}

func TestSlowPathRelockOnExpiry(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	start := time.Date(2025, time.June, 15, 14, 7, 0, 0, loc)
	bucket := start.Truncate(15 * time.Minute)
	nextBucket := bucket.Add(15 * time.Minute)

	gamma := &gammaFixture{markets: map[string]gammaPayload{
		bucketSlug(bucket): {
			conditionID: "0xc1", upToken: "101", downToken: "102",
			start: bucket, end: nextBucket,
		},
		bucketSlug(nextBucket): {
			conditionID: "0xc2", upToken: "201", downToken: "202",
			start: nextBucket, end: nextBucket.Add(15 * time.Minute),
		},
	}}
	clobFx := &clobFixture{prices: map[string]string{
		"101": "0.50", "102": "0.50", "201": "0.50", "202": "0.50",
	}}

	now := start
	o, _ := newTestOrchestrator(t, gamma, clobFx, func() time.Time { return now })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	risk := engine.NewRiskManager(ctx, o.riskCfg, o.builder, o.client, o.cache, o.book, nil)

	o.tick(ctx, risk)
	require.NotNil(t, o.current)
	require.Equal(t, "0xc1", o.current.ConditionID)

	// Window passes: the next tick must re-lock and rebuild for the
	// new tokens; the old market's pre-signed orders are gone.
	now = nextBucket.Add(time.Second)
	o.tick(ctx, risk)

	require.NotNil(t, o.current)
	assert.Equal(t, "0xc2", o.current.ConditionID)
	assert.Nil(t, o.cache.TakeBuy("101", 0.97), "stale pre-signed order survived relock")
	assert.NotNil(t, o.cache.TakeBuy("201", 0.97))
	assert.Zero(t, o.trader.Attempts(), "attempt budget reset on relock")
}

func TestTickSurvivesDiscoveryOutage(t *testing.T) {
	gamma := &gammaFixture{}
	clobFx := &clobFixture{}
	o, _ := newTestOrchestrator(t, gamma, clobFx, time.Now)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	risk := engine.NewRiskManager(ctx, o.riskCfg, o.builder, o.client, o.cache, o.book, nil)

	// No live market anywhere: the tick is a quiet no-op.
	o.tick(ctx, risk)
	assert.Nil(t, o.current)
}
