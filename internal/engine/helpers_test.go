package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pablotenorio6/polymarket-bot/internal/clob"
	"github.com/pablotenorio6/polymarket-bot/internal/market"
	"github.com/pablotenorio6/polymarket-bot/internal/wallet"
)

// Throwaway key, never funded.
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// fakeExchange records submitted orders and plays back a scripted
// response queue; an empty queue answers with a fill.
type fakeExchange struct {
	mu       sync.Mutex
	orders   []*clob.OrderRequest
	scripted []*clob.OrderResponse
	err      error
}

func (f *fakeExchange) PostOrder(_ context.Context, order *clob.OrderRequest) (*clob.OrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.orders = append(f.orders, order)
	if len(f.scripted) > 0 {
		resp := f.scripted[0]
		f.scripted = f.scripted[1:]
		return resp, nil
	}
	return &clob.OrderResponse{Success: true, Status: "matched", OrderID: "ord-1"}, nil
}

func (f *fakeExchange) script(resps ...*clob.OrderResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripted = append(f.scripted, resps...)
}

func (f *fakeExchange) submitted() []*clob.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*clob.OrderRequest, len(f.orders))
	copy(out, f.orders)
	return out
}

func unfilled(status string) *clob.OrderResponse {
	return &clob.OrderResponse{Success: false, Status: status, ErrorMsg: "not matched"}
}

func newTestBuilder(t *testing.T) *clob.OrderBuilder {
	t.Helper()
	w, err := wallet.NewWalletFromHex(testKey)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	return clob.NewOrderBuilder(w, clob.BuilderConfig{})
}

// Token ids must be decimal strings like the real CLOB's.
func newTestMarket(conditionID, upToken, downToken string) *market.Market {
	return &market.Market{
		ConditionID: conditionID,
		Question:    "Bitcoin Up or Down - June 15, 2:00PM-2:15PM ET",
		Slug:        "btc-updown-15m-1750010400",
		UpTokenID:   upToken,
		DownTokenID: downToken,
		StartTime:   time.Now().Add(-time.Minute),
		EndTime:     time.Now().Add(14 * time.Minute),
	}
}

// waitUntil polls cond for up to two seconds.
func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
