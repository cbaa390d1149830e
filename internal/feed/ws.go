package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

	// Reconnection settings
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2

	// Keepalive settings
	pingInterval = 10 * time.Second
	pongTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// subscribeMessage is the market-channel subscription payload. The
// channel is public; auth is sent empty.
type subscribeMessage struct {
	Auth     struct{} `json:"auth"`
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

// wsEvent is an inbound market-channel event. Only last_trade_price
// carries what we need; everything else is ignored.
type wsEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"`
}

// WSFeed holds a persistent market-channel connection and the latest
// trade price per subscribed token. A market switch goes through
// Reset, which drops the connection and the whole table rather than
// unsubscribing incrementally, so stale tokens can never linger.
type WSFeed struct {
	url    string
	dialer *websocket.Dialer
	done   chan struct{}
	closed sync.Once

	mu     sync.Mutex
	table  map[string]float64
	tokens []string

	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewWSFeed creates a feed with no subscriptions. Run must be started
// for prices to flow.
func NewWSFeed() *WSFeed {
	return &WSFeed{
		url:    wsURL,
		dialer: websocket.DefaultDialer,
		done:   make(chan struct{}),
		table:  make(map[string]float64),
	}
}

// WithURL sets a custom websocket endpoint (useful for testing).
func (f *WSFeed) WithURL(url string) *WSFeed {
	f.url = url
	return f
}

// Price returns the latest trade price for a token. The second return
// is false when no trade has been seen since the last Reset.
func (f *WSFeed) Price(tokenID string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.table[tokenID]
	return p, ok
}

// HasAll reports whether every given token has a price in the table.
func (f *WSFeed) HasAll(tokenIDs []string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range tokenIDs {
		if _, ok := f.table[id]; !ok {
			return false
		}
	}
	return true
}

// Seed injects a price for a subscribed token, used to warm the table
// from an HTTP snapshot before the first trade arrives. Prices for
// tokens outside the current subscription set are dropped.
func (f *WSFeed) Seed(tokenID string, price float64) {
	if price < 0 || price > 1 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.tokens {
		if id == tokenID {
			f.table[tokenID] = price
			return
		}
	}
}

// Reset replaces the subscription set and clears the price table. The
// live connection is dropped; the run loop reconnects and subscribes
// to the new set.
func (f *WSFeed) Reset(tokenIDs []string) {
	f.mu.Lock()
	f.tokens = append([]string(nil), tokenIDs...)
	f.table = make(map[string]float64)
	f.mu.Unlock()

	f.dropConnection()
}

// Run drives the connect/subscribe/read cycle with exponential
// backoff until the context ends or Close is called.
func (f *WSFeed) Run(ctx context.Context) error {
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		started := time.Now()
		err := f.connectAndRead(ctx)
		if time.Since(started) > maxBackoff {
			// A connection that held for a while earns a fresh start.
			backoff = initialBackoff
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[feed] connection lost: %v (retrying in %s)", err, backoff)
		}
		f.dropConnection()

		if !f.sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff)
	}
}

// Close stops the run loop and drops the connection.
func (f *WSFeed) Close() error {
	f.closed.Do(func() { close(f.done) })
	return f.dropConnection()
}

// connectAndRead dials, subscribes the current token set, and reads
// events until the connection fails or is dropped.
func (f *WSFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	if err := f.subscribe(conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	})

	pingDone := make(chan struct{})
	go f.pingLoop(ctx, conn, pingDone)
	defer close(pingDone)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.handleMessage(message)
	}
}

// subscribe sends the market-channel subscription for the current
// token set. An empty set skips the write; the read loop still runs
// so Reset can kick in later.
func (f *WSFeed) subscribe(conn *websocket.Conn) error {
	f.mu.Lock()
	tokens := append([]string(nil), f.tokens...)
	f.mu.Unlock()

	if len(tokens) == 0 {
		return nil
	}

	msg := subscribeMessage{Type: "market", AssetIDs: tokens}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// pingLoop keeps the connection alive; a failed ping lets the read
// deadline expire and trigger a reconnect.
func (f *WSFeed) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-f.done:
			return
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage updates the price table from one inbound frame. The
// channel delivers both single events and arrays of them.
func (f *WSFeed) handleMessage(data []byte) {
	var events []wsEvent
	if err := json.Unmarshal(data, &events); err != nil {
		var single wsEvent
		if err := json.Unmarshal(data, &single); err != nil {
			return
		}
		events = []wsEvent{single}
	}

	for _, ev := range events {
		if ev.EventType != "last_trade_price" || ev.AssetID == "" {
			continue
		}
		price, err := strconv.ParseFloat(ev.Price, 64)
		if err != nil || price < 0 || price > 1 {
			log.Printf("[feed] dropping bad trade price %q for %s", ev.Price, ev.AssetID)
			continue
		}

		f.mu.Lock()
		if f.subscribedLocked(ev.AssetID) {
			f.table[ev.AssetID] = price
		}
		f.mu.Unlock()
	}
}

// subscribedLocked reports token membership; caller holds f.mu.
func (f *WSFeed) subscribedLocked(tokenID string) bool {
	for _, id := range f.tokens {
		if id == tokenID {
			return true
		}
	}
	return false
}

func (f *WSFeed) dropConnection() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.conn == nil {
		return nil
	}
	f.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	err := f.conn.Close()
	f.conn = nil
	return err
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * backoffFactor
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (f *WSFeed) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-f.done:
		return false
	case <-timer.C:
		return true
	}
}
