package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	gammaBaseURL = "https://gamma-api.polymarket.com"

	slugPrefix   = "btc-updown-15m"
	bucketLength = 15 * time.Minute

	defaultTimeout = 5 * time.Second

	// Gamma /events allows 500 req/10s; stay well under it.
	eventsRatePerSec = 20
)

// bucketOffsets are the 15-minute buckets probed around the current
// one. The previous bucket catches a market still settling, the next
// two catch early-listed windows.
var bucketOffsets = []int{-1, 0, 1, 2}

// Locator discovers the currently live 15-minute market and holds the
// lock on it until its window passes.
type Locator struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	loc        *time.Location
	now        func() time.Time

	mu      sync.Mutex
	current *Market
}

// NewLocator creates a Locator in the US Eastern reference timezone.
func NewLocator() *Locator {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// The zone database always carries this name; a failure here
		// means a broken environment, not a recoverable condition.
		panic(fmt.Sprintf("load market timezone: %v", err))
	}
	return &Locator{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    gammaBaseURL,
		limiter:    rate.NewLimiter(eventsRatePerSec, 5),
		loc:        loc,
		now:        time.Now,
	}
}

// WithBaseURL sets a custom events API base URL (useful for testing).
func (l *Locator) WithBaseURL(url string) *Locator {
	l.baseURL = url
	return l
}

// WithClock overrides the time source (useful for testing).
func (l *Locator) WithClock(now func() time.Time) *Locator {
	l.now = now
	return l
}

// Current returns the locked market without querying, or nil.
func (l *Locator) Current() *Market {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Refresh returns the live market, reusing the locked one while its
// window is still open. (nil, nil) means no market is live right now.
func (l *Locator) Refresh(ctx context.Context) (*Market, error) {
	now := l.now().In(l.loc)

	l.mu.Lock()
	if l.current != nil && !l.current.Ended(now) {
		m := l.current
		l.mu.Unlock()
		return m, nil
	}
	expired := l.current
	l.current = nil
	l.mu.Unlock()

	if expired != nil {
		log.Printf("[market] market ended at %s, searching for next window",
			expired.EndTime.In(l.loc).Format("3:04:05PM ET"))
	}

	found, err := l.discover(ctx, now)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, nil
	}

	l.mu.Lock()
	l.current = found
	l.mu.Unlock()

	log.Printf("[market] locked: %s (until %s)", found.Question,
		found.EndTime.In(l.loc).Format("3:04:05PM ET"))
	return found, nil
}

// discover probes the candidate bucket slugs around now, in parallel,
// and adopts the earliest-bucket market that is live.
func (l *Locator) discover(ctx context.Context, now time.Time) (*Market, error) {
	bucketStart := now.Truncate(bucketLength)

	candidates := make([]*Market, len(bucketOffsets))
	g, gctx := errgroup.WithContext(ctx)

	for i, offset := range bucketOffsets {
		i := i
		slug := fmt.Sprintf("%s-%d", slugPrefix, bucketStart.Add(time.Duration(offset)*bucketLength).Unix())
		g.Go(func() error {
			m, err := l.lookupSlug(gctx, slug, now)
			if err != nil {
				// A missing or malformed bucket is routine; the other
				// candidates still stand.
				log.Printf("[market] slug %s: %v", slug, err)
				return nil
			}
			candidates[i] = m
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, m := range candidates {
		if m != nil {
			return m, nil
		}
	}
	return nil, nil
}

// lookupSlug fetches one event by slug and returns its market when
// the event is active, not closed, and its window contains now.
func (l *Locator) lookupSlug(ctx context.Context, slug string, now time.Time) (*Market, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/events?slug=%s", l.baseURL, url.QueryEscape(slug))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("events request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var events []gammaEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	event := &events[0]
	if !event.Active || event.Closed {
		return nil, nil
	}

	start, errStart := time.Parse(time.RFC3339, event.StartTime)
	end, errEnd := time.Parse(time.RFC3339, event.EndDate)
	if errStart != nil || errEnd != nil {
		return nil, fmt.Errorf("event %s has unparseable window", slug)
	}
	if now.Before(start) || now.After(end) {
		return nil, nil
	}

	if len(event.Markets) == 0 {
		return nil, nil
	}
	gm := &event.Markets[0]
	if _, _, parsed := parseQuestionWindow(gm.Question, now, l.loc); parsed && !is15MinuteWindow(gm.Question, now, l.loc) {
		return nil, fmt.Errorf("market %s window is not 15 minutes", gm.ConditionID)
	}
	return normalize(event, gm, now, l.loc)
}
