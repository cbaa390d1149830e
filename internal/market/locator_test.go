package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testEvent(slug string, start, end time.Time, active, closed bool) gammaEvent {
	return gammaEvent{
		Slug:      slug,
		Active:    active,
		Closed:    closed,
		StartTime: start.UTC().Format(time.RFC3339),
		EndDate:   end.UTC().Format(time.RFC3339),
		Markets: []gammaMarket{{
			ConditionID:  "0xcond-" + slug,
			Question:     "Bitcoin Up or Down - June 15, 2:00PM-2:15PM ET",
			Slug:         slug,
			ClobTokenIDs: `["111","222"]`,
			Outcomes:     `["Up","Down"]`,
		}},
	}
}

// eventsServer serves canned gamma events keyed by slug; every other
// slug gets an empty list.
func eventsServer(t *testing.T, events map[string]gammaEvent, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		slug := r.URL.Query().Get("slug")
		resp := []gammaEvent{}
		if ev, ok := events[slug]; ok {
			resp = append(resp, ev)
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func TestLocatorFindsLiveMarket(t *testing.T) {
	loc := mustLoadET(t)
	now := time.Date(2025, time.June, 15, 14, 7, 30, 0, loc)
	bucket := now.Truncate(bucketLength)
	slug := fmt.Sprintf("%s-%d", slugPrefix, bucket.Unix())

	srv := eventsServer(t, map[string]gammaEvent{
		slug: testEvent(slug, bucket, bucket.Add(bucketLength), true, false),
	}, nil)
	defer srv.Close()

	l := NewLocator().WithBaseURL(srv.URL).WithClock(func() time.Time { return now })
	m, err := l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if m == nil {
		t.Fatal("expected a market, got nil")
	}
	if m.Slug != slug {
		t.Errorf("Slug = %s, want %s", m.Slug, slug)
	}
	if m.UpTokenID != "111" || m.DownTokenID != "222" {
		t.Errorf("tokens = %s/%s, want 111/222", m.UpTokenID, m.DownTokenID)
	}
	if !m.EndTime.Equal(bucket.Add(bucketLength)) {
		t.Errorf("EndTime = %v, want %v", m.EndTime, bucket.Add(bucketLength))
	}
}

func TestLocatorNoLiveMarket(t *testing.T) {
	loc := mustLoadET(t)
	now := time.Date(2025, time.June, 15, 14, 7, 30, 0, loc)

	srv := eventsServer(t, nil, nil)
	defer srv.Close()

	l := NewLocator().WithBaseURL(srv.URL).WithClock(func() time.Time { return now })
	m, err := l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil market, got %s", m.Slug)
	}
}

func TestLocatorSkipsClosedAndInactive(t *testing.T) {
	loc := mustLoadET(t)
	now := time.Date(2025, time.June, 15, 14, 7, 30, 0, loc)
	bucket := now.Truncate(bucketLength)

	prevSlug := fmt.Sprintf("%s-%d", slugPrefix, bucket.Add(-bucketLength).Unix())
	curSlug := fmt.Sprintf("%s-%d", slugPrefix, bucket.Unix())

	// The previous bucket is closed; the current one is live. The
	// closed candidate must not shadow the live one even though it
	// comes first in offset order.
	srv := eventsServer(t, map[string]gammaEvent{
		prevSlug: testEvent(prevSlug, bucket.Add(-bucketLength), bucket.Add(bucketLength), true, true),
		curSlug:  testEvent(curSlug, bucket, bucket.Add(bucketLength), true, false),
	}, nil)
	defer srv.Close()

	l := NewLocator().WithBaseURL(srv.URL).WithClock(func() time.Time { return now })
	m, err := l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if m == nil || m.Slug != curSlug {
		t.Fatalf("expected %s, got %+v", curSlug, m)
	}
}

func TestLocatorPrefersEarlierOffset(t *testing.T) {
	loc := mustLoadET(t)
	now := time.Date(2025, time.June, 15, 14, 7, 30, 0, loc)
	bucket := now.Truncate(bucketLength)

	curSlug := fmt.Sprintf("%s-%d", slugPrefix, bucket.Unix())
	nextSlug := fmt.Sprintf("%s-%d", slugPrefix, bucket.Add(bucketLength).Unix())

	// Both the current bucket and a pre-listed next one pass the
	// filter; the earlier offset wins regardless of fetch order.
	srv := eventsServer(t, map[string]gammaEvent{
		curSlug:  testEvent(curSlug, bucket, bucket.Add(bucketLength), true, false),
		nextSlug: testEvent(nextSlug, now.Add(-time.Minute), bucket.Add(2*bucketLength), true, false),
	}, nil)
	defer srv.Close()

	l := NewLocator().WithBaseURL(srv.URL).WithClock(func() time.Time { return now })
	m, err := l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if m == nil || m.Slug != curSlug {
		t.Fatalf("expected %s, got %+v", curSlug, m)
	}
}

func TestLocatorLockCaching(t *testing.T) {
	loc := mustLoadET(t)
	base := time.Date(2025, time.June, 15, 14, 7, 30, 0, loc)
	bucket := base.Truncate(bucketLength)
	slug := fmt.Sprintf("%s-%d", slugPrefix, bucket.Unix())

	nextBucket := bucket.Add(bucketLength)
	nextSlug := fmt.Sprintf("%s-%d", slugPrefix, nextBucket.Unix())

	var hits atomic.Int64
	srv := eventsServer(t, map[string]gammaEvent{
		slug:     testEvent(slug, bucket, nextBucket, true, false),
		nextSlug: testEvent(nextSlug, nextBucket, nextBucket.Add(bucketLength), true, false),
	}, &hits)
	defer srv.Close()

	now := base
	l := NewLocator().WithBaseURL(srv.URL).WithClock(func() time.Time { return now })

	m, err := l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if m == nil || m.Slug != slug {
		t.Fatalf("expected %s, got %+v", slug, m)
	}
	afterFirst := hits.Load()

	// While the window is open repeated refreshes must not touch the
	// network.
	now = base.Add(time.Minute)
	for i := 0; i < 5; i++ {
		m2, err := l.Refresh(context.Background())
		if err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		if m2 != m {
			t.Fatal("cached market not reused")
		}
	}
	if hits.Load() != afterFirst {
		t.Errorf("cached refresh hit the network: %d -> %d", afterFirst, hits.Load())
	}

	// Past the end time the locator must drop the lock and find the
	// next window.
	now = nextBucket.Add(time.Second)
	m3, err := l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if m3 == nil || m3.Slug != nextSlug {
		t.Fatalf("expected %s after rollover, got %+v", nextSlug, m3)
	}
	if hits.Load() == afterFirst {
		t.Error("rollover refresh did not query the network")
	}
	if cur := l.Current(); cur != m3 {
		t.Errorf("Current() = %+v, want relocked market", cur)
	}
}

func TestLocatorRejectsOddWindow(t *testing.T) {
	loc := mustLoadET(t)
	now := time.Date(2025, time.June, 15, 14, 7, 30, 0, loc)
	bucket := now.Truncate(bucketLength)
	slug := fmt.Sprintf("%s-%d", slugPrefix, bucket.Unix())

	ev := testEvent(slug, bucket, bucket.Add(bucketLength), true, false)
	ev.Markets[0].Question = "Bitcoin Up or Down - June 15, 2:00PM-2:30PM ET"

	srv := eventsServer(t, map[string]gammaEvent{slug: ev}, nil)
	defer srv.Close()

	l := NewLocator().WithBaseURL(srv.URL).WithClock(func() time.Time { return now })
	m, err := l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if m != nil {
		t.Errorf("expected odd-window market to be skipped, got %s", m.Slug)
	}
}

func TestLocatorSurvivesServerError(t *testing.T) {
	loc := mustLoadET(t)
	now := time.Date(2025, time.June, 15, 14, 7, 30, 0, loc)
	bucket := now.Truncate(bucketLength)
	slug := fmt.Sprintf("%s-%d", slugPrefix, bucket.Unix())

	// The previous-bucket lookup 500s; the live bucket still wins.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("slug")
		if got != slug {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		ev := testEvent(slug, bucket, bucket.Add(bucketLength), true, false)
		if err := json.NewEncoder(w).Encode([]gammaEvent{ev}); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	defer srv.Close()

	l := NewLocator().WithBaseURL(srv.URL).WithClock(func() time.Time { return now })
	m, err := l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if m == nil || !strings.Contains(m.Slug, slug) {
		t.Fatalf("expected %s despite sibling errors, got %+v", slug, m)
	}
}
