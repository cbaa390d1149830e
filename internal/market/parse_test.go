package market

import (
	"testing"
	"time"
)

func mustLoadET(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestParseQuestionWindow(t *testing.T) {
	loc := mustLoadET(t)
	now := time.Date(2025, time.June, 15, 14, 7, 0, 0, loc)

	tests := []struct {
		name      string
		question  string
		wantStart time.Time
		wantEnd   time.Time
		wantOK    bool
	}{
		{
			name:      "both periods",
			question:  "Bitcoin Up or Down - June 15, 2:00PM-2:15PM ET",
			wantStart: time.Date(2025, time.June, 15, 14, 0, 0, 0, loc),
			wantEnd:   time.Date(2025, time.June, 15, 14, 15, 0, 0, loc),
			wantOK:    true,
		},
		{
			name:      "single trailing period",
			question:  "Bitcoin Up or Down - June 15, 2:00-2:15PM ET",
			wantStart: time.Date(2025, time.June, 15, 14, 0, 0, 0, loc),
			wantEnd:   time.Date(2025, time.June, 15, 14, 15, 0, 0, loc),
			wantOK:    true,
		},
		{
			name:      "crosses noon",
			question:  "Bitcoin Up or Down - June 15, 11:45AM-12:00PM ET",
			wantStart: time.Date(2025, time.June, 15, 11, 45, 0, 0, loc),
			wantEnd:   time.Date(2025, time.June, 15, 12, 0, 0, 0, loc),
			wantOK:    true,
		},
		{
			name:      "midnight start",
			question:  "Bitcoin Up or Down - June 15, 12:00AM-12:15AM ET",
			wantStart: time.Date(2025, time.June, 15, 0, 0, 0, 0, loc),
			wantEnd:   time.Date(2025, time.June, 15, 0, 15, 0, 0, loc),
			wantOK:    true,
		},
		{
			name:     "no window in text",
			question: "Will Bitcoin reach $150k this year?",
			wantOK:   false,
		},
		{
			name:     "missing timezone suffix",
			question: "Bitcoin Up or Down - June 15, 2:00PM-2:15PM",
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, ok := parseQuestionWindow(tt.question, now, loc)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !start.Equal(tt.wantStart) {
				t.Errorf("start = %v, want %v", start, tt.wantStart)
			}
			if !end.Equal(tt.wantEnd) {
				t.Errorf("end = %v, want %v", end, tt.wantEnd)
			}
		})
	}
}

func TestInferYear(t *testing.T) {
	loc := mustLoadET(t)

	tests := []struct {
		name  string
		month time.Month
		day   int
		now   time.Time
		want  int
	}{
		{
			name:  "same month",
			month: time.June, day: 15,
			now:  time.Date(2025, time.June, 15, 12, 0, 0, 0, loc),
			want: 2025,
		},
		{
			name:  "december question read on january 1st",
			month: time.December, day: 31,
			now:  time.Date(2026, time.January, 1, 0, 5, 0, 0, loc),
			want: 2025,
		},
		{
			name:  "january question read on december 31st",
			month: time.January, day: 1,
			now:  time.Date(2025, time.December, 31, 23, 55, 0, 0, loc),
			want: 2026,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inferYear(tt.month, tt.day, tt.now, loc); got != tt.want {
				t.Errorf("inferYear() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIs15MinuteWindow(t *testing.T) {
	loc := mustLoadET(t)
	now := time.Date(2025, time.June, 15, 14, 7, 0, 0, loc)

	tests := []struct {
		name     string
		question string
		want     bool
	}{
		{"exact window", "Bitcoin Up or Down - June 15, 2:00PM-2:15PM ET", true},
		{"wraps past midnight", "Bitcoin Up or Down - June 15, 11:45PM-12:00AM ET", true},
		{"thirty minutes", "Bitcoin Up or Down - June 15, 2:00PM-2:30PM ET", false},
		{"unparseable", "Will Bitcoin reach $150k this year?", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := is15MinuteWindow(tt.question, now, loc); got != tt.want {
				t.Errorf("is15MinuteWindow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeTokenAssignment(t *testing.T) {
	loc := mustLoadET(t)
	now := time.Date(2025, time.June, 15, 14, 7, 0, 0, loc)

	event := &gammaEvent{
		StartTime: "2025-06-15T18:00:00Z",
		EndDate:   "2025-06-15T18:15:00Z",
	}

	tests := []struct {
		name     string
		outcomes string
		wantUp   string
		wantDown string
	}{
		{"up first", `["Up","Down"]`, "111", "222"},
		{"down first", `["Down","Up"]`, "222", "111"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gm := &gammaMarket{
				ConditionID:  "0xcond",
				Question:     "Bitcoin Up or Down - June 15, 2:00PM-2:15PM ET",
				ClobTokenIDs: `["111","222"]`,
				Outcomes:     tt.outcomes,
			}
			m, err := normalize(event, gm, now, loc)
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if m.UpTokenID != tt.wantUp {
				t.Errorf("UpTokenID = %s, want %s", m.UpTokenID, tt.wantUp)
			}
			if m.DownTokenID != tt.wantDown {
				t.Errorf("DownTokenID = %s, want %s", m.DownTokenID, tt.wantDown)
			}
		})
	}
}

func TestNormalizeEndTimeFallback(t *testing.T) {
	loc := mustLoadET(t)
	now := time.Date(2025, time.June, 15, 14, 7, 0, 0, loc)

	gm := &gammaMarket{
		ConditionID:  "0xcond",
		Question:     "Bitcoin Up or Down - June 15, 2:00PM-2:15PM ET",
		ClobTokenIDs: `["111","222"]`,
		Outcomes:     `["Up","Down"]`,
	}

	// No machine-readable end date: the question text wins.
	m, err := normalize(&gammaEvent{}, gm, now, loc)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := time.Date(2025, time.June, 15, 14, 15, 0, 0, loc)
	if !m.EndTime.Equal(want) {
		t.Errorf("EndTime = %v, want %v", m.EndTime, want)
	}

	// No end date and no window in the question: flat 15 minutes.
	gm.Question = "Bitcoin Up or Down"
	m, err = normalize(&gammaEvent{}, gm, now, loc)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !m.EndTime.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("EndTime = %v, want now+15m", m.EndTime)
	}
}
