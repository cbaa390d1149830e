package market

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Market is one normalized 15-minute Bitcoin up/down contract.
// All the loose gamma payload shapes are resolved at construction;
// markets are never mutated after creation, only superseded.
type Market struct {
	ConditionID string
	Question    string
	Slug        string
	UpTokenID   string
	DownTokenID string
	StartTime   time.Time
	EndTime     time.Time
}

// TokenIDs returns the two outcome token ids, up first.
func (m *Market) TokenIDs() []string {
	return []string{m.UpTokenID, m.DownTokenID}
}

// HasToken reports whether id is one of this market's outcome tokens.
func (m *Market) HasToken(id string) bool {
	return id == m.UpTokenID || id == m.DownTokenID
}

// Ended reports whether the market's window has passed at t.
func (m *Market) Ended(t time.Time) bool {
	return !t.Before(m.EndTime)
}

// gammaEvent is the wire shape of an event from the events endpoint.
type gammaEvent struct {
	Slug      string        `json:"slug"`
	Active    bool          `json:"active"`
	Closed    bool          `json:"closed"`
	StartTime string        `json:"startTime"`
	EndDate   string        `json:"endDate"`
	Markets   []gammaMarket `json:"markets"`
}

// gammaMarket is the wire shape of a market. The token id, outcome
// and price lists arrive as JSON-encoded strings that need a second
// parse; that quirk stays contained in this file.
type gammaMarket struct {
	ConditionID  string `json:"conditionId"`
	Question     string `json:"question"`
	Slug         string `json:"slug"`
	ClobTokenIDs string `json:"clobTokenIds"`
	Outcomes     string `json:"outcomes"`
}

// normalize converts a gamma event/market pair into a Market.
// Up/down token assignment is positional from the outcomes array.
func normalize(event *gammaEvent, gm *gammaMarket, now time.Time, loc *time.Location) (*Market, error) {
	var tokenIDs, outcomes []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &tokenIDs); err != nil {
		return nil, fmt.Errorf("parse clobTokenIds: %w", err)
	}
	if err := json.Unmarshal([]byte(gm.Outcomes), &outcomes); err != nil {
		return nil, fmt.Errorf("parse outcomes: %w", err)
	}
	if len(tokenIDs) < 2 || len(outcomes) < 2 {
		return nil, fmt.Errorf("market %s has %d tokens, %d outcomes", gm.ConditionID, len(tokenIDs), len(outcomes))
	}

	upIdx := 0
	if !strings.EqualFold(outcomes[0], "up") {
		upIdx = 1
	}
	downIdx := 1 - upIdx

	m := &Market{
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		Slug:        gm.Slug,
		UpTokenID:   tokenIDs[upIdx],
		DownTokenID: tokenIDs[downIdx],
	}

	if t, err := time.Parse(time.RFC3339, event.StartTime); err == nil {
		m.StartTime = t
	}

	// End time: the event's machine-readable timestamp is preferred;
	// the question text is the fallback, then a flat 15 minutes.
	if t, err := time.Parse(time.RFC3339, event.EndDate); err == nil {
		m.EndTime = t
	} else if _, end, ok := parseQuestionWindow(gm.Question, now, loc); ok {
		m.EndTime = end
	} else {
		m.EndTime = now.Add(15 * time.Minute)
	}

	return m, nil
}
