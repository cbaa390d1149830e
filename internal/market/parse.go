package market

import (
	"regexp"
	"strconv"
	"time"
)

// Question text carries the trading window in one of two formats,
// always suffixed "ET":
//
//	"Bitcoin Up or Down - December 25, 3:00PM-3:15PM ET"
//	"Bitcoin Up or Down - December 25, 3:00-3:15PM ET"
//
// The second form states AM/PM once and it applies to both times.
var (
	windowBothPeriods = regexp.MustCompile(`(\w+ \d+),?\s+(\d+):(\d+)(AM|PM)-(\d+):(\d+)(AM|PM)\s+ET`)
	windowOnePeriod   = regexp.MustCompile(`(\w+ \d+),?\s+(\d+):(\d+)-(\d+):(\d+)(AM|PM)\s+ET`)
)

// parseQuestionWindow extracts the start and end of the market window
// from question text. The question never carries a year; the year is
// inferred by proximity to now so a late-December question read on
// January 1st still resolves to the previous year.
func parseQuestionWindow(question string, now time.Time, loc *time.Location) (start, end time.Time, ok bool) {
	var dateStr string
	var startHour, startMin, endHour, endMin int
	var startPeriod, endPeriod string

	if m := windowBothPeriods.FindStringSubmatch(question); m != nil {
		dateStr = m[1]
		startHour, _ = strconv.Atoi(m[2])
		startMin, _ = strconv.Atoi(m[3])
		startPeriod = m[4]
		endHour, _ = strconv.Atoi(m[5])
		endMin, _ = strconv.Atoi(m[6])
		endPeriod = m[7]
	} else if m := windowOnePeriod.FindStringSubmatch(question); m != nil {
		dateStr = m[1]
		startHour, _ = strconv.Atoi(m[2])
		startMin, _ = strconv.Atoi(m[3])
		endHour, _ = strconv.Atoi(m[4])
		endMin, _ = strconv.Atoi(m[5])
		startPeriod = m[6]
		endPeriod = m[6]
	} else {
		return time.Time{}, time.Time{}, false
	}

	month, day, ok := parseMonthDay(dateStr)
	if !ok {
		return time.Time{}, time.Time{}, false
	}

	year := inferYear(month, day, now, loc)

	start = time.Date(year, month, day, to24Hour(startHour, startPeriod), startMin, 0, 0, loc)
	end = time.Date(year, month, day, to24Hour(endHour, endPeriod), endMin, 0, 0, loc)
	return start, end, true
}

// parseMonthDay parses "December 25" into its components.
func parseMonthDay(s string) (time.Month, int, bool) {
	t, err := time.Parse("January 2", s)
	if err != nil {
		return 0, 0, false
	}
	return t.Month(), t.Day(), true
}

// inferYear picks whichever of last, this or next year puts the date
// closest to now. Hardcoding the current year misassigns a December
// market read just after midnight on January 1st.
func inferYear(month time.Month, day int, now time.Time, loc *time.Location) int {
	base := now.In(loc).Year()
	best := base
	bestDist := time.Duration(1<<63 - 1)
	for _, year := range []int{base - 1, base, base + 1} {
		candidate := time.Date(year, month, day, 0, 0, 0, 0, loc)
		dist := now.Sub(candidate)
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			bestDist = dist
			best = year
		}
	}
	return best
}

// to24Hour converts a 12-hour clock reading to 24-hour.
func to24Hour(hour int, period string) int {
	h := hour % 12
	if period == "PM" {
		h += 12
	}
	return h
}

// is15MinuteWindow reports whether the question describes a window of
// exactly fifteen minutes.
func is15MinuteWindow(question string, now time.Time, loc *time.Location) bool {
	start, end, ok := parseQuestionWindow(question, now, loc)
	if !ok {
		return false
	}
	d := end.Sub(start)
	if d < 0 {
		d += 24 * time.Hour
	}
	return d == 15*time.Minute
}
