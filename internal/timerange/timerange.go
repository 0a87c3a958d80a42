// Package timerange parses natural-language date/time expressions into
// absolute UTC intervals.
//
// The grammar is closed: fixed relative keywords ("yesterday", "last
// week"), counted relative spans ("past 3 hours"), and absolute
// month/day/hour pairs ("October 27, 3 PM to October 28, 10 AM").
// Anything outside it is a parse failure — the parser never returns a
// partial or best-guess interval.
package timerange

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// months maps full month names and their common abbreviations to month
// numbers. Unrecognised names fail the whole parse.
var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var (
	relativeSpanRe = regexp.MustCompile(`^(?:last|past)\s+(\d+)\s+(hour|day|week)s?$`)

	// "<Month> <Day>[,] <Hour> [AM|PM] to <Month> <Day>[,] <Hour> [AM|PM]"
	dualDateRe = regexp.MustCompile(
		`^([a-z]+)\s+(\d{1,2}),?\s+(?:at\s+)?(\d{1,2})\s*(am|pm)?\s+to\s+([a-z]+)\s+(\d{1,2}),?\s+(?:at\s+)?(\d{1,2})\s*(am|pm)?$`)

	singleDateRe = regexp.MustCompile(`^([a-z]+)\s+(\d{1,2})$`)
)

// Parser converts natural-language time expressions to UTC intervals.
// Now is the clock source; it defaults to time.Now and is replaced in tests.
type Parser struct {
	Now func() time.Time
}

// New returns a Parser anchored on the system clock.
func New() *Parser {
	return &Parser{Now: time.Now}
}

func (p *Parser) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// Parse converts text to an absolute interval. The second return is
// false when the expression matches no rule of the grammar; in that
// case the interval is nil, never partially filled.
func (p *Parser) Parse(text string) (start, end time.Time, ok bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return time.Time{}, time.Time{}, false
	}

	now := p.now()
	midnight := midnightOf(now)

	switch text {
	case "today":
		return midnight, now, true
	case "yesterday":
		y := midnight.AddDate(0, 0, -1)
		return y, endOfDay(y), true
	case "this week":
		return startOfWeek(now), now, true
	case "last week":
		monday := startOfWeek(now).AddDate(0, 0, -7)
		return monday, endOfDay(monday.AddDate(0, 0, 6)), true
	case "this month":
		return startOfMonth(now), now, true
	case "last month":
		first := startOfMonth(now).AddDate(0, -1, 0)
		return first, endOfDay(first.AddDate(0, 1, -1)), true
	}

	if m := relativeSpanRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return time.Time{}, time.Time{}, false
		}
		var unit time.Duration
		switch m[2] {
		case "hour":
			unit = time.Hour
		case "day":
			unit = 24 * time.Hour
		case "week":
			unit = 7 * 24 * time.Hour
		}
		return now.Add(-time.Duration(n) * unit), now, true
	}

	if m := dualDateRe.FindStringSubmatch(text); m != nil {
		s, okS := absoluteTime(now.Year(), m[1], m[2], m[3], m[4])
		e, okE := absoluteTime(now.Year(), m[5], m[6], m[7], m[8])
		if !okS || !okE || e.Before(s) {
			return time.Time{}, time.Time{}, false
		}
		return s, e, true
	}

	return time.Time{}, time.Time{}, false
}

// ParseSingle resolves a single point in time: "today", "yesterday", or
// "<Month> <Day>" (midnight, current year).
func (p *Parser) ParseSingle(text string) (time.Time, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	now := p.now()

	switch text {
	case "today":
		return midnightOf(now), true
	case "yesterday":
		return midnightOf(now).AddDate(0, 0, -1), true
	}

	if m := singleDateRe.FindStringSubmatch(text); m != nil {
		if t, ok := absoluteTime(now.Year(), m[1], m[2], "", ""); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// absoluteTime builds a UTC timestamp from month name, day, optional
// 12-hour clock hour and meridiem. Missing meridiem defaults to AM.
// Returns false for unknown months, out-of-range hours, or days that do
// not exist in the month (time.Date would normalise them silently).
func absoluteTime(year int, monthName, dayStr, hourStr, meridiem string) (time.Time, bool) {
	month, ok := months[monthName]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return time.Time{}, false
	}

	hour := 0
	if hourStr != "" {
		hour, err = strconv.Atoi(hourStr)
		if err != nil || hour < 1 || hour > 12 {
			return time.Time{}, false
		}
		switch meridiem {
		case "pm":
			if hour != 12 {
				hour += 12
			}
		default: // am, or omitted
			if hour == 12 {
				hour = 0
			}
		}
	}

	t := time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

func midnightOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// endOfDay returns 23:59:59.999999 on the day of t.
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999000, time.UTC)
}

// startOfWeek returns midnight of the Monday of t's ISO week.
func startOfWeek(t time.Time) time.Time {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7 // Sunday belongs to the week started the previous Monday
	}
	return midnightOf(t).AddDate(0, 0, -(wd - 1))
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
