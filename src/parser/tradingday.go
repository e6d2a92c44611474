package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// DefaultDateWindow is how far a header date may lie from the message timestamp.
const DefaultDateWindow = 30 * 24 * time.Hour

// maxDateTokens bounds the header window scanned for a date.
const maxDateTokens = 6

// Fallback reasons.
const (
	ReasonNoDateToken     = "no_date_token"
	ReasonInvalidDay      = "invalid_day"
	ReasonImplausibleDate = "implausible_date"
)

var (
	headerMarkers = []string{"—", "–", " - ", "|", ":"}
	setupsWord    = regexp.MustCompile(`(?i)^setups?$`)
	dayToken      = regexp.MustCompile(`^(\d{1,2})(st|nd|rd|th)?$`)
)

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

// ExtractTradingDay reads the trading day from a header using DefaultDateWindow.
func ExtractTradingDay(header string, ref time.Time) DayResult {
	return ExtractTradingDayWithin(header, ref, DefaultDateWindow)
}

// ExtractTradingDayWithin reads "Month Day" from the header window. The year is always the
// year of ref. When no date is found, the day does not exist or it lies further than window
// from ref, the calendar date of ref in its own location is returned with Method fallback.
func ExtractTradingDayWithin(header string, ref time.Time, window time.Duration) DayResult {
	tokens := dateWindow(header)

	month, day, reason := findMonthDay(tokens)
	if reason != "" {
		return fallbackDay(ref, reason)
	}

	candidate := time.Date(ref.Year(), month, day, 0, 0, 0, 0, ref.Location())
	if candidate.Day() != day || candidate.Month() != month {
		return fallbackDay(ref, ReasonInvalidDay)
	}

	refDay := dateOf(ref)
	diff := candidate.Sub(refDay)
	if diff < 0 {
		diff = -diff
	}
	if diff > window {
		return fallbackDay(ref, ReasonImplausibleDate)
	}

	return DayResult{Day: candidate, Method: ExtractionHeader}
}

func fallbackDay(ref time.Time, reason string) DayResult {
	return DayResult{Day: dateOf(ref), Method: ExtractionFallback, Reason: reason}
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dateWindow returns the cleaned tokens following the header marker, or following the
// "setups" keyword when the header has no marker.
func dateWindow(header string) []string {
	if at, width := firstMarker(header); at >= 0 {
		return cleanTokens(strings.Fields(header[at+width:]))
	}

	fields := strings.Fields(header)
	for i, f := range fields {
		if setupsWord.MatchString(stripPunct(f)) {
			return cleanTokens(fields[i+1:])
		}
	}
	return nil
}

func firstMarker(header string) (int, int) {
	at, width := -1, 0
	for _, m := range headerMarkers {
		if i := strings.Index(header, m); i >= 0 && (at < 0 || i < at) {
			at, width = i, len(m)
		}
	}
	return at, width
}

func cleanTokens(fields []string) []string {
	var out []string
	for _, f := range fields {
		if len(out) == maxDateTokens {
			break
		}
		if tok := stripPunct(f); tok != "" {
			out = append(out, strings.ToLower(tok))
		}
	}
	return out
}

func stripPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// findMonthDay looks for a month name with a day number right after it ("Jun 10") or
// right before it ("10th June"). Weekday names are skipped as any other word.
func findMonthDay(tokens []string) (time.Month, int, string) {
	for i, tok := range tokens {
		month, ok := months[tok]
		if !ok {
			continue
		}

		neighbours := []int{i + 1, i - 1}
		for _, j := range neighbours {
			if j < 0 || j >= len(tokens) {
				continue
			}
			m := dayToken.FindStringSubmatch(tokens[j])
			if m == nil {
				continue
			}
			day, err := strconv.Atoi(m[1])
			if err != nil || day < 1 || day > 31 {
				return 0, 0, ReasonInvalidDay
			}
			return month, day, ""
		}
	}
	return 0, 0, ReasonNoDateToken
}
