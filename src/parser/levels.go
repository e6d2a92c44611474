package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	numberRun  = regexp.MustCompile(`\d+(?:\.\d+)?`)
	priceToken = regexp.MustCompile(`^\d{2,5}\.\d{2}$`)
)

// Variation selectors are ignored, so each marker also matches its emoji presentation.
var (
	shortMarkers = []string{"🔻", "⬇", "🔽", "❌", "📉", "↘"}
	longMarkers  = []string{"🔼", "⬆", "🔺", "🔄", "📈", "↗"}
)

// LineSetup is what a single setup line yields before it is placed in a section.
type LineSetup struct {
	Trigger   float64
	Targets   []float64
	Direction Direction
	Label     *Label
	Keywords  []string
	Raw       string
}

// ExtractPrices returns every DD.DD style price of the line, left to right.
func ExtractPrices(line string) []float64 {
	var prices []float64
	for _, tok := range numberRun.FindAllString(line, -1) {
		if !priceToken.MatchString(tok) {
			continue
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			continue
		}
		prices = append(prices, v)
	}
	return prices
}

// DetectDirection scans the line for directional markers. The earliest marker wins,
// no marker means long.
func DetectDirection(line string) Direction {
	shortAt := firstIndex(line, shortMarkers)
	longAt := firstIndex(line, longMarkers)

	switch {
	case shortAt < 0:
		return DirectionLong
	case longAt < 0:
		return DirectionShort
	case shortAt < longAt:
		return DirectionShort
	default:
		return DirectionLong
	}
}

func firstIndex(line string, markers []string) int {
	best := -1
	for _, m := range markers {
		if i := strings.Index(line, m); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

// ExtractLine parses one setup line. It returns ErrStructural when the line holds fewer
// than two prices and an *InvariantViolationError when the prices are inconsistent.
func ExtractLine(line string, rules []LabelRule) (LineSetup, error) {
	raw := strings.TrimSpace(line)
	prices := ExtractPrices(raw)
	if len(prices) < 2 {
		return LineSetup{}, fmt.Errorf("%w: found %d", ErrStructural, len(prices))
	}

	label, keywords := Classify(raw, rules)
	ls := LineSetup{
		Trigger:   prices[0],
		Targets:   prices[1:],
		Direction: DetectDirection(raw),
		Label:     label,
		Keywords:  keywords,
		Raw:       raw,
	}

	if err := CheckLevels("", ls.Trigger, ls.Targets, ls.Direction); err != nil {
		return ls, err
	}
	return ls, nil
}

// CheckLevels enforces that no target repeats the trigger and that every target lies on
// the side of the trigger given by the direction.
func CheckLevels(ticker string, trigger float64, targets []float64, dir Direction) error {
	for _, t := range targets {
		if t == trigger {
			return &InvariantViolationError{Ticker: ticker, Trigger: trigger, Target: t, Reason: "target equals trigger"}
		}
	}
	for _, t := range targets {
		if dir == DirectionLong && t < trigger {
			return &InvariantViolationError{Ticker: ticker, Trigger: trigger, Target: t, Reason: "long target below trigger"}
		}
		if dir == DirectionShort && t > trigger {
			return &InvariantViolationError{Ticker: ticker, Trigger: trigger, Target: t, Reason: "short target above trigger"}
		}
	}
	return nil
}

// ValidateSetup applies CheckLevels to a parsed setup.
func ValidateSetup(s TradeSetup) error {
	return CheckLevels(s.Ticker, s.TriggerLevel, s.TargetPrices, s.Direction)
}
