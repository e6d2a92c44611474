package parser

import (
	"regexp"
	"strings"
)

var tickerLine = regexp.MustCompile(`^[A-Z]{2,5}$`)

const biasMarker = "⚠"

// TickerHeader reports whether the line opens a ticker section and returns the symbol.
// Markdown emphasis around the symbol ("**NVDA**") is tolerated.
func TickerHeader(line string) (string, bool) {
	s := strings.TrimSpace(line)
	s = strings.TrimSpace(strings.Trim(s, "*_~"))
	if !tickerLine.MatchString(s) {
		return "", false
	}
	return s, true
}

func isBiasLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), biasMarker)
}

// biasText strips the marker and a leading "Bias" tag from a bias line.
func biasText(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, biasMarker)
	s = strings.TrimLeft(s, "\uFE0F ")
	if len(s) >= 4 && strings.EqualFold(s[:4], "bias") {
		s = s[4:]
	}
	s = strings.TrimLeft(s, " :-—–")
	return strings.TrimSpace(s)
}

// SplitSections groups the body lines of a message by ticker. Lines before the first
// ticker header are dropped. Bias lines feed the section's bias note instead of its
// setup lines; the note continues on following lines until a blank line, a ticker header
// or a line that carries two prices.
func SplitSections(body string) []Section {
	var sections []*Section
	byTicker := make(map[string]*Section)
	var current *Section
	inBias := false

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			inBias = false
			continue
		}

		if ticker, ok := TickerHeader(trimmed); ok {
			inBias = false
			if existing, found := byTicker[ticker]; found {
				current = existing
				continue
			}
			current = &Section{Ticker: ticker}
			byTicker[ticker] = current
			sections = append(sections, current)
			continue
		}

		if current == nil {
			continue
		}

		if isBiasLine(trimmed) {
			inBias = true
			current.BiasNote = joinNote(current.BiasNote, biasText(trimmed))
			continue
		}

		if inBias && len(ExtractPrices(trimmed)) < 2 {
			current.BiasNote = joinNote(current.BiasNote, trimmed)
			continue
		}

		inBias = false
		current.Lines = append(current.Lines, trimmed)
	}

	out := make([]Section, 0, len(sections))
	for _, s := range sections {
		out = append(out, *s)
	}
	return out
}

func joinNote(note, text string) string {
	if text == "" {
		return note
	}
	if note == "" {
		return text
	}
	return note + " " + text
}

// splitHeader returns the first non-empty line and everything after it.
func splitHeader(content string) (string, string) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		return strings.TrimSpace(line), strings.Join(lines[i+1:], "\n")
	}
	return "", ""
}
