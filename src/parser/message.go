package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"setupingest/src/calendar"
)

// DefaultMinContentLength is the shortest trimmed content, in runes, worth parsing.
const DefaultMinContentLength = 30

var (
	setupsKeyword = regexp.MustCompile(`(?i)\bsetups?\b`)
	testIndicator = regexp.MustCompile(`(?i)\b(test|draft|ignore|template)\b`)
)

// Options tune a Parser. Zero values select the defaults.
type Options struct {
	MinContentLength int
	DateWindow       time.Duration
	LabelRules       []LabelRule
	Logger           *logrus.Entry
}

// Parser turns raw A+ messages into trade setups. It holds no state between calls and is
// safe for concurrent use.
type Parser struct {
	minContentLength int
	dateWindow       time.Duration
	rules            []LabelRule
	log              *logrus.Entry
}

func NewParser(opts Options) *Parser {
	p := &Parser{
		minContentLength: opts.MinContentLength,
		dateWindow:       opts.DateWindow,
		rules:            opts.LabelRules,
		log:              opts.Logger,
	}
	if p.minContentLength <= 0 {
		p.minContentLength = DefaultMinContentLength
	}
	if p.dateWindow <= 0 {
		p.dateWindow = DefaultDateWindow
	}
	if len(p.rules) == 0 {
		p.rules = DefaultLabelRules()
	}
	if p.log == nil {
		p.log = logrus.WithField("component", "parser")
	}
	return p
}

// Validate decides whether content looks like an A+ setups message.
func (p *Parser) Validate(content string) (Rejection, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return RejectionEmptyContent, false
	}

	header, _ := splitHeader(trimmed)
	if !strings.Contains(header, "A+") || !setupsKeyword.MatchString(header) {
		return RejectionHeaderTokenMismatch, false
	}
	if testIndicator.MatchString(header) {
		return RejectionTestIndicator, false
	}
	// Content must exceed the minimum length.
	if utf8.RuneCountInString(trimmed) <= p.minContentLength {
		return RejectionContentTooShort, false
	}
	return RejectionNone, true
}

// Parse runs validation, trading day extraction, section splitting and line extraction.
// Problems local to a line are recorded as issues and never fail the whole message.
func (p *Parser) Parse(msg RawMessage) Result {
	res := Result{MessageID: msg.MessageID, Stage: StageUnvalidated}
	log := p.log.WithField("message_id", msg.MessageID)

	if reason, ok := p.Validate(msg.Content); !ok {
		res.Stage = StageFailed
		res.Reason = reason
		log.WithField("reason", reason).Info("message rejected")
		return res
	}
	res.Stage = StageValidated

	header, body := splitHeader(msg.Content)

	res.TradingDay = ExtractTradingDayWithin(header, msg.Timestamp, p.dateWindow)
	if res.TradingDay.Method == ExtractionFallback {
		res.Issues = append(res.Issues, Issue{
			Kind:   IssueDate,
			Line:   header,
			Detail: fmt.Sprintf("%s: %s", ErrDateExtraction.Error(), res.TradingDay.Reason),
		})
		log.WithFields(map[string]interface{}{
			"header":      header,
			"reason":      res.TradingDay.Reason,
			"trading_day": res.TradingDay.Day.Format(DayLayout),
		}).Warn("trading day taken from message timestamp")
	}
	p.checkCalendar(log, res.TradingDay.Day)
	res.Stage = StageDateExtracted

	sections := SplitSections(body)
	res.Stage = StageSegmented

	for _, section := range sections {
		if section.BiasNote != "" {
			if res.BiasNotes == nil {
				res.BiasNotes = make(map[string]string)
			}
			res.BiasNotes[section.Ticker] = section.BiasNote
		}
		setups := p.parseSection(log, &res, section)
		p.auditSection(log, section.Ticker, setups)
		res.Setups = append(res.Setups, setups...)
	}
	res.Stage = StageParsed

	if len(res.Setups) == 0 {
		res.Stage = StageFailed
		res.Reason = RejectionNoSetups
		log.WithField("sections", len(sections)).Info("no setups found")
		return res
	}

	res.Success = true
	res.Stage = StageSuccess
	log.WithFields(map[string]interface{}{
		"setups":             len(res.Setups),
		"tickers":            len(res.Tickers()),
		"duplicates_skipped": res.DuplicatesSkipped,
		"invalid_setups":     res.InvalidSetups,
		"trading_day":        res.TradingDay.Day.Format(DayLayout),
	}).Debug("message parsed")
	return res
}

func (p *Parser) parseSection(log *logrus.Entry, res *Result, section Section) []TradeSetup {
	var setups []TradeSetup
	seen := make(map[string]bool)

	for _, line := range section.Lines {
		ls, err := ExtractLine(line, p.rules)
		if err != nil {
			var inv *InvariantViolationError
			switch {
			case errors.As(err, &inv):
				inv.Ticker = section.Ticker
				res.InvalidSetups++
				res.Issues = append(res.Issues, Issue{Kind: IssueInvariant, Ticker: section.Ticker, Line: line, Detail: inv.Error()})
				log.WithFields(map[string]interface{}{
					"ticker":  section.Ticker,
					"trigger": inv.Trigger,
					"target":  inv.Target,
				}).WithError(err).Warn("setup discarded")
			case errors.Is(err, ErrStructural):
				res.Issues = append(res.Issues, Issue{Kind: IssueStructural, Ticker: section.Ticker, Line: line, Detail: err.Error()})
				log.WithField("ticker", section.Ticker).WithField("line", line).Debug("line without setup")
			}
			continue
		}

		labelKey := Unlabeled
		if ls.Label != nil {
			labelKey = string(*ls.Label)
		}
		key := fmt.Sprintf("%s|%s|%s|%.2f", section.Ticker, labelKey, ls.Direction, ls.Trigger)
		if seen[key] {
			res.DuplicatesSkipped++
			res.Issues = append(res.Issues, Issue{Kind: IssueDuplicate, Ticker: section.Ticker, Line: line, Detail: ErrDuplicateSetup.Error()})
			log.WithFields(map[string]interface{}{
				"ticker":    section.Ticker,
				"trigger":   ls.Trigger,
				"direction": ls.Direction,
			}).Info("duplicate setup skipped")
			continue
		}
		seen[key] = true

		index := len(setups) + 1
		setups = append(setups, TradeSetup{
			ID:           SetupID(res.TradingDay.Day, section.Ticker, index),
			Ticker:       section.Ticker,
			TradingDay:   res.TradingDay.Day,
			Index:        index,
			TriggerLevel: ls.Trigger,
			TargetPrices: ls.Targets,
			Direction:    ls.Direction,
			Label:        ls.Label,
			Keywords:     ls.Keywords,
			RawLine:      ls.Raw,
		})
	}
	return setups
}

// auditSection compares a ticker's setups with the seven profile template. Advisory only.
func (p *Parser) auditSection(log *logrus.Entry, ticker string, setups []TradeSetup) {
	if len(setups) == 0 {
		return
	}

	present := make(map[Label]bool)
	for _, s := range setups {
		if s.Label != nil {
			present[*s.Label] = true
		}
	}
	var missing []string
	for _, l := range ExpectedLabels {
		if !present[l] {
			missing = append(missing, string(l))
		}
	}

	fields := log.WithField("ticker", ticker)
	if len(missing) > 0 {
		fields.WithField("missing_labels", strings.Join(missing, ",")).Debug("ticker section is missing template profiles")
	}
	if len(setups) > TemplateSize {
		fields.WithField("count", len(setups)).Warn("ticker section has more setups than the template")
	}
}

func (p *Parser) checkCalendar(log *logrus.Entry, day time.Time) {
	if calendar.IsWeekend(day) {
		log.WithField("trading_day", day.Format(DayLayout)).Warn("trading day falls on a weekend")
		return
	}
	if name, ok := calendar.IsHoliday(day); ok {
		log.WithFields(map[string]interface{}{
			"trading_day": day.Format(DayLayout),
			"holiday":     name,
		}).Warn("trading day falls on a market holiday")
	}
}
