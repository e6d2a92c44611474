package parser

import (
	"fmt"
	"time"
)

// Version tags every stored setup with the parser revision that produced it.
const Version = "aplus-2.1"

// Direction of a trade setup.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Label classifies a setup line against the A+ template profiles.
type Label string

const (
	LabelRejection             Label = "Rejection"
	LabelAggressiveBreakout    Label = "AggressiveBreakout"
	LabelConservativeBreakout  Label = "ConservativeBreakout"
	LabelAggressiveBreakdown   Label = "AggressiveBreakdown"
	LabelConservativeBreakdown Label = "ConservativeBreakdown"
	LabelBounceZone            Label = "BounceZone"
	LabelBias                  Label = "Bias"
)

// Unlabeled is the dedupe key fragment used for setups without a label.
const Unlabeled = "unlabeled"

// ExtractionMethod tells where a trading day came from.
type ExtractionMethod string

const (
	ExtractionHeader   ExtractionMethod = "header"
	ExtractionFallback ExtractionMethod = "fallback"
)

// Stage is the last state reached by Parse.
type Stage string

const (
	StageUnvalidated   Stage = "unvalidated"
	StageValidated     Stage = "validated"
	StageDateExtracted Stage = "date_extracted"
	StageSegmented     Stage = "segmented"
	StageParsed        Stage = "parsed"
	StageSuccess       Stage = "success"
	StageFailed        Stage = "failed"
)

// RawMessage is the record handed over by the ingestion side.
type RawMessage struct {
	MessageID string    `json:"message_id"`
	Content   string    `json:"content"`
	ChannelID string    `json:"channel_id"`
	AuthorID  string    `json:"author_id"`
	Timestamp time.Time `json:"timestamp"`
}

// TradeSetup is one parsed setup of a ticker section.
type TradeSetup struct {
	ID           string    `json:"id"`
	Ticker       string    `json:"ticker"`
	TradingDay   time.Time `json:"trading_day"`
	Index        int       `json:"index"`
	TriggerLevel float64   `json:"trigger_level"`
	TargetPrices []float64 `json:"target_prices"`
	Direction    Direction `json:"direction"`
	Label        *Label    `json:"label,omitempty"`
	Keywords     []string  `json:"keywords"`
	RawLine      string    `json:"raw_line"`
}

// SetupID builds the deterministic identifier of a setup.
func SetupID(day time.Time, ticker string, index int) string {
	return fmt.Sprintf("%s_%s_Setup_%d", day.Format(DayLayout), ticker, index)
}

// LabelKey returns the label name or Unlabeled.
func (s TradeSetup) LabelKey() string {
	if s.Label == nil {
		return Unlabeled
	}
	return string(*s.Label)
}

// DayLayout is the date format used for trading days everywhere.
const DayLayout = "2006-01-02"

// DayResult is the outcome of trading day extraction, including provenance.
type DayResult struct {
	Day    time.Time        `json:"day"`
	Method ExtractionMethod `json:"method"`
	// Reason is set when Method is fallback.
	Reason string `json:"reason,omitempty"`
}

// Result is the structured outcome of parsing one message.
type Result struct {
	Success           bool              `json:"success"`
	Stage             Stage             `json:"stage"`
	Reason            Rejection         `json:"reason,omitempty"`
	MessageID         string            `json:"message_id"`
	TradingDay        DayResult         `json:"trading_day"`
	Setups            []TradeSetup      `json:"setups"`
	BiasNotes         map[string]string `json:"bias_notes,omitempty"`
	DuplicatesSkipped int               `json:"duplicates_skipped"`
	InvalidSetups     int               `json:"invalid_setups"`
	Issues            []Issue           `json:"issues,omitempty"`
}

// Tickers returns the distinct tickers of the accepted setups, in order.
func (r Result) Tickers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range r.Setups {
		if !seen[s.Ticker] {
			seen[s.Ticker] = true
			out = append(out, s.Ticker)
		}
	}
	return out
}

// Section is the text block of one ticker.
type Section struct {
	Ticker   string
	Lines    []string
	BiasNote string
}
