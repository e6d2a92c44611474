package mapper

import (
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"setupingest/src/model"
	"setupingest/src/parser"
)

// Confidence scores stored with each setup.
const (
	ConfidenceClassified   = 0.95
	ConfidenceUnclassified = 0.60
)

// SetupMeta is the message level context of a setup.
type SetupMeta struct {
	MessageID        string
	ExtractionMethod parser.ExtractionMethod
	BiasNote         string
}

// ToSetupRecord converts a parsed setup into its database row. Levels are not attached.
func ToSetupRecord(setup parser.TradeSetup, meta SetupMeta) (model.TradeSetup, error) {
	trigger, targets, err := checkedPrices(setup)
	if err != nil {
		return model.TradeSetup{}, err
	}

	record := model.TradeSetup{
		SetupID:          setup.ID,
		MessageID:        meta.MessageID,
		Ticker:           setup.Ticker,
		TradingDay:       setup.TradingDay.Format(parser.DayLayout),
		ExtractionMethod: string(meta.ExtractionMethod),
		Index:            setup.Index,
		TriggerLevel:     trigger,
		TargetPrices:     datatypes.JSONSlice[float64](roundedFloats(targets)),
		Direction:        string(setup.Direction),
		Keywords:         datatypes.JSONSlice[string](nonNil(setup.Keywords)),
		RawLine:          setup.RawLine,
		BiasNote:         meta.BiasNote,
		Confidence:       ConfidenceUnclassified,
		ParserVersion:    parser.Version,
		Active:           true,
	}
	if setup.Label != nil {
		label := string(*setup.Label)
		record.Label = &label
		record.Confidence = ConfidenceClassified
	}

	logger.WithFields(map[string]interface{}{
		"mapper":   "ToSetupRecord",
		"setup_id": setup.ID,
		"targets":  len(targets),
	}).Debug("Mapped setup to record")

	return record, nil
}

// ToLevels returns the trigger level (sequence 0) followed by the targets in source order.
func ToLevels(setup parser.TradeSetup) ([]model.ParsedLevel, error) {
	trigger, targets, err := checkedPrices(setup)
	if err != nil {
		return nil, err
	}

	levels := make([]model.ParsedLevel, 0, len(targets)+1)
	levels = append(levels, model.ParsedLevel{
		LevelType:     model.LevelTypeTrigger,
		Direction:     string(setup.Direction),
		Price:         trigger,
		SequenceOrder: 0,
		Active:        true,
	})
	for i, target := range targets {
		levels = append(levels, model.ParsedLevel{
			LevelType:     model.LevelTypeTarget,
			Direction:     string(setup.Direction),
			Price:         target,
			SequenceOrder: i + 1,
			Active:        true,
		})
	}
	return levels, nil
}

// checkedPrices converts the prices to cents precision and rejects a target that repeats the
// trigger or sits on the wrong side of it.
func checkedPrices(setup parser.TradeSetup) (decimal.Decimal, []decimal.Decimal, error) {
	trigger := decimal.NewFromFloat(setup.TriggerLevel).Round(2)
	targets := make([]decimal.Decimal, 0, len(setup.TargetPrices))

	for _, p := range setup.TargetPrices {
		target := decimal.NewFromFloat(p).Round(2)
		if target.Equal(trigger) {
			return trigger, nil, violation(setup, p, "target equals trigger")
		}
		if setup.Direction == parser.DirectionShort && target.GreaterThan(trigger) {
			return trigger, nil, violation(setup, p, "short target above trigger")
		}
		if setup.Direction != parser.DirectionShort && target.LessThan(trigger) {
			return trigger, nil, violation(setup, p, "long target below trigger")
		}
		targets = append(targets, target)
	}
	return trigger, targets, nil
}

func violation(setup parser.TradeSetup, target float64, reason string) error {
	logger.WithFields(map[string]interface{}{
		"mapper":   "checkedPrices",
		"setup_id": setup.ID,
		"trigger":  setup.TriggerLevel,
		"target":   target,
	}).Error(reason)

	return &parser.InvariantViolationError{
		Ticker:  setup.Ticker,
		Trigger: setup.TriggerLevel,
		Target:  target,
		Reason:  reason,
	}
}

func roundedFloats(values []decimal.Decimal) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v.InexactFloat64()
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
