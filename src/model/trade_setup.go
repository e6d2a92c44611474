package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Level types of a ParsedLevel.
const (
	LevelTypeTrigger = "trigger"
	LevelTypeTarget  = "target"
)

// TradeSetup is the stored form of a parsed setup. Rows are deactivated, never deleted,
// when a newer message replaces the trading day.
type TradeSetup struct {
	ID uint `gorm:"primaryKey" json:"id"`

	SetupID   string `gorm:"size:64;not null;uniqueIndex:idx_trade_setups_message_setup" json:"setup_id"` // 2025-06-10_NVDA_Setup_1
	MessageID string `gorm:"size:64;not null;uniqueIndex:idx_trade_setups_message_setup;index" json:"message_id"`

	Ticker           string `gorm:"size:10;index;not null" json:"ticker"`
	TradingDay       string `gorm:"size:10;index;not null" json:"trading_day"` // YYYY-MM-DD
	ExtractionMethod string `gorm:"size:20;not null" json:"extraction_method"`
	Index            int    `gorm:"column:setup_index;not null" json:"index"`

	TriggerLevel decimal.Decimal              `gorm:"type:numeric(12,2);not null" json:"trigger_level"`
	TargetPrices datatypes.JSONSlice[float64] `json:"target_prices"`
	Direction    string                       `gorm:"size:10;not null" json:"direction"`
	Label        *string                      `gorm:"size:40" json:"label,omitempty"`
	Keywords     datatypes.JSONSlice[string]  `json:"keywords"`
	RawLine      string                       `gorm:"type:text" json:"raw_line"`
	BiasNote     string                       `gorm:"type:text" json:"bias_note,omitempty"`

	Confidence    float64 `json:"confidence"`
	ParserVersion string  `gorm:"size:20" json:"parser_version"`

	Active        bool       `gorm:"not null;default:true;index" json:"active"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	SupersededBy  *string    `gorm:"size:64" json:"superseded_by,omitempty"`

	Levels []ParsedLevel `gorm:"foreignKey:SetupRowID;constraint:OnDelete:CASCADE" json:"levels,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TradeSetup) TableName() string {
	return "trade_setups"
}

// ParsedLevel is one price of a setup: the trigger (sequence 0) or a target (1..N).
type ParsedLevel struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	SetupRowID    uint            `gorm:"index;not null" json:"setup_row_id"`
	LevelType     string          `gorm:"size:10;not null" json:"level_type"`
	Direction     string          `gorm:"size:10;not null" json:"direction"`
	Price         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	SequenceOrder int             `gorm:"not null" json:"sequence_order"`
	Active        bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (ParsedLevel) TableName() string {
	return "parsed_levels"
}
