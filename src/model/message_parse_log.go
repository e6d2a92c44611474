package model

import "time"

// Parse log statuses.
const (
	ParseLogStatusSuccess  = "success"
	ParseLogStatusRejected = "rejected"
	ParseLogStatusFailed   = "failed"
	ParseLogStatusSkipped  = "skipped"
)

// MessageParseLog is the single outcome row of a message. The unique message id makes a
// redelivered message fail loudly instead of producing a second row.
type MessageParseLog struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	MessageID string `gorm:"size:64;uniqueIndex;not null" json:"message_id"`

	Status   string `gorm:"size:20;index;not null" json:"status"` // see ParseLogStatus* constants
	Reason   string `gorm:"size:64" json:"reason,omitempty"`
	Decision string `gorm:"size:20" json:"decision,omitempty"` // proceed | skip | replace

	TradingDay       string `gorm:"size:10;index" json:"trading_day,omitempty"`
	ExtractionMethod string `gorm:"size:20" json:"extraction_method,omitempty"`
	FallbackReason   string `gorm:"size:32" json:"fallback_reason,omitempty"`

	SetupCount        int `json:"setup_count"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
	InvalidSetups     int `json:"invalid_setups"`
	ContentLength     int `json:"content_length"`

	ReceivedAt    time.Time `gorm:"index" json:"received_at"`
	CorrelationID string    `gorm:"size:36" json:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func (MessageParseLog) TableName() string {
	return "message_parse_logs"
}
