package model

import (
	"time"

	"gorm.io/datatypes"
)

// Exception is a failure outside the parse taxonomy (panics, event delivery errors) kept
// for operator review.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Component string `gorm:"size:100;index" json:"component"` // e.g. "ingest"
	Operation string `gorm:"size:100" json:"operation"`       // e.g. "Publish"
	MessageID string `gorm:"size:64;index" json:"message_id,omitempty"`

	Message string `gorm:"type:text" json:"message"`
	Level   string `gorm:"size:20;index" json:"level"` // warn | error | panic

	Context datatypes.JSON `json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Exception) TableName() string {
	return "ingest_exceptions"
}
