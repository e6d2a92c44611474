package model

import "time"

// ParseStatus tracks a raw message through the ingest queue.
const (
	ParseStatusPending  = "pending"
	ParseStatusParsed   = "parsed"
	ParseStatusRejected = "rejected"
	ParseStatusSkipped  = "skipped"
	ParseStatusFailed   = "failed"
)

// DiscordMessage is a raw message as received from Discord or the HTTP ingest endpoint.
type DiscordMessage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MessageID   string    `gorm:"size:64;uniqueIndex;not null" json:"message_id"`
	ChannelID   string    `gorm:"size:64;index" json:"channel_id"`
	AuthorID    string    `gorm:"size:64" json:"author_id"`
	Content     string    `gorm:"type:text" json:"content"`
	Timestamp   time.Time `gorm:"index" json:"timestamp"`
	ParseStatus string    `gorm:"size:20;index;not null;default:pending" json:"parse_status"`
	Attempts    int       `gorm:"not null;default:0" json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (DiscordMessage) TableName() string {
	return "discord_messages"
}
