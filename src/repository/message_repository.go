package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"setupingest/src/database"
	"setupingest/src/model"
)

// MessageRepository stores raw messages and serves them as the ingest queue.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{db: database.MainDB}
}

func NewMessageRepositoryWithDB(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Save inserts the message unless its message id is already stored.
// It reports whether a new row was written.
func (r *MessageRepository) Save(ctx context.Context, msg *model.DiscordMessage) (bool, error) {
	logger.WithFields(map[string]interface{}{
		"repo":       "MessageRepository",
		"op":         "Save",
		"message_id": msg.MessageID,
		"channel_id": msg.ChannelID,
	}).Debug("Storing raw message")

	if msg.ParseStatus == "" {
		msg.ParseStatus = model.ParseStatusPending
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).
		Create(msg)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "MessageRepository",
			"op":   "Save",
		}).WithError(res.Error).Error("Failed to store raw message")

		return false, storageErr("save message", res.Error)
	}

	return res.RowsAffected > 0, nil
}

// FindByMessageID returns (nil, nil) when the message is unknown.
func (r *MessageRepository) FindByMessageID(ctx context.Context, messageID string) (*model.DiscordMessage, error) {
	var msg model.DiscordMessage
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":       "MessageRepository",
			"op":         "FindByMessageID",
			"message_id": messageID,
		}).WithError(err).Error("Failed to fetch message")

		return nil, storageErr("find message", err)
	}
	return &msg, nil
}

// FindPending returns the oldest pending messages first.
func (r *MessageRepository) FindPending(ctx context.Context, limit int) ([]model.DiscordMessage, error) {
	logger.WithFields(map[string]interface{}{
		"repo":  "MessageRepository",
		"op":    "FindPending",
		"limit": limit,
	}).Debug("Fetching pending messages")

	var msgs []model.DiscordMessage
	err := r.db.WithContext(ctx).
		Where("parse_status = ?", model.ParseStatusPending).
		Order("timestamp ASC, id ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "MessageRepository",
			"op":   "FindPending",
		}).WithError(err).Error("Failed to fetch pending messages")

		return nil, storageErr("find pending messages", err)
	}
	return msgs, nil
}

// IncrementAttempts counts a failed processing attempt of a pending message.
func (r *MessageRepository) IncrementAttempts(ctx context.Context, messageID string) error {
	err := r.db.WithContext(ctx).
		Model(&model.DiscordMessage{}).
		Where("message_id = ?", messageID).
		UpdateColumn("attempts", gorm.Expr("attempts + ?", 1)).Error
	return storageErr("increment attempts", err)
}

// MarkStatus sets the parse status of a stored message without recording an outcome.
func (r *MessageRepository) MarkStatus(ctx context.Context, messageID, status string) error {
	logger.WithFields(map[string]interface{}{
		"repo":       "MessageRepository",
		"op":         "MarkStatus",
		"message_id": messageID,
		"status":     status,
	}).Debug("Updating message status")

	err := r.db.WithContext(ctx).
		Model(&model.DiscordMessage{}).
		Where("message_id = ?", messageID).
		Update("parse_status", status).Error
	return storageErr("mark status", err)
}

// LatestInChannel returns the newest stored message id of a channel, used to resume history
// backfill. Empty when the channel has no messages.
func (r *MessageRepository) LatestInChannel(ctx context.Context, channelID string) (string, error) {
	var msg model.DiscordMessage
	err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("timestamp DESC").
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", storageErr("latest in channel", err)
	}
	return msg.MessageID, nil
}
