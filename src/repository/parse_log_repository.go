package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"setupingest/src/database"
	"setupingest/src/model"
)

// ParseLogRepository reads message outcomes for the audit surface.
type ParseLogRepository struct {
	db *gorm.DB
}

func NewParseLogRepository() *ParseLogRepository {
	return &ParseLogRepository{db: database.MainDB}
}

func NewParseLogRepositoryWithDB(db *gorm.DB) *ParseLogRepository {
	return &ParseLogRepository{db: db}
}

// FindByMessageID returns (nil, nil) when the message has no outcome yet.
func (r *ParseLogRepository) FindByMessageID(ctx context.Context, messageID string) (*model.MessageParseLog, error) {
	var log model.MessageParseLog
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr("find parse log", err)
	}
	return &log, nil
}

// StatusCount is the number of outcomes with one status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// CountByStatus groups outcomes of messages received in [from, to).
func (r *ParseLogRepository) CountByStatus(ctx context.Context, from, to time.Time) ([]StatusCount, error) {
	logger.WithFields(map[string]interface{}{
		"repo": "ParseLogRepository",
		"op":   "CountByStatus",
		"from": from,
		"to":   to,
	}).Debug("Counting parse outcomes")

	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&model.MessageParseLog{}).
		Select("status, COUNT(*) AS count").
		Where("received_at >= ? AND received_at < ?", from, to).
		Group("status").
		Order("status").
		Scan(&counts).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ParseLogRepository",
			"op":   "CountByStatus",
		}).WithError(err).Error("Failed to count parse outcomes")

		return nil, storageErr("count parse outcomes", err)
	}
	return counts, nil
}

// FindUnparsed returns rejected and failed outcomes received in [from, to), newest first.
func (r *ParseLogRepository) FindUnparsed(ctx context.Context, from, to time.Time, limit int) ([]model.MessageParseLog, error) {
	q := r.db.WithContext(ctx).
		Where("status IN ?", []string{model.ParseLogStatusRejected, model.ParseLogStatusFailed}).
		Where("received_at >= ? AND received_at < ?", from, to).
		Order("received_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var logs []model.MessageParseLog
	if err := q.Find(&logs).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ParseLogRepository",
			"op":   "FindUnparsed",
		}).WithError(err).Error("Failed to fetch unparsed messages")

		return nil, storageErr("find unparsed", err)
	}
	return logs, nil
}
