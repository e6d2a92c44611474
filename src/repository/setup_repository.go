package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"setupingest/src/database"
	"setupingest/src/dedupe"
	"setupingest/src/model"
)

// SetupRepository handles trade setups, their levels and the per-message parse outcome.
type SetupRepository struct {
	db *gorm.DB
}

func NewSetupRepository() *SetupRepository {
	return &SetupRepository{db: database.MainDB}
}

func NewSetupRepositoryWithDB(db *gorm.DB) *SetupRepository {
	return &SetupRepository{db: db}
}

// ParsedMessage is everything one message outcome writes.
type ParsedMessage struct {
	Log *model.MessageParseLog
	// Setups carry their Levels.
	Setups []model.TradeSetup
	// Replace deactivates the active setups of Log.TradingDay first.
	Replace bool
	// MessageStatus is written to discord_messages.parse_status.
	MessageStatus string
}

// SaveParsedMessage writes the outcome in one transaction: either all of it or nothing.
func (r *SetupRepository) SaveParsedMessage(ctx context.Context, pm ParsedMessage) error {
	fields := logger.WithFields(map[string]interface{}{
		"repo":        "SetupRepository",
		"op":          "SaveParsedMessage",
		"message_id":  pm.Log.MessageID,
		"trading_day": pm.Log.TradingDay,
		"setups":      len(pm.Setups),
		"replace":     pm.Replace,
	})
	fields.Debug("Saving parsed message")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if pm.Replace {
			if err := deactivateDay(tx, pm.Log.TradingDay, pm.Log.MessageID); err != nil {
				return err
			}
		}

		if err := tx.Create(pm.Log).Error; err != nil {
			return err
		}

		if len(pm.Setups) > 0 {
			if err := tx.Create(&pm.Setups).Error; err != nil {
				return err
			}
		}

		if pm.MessageStatus != "" {
			if err := tx.Model(&model.DiscordMessage{}).
				Where("message_id = ?", pm.Log.MessageID).
				Update("parse_status", pm.MessageStatus).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		fields.WithError(err).Error("Failed to save parsed message")
		return storageErr("save parsed message", err)
	}

	fields.Info("Parsed message saved")
	return nil
}

func deactivateDay(tx *gorm.DB, tradingDay, supersededBy string) error {
	now := time.Now().UTC()

	activeRows := tx.Model(&model.TradeSetup{}).
		Select("id").
		Where("trading_day = ? AND active = ?", tradingDay, true)

	if err := tx.Model(&model.ParsedLevel{}).
		Where("setup_row_id IN (?)", activeRows).
		Update("active", false).Error; err != nil {
		return err
	}

	return tx.Model(&model.TradeSetup{}).
		Where("trading_day = ? AND active = ?", tradingDay, true).
		Updates(map[string]interface{}{
			"active":         false,
			"deactivated_at": now,
			"superseded_by":  supersededBy,
		}).Error
}

// FindDayContributor returns the most recent message that still has active setups for the
// trading day, or (nil, nil).
func (r *SetupRepository) FindDayContributor(ctx context.Context, tradingDay string) (*dedupe.DayContributor, error) {
	logger.WithFields(map[string]interface{}{
		"repo":        "SetupRepository",
		"op":          "FindDayContributor",
		"trading_day": tradingDay,
	}).Debug("Looking up day contributor")

	activeMessages := r.db.Model(&model.TradeSetup{}).
		Select("message_id").
		Where("trading_day = ? AND active = ?", tradingDay, true)

	var log model.MessageParseLog
	err := r.db.WithContext(ctx).
		Where("trading_day = ? AND message_id IN (?)", tradingDay, activeMessages).
		Order("received_at DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":        "SetupRepository",
			"op":          "FindDayContributor",
			"trading_day": tradingDay,
		}).WithError(err).Error("Failed to look up day contributor")

		return nil, storageErr("find day contributor", err)
	}

	return &dedupe.DayContributor{
		MessageID:     log.MessageID,
		ReceivedAt:    log.ReceivedAt,
		ContentLength: log.ContentLength,
	}, nil
}

// DuplicateDay is a trading day fed by more than one message.
type DuplicateDay struct {
	TradingDay string `json:"trading_day"`
	Messages   int64  `json:"messages"`
}

// DuplicateTradingDays lists days in [from, to] with more than one distinct contributing
// message, replaced ones included.
func (r *SetupRepository) DuplicateTradingDays(ctx context.Context, from, to string) ([]DuplicateDay, error) {
	var days []DuplicateDay
	err := r.db.WithContext(ctx).
		Model(&model.TradeSetup{}).
		Select("trading_day, COUNT(DISTINCT message_id) AS messages").
		Where("trading_day >= ? AND trading_day <= ?", from, to).
		Group("trading_day").
		Having("COUNT(DISTINCT message_id) > ?", 1).
		Order("trading_day").
		Scan(&days).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SetupRepository",
			"op":   "DuplicateTradingDays",
		}).WithError(err).Error("Failed to query duplicate trading days")

		return nil, storageErr("duplicate trading days", err)
	}
	return days, nil
}

// DayCount is the number of active setups of a trading day.
type DayCount struct {
	TradingDay string `json:"trading_day"`
	Setups     int64  `json:"setups"`
}

// ActiveDayCounts returns the active setup count per trading day in [from, to].
func (r *SetupRepository) ActiveDayCounts(ctx context.Context, from, to string) ([]DayCount, error) {
	var days []DayCount
	err := r.db.WithContext(ctx).
		Model(&model.TradeSetup{}).
		Select("trading_day, COUNT(*) AS setups").
		Where("active = ? AND trading_day >= ? AND trading_day <= ?", true, from, to).
		Group("trading_day").
		Order("trading_day").
		Scan(&days).Error
	if err != nil {
		return nil, storageErr("active day counts", err)
	}
	return days, nil
}

// SetupSearchOptions filters Search. Empty fields are ignored.
type SetupSearchOptions struct {
	TradingDay string
	Ticker     string
	Active     *bool
	Limit      int
	Offset     int
}

// Search returns setups with their levels, ordered by day, ticker and index.
func (r *SetupRepository) Search(ctx context.Context, opts SetupSearchOptions) ([]model.TradeSetup, error) {
	logger.WithFields(map[string]interface{}{
		"repo":        "SetupRepository",
		"op":          "Search",
		"trading_day": opts.TradingDay,
		"ticker":      opts.Ticker,
	}).Debug("Searching setups")

	q := r.db.WithContext(ctx).Model(&model.TradeSetup{})
	if opts.TradingDay != "" {
		q = q.Where("trading_day = ?", opts.TradingDay)
	}
	if opts.Ticker != "" {
		q = q.Where("ticker = ?", opts.Ticker)
	}
	if opts.Active != nil {
		q = q.Where("active = ?", *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var setups []model.TradeSetup
	err := q.Preload("Levels", func(db *gorm.DB) *gorm.DB {
		return db.Order("sequence_order ASC")
	}).
		Order("trading_day DESC, ticker ASC, message_id ASC, setup_index ASC").
		Find(&setups).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SetupRepository",
			"op":   "Search",
		}).WithError(err).Error("Failed to search setups")

		return nil, storageErr("search setups", err)
	}
	return setups, nil
}
