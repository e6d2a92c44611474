package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"setupingest/src/database"
	"setupingest/src/model"
)

// ExceptionRepository persists failures outside the parse taxonomy.
type ExceptionRepository struct {
	db *gorm.DB
}

func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{db: database.MainDB}
}

func NewExceptionRepositoryWithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

func (r *ExceptionRepository) Create(ctx context.Context, exc *model.Exception) error {
	logger.WithFields(map[string]interface{}{
		"component":  exc.Component,
		"operation":  exc.Operation,
		"message_id": exc.MessageID,
		"level":      exc.Level,
	}).Error("Persisting ingest exception")

	return storageErr("create exception", r.db.WithContext(ctx).Create(exc).Error)
}

// FindRecent returns the newest exceptions first.
func (r *ExceptionRepository) FindRecent(ctx context.Context, limit int) ([]model.Exception, error) {
	var out []model.Exception
	err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, storageErr("find exceptions", err)
	}
	return out, nil
}
