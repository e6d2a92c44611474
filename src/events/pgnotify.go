package events

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// PgNotifyPublisher sends events with pg_notify on the event's channel.
type PgNotifyPublisher struct {
	db *gorm.DB
}

func NewPgNotifyPublisher(db *gorm.DB) *PgNotifyPublisher {
	return &PgNotifyPublisher{db: db}
}

func (p *PgNotifyPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	if err := p.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", ev.Event, string(payload)).Error; err != nil {
		return fmt.Errorf("pg_notify %s: %w", ev.Event, err)
	}
	return nil
}
