package events

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogPublisher writes events to the log. It is the sink used when nothing else is configured.
type LogPublisher struct {
	Log *logrus.Entry
}

func (p LogPublisher) Publish(_ context.Context, ev Event) error {
	log := p.Log
	if log == nil {
		log = logrus.WithField("component", "events")
	}
	log.WithFields(map[string]interface{}{
		"event":          ev.Event,
		"message_id":     ev.MessageID,
		"tickers":        ev.Tickers,
		"setup_count":    ev.SetupCount,
		"trading_day":    ev.TradingDay,
		"decision":       ev.Decision,
		"reason":         ev.Reason,
		"correlation_id": ev.CorrelationID,
	}).Info("event")
	return nil
}
