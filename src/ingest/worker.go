package ingest

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"setupingest/src/model"
	"setupingest/src/parser"
)

// Queue is the pending message store the worker drains.
type Queue interface {
	FindPending(ctx context.Context, limit int) ([]model.DiscordMessage, error)
	IncrementAttempts(ctx context.Context, messageID string) error
	MarkStatus(ctx context.Context, messageID, status string) error
}

// Processor handles one message.
type Processor interface {
	Process(ctx context.Context, msg parser.RawMessage) (Outcome, error)
}

// Worker polls pending messages and runs them through a Processor.
type Worker struct {
	queue       Queue
	processor   Processor
	period      time.Duration
	batchSize   int
	workers     int
	maxAttempts int
	log         *logrus.Entry
}

func NewWorker(queue Queue, processor Processor, config Config) *Worker {
	w := &Worker{
		queue:       queue,
		processor:   processor,
		period:      config.LoopPeriod,
		batchSize:   config.BatchSize,
		workers:     config.Workers,
		maxAttempts: config.MaxAttempts,
		log:         logrus.WithField("component", "ingest_worker"),
	}
	if w.period <= 0 {
		w.period = 5 * time.Second
	}
	if w.batchSize <= 0 {
		w.batchSize = 50
	}
	if w.workers <= 0 {
		w.workers = 1
	}
	return w
}

// Run polls until ctx is cancelled. Storage errors of one tick are logged and retried on
// the next one.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	w.log.WithFields(logrus.Fields{
		"period":  w.period,
		"batch":   w.batchSize,
		"workers": w.workers,
	}).Info("ingest loop started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info("ingest loop stopped")
			return nil

		case <-ticker.C:
			n, err := w.RunOnce(ctx)
			if err != nil {
				w.log.WithError(err).Error("ingest tick failed")
				continue
			}
			if n > 0 {
				w.log.WithField("messages", n).Debug("ingest tick done")
			}
		}
	}
}

// RunOnce processes one batch of pending messages and returns how many were taken.
// Messages of the same channel run in arrival order; channels run concurrently.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	pending, err := w.queue.FindPending(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(w.workers)

	for _, batch := range byChannel(pending) {
		batch := batch
		g.Go(func() error {
			for _, msg := range batch {
				if ctx.Err() != nil {
					return nil
				}
				if _, err := w.processor.Process(ctx, RawFromModel(msg)); err != nil {
					w.retryLater(ctx, msg, err)
				}
			}
			return nil
		})
	}

	_ = g.Wait()
	return len(pending), nil
}

func (w *Worker) retryLater(ctx context.Context, msg model.DiscordMessage, cause error) {
	log := w.log.WithFields(logrus.Fields{
		"message_id": msg.MessageID,
		"attempts":   msg.Attempts + 1,
	}).WithError(cause)

	if err := w.queue.IncrementAttempts(ctx, msg.MessageID); err != nil {
		log.WithField("increment_error", err.Error()).Error("failed to count attempt")
		return
	}

	if w.maxAttempts > 0 && msg.Attempts+1 >= w.maxAttempts {
		if err := w.queue.MarkStatus(ctx, msg.MessageID, model.ParseStatusFailed); err != nil {
			log.WithField("mark_error", err.Error()).Error("failed to give up on message")
			return
		}
		log.Error("message failed too many times, giving up")
		return
	}
	log.Warn("message left pending for retry")
}

// byChannel keeps the order of msgs inside each channel and the order channels first appear.
func byChannel(msgs []model.DiscordMessage) [][]model.DiscordMessage {
	index := make(map[string]int)
	var out [][]model.DiscordMessage
	for _, msg := range msgs {
		i, ok := index[msg.ChannelID]
		if !ok {
			i = len(out)
			index[msg.ChannelID] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], msg)
	}
	return out
}
