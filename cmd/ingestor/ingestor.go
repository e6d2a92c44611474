package ingestor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"setupingest/src/database"
	"setupingest/src/ingest"
)

type Ingestor struct{}

// Start drains pending messages until SIGINT or SIGTERM.
func (t *Ingestor) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to main database")
		return err
	}

	components, err := ingest.Build(database.MainDB)
	if err != nil {
		logrus.WithError(err).Error("Failed to build ingest pipeline")
		return err
	}
	defer components.Close()

	worker := ingest.NewWorker(components.Messages, components.Pipeline, components.Config)
	if err := worker.Run(ctx); err != nil {
		logrus.WithError(err).Error("Ingest loop failed")
		return err
	}

	return nil
}
