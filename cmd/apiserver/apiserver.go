package apiserver

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"setupingest/src/audit"
	"setupingest/src/auth"
	"setupingest/src/database"
	"setupingest/src/ingest"
	"setupingest/src/server"
)

// APIServer serves the HTTP API, optionally with the ingest worker and the audit schedule
// in the same process.
type APIServer struct {
	Worker bool
	Cron   bool
}

func (a *APIServer) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

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

	auditService := audit.NewService(components.Setups, components.ParseLogs, components.Pipeline.Location())
	router := server.NewRouter(server.Routes{
		Components: components,
		Audit:      auditService,
		Auth:       auth.GetConfig(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartServer(gctx, server.GetConfig(), router)
	})

	if a.Worker {
		worker := ingest.NewWorker(components.Messages, components.Pipeline, components.Config)
		g.Go(func() error {
			return worker.Run(gctx)
		})
	}

	if auditConfig := audit.GetConfig(); a.Cron && auditConfig.Cron != "" {
		scheduler, err := audit.NewScheduler(gctx, auditService, auditConfig.Cron, auditConfig.Window)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	return g.Wait()
}
