package eventlisten

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"setupingest/src/database"
	"setupingest/src/events"
)

type EventListen struct {
	// Forward, when set, receives every event read from Postgres.
	Forward events.Publisher
}

// Start prints events published with the pgnotify sink until SIGINT or SIGTERM.
func (e *EventListen) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	dsn := database.GetConfig().DatabaseURLMain
	forward := e.Forward
	if forward == nil {
		forward = events.LogPublisher{Log: logrus.WithField("cmd", "listen")}
	}

	listener := events.NewListener(dsn, events.Channels, func(ev events.Event) {
		if err := forward.Publish(ctx, ev); err != nil {
			logrus.WithError(err).WithField("event", ev.Event).Error("failed to forward event")
		}
	})

	logrus.WithField("channels", events.Channels).Info("Listening for setup events")
	return listener.Run(ctx)
}
