package events

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Listener consumes events sent by PgNotifyPublisher using LISTEN.
type Listener struct {
	dsn      string
	channels []string
	handle   func(Event)
	log      *logrus.Entry
}

func NewListener(dsn string, channels []string, handle func(Event)) *Listener {
	if len(channels) == 0 {
		channels = Channels
	}
	return &Listener{
		dsn:      dsn,
		channels: channels,
		handle:   handle,
		log:      logrus.WithField("component", "events_listener"),
	}
}

// Run blocks until ctx is cancelled. pq reconnects on its own; a nil notification marks a
// reconnect after which some events may have been missed.
func (l *Listener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			l.log.WithError(err).WithField("event_type", ev).Warn("listener connection event")
		}
	})
	defer listener.Close()

	for _, ch := range l.channels {
		if err := listener.Listen(ch); err != nil {
			return fmt.Errorf("listen %s: %w", ch, err)
		}
	}
	l.log.WithField("channels", l.channels).Info("listening for events")

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			if n == nil {
				l.log.Warn("listener reconnected, events may have been missed")
				continue
			}
			ev, err := Decode([]byte(n.Extra))
			if err != nil {
				l.log.WithError(err).WithField("channel", n.Channel).Warn("undecodable event payload")
				continue
			}
			l.handle(ev)
		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					l.log.WithError(err).Warn("listener ping failed")
				}
			}()
		}
	}
}
