package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Channels.
const (
	ChannelSetupParsed   = "setup.parsed"
	ChannelSetupReplaced = "setup.replaced"
	ChannelSetupSkipped  = "setup.skipped"
	ChannelParsingFailed = "parsing.failed"
)

// Channels lists every channel, in the order a listener subscribes to them.
var Channels = []string{ChannelSetupParsed, ChannelSetupReplaced, ChannelSetupSkipped, ChannelParsingFailed}

// Event is the payload sent on every channel.
type Event struct {
	Event            string    `json:"event"`
	MessageID        string    `json:"message_id"`
	Tickers          []string  `json:"tickers"`
	SetupCount       int       `json:"setup_count"`
	TradingDay       string    `json:"trading_day,omitempty"`
	ExtractionMethod string    `json:"extraction_method,omitempty"`
	Decision         string    `json:"decision,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	CorrelationID    string    `json:"correlation_id"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// NewCorrelationID returns a fresh id to trace one message through logs and events.
func NewCorrelationID() string {
	return uuid.NewString()
}

// Publisher delivers an event. Delivery guarantees are the transport's.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

func encode(ev Event) ([]byte, error) {
	if ev.Tickers == nil {
		ev.Tickers = []string{}
	}
	return json.Marshal(ev)
}

// Decode parses a payload received from a transport.
func Decode(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, err
	}
	if ev.Event == "" {
		return Event{}, errors.New("event payload without event name")
	}
	return ev, nil
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
