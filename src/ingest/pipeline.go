package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"setupingest/src/cache"
	"setupingest/src/dedupe"
	"setupingest/src/events"
	"setupingest/src/mapper"
	"setupingest/src/model"
	"setupingest/src/parser"
	"setupingest/src/repository"
)

// ReasonInvariantViolation is recorded when a parsed setup fails conversion to storage.
const ReasonInvariantViolation = "invariant_violation"

// SetupWriter persists one message outcome atomically.
type SetupWriter interface {
	SaveParsedMessage(ctx context.Context, pm repository.ParsedMessage) error
}

// ExceptionRecorder keeps failures outside the parse taxonomy.
type ExceptionRecorder interface {
	Create(ctx context.Context, exc *model.Exception) error
}

// Status summarizes what Process did with a message.
type Status string

const (
	StatusParsed           Status = "parsed"
	StatusReplaced         Status = "replaced"
	StatusSkipped          Status = "skipped"
	StatusRejected         Status = "rejected"
	StatusFailed           Status = "failed"
	StatusAlreadyProcessed Status = "already_processed"
)

// Outcome is returned for every processed message.
type Outcome struct {
	MessageID     string          `json:"message_id"`
	CorrelationID string          `json:"correlation_id"`
	Status        Status          `json:"status"`
	Decision      dedupe.Decision `json:"decision,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Result        parser.Result   `json:"result"`
}

// Deps wires a Pipeline. Parser, Resolver and Setups are required.
type Deps struct {
	Parser     *parser.Parser
	Resolver   *dedupe.Resolver
	Setups     SetupWriter
	Publisher  events.Publisher
	Confirmed  *cache.ConfirmedSet
	Exceptions ExceptionRecorder
	Location   *time.Location
	Logger     *logrus.Entry
}

// Pipeline takes a raw message through parsing, the duplicate policy, storage and events.
type Pipeline struct {
	parser     *parser.Parser
	resolver   *dedupe.Resolver
	setups     SetupWriter
	publisher  events.Publisher
	confirmed  *cache.ConfirmedSet
	exceptions ExceptionRecorder
	location   *time.Location
	log        *logrus.Entry
	now        func() time.Time
}

func NewPipeline(deps Deps) *Pipeline {
	p := &Pipeline{
		parser:     deps.Parser,
		resolver:   deps.Resolver,
		setups:     deps.Setups,
		publisher:  deps.Publisher,
		confirmed:  deps.Confirmed,
		exceptions: deps.Exceptions,
		location:   deps.Location,
		log:        deps.Logger,
		now:        time.Now,
	}
	if p.log == nil {
		p.log = logrus.WithField("component", "ingest")
	}
	if p.publisher == nil {
		p.publisher = events.LogPublisher{Log: p.log}
	}
	if p.location == nil {
		p.location = time.UTC
	}
	return p
}

// Location is the market time zone trading days are resolved in.
func (p *Pipeline) Location() *time.Location { return p.location }

// Process handles one message. A returned error is a storage failure: nothing was recorded
// and the message can be retried. Every other outcome, rejections included, returns nil.
func (p *Pipeline) Process(ctx context.Context, msg parser.RawMessage) (Outcome, error) {
	out := Outcome{MessageID: msg.MessageID, CorrelationID: events.NewCorrelationID()}
	log := p.log.WithFields(logrus.Fields{
		"message_id":     msg.MessageID,
		"correlation_id": out.CorrelationID,
	})

	if p.confirmed != nil {
		seen, err := p.confirmed.Seen(ctx, msg.MessageID)
		if err != nil {
			log.WithError(err).Warn("confirmed set unavailable, relying on storage")
		} else if seen {
			log.Debug("message already processed")
			out.Status = StatusAlreadyProcessed
			return out, nil
		}
	}

	msg.Timestamp = msg.Timestamp.In(p.location)
	out.Result = p.parser.Parse(msg)

	var err error
	if out.Result.Success {
		err = p.store(ctx, msg, &out, log)
	} else {
		err = p.storeFailure(ctx, msg, &out, string(out.Result.Reason))
	}

	if errors.Is(err, repository.ErrAlreadyRecorded) {
		log.Info("message outcome already recorded")
		out.Status = StatusAlreadyProcessed
		p.confirm(ctx, msg.MessageID, log)
		return out, nil
	}
	if err != nil {
		log.WithError(err).Error("failed to record message outcome")
		return out, err
	}

	p.confirm(ctx, msg.MessageID, log)
	p.publish(ctx, out, log)

	log.WithFields(logrus.Fields{
		"status":   out.Status,
		"decision": out.Decision,
		"setups":   len(out.Result.Setups),
	}).Info("message processed")
	return out, nil
}

func (p *Pipeline) store(ctx context.Context, msg parser.RawMessage, out *Outcome, log *logrus.Entry) error {
	records, err := toRecords(msg.MessageID, out.Result)
	if err != nil {
		log.WithError(err).Error("setup conversion failed")
		return p.storeFailure(ctx, msg, out, ReasonInvariantViolation)
	}

	day := out.Result.TradingDay.Day.Format(parser.DayLayout)
	candidate := dedupe.DayContributor{
		MessageID:     msg.MessageID,
		ReceivedAt:    msg.Timestamp.UTC(),
		ContentLength: contentLength(msg.Content),
	}

	resolved, err := p.resolver.Resolve(ctx, day, candidate, func(o dedupe.Outcome) error {
		pm := repository.ParsedMessage{Log: p.parseLog(msg, out)}
		pm.Log.Decision = string(o.Decision)

		if o.Decision == dedupe.DecisionSkip {
			pm.Log.Status = model.ParseLogStatusSkipped
			pm.Log.Reason = "duplicate_trading_day"
			pm.MessageStatus = model.ParseStatusSkipped
		} else {
			pm.Log.Status = model.ParseLogStatusSuccess
			pm.Log.SetupCount = len(records)
			pm.Setups = records
			pm.Replace = o.Decision == dedupe.DecisionReplace
			pm.MessageStatus = model.ParseStatusParsed
		}
		return p.setups.SaveParsedMessage(ctx, pm)
	})
	out.Decision = resolved.Decision
	if err != nil {
		return err
	}

	switch resolved.Decision {
	case dedupe.DecisionReplace:
		out.Status = StatusReplaced
		log.WithField("superseded", resolved.Existing.MessageID).Info("trading day replaced")
	case dedupe.DecisionSkip:
		out.Status = StatusSkipped
		out.Reason = "duplicate_trading_day"
		if resolved.Existing != nil {
			log.WithField("existing_message_id", resolved.Existing.MessageID).Info("trading day already covered, message skipped")
		}
	default:
		out.Status = StatusParsed
	}
	return nil
}

func (p *Pipeline) storeFailure(ctx context.Context, msg parser.RawMessage, out *Outcome, reason string) error {
	pm := repository.ParsedMessage{Log: p.parseLog(msg, out)}
	pm.Log.Reason = reason

	if out.Result.Reason == parser.RejectionNoSetups || reason == ReasonInvariantViolation {
		pm.Log.Status = model.ParseLogStatusFailed
		pm.MessageStatus = model.ParseStatusFailed
		out.Status = StatusFailed
	} else {
		pm.Log.Status = model.ParseLogStatusRejected
		pm.MessageStatus = model.ParseStatusRejected
		out.Status = StatusRejected
	}
	out.Reason = reason

	return p.setups.SaveParsedMessage(ctx, pm)
}

func (p *Pipeline) parseLog(msg parser.RawMessage, out *Outcome) *model.MessageParseLog {
	res := out.Result
	entry := &model.MessageParseLog{
		MessageID:         msg.MessageID,
		DuplicatesSkipped: res.DuplicatesSkipped,
		InvalidSetups:     res.InvalidSetups,
		ContentLength:     contentLength(msg.Content),
		ReceivedAt:        msg.Timestamp.UTC(),
		CorrelationID:     out.CorrelationID,
	}
	if !res.TradingDay.Day.IsZero() {
		entry.TradingDay = res.TradingDay.Day.Format(parser.DayLayout)
		entry.ExtractionMethod = string(res.TradingDay.Method)
		entry.FallbackReason = res.TradingDay.Reason
	}
	return entry
}

func (p *Pipeline) confirm(ctx context.Context, messageID string, log *logrus.Entry) {
	if p.confirmed == nil {
		return
	}
	if err := p.confirmed.Confirm(ctx, messageID); err != nil {
		log.WithError(err).Warn("failed to confirm message")
	}
}

func (p *Pipeline) publish(ctx context.Context, out Outcome, log *logrus.Entry) {
	ev := events.Event{
		MessageID:     out.MessageID,
		Tickers:       out.Result.Tickers(),
		Decision:      string(out.Decision),
		Reason:        out.Reason,
		CorrelationID: out.CorrelationID,
		OccurredAt:    p.now().UTC(),
	}
	if !out.Result.TradingDay.Day.IsZero() {
		ev.TradingDay = out.Result.TradingDay.Day.Format(parser.DayLayout)
		ev.ExtractionMethod = string(out.Result.TradingDay.Method)
	}

	switch out.Status {
	case StatusParsed:
		ev.Event = events.ChannelSetupParsed
		ev.SetupCount = len(out.Result.Setups)
	case StatusReplaced:
		ev.Event = events.ChannelSetupReplaced
		ev.SetupCount = len(out.Result.Setups)
	case StatusSkipped:
		ev.Event = events.ChannelSetupSkipped
	default:
		ev.Event = events.ChannelParsingFailed
		ev.Tickers = nil
	}

	if err := p.publisher.Publish(ctx, ev); err != nil {
		log.WithError(err).WithField("event", ev.Event).Error("failed to publish event")
		p.recordException(ctx, "Publish", out.MessageID, err, map[string]interface{}{
			"event":          ev.Event,
			"correlation_id": out.CorrelationID,
		})
	}
}

func (p *Pipeline) recordException(ctx context.Context, op, messageID string, cause error, details map[string]interface{}) {
	if p.exceptions == nil {
		return
	}
	raw, _ := json.Marshal(details)
	exc := &model.Exception{
		Component: "ingest",
		Operation: op,
		MessageID: messageID,
		Message:   cause.Error(),
		Level:     "error",
		Context:   datatypes.JSON(raw),
	}
	if err := p.exceptions.Create(ctx, exc); err != nil {
		p.log.WithError(err).Warn("failed to record exception")
	}
}

func toRecords(messageID string, res parser.Result) ([]model.TradeSetup, error) {
	records := make([]model.TradeSetup, 0, len(res.Setups))
	for _, setup := range res.Setups {
		record, err := mapper.ToSetupRecord(setup, mapper.SetupMeta{
			MessageID:        messageID,
			ExtractionMethod: res.TradingDay.Method,
			BiasNote:         res.BiasNotes[setup.Ticker],
		})
		if err != nil {
			return nil, err
		}
		levels, err := mapper.ToLevels(setup)
		if err != nil {
			return nil, err
		}
		record.Levels = levels
		records = append(records, record)
	}
	return records, nil
}

func contentLength(content string) int {
	return utf8.RuneCountInString(content)
}

// RawFromModel converts a stored message into parser input.
func RawFromModel(msg model.DiscordMessage) parser.RawMessage {
	return parser.RawMessage{
		MessageID: msg.MessageID,
		Content:   msg.Content,
		ChannelID: msg.ChannelID,
		AuthorID:  msg.AuthorID,
		Timestamp: msg.Timestamp,
	}
}
