package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"setupingest/src/ingest"
	"setupingest/src/model"
	"setupingest/src/parser"
)

type messageSaver interface {
	Save(ctx context.Context, msg *model.DiscordMessage) (bool, error)
	FindByMessageID(ctx context.Context, messageID string) (*model.DiscordMessage, error)
}

type messageProcessor interface {
	Process(ctx context.Context, msg parser.RawMessage) (ingest.Outcome, error)
}

type unparsedFinder interface {
	FindUnparsed(ctx context.Context, from, to time.Time, limit int) ([]model.MessageParseLog, error)
}

type exceptionLister interface {
	FindRecent(ctx context.Context, limit int) ([]model.Exception, error)
}

// IngestPayload is the raw message record accepted over HTTP.
type IngestPayload struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
	ChannelID string `json:"channel_id"`
	AuthorID  string `json:"author_id"`
	// ISO-8601, e.g. 2025-06-10T13:30:00Z
	Timestamp string `json:"timestamp"`
}

// IngestMessageHandler stores a raw message and processes it right away. The outcome is
// returned; a storage failure answers 503 and leaves the message pending for the worker.
func IngestMessageHandler(store messageSaver, proc messageProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload IngestPayload
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid ingest payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		payload.MessageID = strings.TrimSpace(payload.MessageID)
		if payload.MessageID == "" {
			http.Error(w, "message_id is required", http.StatusBadRequest)
			return
		}
		ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(payload.Timestamp))
		if err != nil {
			http.Error(w, "invalid timestamp", http.StatusBadRequest)
			return
		}

		row := &model.DiscordMessage{
			MessageID: payload.MessageID,
			ChannelID: payload.ChannelID,
			AuthorID:  payload.AuthorID,
			Content:   payload.Content,
			Timestamp: ts.UTC(),
		}
		created, err := store.Save(r.Context(), row)
		if err != nil {
			logger.WithError(err).WithField("message_id", payload.MessageID).Error("failed to store message")
			http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
			return
		}
		if !created {
			// Redelivery: the stored row is the source of truth, not the new payload.
			stored, err := store.FindByMessageID(r.Context(), row.MessageID)
			if err != nil {
				logger.WithError(err).WithField("message_id", payload.MessageID).Error("failed to load stored message")
				http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
				return
			}
			if stored != nil {
				row = stored
			}
		}

		out, err := proc.Process(r.Context(), ingest.RawFromModel(*row))
		if err != nil {
			logger.WithError(err).WithField("message_id", payload.MessageID).Error("failed to process message")
			http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
			return
		}

		status := http.StatusOK
		if out.Status == ingest.StatusParsed || out.Status == ingest.StatusReplaced {
			status = http.StatusCreated
		}
		writeJSON(w, status, out)
	}
}

// FailedMessagesHandler lists rejected and failed messages with their reasons.
// Supports from/to (RFC3339 or YYYY-MM-DD) and limit.
func FailedMessagesHandler(repo unparsedFinder, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, err := timeWindow(r, loc, time.Now())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit, ok := limitParam(w, r, 100)
		if !ok {
			return
		}

		logs, err := repo.FindUnparsed(r.Context(), from, to, limit)
		if err != nil {
			logger.WithError(err).Error("failed to list unparsed messages")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if logs == nil {
			logs = []model.MessageParseLog{}
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

// ExceptionsHandler lists the most recent recorded exceptions.
func ExceptionsHandler(repo exceptionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := limitParam(w, r, 50)
		if !ok {
			return
		}
		rows, err := repo.FindRecent(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list exceptions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if rows == nil {
			rows = []model.Exception{}
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func limitParam(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return def, true
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 1000 {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return 0, false
	}
	return limit, true
}

var errInvalidWindow = errors.New("invalid time window")

// timeWindow reads from/to. A bare date starts at midnight in loc; a bare date for to covers
// that whole day. Defaults to the seven days before now.
func timeWindow(r *http.Request, loc *time.Location, now time.Time) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	to := now
	from := now.AddDate(0, 0, -7)

	if v := r.URL.Query().Get("from"); v != "" {
		t, _, err := parseTimeParam(v, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from")
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, dateOnly, err := parseTimeParam(v, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to")
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		to = t
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errInvalidWindow
	}
	return from, to, nil
}

func parseTimeParam(v string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, false, nil
	}
	t, err := time.ParseInLocation(parser.DayLayout, v, loc)
	return t, true, err
}
