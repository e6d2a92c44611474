package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"setupingest/src/cache"
	"setupingest/src/database"
	"setupingest/src/dedupe"
	"setupingest/src/events"
	"setupingest/src/model"
	"setupingest/src/parser"
	"setupingest/src/repository"
)

const (
	contentA = "A+ Scalp Trade Setups — Jun 10\n\nNVDA\n🔼 Aggressive Breakout above 142.50 🎯 143.80, 145.10\n"
	contentB = contentA + "\nSPY\n📉 Conservative Breakdown under 520.40 🎯 518.90\n"
)

var receivedA = time.Date(2025, time.June, 10, 13, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingPublisher) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Event)
	}
	return out
}

type memoryExceptions struct {
	mu   sync.Mutex
	rows []model.Exception
}

func (m *memoryExceptions) Create(_ context.Context, exc *model.Exception) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *exc)
	return nil
}

type fixture struct {
	db        *gorm.DB
	pipeline  *Pipeline
	publisher *recordingPublisher
	messages  *repository.MessageRepository
	setups    *repository.SetupRepository
	logs      *repository.ParseLogRepository
	hook      *logrustest.Hook
}

func newFixture(t *testing.T, policy dedupe.Policy, confirmed *cache.ConfirmedSet) *fixture {
	t.Helper()
	db := newTestDB(t)
	log, hook := logrustest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	f := &fixture{
		db:        db,
		publisher: &recordingPublisher{},
		messages:  repository.NewMessageRepositoryWithDB(db),
		setups:    repository.NewSetupRepositoryWithDB(db),
		logs:      repository.NewParseLogRepositoryWithDB(db),
		hook:      hook,
	}
	f.pipeline = NewPipeline(Deps{
		Parser:    parser.NewParser(parser.Options{Logger: logrus.NewEntry(log)}),
		Resolver:  dedupe.NewResolver(policy, f.setups, nil),
		Setups:    f.setups,
		Publisher: f.publisher,
		Confirmed: confirmed,
		Location:  time.UTC,
		Logger:    logrus.NewEntry(log),
	})
	return f
}

func (f *fixture) store(t *testing.T, id, content string, ts time.Time) parser.RawMessage {
	t.Helper()
	_, err := f.messages.Save(context.Background(), &model.DiscordMessage{
		MessageID: id, ChannelID: "chan-1", Content: content, Timestamp: ts,
	})
	require.NoError(t, err)
	return parser.RawMessage{MessageID: id, ChannelID: "chan-1", Content: content, Timestamp: ts}
}

func (f *fixture) activeSetups(t *testing.T, day string) []model.TradeSetup {
	t.Helper()
	active := true
	rows, err := f.setups.Search(context.Background(), repository.SetupSearchOptions{TradingDay: day, Active: &active})
	require.NoError(t, err)
	return rows
}

func TestProcessStoresSetups(t *testing.T) {
	f := newFixture(t, dedupe.PolicySkip, nil)
	ctx := context.Background()
	msg := f.store(t, "A", contentA, receivedA)

	out, err := f.pipeline.Process(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, StatusParsed, out.Status)
	assert.Equal(t, dedupe.DecisionProceed, out.Decision)
	assert.NotEmpty(t, out.CorrelationID)

	rows := f.activeSetups(t, "2025-06-10")
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-06-10_NVDA_Setup_1", rows[0].SetupID)
	assert.Equal(t, "A", rows[0].MessageID)
	assert.Len(t, rows[0].Levels, 3)

	entry, err := f.logs.FindByMessageID(ctx, "A")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, model.ParseLogStatusSuccess, entry.Status)
	assert.Equal(t, 1, entry.SetupCount)
	assert.Equal(t, out.CorrelationID, entry.CorrelationID)

	stored, err := f.messages.FindByMessageID(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, model.ParseStatusParsed, stored.ParseStatus)

	require.Equal(t, []string{events.ChannelSetupParsed}, f.publisher.names())
	ev := f.publisher.events[0]
	assert.Equal(t, []string{"NVDA"}, ev.Tickers)
	assert.Equal(t, 1, ev.SetupCount)
	assert.Equal(t, "2025-06-10", ev.TradingDay)
	assert.Equal(t, out.CorrelationID, ev.CorrelationID)
}

func TestProcessIsIdempotent(t *testing.T) {
	f := newFixture(t, dedupe.PolicySkip, nil)
	ctx := context.Background()
	msg := f.store(t, "A", contentA, receivedA)

	first, err := f.pipeline.Process(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, StatusParsed, first.Status)

	second, err := f.pipeline.Process(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyProcessed, second.Status)

	var count int64
	require.NoError(t, f.db.Model(&model.TradeSetup{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, f.db.Model(&model.MessageParseLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	assert.Equal(t, []string{events.ChannelSetupParsed}, f.publisher.names())
}

func TestProcessConfirmedSetShortCircuits(t *testing.T) {
	confirmed := cache.NewConfirmedSet(cache.NewMemoryStore(10), time.Hour)
	f := newFixture(t, dedupe.PolicySkip, confirmed)
	ctx := context.Background()
	msg := f.store(t, "A", contentA, receivedA)

	_, err := f.pipeline.Process(ctx, msg)
	require.NoError(t, err)

	seen, err := confirmed.Seen(ctx, "A")
	require.NoError(t, err)
	assert.True(t, seen)

	out, err := f.pipeline.Process(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyProcessed, out.Status)
	assert.Empty(t, out.Result.Setups, "redelivered message must not be parsed again")
}

func TestProcessSkipsSecondMessageForDay(t *testing.T) {
	f := newFixture(t, dedupe.PolicySkip, nil)
	ctx := context.Background()

	_, err := f.pipeline.Process(ctx, f.store(t, "A", contentA, receivedA))
	require.NoError(t, err)

	out, err := f.pipeline.Process(ctx, f.store(t, "B", contentB, receivedA.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, dedupe.DecisionSkip, out.Decision)

	rows := f.activeSetups(t, "2025-06-10")
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0].MessageID)

	entry, err := f.logs.FindByMessageID(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, model.ParseLogStatusSkipped, entry.Status)
	assert.Equal(t, string(dedupe.DecisionSkip), entry.Decision)

	stored, err := f.messages.FindByMessageID(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, model.ParseStatusSkipped, stored.ParseStatus)

	assert.Equal(t, []string{events.ChannelSetupParsed, events.ChannelSetupSkipped}, f.publisher.names())
}

func TestProcessReplacesWithNewerLongerMessage(t *testing.T) {
	f := newFixture(t, dedupe.PolicyReplace, nil)
	ctx := context.Background()

	_, err := f.pipeline.Process(ctx, f.store(t, "A", contentA, receivedA))
	require.NoError(t, err)

	out, err := f.pipeline.Process(ctx, f.store(t, "B", contentB, receivedA.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, StatusReplaced, out.Status)

	rows := f.activeSetups(t, "2025-06-10")
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, "B", row.MessageID)
	}

	var old model.TradeSetup
	require.NoError(t, f.db.Where("message_id = ?", "A").First(&old).Error)
	assert.False(t, old.Active)
	require.NotNil(t, old.SupersededBy)
	assert.Equal(t, "B", *old.SupersededBy)

	assert.Equal(t, []string{events.ChannelSetupParsed, events.ChannelSetupReplaced}, f.publisher.names())
}

func TestProcessReplaceKeepsOlderOnShorterCandidate(t *testing.T) {
	f := newFixture(t, dedupe.PolicyReplace, nil)
	ctx := context.Background()

	_, err := f.pipeline.Process(ctx, f.store(t, "B", contentB, receivedA))
	require.NoError(t, err)

	out, err := f.pipeline.Process(ctx, f.store(t, "A", contentA, receivedA.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, out.Status)

	for _, row := range f.activeSetups(t, "2025-06-10") {
		assert.Equal(t, "B", row.MessageID)
	}
}

func TestProcessRecordsRejection(t *testing.T) {
	f := newFixture(t, dedupe.PolicySkip, nil)
	ctx := context.Background()

	out, err := f.pipeline.Process(ctx, f.store(t, "chat", "Good morning traders, big day ahead!", receivedA))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, string(parser.RejectionHeaderTokenMismatch), out.Reason)

	entry, err := f.logs.FindByMessageID(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, model.ParseLogStatusRejected, entry.Status)
	assert.Equal(t, string(parser.RejectionHeaderTokenMismatch), entry.Reason)
	assert.Empty(t, entry.TradingDay)

	stored, err := f.messages.FindByMessageID(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, model.ParseStatusRejected, stored.ParseStatus)

	require.Equal(t, []string{events.ChannelParsingFailed}, f.publisher.names())
	assert.Equal(t, string(parser.RejectionHeaderTokenMismatch), f.publisher.events[0].Reason)
}

func TestProcessRecordsNoSetupsAsFailed(t *testing.T) {
	f := newFixture(t, dedupe.PolicySkip, nil)
	ctx := context.Background()

	content := "A+ Scalp Trade Setups — Jun 10\n\nNo clean levels today, sitting out."
	out, err := f.pipeline.Process(ctx, f.store(t, "none", content, receivedA))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)

	entry, err := f.logs.FindByMessageID(ctx, "none")
	require.NoError(t, err)
	assert.Equal(t, model.ParseLogStatusFailed, entry.Status)
	assert.Equal(t, "2025-06-10", entry.TradingDay)
}

type failingWriter struct{}

func (failingWriter) SaveParsedMessage(context.Context, repository.ParsedMessage) error {
	return &repository.StorageError{Op: "save parsed message", Err: errors.New("connection refused")}
}

type noContributor struct{}

func (noContributor) FindDayContributor(context.Context, string) (*dedupe.DayContributor, error) {
	return nil, nil
}

func TestProcessStorageFailureIsReturned(t *testing.T) {
	confirmed := cache.NewConfirmedSet(cache.NewMemoryStore(10), time.Hour)
	pub := &recordingPublisher{}
	p := NewPipeline(Deps{
		Parser:    parser.NewParser(parser.Options{}),
		Resolver:  dedupe.NewResolver(dedupe.PolicySkip, noContributor{}, nil),
		Setups:    failingWriter{},
		Publisher: pub,
		Confirmed: confirmed,
	})

	_, err := p.Process(context.Background(), parser.RawMessage{MessageID: "A", Content: contentA, Timestamp: receivedA})
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrStorageUnavailable)

	seen, err := confirmed.Seen(context.Background(), "A")
	require.NoError(t, err)
	assert.False(t, seen, "failed message must stay retryable")
	assert.Empty(t, pub.names())
}

func TestProcessRecordsPublishFailure(t *testing.T) {
	f := newFixture(t, dedupe.PolicySkip, nil)
	f.publisher.err = errors.New("webhook down")
	exceptions := &memoryExceptions{}
	f.pipeline.exceptions = exceptions

	out, err := f.pipeline.Process(context.Background(), f.store(t, "A", contentA, receivedA))
	require.NoError(t, err, "event delivery must not fail the message")
	assert.Equal(t, StatusParsed, out.Status)

	require.Len(t, exceptions.rows, 1)
	assert.Equal(t, "Publish", exceptions.rows[0].Operation)
	assert.Equal(t, "A", exceptions.rows[0].MessageID)
	assert.Equal(t, "webhook down", exceptions.rows[0].Message)
}

func TestProcessUsesMarketTimezoneForFallbackDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("timezone database not available")
	}
	f := newFixture(t, dedupe.PolicySkip, nil)
	f.pipeline.location = ny

	// 01:30 UTC on the 11th is the evening of the 10th in New York.
	ts := time.Date(2025, time.June, 11, 1, 30, 0, 0, time.UTC)
	content := "A+ Setups – Watchlist update\n\nQQQ\n🔼 480.10 🎯 482.00"
	out, err := f.pipeline.Process(context.Background(), f.store(t, "fb", content, ts))
	require.NoError(t, err)
	assert.Equal(t, parser.ExtractionFallback, out.Result.TradingDay.Method)
	assert.Equal(t, "2025-06-10_QQQ_Setup_1", out.Result.Setups[0].ID)
}
