package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"setupingest/src/audit"
	"setupingest/src/ingest"
	"setupingest/src/model"
	"setupingest/src/parser"
	"setupingest/src/repository"
)

type mockSetupSearcher struct {
	setups      []model.TradeSetup
	err         error
	opts        repository.SetupSearchOptions
	calledCount int
}

func (m *mockSetupSearcher) Search(_ context.Context, opts repository.SetupSearchOptions) ([]model.TradeSetup, error) {
	m.calledCount++
	m.opts = opts
	return m.setups, m.err
}

func TestSearchSetupsHandler_Success(t *testing.T) {
	mockRepo := &mockSetupSearcher{setups: []model.TradeSetup{{SetupID: "2025-06-10_NVDA_Setup_1", Ticker: "NVDA"}}}
	handler := SearchSetupsHandler(mockRepo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/setups?tradingDay=2025-06-10&ticker=nvda&page=2&pageSize=5", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if mockRepo.calledCount != 1 {
		t.Fatalf("expected repository to be called once, got %d", mockRepo.calledCount)
	}
	assert.Equal(t, "2025-06-10", mockRepo.opts.TradingDay)
	assert.Equal(t, "NVDA", mockRepo.opts.Ticker)
	require.NotNil(t, mockRepo.opts.Active)
	assert.True(t, *mockRepo.opts.Active)
	assert.Equal(t, 5, mockRepo.opts.Limit)
	assert.Equal(t, 5, mockRepo.opts.Offset)
	assert.Contains(t, rr.Body.String(), "2025-06-10_NVDA_Setup_1")
}

func TestSearchSetupsHandler_ActiveAll(t *testing.T) {
	mockRepo := &mockSetupSearcher{}
	rr := httptest.NewRecorder()
	SearchSetupsHandler(mockRepo).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/setups?active=all", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	assert.Nil(t, mockRepo.opts.Active)
	assert.Equal(t, "[]\n", rr.Body.String())
}

func TestSearchSetupsHandler_BadRequests(t *testing.T) {
	for _, target := range []string{
		"/api/v1/setups?tradingDay=10-06-2025",
		"/api/v1/setups?active=maybe",
		"/api/v1/setups?page=0",
		"/api/v1/setups?pageSize=1000",
	} {
		mockRepo := &mockSetupSearcher{}
		rr := httptest.NewRecorder()
		SearchSetupsHandler(mockRepo).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", target, rr.Code)
		}
		if mockRepo.calledCount != 0 {
			t.Fatalf("%s: repository must not be called", target)
		}
	}
}

func TestSearchSetupsHandler_RepoError(t *testing.T) {
	rr := httptest.NewRecorder()
	SearchSetupsHandler(&mockSetupSearcher{err: assert.AnError}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/setups", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

type mockMessageSaver struct {
	saved   []model.DiscordMessage
	stored  *model.DiscordMessage
	err     error
	findErr error
}

func (m *mockMessageSaver) Save(_ context.Context, msg *model.DiscordMessage) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.stored != nil && m.stored.MessageID == msg.MessageID {
		return false, nil
	}
	m.saved = append(m.saved, *msg)
	return true, nil
}

func (m *mockMessageSaver) FindByMessageID(_ context.Context, messageID string) (*model.DiscordMessage, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.stored != nil && m.stored.MessageID == messageID {
		cp := *m.stored
		return &cp, nil
	}
	return nil, nil
}

type mockProcessor struct {
	got []parser.RawMessage
	out ingest.Outcome
	err error
}

func (m *mockProcessor) Process(_ context.Context, msg parser.RawMessage) (ingest.Outcome, error) {
	m.got = append(m.got, msg)
	return m.out, m.err
}

func TestIngestMessageHandler_Success(t *testing.T) {
	store := &mockMessageSaver{}
	proc := &mockProcessor{out: ingest.Outcome{MessageID: "m-1", Status: ingest.StatusParsed}}
	handler := IngestMessageHandler(store, proc)

	body := `{"message_id":"m-1","content":"A+ Scalp Trade Setups — Jun 10","channel_id":"c","author_id":"a","timestamp":"2025-06-10T09:30:00-04:00"}`
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	require.Len(t, store.saved, 1)
	assert.Equal(t, time.Date(2025, time.June, 10, 13, 30, 0, 0, time.UTC), store.saved[0].Timestamp)
	require.Len(t, proc.got, 1)
	assert.Equal(t, "m-1", proc.got[0].MessageID)

	var out ingest.Outcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, ingest.StatusParsed, out.Status)
}

func TestIngestMessageHandler_Rejected(t *testing.T) {
	proc := &mockProcessor{out: ingest.Outcome{MessageID: "m-1", Status: ingest.StatusRejected}}
	body := `{"message_id":"m-1","content":"hello","timestamp":"2025-06-10T13:30:00Z"}`
	rr := httptest.NewRecorder()
	IngestMessageHandler(&mockMessageSaver{}, proc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestIngestMessageHandler_BadPayload(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"message_id":"","timestamp":"2025-06-10T13:30:00Z"}`,
		`{"message_id":"m","timestamp":"yesterday"}`,
		`{"message_id":"m","timestamp":"2025-06-10T13:30:00Z","extra":1}`,
	} {
		proc := &mockProcessor{}
		rr := httptest.NewRecorder()
		IngestMessageHandler(&mockMessageSaver{}, proc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", body, rr.Code)
		}
		if len(proc.got) != 0 {
			t.Fatalf("%s: processor must not be called", body)
		}
	}
}

func TestIngestMessageHandler_StorageUnavailable(t *testing.T) {
	body := `{"message_id":"m-1","content":"x","timestamp":"2025-06-10T13:30:00Z"}`

	rr := httptest.NewRecorder()
	IngestMessageHandler(&mockMessageSaver{err: assert.AnError}, &mockProcessor{}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body)))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	IngestMessageHandler(&mockMessageSaver{}, &mockProcessor{err: repository.ErrStorageUnavailable}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body)))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestIngestMessageHandler_RedeliveryUsesStoredRow(t *testing.T) {
	storedAt := time.Date(2025, time.June, 10, 13, 30, 0, 0, time.UTC)
	store := &mockMessageSaver{stored: &model.DiscordMessage{
		MessageID: "m-1",
		ChannelID: "c",
		Content:   "A+ Scalp Trade Setups — Jun 10 (stored)",
		Timestamp: storedAt,
	}}
	proc := &mockProcessor{out: ingest.Outcome{MessageID: "m-1", Status: ingest.StatusAlreadyProcessed}}

	body := `{"message_id":"m-1","content":"edited content","channel_id":"c","timestamp":"2025-06-11T13:30:00Z"}`
	rr := httptest.NewRecorder()
	IngestMessageHandler(store, proc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	assert.Empty(t, store.saved)
	require.Len(t, proc.got, 1)
	assert.Equal(t, "A+ Scalp Trade Setups — Jun 10 (stored)", proc.got[0].Content)
	assert.Equal(t, storedAt, proc.got[0].Timestamp)
}

func TestIngestMessageHandler_RedeliveryLookupFails(t *testing.T) {
	store := &mockMessageSaver{
		stored:  &model.DiscordMessage{MessageID: "m-1", Content: "stored"},
		findErr: repository.ErrStorageUnavailable,
	}
	proc := &mockProcessor{}

	body := `{"message_id":"m-1","content":"x","timestamp":"2025-06-10T13:30:00Z"}`
	rr := httptest.NewRecorder()
	IngestMessageHandler(store, proc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body)))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	assert.Empty(t, proc.got)
}

type mockUnparsedFinder struct {
	from, to time.Time
	limit    int
	logs     []model.MessageParseLog
}

func (m *mockUnparsedFinder) FindUnparsed(_ context.Context, from, to time.Time, limit int) ([]model.MessageParseLog, error) {
	m.from, m.to, m.limit = from, to, limit
	return m.logs, nil
}

func TestFailedMessagesHandler(t *testing.T) {
	mockRepo := &mockUnparsedFinder{logs: []model.MessageParseLog{{MessageID: "r1", Reason: "no_setups"}}}
	handler := FailedMessagesHandler(mockRepo, time.UTC)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/messages/failed?from=2025-06-01&to=2025-06-30&limit=10", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	assert.Equal(t, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), mockRepo.from)
	assert.Equal(t, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), mockRepo.to)
	assert.Equal(t, 10, mockRepo.limit)
	assert.Contains(t, rr.Body.String(), "no_setups")
}

func TestFailedMessagesHandler_BadWindow(t *testing.T) {
	for _, target := range []string{
		"/api/v1/messages/failed?from=junk",
		"/api/v1/messages/failed?from=2025-06-30&to=2025-06-01",
		"/api/v1/messages/failed?limit=-1",
	} {
		rr := httptest.NewRecorder()
		FailedMessagesHandler(&mockUnparsedFinder{}, time.UTC).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", target, rr.Code)
		}
	}
}

type mockAuditReporter struct {
	from, to time.Time
	report   *audit.Report
	err      error
}

func (m *mockAuditReporter) Report(_ context.Context, from, to time.Time) (*audit.Report, error) {
	m.from, m.to = from, to
	return m.report, m.err
}

func TestAuditHandler(t *testing.T) {
	svc := &mockAuditReporter{report: &audit.Report{Messages: 4, SuccessRate: 0.75}}
	rr := httptest.NewRecorder()
	AuditHandler(svc, time.UTC).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit?from=2025-06-01T00:00:00Z&to=2025-06-08T00:00:00Z", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	assert.Equal(t, time.Date(2025, time.June, 8, 0, 0, 0, 0, time.UTC), svc.to.UTC())

	var got audit.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, 0.75, got.SuccessRate)
}

func TestAuditHandler_Errors(t *testing.T) {
	rr := httptest.NewRecorder()
	AuditHandler(&mockAuditReporter{err: assert.AnError}, time.UTC).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	AuditHandler(&mockAuditReporter{}, time.UTC).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit?to=bad", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

type mockExceptionLister struct {
	limit int
}

func (m *mockExceptionLister) FindRecent(_ context.Context, limit int) ([]model.Exception, error) {
	m.limit = limit
	return nil, nil
}

func TestExceptionsHandler(t *testing.T) {
	mockRepo := &mockExceptionLister{}
	rr := httptest.NewRecorder()
	ExceptionsHandler(mockRepo).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/exceptions", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	assert.Equal(t, 50, mockRepo.limit)
	assert.Equal(t, "[]\n", rr.Body.String())
}
