package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"setupingest/src/model"
)

func TestMessageRepositoryFindPending(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewMessageRepositoryWithDB(mockDB)

	ts := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "message_id", "channel_id", "content", "timestamp", "parse_status"}).
		AddRow(1, "m-1", "c-1", "A+ Setups", ts, model.ParseStatusPending).
		AddRow(2, "m-2", "c-1", "A+ Setups", ts.Add(time.Minute), model.ParseStatusPending)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "discord_messages" WHERE parse_status = $1 ORDER BY timestamp ASC, id ASC LIMIT $2`)).
		WithArgs(model.ParseStatusPending, 10).
		WillReturnRows(rows)

	msgs, err := repo.FindPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error fetching pending messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].MessageID != "m-1" || msgs[1].MessageID != "m-2" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestMessageRepositoryStorageError(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewMessageRepositoryWithDB(mockDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "discord_messages" WHERE parse_status = $1`)).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.FindPending(context.Background(), 5)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestMessageRepositoryFindByMessageIDNotFound(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewMessageRepositoryWithDB(mockDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "discord_messages" WHERE message_id = $1`)).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	msg, err := repo.FindByMessageID(context.Background(), "missing")
	if err != nil || msg != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", msg, err)
	}
}

func TestMessageRepositorySaveIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepositoryWithDB(db)
	ctx := context.Background()

	msg := &model.DiscordMessage{MessageID: "m-1", ChannelID: "c-1", Content: "A+ Setups", Timestamp: time.Now().UTC()}
	created, err := repo.Save(ctx, msg)
	require.NoError(t, err)
	assert.True(t, created)

	again := &model.DiscordMessage{MessageID: "m-1", ChannelID: "c-1", Content: "edited", Timestamp: time.Now().UTC()}
	created, err = repo.Save(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)

	stored, err := repo.FindByMessageID(ctx, "m-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "A+ Setups", stored.Content)
	assert.Equal(t, model.ParseStatusPending, stored.ParseStatus)

	require.NoError(t, repo.IncrementAttempts(ctx, "m-1"))
	stored, _ = repo.FindByMessageID(ctx, "m-1")
	assert.Equal(t, 1, stored.Attempts)

	latest, err := repo.LatestInChannel(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", latest)

	latest, err = repo.LatestInChannel(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, latest)
}
