package dedupe

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	advisoryLockSQL   = "SELECT pg_advisory_lock(hashtext($1))"
	advisoryUnlockSQL = "SELECT pg_advisory_unlock(hashtext($1))"
)

// PgAdvisoryLocker serializes trading days across every process sharing one Postgres database.
// Each lock is a session level advisory lock held on its own pooled connection until release,
// so db should be a pool separate from the one the writes use.
type PgAdvisoryLocker struct {
	db  *sql.DB
	log *logrus.Entry
}

func NewPgAdvisoryLocker(db *sql.DB) *PgAdvisoryLocker {
	return &PgAdvisoryLocker{db: db, log: logrus.WithField("component", "dedupe")}
}

func (l *PgAdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get lock connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, advisoryLockSQL, key); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to take advisory lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if _, err := conn.ExecContext(releaseCtx, advisoryUnlockSQL, key); err != nil {
				l.log.WithError(err).WithField("trading_day", key).Warn("failed to release trading day lock")
				// Discard the session so the server drops the lock with it.
				_ = conn.Raw(func(interface{}) error { return driver.ErrBadConn })
			}
			_ = conn.Close()
		})
	}, nil
}
