package migrations

import (
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestRunOnceAppliesOnce(t *testing.T) {
	db := newTestDB(t)

	calls := 0
	fn := func(*gorm.DB) error {
		calls++
		return nil
	}

	for i := 0; i < 3; i++ {
		if err := RunOnce(db, "test_once", fn); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected migration to run once, ran %d times", calls)
	}
}

func TestRunOnceDoesNotRecordFailure(t *testing.T) {
	db := newTestDB(t)

	if err := RunOnce(db, "test_fail", func(*gorm.DB) error { return errors.New("boom") }); err == nil {
		t.Fatalf("expected error")
	}

	var count int64
	if err := db.Model(&DataMigration{}).Where("id = ?", "test_fail").Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed migration must not be recorded")
	}

	if err := RunOnce(db, "", func(*gorm.DB) error { return nil }); err == nil {
		t.Fatalf("expected error for empty id")
	}
}
