// Package testutil hands repo tests an in-memory sqlite-backed *gorm.DB, the same
// shape as the teacher's internal/data/repos/testutil package, but against sqlite
// instead of a real Postgres so these tests need no external services.
package testutil

import (
	"testing"

	"github.com/fernlabs/reservecore/internal/domain"
	"github.com/fernlabs/reservecore/internal/platform/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	l, err := logger.New("test")
	if err != nil {
		tb.Fatalf("logger.New: %v", err)
	}
	return l
}

// DB returns an in-memory sqlite database migrated with every domain model this
// core persists. The DSN uses a shared cache, so handles open at the same time
// see one database; it is discarded when the cleanup closes the last
// connection, so tests that run one after another each start empty.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Worker{},
		&domain.ReservedResource{},
		&domain.TaskStatus{},
		&domain.Lease{},
	); err != nil {
		tb.Fatalf("automigrate: %v", err)
	}
	tb.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
