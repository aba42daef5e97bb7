// Package testdb opens migrated in-memory databases for tests.
package testdb

import (
	"context"
	"io"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/go-simulation-admin/shared/config"
	"github.com/pavitra93/go-simulation-admin/shared/schema"
)

// Open returns a private in-memory SQLite database with every table
// migrated. The pool holds a single connection: the database lives only as
// long as that connection, and code under test must run its statements on
// the transaction it was handed.
func Open(tb testing.TB) *gorm.DB {
	tb.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := config.Open(sqlite.Open(":memory:"), config.DatabaseConfig{
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, log)
	if err != nil {
		tb.Fatalf("open test database: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	if err := schema.Migrate(context.Background(), db, log, schema.Registry()...); err != nil {
		tb.Fatalf("migrate test database: %v", err)
	}
	return db
}
