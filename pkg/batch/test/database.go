// Package test provides fixtures and mocks shared by the package tests.
package test

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/loancob/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/loancob/pkg/batch/component/tasklet/migration"
)

// NewSQLiteDB opens a private in-memory SQLite database on a single connection and applies
// the migrations found under dir in migrationFS. The pool is closed when the test ends.
func NewSQLiteDB(t testing.TB, migrationFS fs.FS, dir string) *gorm.DB {
	t.Helper()
	db, err := gormadapter.Open(dbconfig.DatabaseConfig{
		Type:     "sqlite",
		Database: ":memory:",
		LogLevel: "silent",
		Pool:     dbconfig.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if migrationFS != nil {
		m := migration.NewMigrator(db, "sqlite")
		require.NoError(t, m.Up(context.Background(), migrationFS, dir, migration.AppMigrationsTable))
	}
	return db
}

// NewTransactionManager returns the GORM transaction manager for db.
func NewTransactionManager(db *gorm.DB) *gormadapter.GormTransactionManager {
	return gormadapter.NewGormTransactionManager(db)
}
