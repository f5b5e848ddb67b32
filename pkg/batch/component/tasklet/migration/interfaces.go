// Package migration applies database schema migrations with golang-migrate, either from the
// CLI or as the first step of a job.
package migration

import (
	"context"
	"io/fs"
)

// AppMigrationsTable is the table golang-migrate uses to track applied versions.
const AppMigrationsTable = "loancob_schema_migrations"

// Migrator handles database schema migrations.
type Migrator interface {
	// Up applies all pending migrations found under path in migrationFS.
	Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	// Down rolls back all applied migrations.
	Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	// Version returns the current schema version and whether it is dirty.
	Version(migrationFS fs.FS, path string, tableName string) (uint, bool, error)
}
