// Package database defines the connection abstractions shared by the dialect providers.
package database

import (
	"context"

	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/loancob/pkg/batch/adapter/database/config"
)

// DBConnection represents an open, named database connection.
type DBConnection interface {
	// Name returns the datasource name from configuration.
	Name() string
	// Type returns the database type.
	Type() string
	// DB returns the GORM handle.
	DB() *gorm.DB
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// IsTableNotExistError checks if the given error indicates that a table does not exist.
	IsTableNotExistError(err error) bool
	// Close closes the underlying pool.
	Close() error
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	// Type returns the database type handled by this provider.
	Type() string
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
}

// DBConnectionResolver resolves a named datasource to a connection through the provider of its type.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProviderGroup is the Fx value group collecting every DBProvider.
const DBProviderGroup = "db_providers"
