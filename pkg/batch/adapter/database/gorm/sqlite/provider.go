// Package sqlite provides the GORM DBProvider for SQLite databases.
package sqlite

import (
	"errors"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/fx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/loancob/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/loancob/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/loancob/pkg/batch/core/config"
	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
)

// ErrorTypeName names driver errors in retryable_exceptions and skippable_exceptions.
// The driver returns sqlite3.Error by value, so matching is by type name.
const ErrorTypeName = "sqlite3.Error"

func init() {
	exception.RegisterErrorType(ErrorTypeName, sqlite3.Error{Code: sqlite3.ErrBusy})
	gormadapter.RegisterDialector("sqlite", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString returns the file path (or ":memory:") as the DSN.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	return c.Database
}

// NewProvider creates the SQLite DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, "sqlite")
}

// Module adds the SQLite DBProvider to the provider group.
var Module = fx.Provide(fx.Annotate(
	NewProvider,
	fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
))
