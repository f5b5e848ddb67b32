package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// ProvideMigrator creates a Migrator for the workload database, deriving the
// golang-migrate driver from the GORM dialector.
func ProvideMigrator(db *gorm.DB) Migrator {
	return NewMigrator(db, db.Dialector.Name())
}

// Module provides the Migrator.
var Module = fx.Provide(ProvideMigrator)
