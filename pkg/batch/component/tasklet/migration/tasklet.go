package migration

import (
	"context"
	"io/fs"

	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

const taskletName = "migration_tasklet"

// MigrationTasklet applies the schema before the job's real work starts.
type MigrationTasklet struct {
	migrator     Migrator
	migrationFS  fs.FS
	migrationDir string
	command      string
	tableName    string
}

// NewMigrationTasklet creates a tasklet running command ("up" or "down") over the scripts in
// migrationFS/migrationDir.
func NewMigrationTasklet(migrator Migrator, migrationFS fs.FS, migrationDir, command string) *MigrationTasklet {
	if command == "" {
		command = "up"
	}
	return &MigrationTasklet{
		migrator:     migrator,
		migrationFS:  migrationFS,
		migrationDir: migrationDir,
		command:      command,
		tableName:    AppMigrationsTable,
	}
}

// Execute runs the migration command.
func (t *MigrationTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	logger.Infof("Starting database migration from directory '%s' with command '%s'.", t.migrationDir, t.command)

	var err error
	switch t.command {
	case "up":
		err = t.migrator.Up(ctx, t.migrationFS, t.migrationDir, t.tableName)
	case "down":
		err = t.migrator.Down(ctx, t.migrationFS, t.migrationDir, t.tableName)
	default:
		return model.ExitStatusFailed, exception.NewBatchErrorf(taskletName, "Unknown migration command: %s", t.command)
	}
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(taskletName, "Migration '"+t.command+"' failed", err, false, false)
	}
	return model.ExitStatusCompleted, nil
}
