package app

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/tigerroll/loancob/internal/migrations"
	"github.com/tigerroll/loancob/pkg/batch/component/tasklet/migration"
	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	batchrepo "github.com/tigerroll/loancob/pkg/batch/core/domain/repository"
	"github.com/tigerroll/loancob/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/loancob/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// JobRepositoryParams defines the dependencies of NewJobRepository.
type JobRepositoryParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Batch     *config.BatchConfig
	DB        *gorm.DB
	Migrator  migration.Migrator
}

// NewJobRepository selects the job repository named by batch.job_repository. The SQL repository
// shares the workload database; with migrate_on_start its tables are created before the first
// launch, since the launcher records the job instance ahead of the migration step.
func NewJobRepository(p JobRepositoryParams) (batchrepo.JobRepository, error) {
	switch p.Batch.JobRepository {
	case "", config.JobRepositoryInMemory:
		return inmemory.NewInMemoryJobRepository(), nil
	case config.JobRepositorySQL:
		if p.Batch.MigrateOnStart {
			p.Lifecycle.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return p.Migrator.Up(ctx, migrations.FS, migrations.Dir(p.DB.Dialector.Name()), migration.AppMigrationsTable)
				},
			})
		}
		logger.Infof("Job repository: sql (%s).", p.DB.Dialector.Name())
		return sqlrepo.NewSQLJobRepository(p.DB), nil
	default:
		return nil, fmt.Errorf("unknown job repository '%s'", p.Batch.JobRepository)
	}
}
