// Package app assembles the Fx graph driven by the loancob command line.
package app

import (
	"context"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/tigerroll/loancob/internal/businessdate"
	"github.com/tigerroll/loancob/internal/businessstep"
	"github.com/tigerroll/loancob/internal/cob"
	"github.com/tigerroll/loancob/internal/event"
	"github.com/tigerroll/loancob/internal/repository"
	gormadapter "github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm/sqlite"
	_ "github.com/tigerroll/loancob/pkg/batch/adapter/storage/gcs"
	_ "github.com/tigerroll/loancob/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/loancob/pkg/batch/component/tasklet/migration"
	usecase "github.com/tigerroll/loancob/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	batchrepo "github.com/tigerroll/loancob/pkg/batch/core/domain/repository"
	"github.com/tigerroll/loancob/pkg/batch/engine/step/partition"
	metrics "github.com/tigerroll/loancob/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/loancob/pkg/batch/listener/logging"
	"github.com/tigerroll/loancob/pkg/batch/listener/notification"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// DefaultDBAdapters is used when no adapter list is given.
var DefaultDBAdapters = []string{"postgres", "mysql", "sqlite"}

// DBProviderMap maps adapter names to the module registering their DBProvider.
var DBProviderMap = map[string]fx.Option{
	"sqlite":   sqlite.Module,
	"postgres": postgres.Module,
	"mysql":    mysql.Module,
}

// Options are the process-level inputs of the application.
type Options struct {
	EnvFilePath    string
	EmbeddedConfig config.EmbeddedConfig
	DBAdapters     []string
}

// Components are the services the command line drives.
type Components struct {
	fx.In

	Config        *config.Config
	DB            *gorm.DB
	Migrator      migration.Migrator
	JobRepository batchrepo.JobRepository
	Operator      usecase.JobOperator
	Dates         businessdate.Provider
	BusinessDates repository.BusinessDateRepository

	COB     *cob.Service
	CatchUp *cob.CatchUpService
	Inline  *cob.InlineCOBService
	Locks   *cob.LockService
}

// dbProviderOptions selects the DB providers by name. Unknown names are logged and skipped.
func dbProviderOptions(names []string) []fx.Option {
	if len(names) == 0 {
		names = DefaultDBAdapters
	}
	options := make([]fx.Option, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if module, ok := DBProviderMap[name]; ok {
			options = append(options, module)
			logger.Debugf("DB Provider '%s' selected and registered.", name)
		} else {
			logger.Warnf("DB Provider '%s' is configured but not recognized/supported. Skipping.", name)
		}
	}
	return options
}

// Modules returns every module of the application.
func Modules(opts Options) fx.Option {
	return fx.Options(
		fx.Supply(
			opts.EmbeddedConfig,
			fx.Annotate(opts.EnvFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),
		fx.Options(dbProviderOptions(opts.DBAdapters)...),
		logger.Module,
		fx.Provide(config.NewConfigProvider),
		config.Module,
		metrics.Module,

		fx.Provide(NewJobRepository),
		usecase.Module,
		partition.Module,
		logging.Module,
		notification.Module,

		gormadapter.Module,
		migration.Module,
		event.Module,
		repository.Module,
		businessdate.Module,
		businessstep.Module,
		cob.Module,
	)
}

// RunApplication starts the application, hands its components to run and stops it again.
// ctx is the command's context; cancelling it stops running jobs.
func RunApplication(ctx context.Context, opts Options, run func(context.Context, Components) error) error {
	var components Components
	application := fx.New(
		Modules(opts),
		fx.Invoke(func(c Components) { components = c }),
	)
	if err := application.Err(); err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(ctx, application.StartTimeout())
	defer cancelStart()
	if err := application.Start(startCtx); err != nil {
		return err
	}

	var result *multierror.Error
	if err := run(ctx, components); err != nil {
		result = multierror.Append(result, err)
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), application.StopTimeout())
	defer cancelStop()
	if err := application.Stop(stopCtx); err != nil {
		logger.Errorf("Failed to stop application: %v", err)
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
