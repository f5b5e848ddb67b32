package gorm

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/tigerroll/loancob/pkg/batch/adapter/database"
	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	tx "github.com/tigerroll/loancob/pkg/batch/core/tx"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// WorkloadParams defines the dependencies of NewWorkloadDB.
type WorkloadParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Resolver  *GormDBConnectionResolver
	Batch     *config.BatchConfig
}

// NewWorkloadDB opens the datasource named by batch.datasource_ref and closes every connection on stop.
func NewWorkloadDB(p WorkloadParams) (*gorm.DB, error) {
	conn, err := p.Resolver.ResolveDBConnection(context.Background(), p.Batch.DatasourceRef)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Infof("Closing database connections.")
			return p.Resolver.CloseAll()
		},
	})
	return conn.DB(), nil
}

// Module provides the resolver, the workload *gorm.DB and the TransactionManager.
// The dialect providers come from the sqlite, postgres and mysql sub-packages.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewGormDBConnectionResolver,
		fx.As(fx.Self()),
		fx.As(new(database.DBConnectionResolver)),
	)),
	fx.Provide(NewWorkloadDB),
	fx.Provide(fx.Annotate(
		NewGormTransactionManager,
		fx.As(new(tx.TransactionManager)),
	)),
)
