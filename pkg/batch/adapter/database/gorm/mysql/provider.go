// Package mysql provides the GORM DBProvider for MySQL databases.
package mysql

import (
	"fmt"

	drivermysql "github.com/go-sql-driver/mysql"
	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/loancob/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/loancob/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/loancob/pkg/batch/core/config"
)

func init() {
	gormadapter.RegisterDialector("mysql", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds the DSN with the driver's own formatter. parseTime is always on
// because the business-date columns are DATE.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	dsn := drivermysql.NewConfig()
	dsn.User = c.User
	dsn.Passwd = c.Password
	dsn.Net = "tcp"
	dsn.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	dsn.DBName = c.Database
	dsn.ParseTime = true
	if c.Sslmode != "" && c.Sslmode != "disable" {
		dsn.TLSConfig = "true"
	}
	return dsn.FormatDSN()
}

// NewProvider creates the MySQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, "mysql")
}

// Module adds the MySQL DBProvider to the provider group.
var Module = fx.Provide(fx.Annotate(
	NewProvider,
	fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
))
