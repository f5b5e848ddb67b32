package mysql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dbconfig "github.com/tigerroll/loancob/pkg/batch/adapter/database/config"
	"github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm/mysql"
)

func TestConnectionString(t *testing.T) {
	dsn := mysql.ConnectionString(dbconfig.DatabaseConfig{Host: "db", Port: 3306, User: "u", Password: "p", Database: "fineract"})
	assert.Contains(t, dsn, "u:p@tcp(db:3306)/fineract")
	assert.Contains(t, dsn, "parseTime=true")
}
