package sqlite_test

import (
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	dbconfig "github.com/tigerroll/loancob/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
)

func TestDialectorRequiresPath(t *testing.T) {
	factory, err := gormadapter.GetDialectorFactory("sqlite")
	assert.NoError(t, err)

	_, err = factory(dbconfig.DatabaseConfig{Type: "sqlite"})
	assert.ErrorContains(t, err, "cannot be empty")

	dialector, err := factory(dbconfig.DatabaseConfig{Type: "sqlite", Database: ":memory:"})
	assert.NoError(t, err)
	assert.Equal(t, "sqlite", dialector.Name())
}

func TestDriverErrorsMatchConfiguredName(t *testing.T) {
	assert.True(t, exception.IsErrorTypeRegistered(sqlite.ErrorTypeName))

	busy := fmt.Errorf("write chunk: %w", sqlite3.Error{Code: sqlite3.ErrLocked})
	assert.True(t, exception.IsErrorOfType(busy, sqlite.ErrorTypeName))
	assert.False(t, exception.IsErrorOfType(fmt.Errorf("write chunk: timeout"), sqlite.ErrorTypeName))
}
