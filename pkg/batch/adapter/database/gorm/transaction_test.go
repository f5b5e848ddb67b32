package gorm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/loancob/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/loancob/pkg/batch/core/config"
	"github.com/tigerroll/loancob/pkg/batch/core/tx"
)

type widget struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gormadapter.Open(dbconfig.DatabaseConfig{Type: "sqlite", Database: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return db
}

func count(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&widget{}).Count(&n).Error)
	return n
}

func TestTransactionManager_CommitAndRollback(t *testing.T) {
	db := openMemory(t)
	tm := gormadapter.NewGormTransactionManager(db)
	ctx := context.Background()

	committed, err := tm.Begin(ctx)
	require.NoError(t, err)
	txCtx := tx.WithTx(ctx, committed)
	require.NoError(t, gormadapter.DBFromContext(txCtx, db).Create(&widget{ID: 1, Name: "a"}).Error)
	require.NoError(t, tm.Commit(committed))
	assert.Equal(t, int64(1), count(t, db))

	rolledBack, err := tm.Begin(ctx)
	require.NoError(t, err)
	txCtx = tx.WithTx(ctx, rolledBack)
	require.NoError(t, gormadapter.DBFromContext(txCtx, db).Create(&widget{ID: 2, Name: "b"}).Error)
	require.NoError(t, tm.Rollback(rolledBack))
	assert.Equal(t, int64(1), count(t, db))
}

func TestTransactionManager_RollbackToSavepoint(t *testing.T) {
	db := openMemory(t)
	tm := gormadapter.NewGormTransactionManager(db)
	ctx := context.Background()

	current, err := tm.Begin(ctx)
	require.NoError(t, err)
	txCtx := tx.WithTx(ctx, current)

	require.NoError(t, gormadapter.DBFromContext(txCtx, db).Create(&widget{ID: 1, Name: "kept"}).Error)
	require.NoError(t, current.Savepoint("chunk_write"))
	require.NoError(t, gormadapter.DBFromContext(txCtx, db).Create(&widget{ID: 2, Name: "discarded"}).Error)
	require.NoError(t, current.RollbackToSavepoint("chunk_write"))
	require.NoError(t, tm.Commit(current))

	var names []string
	require.NoError(t, db.Model(&widget{}).Order("id").Pluck("name", &names).Error)
	assert.Equal(t, []string{"kept"}, names)
}

func TestDBFromContext_FallsBackWithoutTransaction(t *testing.T) {
	db := openMemory(t)
	got := gormadapter.DBFromContext(context.Background(), db)
	require.NoError(t, got.Create(&widget{ID: 7, Name: "direct"}).Error)
	assert.Equal(t, int64(1), count(t, db))
}

func TestBaseProvider_GetConnection(t *testing.T) {
	cfg := config.NewConfig()
	cfg.LoanCOB.AdaptorConfigs["workload"] = map[string]interface{}{"type": "sqlite", "database": ":memory:", "log_level": "silent"}
	cfg.LoanCOB.AdaptorConfigs["other"] = map[string]interface{}{"type": "postgres", "database": "x"}

	p := gormadapter.NewBaseProvider(cfg, "sqlite")
	conn, err := p.GetConnection("workload")
	require.NoError(t, err)
	assert.Equal(t, "workload", conn.Name())
	assert.Equal(t, "sqlite", conn.Type())

	again, err := p.GetConnection("workload")
	require.NoError(t, err)
	assert.Same(t, conn, again)

	_, err = p.GetConnection("other")
	assert.ErrorContains(t, err, "provider type mismatch")
	_, err = p.GetConnection("missing")
	assert.ErrorContains(t, err, "not found")

	assert.True(t, conn.IsTableNotExistError(conn.DB().Exec("SELECT * FROM nope").Error))
	require.NoError(t, p.CloseAll())
}
