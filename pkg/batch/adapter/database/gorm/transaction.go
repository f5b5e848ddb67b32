package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	tx "github.com/tigerroll/loancob/pkg/batch/core/tx"
)

// GormTxAdapter implements tx.Tx over a GORM transaction handle.
type GormTxAdapter struct {
	db *gorm.DB
}

// DB returns the transaction-bound handle.
func (t *GormTxAdapter) DB() *gorm.DB {
	return t.db
}

// Savepoint implements tx.Tx.
func (t *GormTxAdapter) Savepoint(name string) error {
	return t.db.SavePoint(name).Error
}

// RollbackToSavepoint implements tx.Tx.
func (t *GormTxAdapter) RollbackToSavepoint(name string) error {
	return t.db.RollbackTo(name).Error
}

// GormTransactionManager implements tx.TransactionManager.
type GormTransactionManager struct {
	db *gorm.DB
}

// NewGormTransactionManager creates a new GormTransactionManager.
func NewGormTransactionManager(db *gorm.DB) *GormTransactionManager {
	return &GormTransactionManager{db: db}
}

// Begin starts a transaction bound to ctx.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	var txOpts []*sql.TxOptions
	if len(opts) > 0 && opts[0] != nil {
		txOpts = opts[:1]
	}
	gormTx := m.db.WithContext(ctx).Begin(txOpts...)
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", gormTx.Error)
	}
	return &GormTxAdapter{db: gormTx}, nil
}

// Commit commits t.
func (m *GormTransactionManager) Commit(t tx.Tx) error {
	gormTxAdapter, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	return gormTxAdapter.db.Commit().Error
}

// Rollback rolls t back.
func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	gormTxAdapter, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	return gormTxAdapter.db.Rollback().Error
}

// DBFromContext returns the handle of the GORM transaction carried by ctx, or fallback when there is none.
// Repositories call it on every operation so that they join the chunk transaction.
func DBFromContext(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if t, ok := tx.FromContext(ctx).(*GormTxAdapter); ok {
		return t.db.WithContext(ctx)
	}
	return fallback.WithContext(ctx)
}

var _ tx.TransactionManager = (*GormTransactionManager)(nil)
