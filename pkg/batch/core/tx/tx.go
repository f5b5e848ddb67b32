// Package tx provides an abstraction for transaction management in the batch engine.
// A chunk runs inside one transaction; the transaction travels in the context so that
// repositories called by readers, processors and writers join it.
package tx

import (
	"context"
	"database/sql"
)

// Tx represents an ongoing database transaction.
type Tx interface {
	// Savepoint creates a new savepoint within the current transaction.
	Savepoint(name string) error
	// RollbackToSavepoint rolls back the transaction to the savepoint with the specified name.
	RollbackToSavepoint(name string) error
}

// TransactionManager manages the lifecycle of database transactions.
type TransactionManager interface {
	// Begin starts a new database transaction.
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	// Commit commits the specified transaction.
	Commit(tx Tx) error
	// Rollback rolls back the specified transaction.
	Rollback(tx Tx) error
}

type txKey struct{}

// WithTx returns a copy of ctx carrying t.
func WithTx(ctx context.Context, t Tx) context.Context {
	return context.WithValue(ctx, txKey{}, t)
}

// FromContext returns the transaction carried by ctx, or nil.
func FromContext(ctx context.Context) Tx {
	t, _ := ctx.Value(txKey{}).(Tx)
	return t
}
