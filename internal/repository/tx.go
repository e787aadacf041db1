package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TxRunner executes a function inside a single database transaction. The
// workflow engine and version-chain operations depend on this so that a
// status change and its ledger entry commit or roll back together.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// SQLTxRunner runs transactions against a sqlx database handle.
type SQLTxRunner struct {
	db *sqlx.DB
}

// NewTxRunner constructs a transaction runner.
func NewTxRunner(db *sqlx.DB) *SQLTxRunner {
	return &SQLTxRunner{db: db}
}

// RunInTx begins a transaction, invokes fn, and commits when fn returns nil.
// Any error from fn rolls the transaction back and is returned unchanged so
// typed domain errors survive the round trip.
func (r *SQLTxRunner) RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
