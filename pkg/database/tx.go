package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LockShared returns the row-lock suffix that keeps a selected row from
// being updated until the surrounding transaction ends. SQLite serializes
// writers, so it needs none.
func LockShared(driverName string) string {
	if driverName == DriverPostgres {
		return " FOR SHARE"
	}
	return ""
}

// LockUpdate is the exclusive counterpart of LockShared.
func LockUpdate(driverName string) string {
	if driverName == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}
