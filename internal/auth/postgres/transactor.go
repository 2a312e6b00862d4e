// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
)

// Transactor implements auth.Transactor. It stores the active pgx.Tx in
// context so AccountRepository calls made with that context join it.
type Transactor struct {
	db DB
}

// NewTransactor creates a Transactor backed by db.
func NewTransactor(db DB) *Transactor {
	return &Transactor{db: db}
}

// Run calls fn without opening a transaction. Repository calls use the pool,
// or the caller's transaction if ctx already carries one.
func (t *Transactor) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// InTransaction begins a read-write transaction, stores it in context, and
// calls fn. If fn returns nil, the transaction is committed. Otherwise it is
// rolled back. A ctx that already carries a transaction is reused as is.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadWrite})
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback(ctx) //nolint:errcheck // fn error takes precedence
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}
