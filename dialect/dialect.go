package dialect

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Dialect names for external usage.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ExecQuerier wraps the 2 database operations.
type ExecQuerier interface {
	// Exec executes a query that does not return records. For example, in SQL, INSERT or UPDATE.
	// It scans the result into the pointer v. For SQL drivers, it is dialect/sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for the
// compiled queries and planned statements to run against a database.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps the Exec and Query operations in transaction.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

// Valid reports whether name is one of the supported dialects.
func Valid(name string) bool {
	switch name {
	case MySQL, SQLite, Postgres:
		return true
	}
	return false
}

// Debug returns a driver logging every statement of d and of its
// transactions at debug level.
func Debug(d Driver, logger *slog.Logger) Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &debugDriver{Driver: d, logger: logger}
}

type debugDriver struct {
	Driver
	logger *slog.Logger
}

func (d *debugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.logger.DebugContext(ctx, "exec", "query", query, "args", args)
	return d.Driver.Exec(ctx, query, args, v)
}

func (d *debugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.logger.DebugContext(ctx, "query", "query", query, "args", args)
	return d.Driver.Query(ctx, query, args, v)
}

func (d *debugDriver) Tx(ctx context.Context) (Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	id := txID.Add(1)
	logger := d.logger.With("tx", id)
	logger.DebugContext(ctx, "begin")
	return &debugTx{Tx: tx, logger: logger, ctx: ctx}, nil
}

var txID atomic.Uint64

type debugTx struct {
	Tx
	logger *slog.Logger
	ctx    context.Context
}

func (t *debugTx) Exec(ctx context.Context, query string, args, v any) error {
	t.logger.DebugContext(ctx, "exec", "query", query, "args", args)
	return t.Tx.Exec(ctx, query, args, v)
}

func (t *debugTx) Query(ctx context.Context, query string, args, v any) error {
	t.logger.DebugContext(ctx, "query", "query", query, "args", args)
	return t.Tx.Query(ctx, query, args, v)
}

func (t *debugTx) Commit() error {
	t.logger.DebugContext(t.ctx, "commit")
	return t.Tx.Commit()
}

func (t *debugTx) Rollback() error {
	t.logger.DebugContext(t.ctx, "rollback")
	return t.Tx.Rollback()
}
