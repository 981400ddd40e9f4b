package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/strata/dialect"
)

// dialects maps the names database/sql drivers register under to the
// dialect they speak.
var dialects = map[string]string{
	"pgx":      dialect.Postgres,
	"postgres": dialect.Postgres,
	"mysql":    dialect.MySQL,
	"sqlite":   dialect.SQLite,
	"sqlite3":  dialect.SQLite,
}

// DialectOf returns the dialect of a database/sql driver name. Unknown
// names are returned unchanged.
func DialectOf(driverName string) string {
	if d, ok := dialects[driverName]; ok {
		return d
	}
	return driverName
}

// Driver runs compiled selects and planned statements on a *sql.DB.
type Driver struct {
	Conn
	db      *sql.DB
	dialect string
}

// Open opens a database with a registered database/sql driver. The
// dialect follows the driver name.
func Open(driverName, source string) (*Driver, error) {
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, err
	}
	return OpenDB(DialectOf(driverName), db), nil
}

// OpenDB returns a driver speaking dialect on db.
func OpenDB(dialect string, db *sql.DB) *Driver {
	return &Driver{Conn: Conn{db}, db: db, dialect: dialect}
}

// DB returns the underlying database.
func (d *Driver) DB() *sql.DB { return d.db }

// Dialect returns the dialect of the driver. Names with a dialect prefix,
// as used by instrumented drivers ("postgres-otel"), map to the dialect.
func (d *Driver) Dialect() string {
	for _, name := range []string{dialect.Postgres, dialect.MySQL, dialect.SQLite} {
		if strings.HasPrefix(d.dialect, name) {
			return name
		}
	}
	return DialectOf(d.dialect)
}

// Tx begins a transaction.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: begin: %w", err)
	}
	return &Tx{Conn: Conn{tx}, tx: tx}, nil
}

// Close closes the database.
func (d *Driver) Close() error { return d.db.Close() }

// Tx is a transaction of a Driver.
type Tx struct {
	Conn
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback aborts the transaction.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// ExecQuerier is implemented by *sql.DB, *sql.Tx and *sql.Conn.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn adapts an ExecQuerier to dialect.ExecQuerier. Arguments are passed
// as []any; results are scanned into *Result and *Rows.
type Conn struct {
	ExecQuerier
}

// Exec runs a statement. v is nil or a *Result receiving the result.
func (c Conn) Exec(ctx context.Context, query string, args, v any) error {
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: exec: args must be []any, got %T", args)
	}
	switch v := v.(type) {
	case nil:
		if _, err := c.ExecContext(ctx, query, argv...); err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
	case *Result:
		res, err := c.ExecContext(ctx, query, argv...)
		if err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
		*v = res
	default:
		return fmt.Errorf("dialect/sql: exec: result must be *sql.Result, got %T", v)
	}
	return nil
}

// Query runs a select. v must be a *Rows; callers close it.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	rows, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: query: rows must be *sql.Rows, got %T", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: query: args must be []any, got %T", args)
	}
	r, err := c.QueryContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	*rows = Rows{r}
	return nil
}

var (
	_ dialect.Driver = (*Driver)(nil)
	_ dialect.Tx     = (*Tx)(nil)
)

// Result is the result of an executed statement.
type Result = sql.Result

// Rows holds the rows of a select. It wraps the scanner so that Rows
// values can be copied.
type Rows struct{ ColumnScanner }

// ColumnScanner is the subset of *sql.Rows read by the executors.
type ColumnScanner interface {
	Close() error
	Columns() ([]string, error)
	Err() error
	Next() bool
	Scan(dest ...any) error
}

// ScanValues reads the remaining rows into raw column values and closes
// them.
func ScanValues(rows ColumnScanner) (columns []string, values [][]any, err error) {
	defer func() { err = errors.Join(err, rows.Close()) }()
	if columns, err = rows.Columns(); err != nil {
		return nil, nil, err
	}
	for rows.Next() {
		row := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, err
		}
		values = append(values, row)
	}
	return columns, values, rows.Err()
}
