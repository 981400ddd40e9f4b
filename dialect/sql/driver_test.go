package sql

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/dialect"
)

func TestDialectOf(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{"postgres", dialect.Postgres},
		{"pgx", dialect.Postgres},
		{"mysql", dialect.MySQL},
		{"sqlite", dialect.SQLite},
		{"sqlite3", dialect.SQLite},
		{"oracle", "oracle"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			assert.Equal(t, tt.want, DialectOf(tt.driver))
		})
	}
}

func TestDriverDialect(t *testing.T) {
	for _, name := range []string{"pgx", dialect.MySQL, dialect.SQLite, "postgres-otel"} {
		t.Run(name, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			drv := OpenDB(name, db)
			assert.True(t, dialect.Valid(drv.Dialect()), drv.Dialect())
		})
	}
}

func TestDriverQueryExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)

	t.Run("QueryWithArgs", func(t *testing.T) {
		mock.ExpectQuery(`SELECT "_t1"."c_name" FROM "t_category" "_t1" WHERE "_t1"."id" = \$1`).
			WithArgs("a1").
			WillReturnRows(sqlmock.NewRows([]string{"f1"}).AddRow("Books"))
		rows := &Rows{}
		err := drv.Query(context.Background(), `SELECT "_t1"."c_name" FROM "t_category" "_t1" WHERE "_t1"."id" = $1`, []any{"a1"}, rows)
		require.NoError(t, err)
		cols, values, err := ScanValues(rows)
		require.NoError(t, err)
		assert.Equal(t, []string{"f1"}, cols)
		require.Len(t, values, 1)
		assert.Equal(t, "Books", values[0][0])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ExecResult", func(t *testing.T) {
		mock.ExpectExec("UPDATE t_category").WillReturnResult(sqlmock.NewResult(0, 1))
		var res Result
		require.NoError(t, drv.Exec(context.Background(), "UPDATE t_category SET c_name = $1", []any{"x"}, &res))
		n, err := res.RowsAffected()
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("InvalidArgs", func(t *testing.T) {
		err := drv.Exec(context.Background(), "SELECT 1", "not-a-slice", nil)
		require.Error(t, err)
		err = drv.Query(context.Background(), "SELECT 1", []any{}, new(int))
		require.Error(t, err)
	})

	t.Run("QueryError", func(t *testing.T) {
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("database error"))
		err := drv.Query(context.Background(), "SELECT", []any{}, &Rows{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dialect/sql: query")
	})
}

func TestDriverTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.SQLite, db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t_category").WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.Error(t, tx.Exec(context.Background(), "INSERT INTO t_category (id) VALUES (?)", []any{1}, nil))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var logs bytes.Buffer
	drv := NewStatsDriver(OpenDB(dialect.Postgres, db),
		WithSlowThreshold(0),
		WithSlowQueryLog(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec("DELETE").WillReturnError(errors.New("boom"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx := context.Background()
	rows := &Rows{}
	require.NoError(t, drv.Query(ctx, "SELECT 1", []any{}, rows))
	require.NoError(t, rows.Close())
	require.Error(t, drv.Exec(ctx, "DELETE FROM t", []any{}, nil))
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "UPDATE t SET a = 1", []any{}, nil))
	require.NoError(t, tx.Commit())
	tx, err = drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())

	s := drv.Stats()
	assert.EqualValues(t, 1, s.Queries)
	assert.EqualValues(t, 2, s.Execs)
	assert.EqualValues(t, 1, s.Errors)
	assert.EqualValues(t, 3, s.Slow)
	assert.EqualValues(t, 1, s.Commits)
	assert.EqualValues(t, 1, s.Rollbacks)
	assert.Equal(t, 3, strings.Count(logs.String(), "slow query"))
	assert.Contains(t, logs.String(), "query=\"UPDATE t SET a = 1\"")
}
