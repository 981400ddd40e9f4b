package sqlgraph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata"
)

type codedError struct{ code string }

func (e codedError) Error() string { return "coded" }
func (e codedError) Code() string  { return e.code }

type numberedError struct{ n uint16 }

func (e numberedError) Error() string  { return "numbered" }
func (e numberedError) Number() uint16 { return e.n }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Violation
	}{
		{"Nil", nil, NoViolation},
		{"Plain", errors.New("connection refused"), NoViolation},
		{"PgxUnique", &pgconn.PgError{Code: "23505"}, UniqueViolation},
		{"PgxForeignKey", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23503"}), ForeignKeyViolation},
		{"PqCheck", &pq.Error{Code: "23514", Message: `new row violates check constraint "ck_price"`}, CheckViolation},
		{"Coder", codedError{"23505"}, UniqueViolation},
		{"MySQLDuplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, UniqueViolation},
		{"Numberer", numberedError{1452}, ForeignKeyViolation},
		{"SQLiteUnique", errors.New("UNIQUE constraint failed: t_category.c_name"), UniqueViolation},
		{"SQLiteForeignKey", errors.New("FOREIGN KEY constraint failed"), ForeignKeyViolation},
		{"Wrapped", &ConstraintError{Kind: CheckViolation, Err: errors.New("x")}, CheckViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
			assert.Equal(t, tt.want != NoViolation, IsConstraintError(tt.err))
		})
	}
}

func TestPredicates(t *testing.T) {
	unique := errors.New("UNIQUE constraint failed: t_category.c_name")
	assert.True(t, IsUniqueConstraintError(unique))
	assert.False(t, IsForeignKeyConstraintError(unique))
	assert.False(t, IsCheckConstraintError(unique))
	assert.True(t, IsCheckConstraintError(errors.New(`new row violates check constraint "ck"`)))
}

func TestAsValidationError(t *testing.T) {
	err := AsValidationError(&pgconn.PgError{Code: "23505", Message: "duplicate key"}, "Category", "a1")
	var es strata.ValidationErrors
	require.True(t, errors.As(err, &es))
	require.Len(t, es, 1)
	assert.Equal(t, strata.CodeNotUnique, es[0].Code)
	assert.Equal(t, "Category", es[0].Entity)
	assert.Equal(t, "a1", es[0].ID)

	err = AsValidationError(errors.New("FOREIGN KEY constraint failed"), "Order", 1)
	require.True(t, errors.As(err, &es))
	assert.Equal(t, strata.CodeNotFound, es[0].Code)

	plain := errors.New("disk full")
	assert.Equal(t, plain, AsValidationError(plain, "Order", 1))
}

func TestConstraintError(t *testing.T) {
	inner := errors.New("dup")
	err := &ConstraintError{Kind: UniqueViolation, Err: inner}
	assert.Equal(t, "sqlgraph: unique constraint violation: dup", err.Error())
	assert.True(t, errors.Is(err, inner))
}
