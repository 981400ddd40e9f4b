package rdbms_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/rdbms"
)

func TestParam(t *testing.T) {
	m := loadShop(t)
	product, category := m.Entity("Product"), m.Entity("Category")
	huge, _ := new(big.Int).SetString("123456789012345678901234", 10)
	local := time.Date(2024, 3, 1, 11, 30, 0, 0, time.FixedZone("EET", 2*3600))

	tests := []struct {
		name  string
		d     *rdbms.Dialect
		v     any
		t     metamodel.Type
		a     *metamodel.Attribute
		value any
		sql   string
		cast  bool
	}{
		{name: "String", d: rdbms.Postgres, v: "Tea", a: category.Attribute("name"), value: "Tea", sql: "VARCHAR(80)"},
		{name: "StringSQLite", d: rdbms.SQLite, v: "Tea", a: category.Attribute("name"), value: "Tea", sql: "TEXT"},
		{name: "Text", d: rdbms.MySQL, v: "long", a: category.Attribute("description"), value: "long", sql: "LONGTEXT"},
		{name: "Integer", d: rdbms.Postgres, v: 7, a: product.Attribute("stock"), value: int64(7), sql: "BIGINT"},
		{name: "Inferred", d: rdbms.Postgres, v: int32(7), value: int64(7), sql: "BIGINT"},
		{name: "EnumLiteral", d: rdbms.Postgres, v: "RETIRED", a: product.Attribute("status"), value: int64(2), sql: "INTEGER"},
		{name: "EnumOrdinal", d: rdbms.MySQL, v: int64(1), t: metamodel.TypeEnum, a: product.Attribute("status"), value: int64(1), sql: "INTEGER"},
		{name: "Decimal", d: rdbms.Postgres, v: decimal.RequireFromString("9.50"), a: product.Attribute("price"), value: "9.5", sql: "NUMERIC(10,2)", cast: true},
		{name: "DecimalShape", d: rdbms.MySQL, v: decimal.RequireFromString("12.345"), value: "12.345", sql: "DECIMAL(5,3)", cast: true},
		{name: "DecimalFraction", d: rdbms.Postgres, v: decimal.RequireFromString("0.05"), value: "0.05", sql: "NUMERIC(3,2)", cast: true},
		{name: "DecimalFromFloat", d: rdbms.Postgres, v: 99.5, a: product.Attribute("price"), t: metamodel.TypeDecimal, value: "99.5", sql: "NUMERIC(10,2)", cast: true},
		{name: "BigInteger", d: rdbms.Postgres, v: huge, value: "123456789012345678901234", sql: "NUMERIC(24,0)", cast: true},
		{name: "BigIntegerSQLite", d: rdbms.SQLite, v: huge, value: "123456789012345678901234", sql: "NUMERIC", cast: true},
		{name: "Float", d: rdbms.SQLite, v: 1.5, value: 1.5, sql: "REAL"},
		{name: "Boolean", d: rdbms.MySQL, v: true, value: true, sql: "BOOLEAN"},
		{name: "Date", d: rdbms.Postgres, v: "2024-03-01", a: product.Attribute("releasedOn"), value: "2024-03-01", sql: "DATE", cast: true},
		{name: "DateFromTime", d: rdbms.SQLite, v: local, t: metamodel.TypeDate, value: "2024-03-01", sql: "TEXT", cast: true},
		{name: "Time", d: rdbms.MySQL, v: local, t: metamodel.TypeTime, value: "11:30:00.000", sql: "TIME(3)", cast: true},
		{name: "Timestamp", d: rdbms.Postgres, v: local, value: epoch, sql: "TIMESTAMP WITH TIME ZONE", cast: true},
		{name: "TimestampMySQL", d: rdbms.MySQL, v: local, value: epoch, sql: "DATETIME(3)"},
		{name: "TimestampSQLite", d: rdbms.SQLite, v: local, value: "2024-03-01T09:30:00.000Z", sql: "TEXT"},
		{name: "UUID", d: rdbms.Postgres, v: seq(9), value: seq(9).String(), sql: "UUID", cast: true},
		{name: "UUIDMySQL", d: rdbms.MySQL, v: seq(9).String(), t: metamodel.TypeUUID, value: seq(9).String(), sql: "CHAR(36)"},
		{name: "Null", d: rdbms.Postgres, v: nil, a: product.Attribute("price"), value: nil, sql: "NUMERIC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.d.Param(tt.v, tt.t, tt.a)
			require.NoError(t, err)
			assert.Equal(t, tt.value, p.Value)
			assert.Equal(t, tt.sql, p.SQLType)
			assert.Equal(t, tt.cast, p.Cast)
		})
	}
}

func TestParamErrors(t *testing.T) {
	m := loadShop(t)
	product := m.Entity("Product")

	tests := []struct {
		name string
		v    any
		t    metamodel.Type
		a    *metamodel.Attribute
	}{
		{name: "UnknownLiteral", v: "GONE", a: product.Attribute("status")},
		{name: "LiteralWithoutAttribute", v: "ACTIVE", t: metamodel.TypeEnum},
		{name: "NotBoolean", v: "yes", t: metamodel.TypeBoolean},
		{name: "NotInteger", v: 1.5, t: metamodel.TypeInteger},
		{name: "NotDate", v: "March 1st", t: metamodel.TypeDate},
		{name: "NotUUID", v: "x", t: metamodel.TypeUUID},
		{name: "Unmapped", v: struct{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rdbms.Postgres.Param(tt.v, tt.t, tt.a)
			assert.Error(t, err)
		})
	}
}
