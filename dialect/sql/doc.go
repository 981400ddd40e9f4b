// Package sql implements dialect.Driver on top of database/sql.
//
// Drivers are opened by the name their database/sql driver registered
// under, and the dialect follows from it:
//
//	import _ "github.com/jackc/pgx/v5/stdlib"
//
//	drv, err := sql.Open("pgx", dsn) // drv.Dialect() == dialect.Postgres
//
// StatsDriver counts statements and transactions and logs slow
// statements through log/slog.
package sql
