// Package dialect defines the database boundary of strata.
//
// Compiled queries and planned statements are rendered for one of the
// supported dialects and executed through the Driver and Tx contracts:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// The Modify executor only ever receives a Tx; the caller owns the
// transaction boundary and decides whether to commit or roll back.
//
// Opening a database connection:
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
//	rt := runtime.New(model, drv)
//
// # Sub-packages
//
//   - dialect/sql: database/sql backed Driver, stats and debug drivers
//   - dialect/sql/schema: physical table derivation and DDL planning
//   - dialect/sql/sqlgraph: classification of driver constraint errors
package dialect
