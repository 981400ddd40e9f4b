// Package rdbms renders compiled query models and planned statements as
// SQL for PostgreSQL, MySQL and SQLite.
//
// The Resolver derives the physical names of tables and columns from the
// metamodel. A Dialect holds the function templates, the identifier rules
// and the parameter mapping of one database. The Builder combines both:
//
//	b := rdbms.NewBuilder(rdbms.Postgres)
//	q, err := b.Select(model, model.Root, rdbms.WithPage(1000, 0))
//	if err != nil {
//		return err
//	}
//	rows, err := db.QueryContext(ctx, q.SQL, q.Args...)
//
// Constants never appear in the SQL text. Every value is bound through a
// placeholder, numbered in the order it appears in the text, so the same
// model yields the same arguments in the same order on every dialect.
package rdbms
