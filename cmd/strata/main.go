// Command strata compiles metamodel transfer types to SQL, plans schema
// migrations and runs operations against a database.
//
// Usage:
//
//	strata [flags] <command>
//
// Commands reading the database (query, call) need database settings
// from strata.yaml, STRATA_* environment variables or --db.
package main

func main() {
	Execute()
}
