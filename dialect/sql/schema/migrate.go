package schema

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"
	"ariga.io/atlas/sql/sqltool"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
)

// Formats of migration directories supported by WriteDir.
var formats = map[string]migrate.Formatter{
	"atlas":          migrate.DefaultFormatter,
	"golang-migrate": sqltool.GolangMigrateFormatter,
	"goose":          sqltool.GooseFormatter,
	"flyway":         sqltool.FlywayFormatter,
	"liquibase":      sqltool.LiquibaseFormatter,
	"dbmate":         sqltool.DBMateFormatter,
}

// Formats returns the names of the supported migration directory formats.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func drivers(name string) (migrate.PlanApplier, schema.Differ, error) {
	switch name {
	case dialect.Postgres:
		return postgres.DefaultPlan, postgres.DefaultDiff, nil
	case dialect.MySQL:
		return mysql.DefaultPlan, mysql.DefaultDiff, nil
	case dialect.SQLite:
		return sqlite.DefaultPlan, sqlite.DefaultDiff, nil
	default:
		return nil, nil, strata.NewConfigError(name, "unsupported dialect")
	}
}

// Create plans the statements creating tables in an empty database.
func Create(ctx context.Context, name string, tables []*schema.Table) (*migrate.Plan, error) {
	pa, _, err := drivers(name)
	if err != nil {
		return nil, err
	}
	changes := make([]schema.Change, len(tables))
	for i, t := range tables {
		changes[i] = &schema.AddTable{T: t}
	}
	plan, err := pa.PlanChanges(ctx, "create", changes)
	if err != nil {
		return nil, fmt.Errorf("strata/schema: plan create: %w", err)
	}
	return plan, nil
}

// Migrate plans the statements moving a database from the tables of one
// version of a model to the tables of another. It returns a nil plan when
// there is nothing to change.
func Migrate(ctx context.Context, name string, from, to []*schema.Table) (*migrate.Plan, error) {
	pa, differ, err := drivers(name)
	if err != nil {
		return nil, err
	}
	changes, err := differ.SchemaDiff(realm(from), realm(to))
	if err != nil {
		return nil, fmt.Errorf("strata/schema: diff: %w", err)
	}
	if len(changes) == 0 {
		return nil, nil
	}
	plan, err := pa.PlanChanges(ctx, "migrate", changes)
	if err != nil {
		return nil, fmt.Errorf("strata/schema: plan migrate: %w", err)
	}
	return plan, nil
}

// realm gathers tables in a fresh unnamed schema. Tables keep pointing to
// the schema of their last gathering.
func realm(tables []*schema.Table) *schema.Schema {
	s := schema.New("")
	s.AddTables(tables...)
	return s
}

// Statements returns the statements of a plan, terminated by semicolons.
func Statements(p *migrate.Plan) []string {
	if p == nil {
		return nil
	}
	stmts := make([]string, len(p.Changes))
	for i, c := range p.Changes {
		stmts[i] = strings.TrimSuffix(c.Cmd, ";") + ";"
	}
	return stmts
}

// WriteDir writes a plan as a new migration file of the directory at
// path, in one of the Formats. The directory checksum file is updated.
func WriteDir(path, format string, p *migrate.Plan) error {
	f, ok := formats[format]
	if !ok {
		return strata.NewConfigError(format, "unknown migration format, expected one of %s", strings.Join(Formats(), ", "))
	}
	dir, err := migrate.NewLocalDir(path)
	if err != nil {
		return fmt.Errorf("strata/schema: open %s: %w", path, err)
	}
	if err := migrate.NewPlanner(nil, dir, migrate.PlanFormat(f)).WritePlan(p); err != nil {
		return fmt.Errorf("strata/schema: write %s: %w", path, err)
	}
	return nil
}
