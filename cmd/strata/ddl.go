package main

import (
	"fmt"
	"strings"

	"ariga.io/atlas/sql/migrate"
	"github.com/spf13/cobra"

	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/rdbms"
)

var (
	ddlDialect  string
	ddlPrevious string
	ddlDir      string
	ddlFormat   string
	ddlWrite    bool
	ddlForce    bool
)

var ddlCmd = &cobra.Command{
	Use:   "ddl",
	Short: "Print or write the DDL of a model",
	Long: `Derive the tables storing the entity types of a model and print the
statements creating them. With --previous the statements migrate a
database from the tables of the previous model instead; changes losing
stored data fail unless --force is given.

With --write the statements are added as a new file to a migration
directory in one of the supported formats.`,
	Example: `  # Print the statements creating an empty database
  strata ddl -m shop.yaml

  # Print the migration from the last released model
  strata ddl -m shop.yaml --previous release/shop.yaml

  # Add the migration to a golang-migrate directory
  strata ddl -m shop.yaml --previous release/shop.yaml --write --format golang-migrate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := rdbms.DialectFor(resolveString(ddlDialect, cfg.Database.Dialect))
		if err != nil {
			return &exitError{code: exitConfig, msg: "dialect", err: err}
		}
		m, err := loadModel()
		if err != nil {
			return err
		}
		to, err := schema.Tables(m, d, schema.WithResolver(resolver(d)))
		if err != nil {
			return &exitError{code: exitModel, msg: "deriving tables", err: err}
		}
		if res := schema.ValidateSchema(to); res.HasErrors() {
			return &exitError{code: exitModel, msg: "invalid tables", err: fmt.Errorf("%s", res)}
		}
		ctx := cmd.Context()
		var plan *migrate.Plan
		if ddlPrevious == "" {
			p, err := schema.Create(ctx, d.Name, to)
			if err != nil {
				return &exitError{code: exitModel, msg: "planning create", err: err}
			}
			plan = p
		} else {
			prev, err := metamodel.LoadFile(ddlPrevious)
			if err != nil {
				return &exitError{code: exitModel, msg: "loading model " + ddlPrevious, err: err}
			}
			from, err := schema.Tables(prev, d, schema.WithResolver(resolver(d)))
			if err != nil {
				return &exitError{code: exitModel, msg: "deriving previous tables", err: err}
			}
			var vopts []schema.ValidateOption
			if ddlForce {
				vopts = append(vopts, schema.AllowDropTable(), schema.AllowDropColumn(), schema.AllowNullToNotNull())
			}
			res := schema.ValidateDiff(from, to, vopts...)
			for _, w := range res.Warnings {
				logger.Warn("schema change", "change", w.Error(), "breaking", w.Breaking)
			}
			if res.HasErrors() {
				return &exitError{code: exitModel, msg: "unsafe migration (use --force to allow)", err: fmt.Errorf("%s", res)}
			}
			if plan, err = schema.Migrate(ctx, d.Name, from, to); err != nil {
				return &exitError{code: exitModel, msg: "planning migration", err: err}
			}
		}
		out := cmd.OutOrStdout()
		if plan == nil {
			fmt.Fprintln(out, "-- no changes")
			return nil
		}
		if !ddlWrite {
			fmt.Fprintln(out, strings.Join(schema.Statements(plan), "\n"))
			return nil
		}
		dir, format := resolveString(ddlDir, cfg.DDL.Dir), resolveString(ddlFormat, cfg.DDL.Format)
		if err := schema.WriteDir(dir, format, plan); err != nil {
			return &exitError{code: exitGeneral, msg: "writing migration", err: err}
		}
		fmt.Fprintf(out, "wrote %d statements to %s (%s)\n", len(plan.Changes), dir, format)
		return nil
	},
}

func init() {
	f := ddlCmd.Flags()
	f.StringVar(&ddlDialect, "dialect", "", "SQL dialect: postgres, mysql or sqlite (default: database.dialect)")
	f.StringVar(&ddlPrevious, "previous", "", "previous model file to migrate from")
	f.BoolVar(&ddlWrite, "write", false, "write a migration file instead of printing")
	f.StringVar(&ddlDir, "dir", "", "migration directory (default: ddl.dir)")
	f.StringVar(&ddlFormat, "format", "", "migration format: "+strings.Join(schema.Formats(), ", ")+" (default: ddl.format)")
	f.BoolVar(&ddlForce, "force", false, "allow migrations dropping tables or columns")
}
