package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/syssam/strata"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/privacy"
	"github.com/syssam/strata/rdbms"
	"github.com/syssam/strata/statement"
)

var (
	planDialect string
	planPayload string
)

var planCmd = &cobra.Command{
	Use:   "plan <operation>",
	Short: "Print the statements a create operation would run",
	Long: `Plan the payload of a create operation without a database and print the
planned statements with their SQL. Nested relations are checked against the
permissions of the model. Range validations need stored data and are
listed without SQL.`,
	Example: `  echo '{name: Beverages, children: [{name: Tea}]}' | strata plan -m shop.yaml createCategory --payload -`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := rdbms.DialectFor(resolveString(planDialect, cfg.Database.Dialect))
		if err != nil {
			return &exitError{code: exitConfig, msg: "dialect", err: err}
		}
		m, err := loadModel()
		if err != nil {
			return err
		}
		op := m.Operation(args[0])
		if op == nil {
			return strata.NewConfigError(args[0], "unknown operation")
		}
		if op.Behaviour != metamodel.BehaviourCreate {
			return strata.NewConfigError(op.Name, "only create operations can be planned offline, got %s", op.Behaviour)
		}
		payload, err := readPayload(cmd.InOrStdin(), planPayload)
		if err != nil {
			return &exitError{code: exitGeneral, msg: "reading payload", err: err}
		}
		planner := statement.NewPlanner(statement.WithGuard(privacy.NewGate()))
		stmts, err := planner.Plan(cmd.Context(), statement.Request{Behaviour: op.Behaviour, Type: op.Owner, Payload: payload})
		if err != nil {
			return err
		}
		b := rdbms.NewBuilder(d, rdbms.WithResolver(resolver(d)))
		return printPlan(cmd.OutOrStdout(), b, stmts)
	},
}

func init() {
	f := planCmd.Flags()
	f.StringVar(&planDialect, "dialect", "", "SQL dialect: postgres, mysql or sqlite (default: database.dialect)")
	f.StringVar(&planPayload, "payload", "-", "YAML payload file, - for stdin")
}

func printPlan(w io.Writer, b *rdbms.Builder, stmts []statement.Statement) error {
	for _, s := range stmts {
		in := s.Instance()
		fmt.Fprintf(w, "-- %s %s %s\n", s.Kind(), in.Entity.Name, in.Identifier)
		switch s.(type) {
		case *statement.Validation:
			continue
		case *statement.InstanceExists, *statement.CheckUnique:
			q, err := b.Check(s)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s;\n", q.SQL)
		default:
			cmds, err := b.Commands(s)
			if err != nil {
				return err
			}
			for _, c := range cmds {
				fmt.Fprintf(w, "%s;\n", c.SQL)
			}
		}
	}
	return nil
}
