package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/strata"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/query"
	"github.com/syssam/strata/rdbms"
)

var (
	compileDialect string
	compileWatch   bool
)

var compileCmd = &cobra.Command{
	Use:   "compile [transfer...]",
	Short: "Print the SQL of transfer types",
	Long: `Compile transfer types to the selects loading them. Without arguments every
mapped transfer type of the model is compiled. Relation selects are printed
below the root select of their transfer type.`,
	Example: `  # Compile every transfer type for Postgres
  strata compile -m shop.yaml

  # Compile one transfer type for MySQL
  strata compile -m shop.yaml --dialect mysql CategoryInfo

  # Recompile whenever the model file changes
  strata compile -m shop.yaml --watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := rdbms.DialectFor(resolveString(compileDialect, cfg.Database.Dialect))
		if err != nil {
			return &exitError{code: exitConfig, msg: "dialect", err: err}
		}
		m, err := loadModel()
		if err != nil {
			return err
		}
		b := rdbms.NewBuilder(d, rdbms.WithResolver(resolver(d)))
		out := cmd.OutOrStdout()
		if err := printCompiled(cmd.Context(), out, b, m, args); err != nil {
			return &exitError{code: exitModel, msg: "compiling", err: err}
		}
		if !compileWatch {
			return nil
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return metamodel.Watch(ctx, resolveString(modelFile, cfg.Model), func(m *metamodel.Model) {
			if err := printCompiled(ctx, out, b, m, args); err != nil {
				logger.ErrorContext(ctx, "compile failed", "error", err)
			}
		}, metamodel.WithWatchLogger(logger))
	},
}

func init() {
	f := compileCmd.Flags()
	f.StringVar(&compileDialect, "dialect", "", "SQL dialect: postgres, mysql or sqlite (default: database.dialect)")
	f.BoolVar(&compileWatch, "watch", false, "recompile when the model file changes")
}

// compiled is the rendered SQL of one transfer type.
type compiled struct {
	transfer string
	selects  []string
}

// compileAll compiles the named transfer types, or all mapped ones, in
// parallel. Results keep the order of the names.
func compileAll(ctx context.Context, b *rdbms.Builder, m *metamodel.Model, names []string) ([]compiled, error) {
	var types []*metamodel.TransferType
	if len(names) == 0 {
		for _, t := range m.Transfers() {
			if t.Mapped() {
				types = append(types, t)
			}
		}
	}
	for _, name := range names {
		t := m.Transfer(name)
		if t == nil {
			return nil, strata.NewConfigError(name, "unknown transfer type")
		}
		types = append(types, t)
	}
	c := query.NewCompiler(m)
	out := make([]compiled, len(types))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, t := range types {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			qm, ok, err := c.Compile(t)
			if err != nil {
				return err
			}
			if !ok {
				return strata.NewConfigError(t.Name, "transfer type is not mapped to an entity type")
			}
			selects, err := render(b, qm, qm.RootSelect())
			if err != nil {
				return fmt.Errorf("%s: %w", t.Name, err)
			}
			out[i] = compiled{transfer: t.Name, selects: selects}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// render returns the SQL of sel followed by its relation selects.
func render(b *rdbms.Builder, m *query.Model, sel *query.Select) ([]string, error) {
	var opts []rdbms.SelectOption
	if sel.ID() != m.Root {
		opts = append(opts, rdbms.WithPartners(uuid.Nil))
	}
	q, err := b.Select(m, sel.ID(), opts...)
	if err != nil {
		return nil, err
	}
	out := []string{q.SQL}
	for _, sid := range sel.SubSelects {
		inner, err := render(b, m, m.Select(m.SubSelect(sid).Select))
		if err != nil {
			return nil, err
		}
		out = append(out, inner...)
	}
	return out, nil
}

func printCompiled(ctx context.Context, w io.Writer, b *rdbms.Builder, m *metamodel.Model, names []string) error {
	all, err := compileAll(ctx, b, m, names)
	if err != nil {
		return err
	}
	for _, c := range all {
		fmt.Fprintf(w, "-- %s\n", c.transfer)
		for _, s := range c.selects {
			fmt.Fprintf(w, "%s;\n", s)
		}
		fmt.Fprintln(w)
	}
	return nil
}
