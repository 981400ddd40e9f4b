package main

import (
	stdsql "database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	// database/sql drivers selectable by database.driver.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/privacy"
	"github.com/syssam/strata/runtime"
	"github.com/syssam/strata/statement"
)

var (
	callDSN     string
	callPayload string
	callOwner   string
	callTargets []string
	callFilter  string
	callOrders  []string
	callLimit   int
	callOffset  int
	callActor   string
	callRoles   []string
)

var callCmd = &cobra.Command{
	Use:     "call <operation>",
	Aliases: []string{"query"},
	Short:   "Run an operation against the database",
	Long: `Run an operation of the model as an actor and print its results as YAML.

The payload of create, update and delete operations is read as YAML from
--payload, a file name or - for standard input. With signing.key set,
owner and target identifiers must be signed identifiers as returned by
earlier calls.`,
	Example: `  # List categories
  strata call -m shop.yaml --actor admin listCategories --limit 10

  # Create a category
  echo 'name: Beverages' | strata call -m shop.yaml --actor admin createCategory --payload -

  # Link tags to a product
  strata call -m shop.yaml --actor admin addProductTags --owner "$PRODUCT" --target "$TAG"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadModel()
		if err != nil {
			return err
		}
		in := runtime.Input{
			Owner:   callOwner,
			Targets: callTargets,
			Limit:   callLimit,
			Offset:  callOffset,
		}
		if in.Payload, err = readPayload(cmd.InOrStdin(), callPayload); err != nil {
			return &exitError{code: exitGeneral, msg: "reading payload", err: err}
		}
		if callFilter != "" {
			if in.Filter, err = expr.Parse(callFilter); err != nil {
				return &exitError{code: exitGeneral, msg: "parsing filter", err: err}
			}
		}
		for _, o := range callOrders {
			order, err := parseOrder(o)
			if err != nil {
				return &exitError{code: exitGeneral, msg: "parsing order", err: err}
			}
			in.Orders = append(in.Orders, order)
		}

		var gopts []privacy.GateOption
		if key := cfg.Signing.Key; key != "" {
			signer, err := privacy.NewSigner([]byte(key), privacy.WithTTL(cfg.Signing.TTL))
			if err != nil {
				return &exitError{code: exitConfig, msg: "signing.key", err: err}
			}
			gopts = append(gopts, privacy.WithSigner(signer))
		}

		dsn := callDSN
		if dsn == "" {
			if dsn, err = cfg.DSN(); err != nil {
				return &exitError{code: exitConfig, msg: "database", err: err}
			}
		}
		db, err := stdsql.Open(cfg.DriverName(), dsn)
		if err != nil {
			return &exitError{code: exitDB, msg: "opening database", err: err}
		}
		drv := sql.OpenDB(cfg.Database.Dialect, db)
		defer drv.Close()
		if err := db.PingContext(cmd.Context()); err != nil {
			return &exitError{code: exitDB, msg: "connecting to database", err: err}
		}
		stats := sql.NewStatsDriver(drv,
			sql.WithSlowThreshold(cfg.Executor.SlowQuery),
			sql.WithSlowQueryLog(logger),
		)

		var run dialect.Driver = stats
		if verbose > 1 {
			run = dialect.Debug(stats, logger)
		}
		rt, err := runtime.New(m, run,
			runtime.WithGate(privacy.NewGate(gopts...)),
			runtime.WithChunkSize(cfg.Executor.ChunkSize),
			runtime.WithCompiledCacheSize(cfg.Executor.CompiledCache),
			runtime.WithLogger(logger),
		)
		if err != nil {
			return &exitError{code: exitConfig, msg: "runtime", err: err}
		}
		ctx := cmd.Context()
		if callActor != "" {
			ctx = privacy.WithActor(ctx, &privacy.SimpleActor{ID: callActor, TypeName: "User", Roles: callRoles})
		}
		out, err := rt.Call(ctx, args[0], in)
		logger.DebugContext(ctx, "query stats", "stats", stats.Stats())
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		if out == nil {
			out = []statement.Payload{}
		}
		return enc.Encode(out)
	},
}

func init() {
	f := callCmd.Flags()
	f.StringVar(&callDSN, "db", "", "database connection string (default: from database config)")
	f.StringVar(&callPayload, "payload", "", "YAML payload file, - for stdin")
	f.StringVar(&callOwner, "owner", "", "identifier of the instance the operation is called on")
	f.StringSliceVar(&callTargets, "target", nil, "identifiers of the instances to link or unlink")
	f.StringVar(&callFilter, "filter", "", "filter expression evaluated on each result, e.g. \"name like 'T%'\"")
	f.StringArrayVar(&callOrders, "order", nil, "order expression, optionally followed by asc or desc (repeatable)")
	f.IntVar(&callLimit, "limit", 0, "maximum number of results")
	f.IntVar(&callOffset, "offset", 0, "number of results to skip")
	f.StringVar(&callActor, "actor", "", "identifier of the calling actor")
	f.StringSliceVar(&callRoles, "role", nil, "roles of the calling actor")
}

// readPayload decodes the YAML payload at path, or stdin for "-". An empty
// path yields a nil payload.
func readPayload(stdin io.Reader, path string) (statement.Payload, error) {
	var r io.Reader
	switch path {
	case "":
		return nil, nil
	case "-":
		r = stdin
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var p statement.Payload
	if err := yaml.NewDecoder(r).Decode(&p); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// parseOrder parses "expr", "expr asc" or "expr desc".
func parseOrder(s string) (expr.Order, error) {
	s = strings.TrimSpace(s)
	var desc bool
	if i := strings.LastIndexByte(s, ' '); i > 0 {
		switch strings.ToLower(s[i+1:]) {
		case "desc":
			desc, s = true, s[:i]
		case "asc":
			s = s[:i]
		}
	}
	e, err := expr.Parse(s)
	if err != nil {
		return expr.Order{}, fmt.Errorf("order %q: %w", s, err)
	}
	return expr.Order{By: e, Descending: desc}, nil
}
