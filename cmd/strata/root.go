package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/syssam/strata"
	"github.com/syssam/strata/internal/config"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/rdbms"
)

// Exit codes.
const (
	exitGeneral = 1
	exitConfig  = 2
	exitModel   = 3
	exitDB      = 4
)

// exitError carries the exit code of a failed command.
type exitError struct {
	code int
	msg  string
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *exitError) Unwrap() error { return e.err }

var (
	cfg        *config.Config
	configPath string
	logger     *slog.Logger

	cfgFile   string
	modelFile string
	verbose   int
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Graph-expression query compiler and mutation planner",
	Long: `strata - graph-expression query compiler and mutation planner

strata compiles the transfer types of a metamodel into SQL selects, derives
the tables storing its entity types and runs its operations.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		if cfg, configPath, err = config.Load(cfgFile); err != nil {
			return &exitError{code: exitConfig, msg: "loading configuration", err: err}
		}
		if verbose > 0 {
			cfg.Log.Level = "debug"
		}
		logger = cfg.Logger()
		slog.SetDefault(logger)
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default: auto-discover strata.yaml)")
	f.StringVarP(&modelFile, "model", "m", "", "metamodel file (default: model from config)")
	f.CountVarP(&verbose, "verbose", "v", "debug logging; -vv also logs every statement")

	rootCmd.AddCommand(compileCmd, planCmd, callCmd, ddlCmd, configCmd)
}

// Execute runs the root command and exits with the code of its error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitGeneral)
	}
}

// loadModel loads the metamodel named by --model or the configuration.
func loadModel() (*metamodel.Model, error) {
	path := resolveString(modelFile, cfg.Model)
	m, err := metamodel.LoadFile(path)
	if err != nil {
		code := exitModel
		if !strata.IsConfigError(err) && errors.Is(err, os.ErrNotExist) {
			code = exitConfig
		}
		return nil, &exitError{code: code, msg: "loading model " + path, err: err}
	}
	return m, nil
}

// resolveString returns the first non-empty value, implementing the
// precedence flag > config > default.
func resolveString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolver returns the physical name resolver of d, truncating at
// naming.max_identifier when set.
func resolver(d *rdbms.Dialect) *rdbms.Resolver {
	if n := cfg.Naming.MaxIdentifier; n > 0 {
		return rdbms.NewResolver(n)
	}
	return rdbms.NewResolver(d.MaxIdentifier)
}
