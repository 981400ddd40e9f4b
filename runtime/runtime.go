// Package runtime wires a loaded metamodel to a database: it compiles and
// caches the query models of transfer types, plans mutations behind the
// authorization gate and executes both against a dialect.Driver.
//
// A Runtime is safe for concurrent use. The metamodel it serves is
// immutable; swap runtimes to serve a reloaded model.
package runtime

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/executor"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/privacy"
	"github.com/syssam/strata/query"
	"github.com/syssam/strata/rdbms"
	"github.com/syssam/strata/statement"
)

// Runtime executes the operations of one metamodel.
type Runtime struct {
	model    *metamodel.Model
	driver   dialect.Driver
	builder  *rdbms.Builder
	compiler *query.Compiler
	compiled *strata.CompiledCache[*query.Model]
	gate     *privacy.Gate
	planner  *statement.Planner
	selects  *executor.Select
	// reads inside transactions bypass the result cache.
	txSelects *executor.Select
	modify    *executor.Modify
	cache     strata.Cache
	logger    *slog.Logger
}

// Option configures a Runtime.
type Option func(*config)

type config struct {
	gate     *privacy.Gate
	resolver *rdbms.Resolver
	cache    strata.Cache
	ttl      time.Duration
	chunk    int
	size     int
	logger   *slog.Logger
	planner  []statement.Option
}

// WithGate sets the authorization gate. Defaults to a gate without
// signer and custom rules.
func WithGate(g *privacy.Gate) Option {
	return func(c *config) { c.gate = g }
}

// WithResolver sets the physical name resolver of the SQL builder.
func WithResolver(r *rdbms.Resolver) Option {
	return func(c *config) { c.resolver = r }
}

// WithCache caches selected rows for ttl. Every committed mutation drops
// the cached results.
func WithCache(cache strata.Cache, ttl time.Duration) Option {
	return func(c *config) { c.cache, c.ttl = cache, ttl }
}

// WithChunkSize sets the page size of selects and the batch size of
// relation selects and range checks.
func WithChunkSize(n int) Option {
	return func(c *config) { c.chunk = n }
}

// WithCompiledCacheSize bounds the number of compiled query models kept.
func WithCompiledCacheSize(n int) Option {
	return func(c *config) { c.size = n }
}

// WithLogger sets the logger of the runtime and its executors.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithPlannerOptions configures the statement planner, e.g. its clock or
// identifier generator. The gate is always its guard.
func WithPlannerOptions(opts ...statement.Option) Option {
	return func(c *config) { c.planner = append(c.planner, opts...) }
}

// New returns a runtime serving m on drv. The SQL dialect follows
// drv.Dialect().
func New(m *metamodel.Model, drv dialect.Driver, opts ...Option) (*Runtime, error) {
	c := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	d, err := rdbms.DialectFor(drv.Dialect())
	if err != nil {
		return nil, err
	}
	var bopts []rdbms.BuilderOption
	if c.resolver != nil {
		bopts = append(bopts, rdbms.WithResolver(c.resolver))
	}
	if c.gate == nil {
		c.gate = privacy.NewGate()
	}
	compiled, err := strata.NewCompiledCache[*query.Model](c.size)
	if err != nil {
		return nil, err
	}
	r := &Runtime{
		model:    m,
		driver:   drv,
		builder:  rdbms.NewBuilder(d, bopts...),
		compiler: query.NewCompiler(m),
		compiled: compiled,
		gate:     c.gate,
		planner:  statement.NewPlanner(append([]statement.Option{statement.WithGuard(c.gate)}, c.planner...)...),
		cache:    c.cache,
		logger:   c.logger,
	}
	xopts := []executor.Option{executor.WithChunkSize(c.chunk), executor.WithLogger(c.logger)}
	r.txSelects = executor.NewSelect(r.builder, xopts...)
	r.selects = r.txSelects
	if c.cache != nil {
		r.selects = executor.NewSelect(r.builder, append(xopts, executor.WithCache(c.cache, c.ttl))...)
	}
	if r.modify, err = executor.NewModify(r.builder, r.compiler, xopts...); err != nil {
		return nil, err
	}
	return r, nil
}

// Model returns the metamodel served by r.
func (r *Runtime) Model() *metamodel.Model { return r.model }

// Builder returns the SQL builder of r.
func (r *Runtime) Builder() *rdbms.Builder { return r.builder }

// Compile returns the query model of t. Models compiled without options
// are cached by transfer name. The bool is false for transfer types that
// are not mapped to an entity type.
func (r *Runtime) Compile(t *metamodel.TransferType, opts ...query.Option) (*query.Model, bool, error) {
	if t == nil || !t.Mapped() {
		return nil, false, nil
	}
	if len(opts) > 0 {
		return r.compiler.Compile(t, opts...)
	}
	m, err := r.compiled.GetOrAdd("transfer:"+t.Name, func() (*query.Model, error) {
		m, _, err := r.compiler.Compile(t)
		return m, err
	})
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// CompileRange returns the cached query model of the candidates of rel.
func (r *Runtime) CompileRange(rel *metamodel.TransferRelation) (*query.Model, error) {
	if rel == nil {
		return nil, strata.NewConfigError("relation", "range of an unresolved relation")
	}
	return r.compiled.GetOrAdd("range:"+rel.QualifiedName(), func() (*query.Model, error) {
		return r.compiler.CompileRange(rel)
	})
}

// Plan plans a mutation. Nested relation changes are checked by the gate.
func (r *Runtime) Plan(ctx context.Context, req statement.Request) ([]statement.Statement, error) {
	return r.planner.Plan(ctx, req)
}

// Execute runs m outside of any transaction, through the result cache
// when one is configured.
func (r *Runtime) Execute(ctx context.Context, m *query.Model, opts ...executor.RunOption) iter.Seq2[statement.Payload, error] {
	return r.selects.Run(ctx, r.driver, m, opts...)
}

// Apply runs stmts in tx and drops the cached results on success. Callers
// commit or roll back tx.
func (r *Runtime) Apply(ctx context.Context, tx dialect.ExecQuerier, stmts []statement.Statement) error {
	if err := r.modify.Apply(ctx, tx, stmts); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *Runtime) invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.DeletePrefix(ctx, strata.CachePrefix); err != nil {
		r.logger.WarnContext(ctx, "strata: cache invalidation failed", "error", err)
	}
}
