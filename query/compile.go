package query

import (
	"slices"
	"strconv"

	"github.com/syssam/strata"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/metamodel"
)

// Compiler compiles the transfer types of one linked model.
type Compiler struct {
	model *metamodel.Model
}

// NewCompiler returns a compiler for the given linked model.
func NewCompiler(m *metamodel.Model) *Compiler {
	return &Compiler{model: m}
}

// Option configures a compilation.
type Option func(*options)

type options struct {
	filter expr.Expr
	orders []expr.Order
	limit  int
}

// WithFilter restricts the root instances to those satisfying cond, which
// is evaluated with self bound to the instance. Repeated filters are
// combined with and.
func WithFilter(cond expr.Expr) Option {
	return func(o *options) {
		o.filter = expr.And(o.filter, cond)
	}
}

// WithOrder orders the root instances. Instances are always ordered by
// identifier last so paging is stable.
func WithOrder(orders ...expr.Order) Option {
	return func(o *options) {
		o.orders = append(o.orders, orders...)
	}
}

// WithLimit caps the number of root instances.
func WithLimit(n int) Option {
	return func(o *options) {
		o.limit = n
	}
}

// Compile returns the query model of a transfer type. The same transfer
// type and options always yield the same model, aliases included. It
// reports false, without error, for transfer types that do not map an
// entity type and thus cannot be queried.
func (c *Compiler) Compile(t *metamodel.TransferType, opts ...Option) (*Model, bool, error) {
	if t == nil {
		return nil, false, strata.NewConfigError("transfer", "compile of a nil transfer type")
	}
	if !t.Mapped() {
		return nil, false, nil
	}
	m, err := c.compile(t, opts)
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func (c *Compiler) compile(t *metamodel.TransferType, opts []Option) (*Model, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	cp := newCompilation(c.model)
	sel := cp.newSelect(t.Entity, t, 0)
	cp.m.Root = sel.id
	sc := &scope{sel: sel, self: instance{alias: sel.Alias, entity: t.Entity, table: t.Entity}}
	tid, err := cp.target(sc, sc.self, t, 0, nil, false)
	if err != nil {
		return nil, err
	}
	sel.MainTarget = tid
	if o.filter != nil {
		f, err := cp.condition(sc, o.filter)
		if err != nil {
			return nil, err
		}
		sel.Filters = append(sel.Filters, f)
	}
	for _, ord := range o.orders {
		f, err := cp.convert(sc, ord.By)
		if err != nil {
			return nil, err
		}
		sel.Orders = append(sel.Orders, Order{Feature: f, Descending: ord.Descending})
	}
	sel.Orders = append(sel.Orders, Order{Feature: cp.m.Target(tid).Identifier})
	sel.Limit = o.limit
	return cp.m, nil
}

// CompileRange returns the query of the candidates of a relation: the
// instances of its target transfer type satisfying the relation range.
func (c *Compiler) CompileRange(rel *metamodel.TransferRelation, opts ...Option) (*Model, error) {
	if rel == nil || rel.Target == nil {
		return nil, strata.NewConfigError("relation", "range of an unresolved relation")
	}
	if !rel.Target.Mapped() {
		return nil, strata.NewConfigError(rel.QualifiedName(), "range target %s is not mapped to an entity type", rel.Target.Name)
	}
	if rel.Range != nil {
		opts = append([]Option{WithFilter(rel.Range)}, opts...)
	}
	return c.compile(rel.Target, opts)
}

// Condition compiles a boolean expression over the instances of an entity
// type into a standalone select projecting their identifiers. It serves
// existence and range checks of the statement executor.
func (c *Compiler) Condition(e *metamodel.EntityType, cond expr.Expr) (*Model, error) {
	cp := newCompilation(c.model)
	sel := cp.newSelect(e, nil, 0)
	cp.m.Root = sel.id
	sc := &scope{sel: sel, self: instance{alias: sel.Alias, entity: e, table: e}}
	id := cp.identifier(sc.self)
	cp.project(sel, id)
	if cond != nil {
		f, err := cp.condition(sc, cond)
		if err != nil {
			return nil, err
		}
		sel.Filters = append(sel.Filters, f)
	}
	sel.Orders = append(sel.Orders, Order{Feature: id})
	return cp.m, nil
}

type (
	joinKey struct {
		sel     NodeID
		partner string
		name    string
	}
	featureKey struct {
		alias, name string
	}
	projectKey struct {
		sel     NodeID
		feature FeatureID
	}
)

// compilation is the mutable state of one Compile call.
type compilation struct {
	model      *metamodel.Model
	m          *Model
	tables     int
	subs       int
	joins      map[joinKey]instance
	columns    map[featureKey]FeatureID
	projected  map[projectKey]bool
	mapped     map[Mapping]FeatureID
	embedding  []*metamodel.TransferType
	converters []converter
}

func newCompilation(model *metamodel.Model) *compilation {
	return &compilation{
		model:      model,
		m:          newModel(),
		joins:      make(map[joinKey]instance),
		columns:    make(map[featureKey]FeatureID),
		projected:  make(map[projectKey]bool),
		mapped:     make(map[Mapping]FeatureID),
		converters: registry(),
	}
}

func (c *compilation) tableAlias() string {
	c.tables++
	return "_t" + strconv.Itoa(c.tables)
}

func (c *compilation) subAlias() string {
	c.subs++
	return "_s" + strconv.Itoa(c.subs)
}

func (c *compilation) newSelect(e *metamodel.EntityType, t *metamodel.TransferType, owner NodeID) *Select {
	sel := &Select{Alias: c.tableAlias(), Entity: e, Transfer: t, Owner: owner}
	c.m.addNode(sel)
	return sel
}

// target materializes a transfer instance from the rows of the scope select.
func (c *compilation) target(sc *scope, in instance, t *metamodel.TransferType, parent TargetID, rel *metamodel.TransferRelation, referenced bool) (TargetID, error) {
	sel := sc.sel
	tg := &Target{
		Index:      len(sel.Targets),
		Select:     sel.id,
		Alias:      in.alias,
		Transfer:   t,
		Parent:     parent,
		Relation:   rel,
		Referenced: referenced,
	}
	tid := c.m.addTarget(tg)
	sel.Targets = append(sel.Targets, tid)
	tg.Identifier = c.identifier(in)
	c.project(sel, tg.Identifier)
	if referenced {
		return tid, nil
	}
	tg.Version = c.version(sc, in)
	c.project(sel, tg.Version)

	c.embedding = append(c.embedding, t)
	defer func() { c.embedding = c.embedding[:len(c.embedding)-1] }()

	tsc := &scope{sel: sel, self: in}
	for _, a := range t.Attributes {
		if a.Binding == nil {
			return 0, strata.NewConfigError(t.Name+"."+a.Name, "attribute has no binding")
		}
		f, err := c.convert(tsc, a.Binding)
		if err != nil {
			return 0, err
		}
		c.project(sel, f)
		mp := Mapping{Target: tid, Name: a.Name}
		feat := c.m.Feature(f)
		feat.Mappings = append(feat.Mappings, mp)
		c.mapped[mp] = f
	}
	for _, r := range t.Relations {
		if err := c.relation(tsc, tid, r); err != nil {
			return 0, err
		}
	}
	return tid, nil
}

func (c *compilation) relation(tsc *scope, tid TargetID, r *metamodel.TransferRelation) error {
	switch {
	case r.Binding == nil:
		return strata.NewConfigError(r.QualifiedName(), "relation has no binding")
	case r.Target == nil || !r.Target.Mapped():
		return strata.NewConfigError(r.QualifiedName(), "relation target is not mapped to an entity type")
	case !r.IsMany() && !r.Embedded:
		in, err := c.instanceOf(tsc, r.Binding)
		if err != nil {
			return err
		}
		_, err = c.target(tsc, in, r.Target, tid, r, true)
		return err
	case !r.Embedded:
		// Non-embedded collections are fetched through their operations.
		return nil
	case slices.Contains(c.embedding, r.Target):
		return strata.NewConfigError(r.QualifiedName(), "cycle of embedded relations through %s", r.Target.Name)
	case !r.IsMany():
		in, err := c.instanceOf(tsc, r.Binding)
		if err != nil {
			return err
		}
		_, err = c.target(tsc, in, r.Target, tid, r, false)
		return err
	}
	p, err := c.pathOf(tsc, r.Binding)
	if err != nil {
		return err
	}
	if p.extent != nil || p.base.alias != tsc.self.alias || len(p.steps) == 0 {
		return strata.NewConfigError(r.QualifiedName(), "embedded collection must navigate from self")
	}
	sub, isc, elem, err := c.correlate(tsc, p, SubSelectRelation)
	if err != nil {
		return err
	}
	sub.Target, sub.Relation = tid, r
	tsc.sel.SubSelects = append(tsc.sel.SubSelects, sub.id)
	inner := c.m.Select(sub.Select)
	inner.Transfer = r.Target
	child, err := c.target(isc, elem, r.Target, tid, r, false)
	if err != nil {
		return err
	}
	inner.MainTarget = child
	c.project(inner, sub.PartnerKey)
	for _, o := range r.OrderBy {
		f, ok := c.mapped[Mapping{Target: child, Name: o.Attribute}]
		if !ok {
			return strata.NewConfigError(r.QualifiedName(), "order by unknown attribute %q of %s", o.Attribute, r.Target.Name)
		}
		inner.Orders = append(inner.Orders, Order{Feature: f, Descending: o.Descending})
	}
	inner.Orders = append(inner.Orders, Order{Feature: c.m.Target(child).Identifier})
	return nil
}

// condition compiles a boolean expression.
func (c *compilation) condition(sc *scope, e expr.Expr) (FeatureID, error) {
	f, err := c.convert(sc, e)
	if err != nil {
		return 0, err
	}
	if t := c.m.Feature(f).Type; t != metamodel.TypeBoolean {
		return 0, strata.NewConfigError(e.String(), "condition is of type %s", t)
	}
	return f, nil
}

func (c *compilation) project(sel *Select, f FeatureID) {
	k := projectKey{sel.id, f}
	if c.projected[k] {
		return
	}
	c.projected[k] = true
	sel.Features = append(sel.Features, f)
}

func (c *compilation) column(kind FeatureKind, alias, name string, typ metamodel.Type, a *metamodel.Attribute) FeatureID {
	k := featureKey{alias, name}
	if f, ok := c.columns[k]; ok {
		return f
	}
	f := c.m.addFeature(&Feature{Kind: kind, Type: typ, Alias: alias, Attribute: a})
	c.columns[k] = f
	return f
}

func (c *compilation) attribute(sc *scope, in instance, a *metamodel.Attribute) FeatureID {
	return c.column(FeatureAttribute, c.tableFor(sc, in, a.Owner, in.outer), a.Name, a.Type, a)
}

func (c *compilation) identifier(in instance) FeatureID {
	return c.column(FeatureIdentifier, in.alias, "#id", metamodel.TypeUUID, nil)
}

func (c *compilation) version(sc *scope, in instance) FeatureID {
	return c.column(FeatureVersion, c.tableFor(sc, in, in.entity.Root(), in.outer), "#version", metamodel.TypeInteger, nil)
}

func (c *compilation) constant(v any, typ metamodel.Type, hint *metamodel.Attribute) FeatureID {
	return c.m.addFeature(&Feature{Kind: FeatureConstant, Type: typ, Value: v, Attribute: hint})
}

func (c *compilation) function(sig Signature, typ metamodel.Type, params ...FeatureID) FeatureID {
	return c.m.addFeature(&Feature{Kind: FeatureFunction, Type: typ, Signature: sig, Params: params})
}

func (c *compilation) link(l *Link) FeatureID {
	return c.m.addFeature(&Feature{Kind: FeatureLink, Type: metamodel.TypeBoolean, Link: l})
}
