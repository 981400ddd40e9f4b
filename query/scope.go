package query

import (
	"github.com/syssam/strata"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/metamodel"
)

// instance is an entity instance available to expressions: a row of the
// table behind alias. The logical type may be a subtype or a supertype of
// the table type when the row was reached through an inherited column.
type instance struct {
	alias  string
	entity *metamodel.EntityType
	table  *metamodel.EntityType
	outer  bool // the row may be missing
}

// scope is the lexical environment an expression is compiled in.
type scope struct {
	sel  *Select
	self instance
	vars map[string]instance
}

func (s *scope) bind(name string, in instance) *scope {
	vars := make(map[string]instance, len(s.vars)+1)
	for k, v := range s.vars {
		vars[k] = v
	}
	vars[name] = in
	return &scope{sel: s.sel, self: s.self, vars: vars}
}

func (s *scope) lookup(name string) (instance, error) {
	in, ok := s.vars[name]
	if !ok {
		return instance{}, strata.NewConfigError(name, "unbound variable")
	}
	return in, nil
}

// tableFor returns the alias of the table of want holding the columns of
// in, joining it on the shared identifier when needed. Ancestor rows always
// exist; subtype rows only for subtype instances.
func (c *compilation) tableFor(sc *scope, in instance, want *metamodel.EntityType, outer bool) string {
	if want == nil || want == in.table {
		return in.alias
	}
	return c.identity(sc, in, want, outer || !in.table.IsKindOf(want))
}

func (c *compilation) identity(sc *scope, in instance, want *metamodel.EntityType, outer bool) string {
	k := joinKey{sc.sel.id, in.alias, "=" + want.Name}
	if j, ok := c.joins[k]; ok {
		return j.alias
	}
	j := &Join{
		Alias:   c.tableAlias(),
		Kind:    JoinIdentity,
		Entity:  want,
		Select:  sc.sel.id,
		Partner: in.alias,
		Outer:   outer,
	}
	sc.sel.Joins = append(sc.sel.Joins, c.m.addNode(j))
	c.joins[k] = instance{alias: j.Alias, entity: in.entity, table: want, outer: outer}
	return j.Alias
}

// linkTable returns the entity type whose table holds the link column of
// an inverse foreign key reference.
func linkTable(r *metamodel.Reference) *metamodel.EntityType {
	if o := r.Opposite; o != nil && o.Storage == metamodel.StorageForeignKey {
		return o.Owner
	}
	return r.Target
}

// navigate follows a to-one reference of in with a join.
func (c *compilation) navigate(sc *scope, in instance, r *metamodel.Reference) (instance, error) {
	if r.IsMany() {
		return instance{}, strata.NewConfigError(r.QualifiedName(), "to-many reference navigated as a single instance")
	}
	k := joinKey{sc.sel.id, in.alias, "." + r.Name}
	if j, ok := c.joins[k]; ok {
		return j, nil
	}
	l := &Link{Reference: r, Owner: in.alias}
	table := r.Target
	switch r.Storage {
	case metamodel.StorageForeignKey:
		l.Owner = c.tableFor(sc, in, r.Owner, in.outer)
	case metamodel.StorageInverseForeignKey:
		table = linkTable(r)
	}
	j := &Join{
		Alias:  c.tableAlias(),
		Kind:   JoinReference,
		Entity: table,
		Select: sc.sel.id,
		Outer:  in.outer || !r.Required(),
		Link:   l,
	}
	l.Target = j.Alias
	if r.Storage == metamodel.StorageJunction {
		l.Junction = c.tableAlias()
		j.JunctionAlias = l.Junction
	}
	sc.sel.Joins = append(sc.sel.Joins, c.m.addNode(j))
	out := instance{alias: j.Alias, entity: r.Target, table: table, outer: j.Outer}
	c.joins[k] = out
	return out, nil
}

// reverse joins the owner side of r to the select, given the target side.
func (c *compilation) reverse(sc *scope, to instance, r *metamodel.Reference, alias string) instance {
	l := &Link{Reference: r, Target: to.alias}
	if r.Storage == metamodel.StorageInverseForeignKey {
		l.Target = c.tableFor(sc, to, linkTable(r), false)
	}
	j := &Join{
		Alias:  alias,
		Kind:   JoinReference,
		Entity: r.Owner,
		Select: sc.sel.id,
		Link:   l,
	}
	if j.Alias == "" {
		j.Alias = c.tableAlias()
	}
	l.Owner = j.Alias
	if r.Storage == metamodel.StorageJunction {
		l.Junction = c.tableAlias()
		j.JunctionAlias = l.Junction
	}
	sc.sel.Joins = append(sc.sel.Joins, c.m.addNode(j))
	return instance{alias: j.Alias, entity: r.Owner, table: r.Owner}
}

type (
	filter struct {
		v    string
		cond expr.Expr
	}
	step struct {
		ref     *metamodel.Reference
		filters []filter
	}
	// path is a navigation from a base instance (or the extent of an
	// entity type) through references, with element filters per step.
	path struct {
		base          instance
		extent        *metamodel.EntityType
		extentFilters []filter
		steps         []step
	}
)

func (p path) element() *metamodel.EntityType {
	switch {
	case len(p.steps) > 0:
		return p.steps[len(p.steps)-1].ref.Target
	case p.extent != nil:
		return p.extent
	}
	return p.base.entity
}

func (p path) many() bool {
	if p.extent != nil {
		return true
	}
	for _, s := range p.steps {
		if s.ref.IsMany() {
			return true
		}
	}
	return false
}

func (p path) with(s step) path {
	steps := make([]step, len(p.steps), len(p.steps)+1)
	copy(steps, p.steps)
	p.steps = append(steps, s)
	return p
}

func (p path) filtered(f filter) path {
	if len(p.steps) == 0 {
		p.extentFilters = append(append([]filter(nil), p.extentFilters...), f)
		return p
	}
	steps := make([]step, len(p.steps))
	copy(steps, p.steps)
	last := &steps[len(steps)-1]
	last.filters = append(append([]filter(nil), last.filters...), f)
	p.steps = steps
	return p
}

// pathOf resolves a collection-valued (or instance-valued) expression into
// a path without adding joins for its steps.
func (c *compilation) pathOf(sc *scope, e expr.Expr) (path, error) {
	switch e := e.(type) {
	case expr.All:
		ent, err := c.entity(e.Entity)
		if err != nil {
			return path{}, err
		}
		return path{extent: ent}, nil
	case expr.Filter:
		p, err := c.pathOf(sc, e.Collection)
		if err != nil {
			return path{}, err
		}
		if !p.many() {
			return path{}, strata.NewConfigError(e.String(), "select applied to a single instance")
		}
		return p.filtered(filter{v: e.Var, cond: e.Cond}), nil
	case expr.Nav:
		return c.extend(sc, e.From, e.Reference)
	case expr.Attr:
		return c.extend(sc, e.From, e.Name)
	}
	in, err := c.instanceOf(sc, e)
	if err != nil {
		return path{}, err
	}
	return path{base: in}, nil
}

func (c *compilation) extend(sc *scope, from expr.Expr, name string) (path, error) {
	p, err := c.pathOf(sc, from)
	if err != nil {
		return path{}, err
	}
	ent := p.element()
	r := ent.Reference(name)
	if r == nil {
		if ent.Attribute(name) != nil {
			return path{}, strata.NewConfigError(ent.Name+"."+name, "attribute used as a collection")
		}
		return path{}, strata.NewConfigError(ent.Name+"."+name, "unknown reference")
	}
	return p.with(step{ref: r}), nil
}

// collectionOf resolves an expression that must denote several instances.
func (c *compilation) collectionOf(sc *scope, e expr.Expr) (path, error) {
	p, err := c.pathOf(sc, e)
	if err != nil {
		return path{}, err
	}
	if !p.many() {
		return path{}, strata.NewConfigError(e.String(), "expression is not a collection")
	}
	return p, nil
}

// instanceOf resolves an expression that denotes a single instance, joining
// the tables it navigates.
func (c *compilation) instanceOf(sc *scope, e expr.Expr) (instance, error) {
	switch e := e.(type) {
	case expr.SelfExpr:
		if sc.self.alias == "" {
			return instance{}, strata.NewConfigError("self", "self is not available in this context")
		}
		return sc.self, nil
	case expr.Var:
		return sc.lookup(e.Name)
	case expr.Nav:
		return c.follow(sc, e.From, e.Reference)
	case expr.Attr:
		return c.follow(sc, e.From, e.Name)
	case expr.Selector:
		return c.selector(sc, e)
	}
	return instance{}, strata.NewConfigError(e.String(), "expression is not an instance")
}

func (c *compilation) follow(sc *scope, from expr.Expr, name string) (instance, error) {
	in, err := c.instanceOf(sc, from)
	if err != nil {
		return instance{}, err
	}
	r := in.entity.Reference(name)
	if r == nil {
		return instance{}, strata.NewConfigError(in.entity.Name+"."+name, "unknown reference")
	}
	return c.navigate(sc, in, r)
}

// correlate builds the select of a subselect over the elements of p. The
// path is walked backwards from the element to its base, which is either
// correlated with the enclosing select or, for relation subselects,
// replaced by a partner copy whose identifier is projected.
func (c *compilation) correlate(sc *scope, p path, kind SubSelectKind) (*SubSelect, *scope, instance, error) {
	sub := &SubSelect{Kind: kind, Partner: sc.sel.id}
	c.m.addNode(sub)
	elemType := p.element()
	inner := c.newSelect(elemType, nil, sub.id)
	sub.Select = inner.id
	isc := &scope{sel: inner, self: sc.self, vars: sc.vars}
	if kind == SubSelectRelation {
		// Relation subselects run on their own.
		isc = &scope{sel: inner}
	}
	elem := instance{alias: inner.Alias, entity: elemType, table: elemType}

	cur := elem
	for i := len(p.steps) - 1; i >= 0; i-- {
		st := p.steps[i]
		if err := c.applyFilters(isc, cur, st.filters); err != nil {
			return nil, nil, instance{}, err
		}
		r := st.ref
		switch {
		case i > 0:
			cur = c.reverse(isc, cur, r, "")
			cur.entity = p.steps[i-1].ref.Target
		case p.extent != nil:
			cur = c.reverse(isc, cur, r, "")
			cur.entity = p.extent
		case kind == SubSelectRelation:
			partner := c.reverse(isc, cur, r, c.subAlias())
			sub.Alias = partner.alias
			sub.PartnerKey = c.identifier(partner)
		default:
			l := &Link{Reference: r, Owner: p.base.alias, Target: cur.alias}
			switch r.Storage {
			case metamodel.StorageForeignKey:
				l.Owner = c.tableFor(sc, p.base, r.Owner, p.base.outer)
			case metamodel.StorageInverseForeignKey:
				l.Target = c.tableFor(isc, cur, linkTable(r), false)
			case metamodel.StorageJunction:
				l.Junction = c.tableAlias()
			}
			inner.Filters = append(inner.Filters, c.link(l))
		}
	}
	if p.extent != nil {
		if p.extent != cur.table {
			// Restricts the rows to instances of the extent type.
			c.identity(isc, cur, p.extent, false)
		}
		if err := c.applyFilters(isc, cur, p.extentFilters); err != nil {
			return nil, nil, instance{}, err
		}
	}
	return sub, isc, elem, nil
}

func (c *compilation) applyFilters(sc *scope, in instance, filters []filter) error {
	for _, f := range filters {
		id, err := c.condition(sc.bind(f.v, in), f.cond)
		if err != nil {
			return err
		}
		sc.sel.Filters = append(sc.sel.Filters, id)
	}
	return nil
}

// selector joins the element picked by a head, tail or any selector.
func (c *compilation) selector(sc *scope, s expr.Selector) (instance, error) {
	p, err := c.collectionOf(sc, s.Collection)
	if err != nil {
		return instance{}, err
	}
	sub, isc, elem, err := c.correlate(sc, p, SubSelectSelector)
	if err != nil {
		return instance{}, err
	}
	inner := c.m.Select(sub.Select)
	tail := s.Op == expr.SelectTail
	osc := isc
	if s.Var != "" {
		osc = isc.bind(s.Var, elem)
	}
	for _, o := range s.Orders {
		f, err := c.convert(osc, o.By)
		if err != nil {
			return instance{}, err
		}
		inner.Orders = append(inner.Orders, Order{Feature: f, Descending: o.Descending != tail})
	}
	id := c.identifier(elem)
	inner.Orders = append(inner.Orders, Order{Feature: id, Descending: tail})
	c.project(inner, id)
	inner.Limit = 1

	j := &Join{
		Alias:     c.tableAlias(),
		Kind:      JoinSelector,
		Entity:    elem.table,
		Select:    sc.sel.id,
		Outer:     true,
		SubSelect: sub.id,
	}
	sc.sel.Joins = append(sc.sel.Joins, c.m.addNode(j))
	return instance{alias: j.Alias, entity: elem.entity, table: elem.table, outer: true}, nil
}

func (c *compilation) entity(name string) (*metamodel.EntityType, error) {
	if c.model == nil {
		return nil, strata.NewConfigError(name, "extent used without a model")
	}
	e := c.model.Entity(name)
	if e == nil {
		return nil, strata.NewConfigError(name, "unknown entity type")
	}
	return e, nil
}
