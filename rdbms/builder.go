package rdbms

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/syssam/strata"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/query"
)

// Column is a result column of a rendered select.
type Column struct {
	Label   string
	Feature query.FeatureID
	Type    metamodel.Type
}

// Query is a rendered SELECT with its arguments.
type Query struct {
	SQL     string
	Args    []any
	Params  []Parameter
	Columns []Column
}

// Builder renders query models and statements for one dialect.
type Builder struct {
	dialect  *Dialect
	resolver *Resolver
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithResolver sets the resolver of physical names. Defaults to a
// resolver truncating at the identifier limit of the dialect.
func WithResolver(r *Resolver) BuilderOption {
	return func(b *Builder) { b.resolver = r }
}

// NewBuilder returns a builder for d.
func NewBuilder(d *Dialect, opts ...BuilderOption) *Builder {
	b := &Builder{dialect: d}
	for _, opt := range opts {
		opt(b)
	}
	if b.resolver == nil {
		b.resolver = NewResolver(d.MaxIdentifier)
	}
	return b
}

// Dialect returns the dialect of the builder.
func (b *Builder) Dialect() *Dialect { return b.dialect }

// Resolver returns the resolver of the builder.
func (b *Builder) Resolver() *Resolver { return b.resolver }

// SelectOption configures the rendering of a select.
type SelectOption func(*selectOptions)

type selectOptions struct {
	partners      []uuid.UUID
	hasPartners   bool
	ids           []uuid.UUID
	hasIDs        bool
	limit, offset int
	paged         bool
}

// WithPartners restricts a relation select to the elements of the given
// partner instances.
func WithPartners(ids ...uuid.UUID) SelectOption {
	return func(o *selectOptions) {
		o.partners, o.hasPartners = ids, true
	}
}

// WithIdentifiers restricts a select to the given instances.
func WithIdentifiers(ids ...uuid.UUID) SelectOption {
	return func(o *selectOptions) {
		o.ids, o.hasIDs = ids, true
	}
}

// WithPage returns the rows from offset on, at most limit of them. A
// limit compiled into the select still caps the total.
func WithPage(limit, offset int) SelectOption {
	return func(o *selectOptions) {
		o.limit, o.offset, o.paged = limit, offset, true
	}
}

// Select renders a select of m. The select must be the root select or
// the select of a relation subselect, which needs WithPartners.
func (b *Builder) Select(m *query.Model, node query.NodeID, opts ...SelectOption) (*Query, error) {
	sel, ok := m.Node(node).(*query.Select)
	if !ok {
		return nil, strata.NewConfigError(strconv.Itoa(int(node)), "node is not a select")
	}
	o := &selectOptions{}
	for _, opt := range opts {
		opt(o)
	}
	r := &renderer{frame: frame{d: b.dialect, r: b.resolver}, m: m}
	c := clause{project: projectLabelled, limit: sel.Limit}
	if sel.Owner != 0 {
		sub := m.SubSelect(sel.Owner)
		if sub.Kind != query.SubSelectRelation {
			return nil, strata.NewConfigError(sub.Alias, "%s subselect is correlated with its partner", sub.Kind)
		}
		if !o.hasPartners {
			return nil, strata.NewConfigError(sub.Relation.QualifiedName(), "relation select without partners")
		}
		key, err := r.feature(sub.PartnerKey)
		if err != nil {
			return nil, err
		}
		c.where = append(c.where, key+" IN "+r.ids(o.partners))
	}
	if o.hasIDs {
		c.where = append(c.where, r.column(sel.Alias, ColumnID)+" IN "+r.ids(o.ids))
	}
	if o.paged {
		c.offset = o.offset
		switch {
		case sel.Limit <= 0:
			c.limit = o.limit
		case o.offset >= sel.Limit:
			c.limit = -1
		default:
			c.limit = min(o.limit, sel.Limit-o.offset)
		}
	}
	text, err := r.selectSQL(sel, c)
	if err != nil {
		return nil, err
	}
	q := &Query{}
	q.SQL, q.Args, q.Params = r.finish(text)
	for _, id := range sel.Features {
		q.Columns = append(q.Columns, Column{Label: id.Label(), Feature: id, Type: m.Feature(id).Type})
	}
	return q, nil
}

type projection int

const (
	projectLabelled projection = iota
	projectPlain
	projectOne
)

// clause holds what a select renders beyond its own model.
type clause struct {
	project projection
	where   []string
	// limit zero is unlimited, negative is empty.
	limit, offset int
}

// renderer renders the nodes and features of one model into a frame.
type renderer struct {
	frame
	m *query.Model
}

func (r *renderer) selectSQL(sel *query.Select, c clause) (string, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	switch {
	case c.project == projectOne || len(sel.Features) == 0:
		b.WriteString("1")
	default:
		for i, id := range sel.Features {
			if i > 0 {
				b.WriteString(", ")
			}
			s, err := r.feature(id)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
			if c.project == projectLabelled {
				b.WriteString(" AS ")
				b.WriteString(r.quote(id.Label()))
			}
		}
	}
	b.WriteString(" FROM ")
	b.WriteString(r.table(sel.Entity))
	b.WriteString(" AS ")
	b.WriteString(r.quote(sel.Alias))
	for _, jid := range sel.Joins {
		s, err := r.join(r.m.Join(jid))
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	where := make([]string, 0, len(sel.Filters)+len(c.where))
	for _, id := range sel.Filters {
		s, err := r.feature(id)
		if err != nil {
			return "", err
		}
		where = append(where, s)
	}
	where = append(where, c.where...)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if len(sel.Orders) > 0 && c.project != projectOne {
		b.WriteString(" ORDER BY ")
		for i, o := range sel.Orders {
			if i > 0 {
				b.WriteString(", ")
			}
			s, err := r.feature(o.Feature)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
			if o.Descending {
				b.WriteString(" DESC")
			}
		}
	}
	switch {
	case c.limit < 0:
		b.WriteString(" LIMIT 0")
	case c.limit > 0:
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(c.limit))
	}
	if c.offset > 0 {
		if c.limit == 0 {
			// MySQL accepts OFFSET only after LIMIT.
			b.WriteString(" LIMIT " + strconv.FormatUint(1<<63-1, 10))
		}
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(c.offset))
	}
	return b.String(), nil
}

func (r *renderer) join(j *query.Join) (string, error) {
	kw := " JOIN "
	if j.Outer {
		kw = " LEFT OUTER JOIN "
	}
	var conds []string
	switch j.Kind {
	case query.JoinIdentity:
		conds = append(conds, "("+r.column(j.Alias, ColumnID)+" = "+r.column(j.Partner, ColumnID)+")")
	case query.JoinReference:
		s, err := r.link(j.Link)
		if err != nil {
			return "", err
		}
		conds = append(conds, s)
	case query.JoinSelector:
		inner := r.m.Select(r.m.SubSelect(j.SubSelect).Select)
		s, err := r.selectSQL(inner, clause{project: projectPlain, limit: inner.Limit})
		if err != nil {
			return "", err
		}
		conds = append(conds, "("+r.column(j.Alias, ColumnID)+" = ("+s+"))")
	default:
		return "", strata.NewConfigError(j.Alias, "unknown join kind %d", j.Kind)
	}
	for _, id := range j.On {
		s, err := r.feature(id)
		if err != nil {
			return "", err
		}
		conds = append(conds, s)
	}
	return kw + r.table(j.Entity) + " AS " + r.quote(j.Alias) + " ON " + strings.Join(conds, " AND "), nil
}

// link renders the condition relating the owner and target rows of a
// reference.
func (r *renderer) link(l *query.Link) (string, error) {
	ref := l.Reference
	switch ref.Storage {
	case metamodel.StorageForeignKey:
		_, col := r.r.ForeignKey(ref)
		return "(" + r.column(l.Owner, col) + " = " + r.column(l.Target, ColumnID) + ")", nil
	case metamodel.StorageInverseForeignKey:
		_, col := r.r.ForeignKey(ref)
		return "(" + r.column(l.Target, col) + " = " + r.column(l.Owner, ColumnID) + ")", nil
	case metamodel.StorageJunction:
		table, own, target := r.r.Junction(ref)
		return "EXISTS (SELECT 1 FROM " + r.quote(table) + " AS " + r.quote(l.Junction) +
			" WHERE " + r.column(l.Junction, own) + " = " + r.column(l.Owner, ColumnID) +
			" AND " + r.column(l.Junction, target) + " = " + r.column(l.Target, ColumnID) + ")", nil
	}
	return "", strata.NewConfigError(ref.QualifiedName(), "unresolved storage")
}

func (r *renderer) feature(id query.FeatureID) (string, error) {
	f := r.m.Feature(id)
	switch f.Kind {
	case query.FeatureAttribute:
		return r.column(f.Alias, r.r.Column(f.Attribute)), nil
	case query.FeatureIdentifier:
		return r.column(f.Alias, ColumnID), nil
	case query.FeatureVersion:
		return r.column(f.Alias, ColumnVersion), nil
	case query.FeatureConstant:
		return r.value(f.Value, f.Type, f.Attribute)
	case query.FeatureFunction:
		args := make([]string, len(f.Params))
		for i, p := range f.Params {
			s, err := r.feature(p)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		return r.d.Call(f.Signature, args...)
	case query.FeatureSubSelect:
		sub := r.m.SubSelect(f.SubSelect)
		inner := r.m.Select(sub.Select)
		switch sub.Kind {
		case query.SubSelectAggregate:
			s, err := r.selectSQL(inner, clause{project: projectPlain})
			if err != nil {
				return "", err
			}
			return "(" + s + ")", nil
		case query.SubSelectExists:
			s, err := r.selectSQL(inner, clause{project: projectOne})
			if err != nil {
				return "", err
			}
			return "EXISTS (" + s + ")", nil
		}
		return "", strata.NewConfigError(sub.Alias, "%s subselect used as a value", sub.Kind)
	case query.FeatureLink:
		return r.link(f.Link)
	}
	return "", strata.NewConfigError(id.Label(), "unknown feature kind %d", f.Kind)
}
