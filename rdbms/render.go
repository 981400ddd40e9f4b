package rdbms

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/syssam/strata/metamodel"
)

// marker delimits a bound parameter in SQL text under construction. It
// cannot occur in identifiers or templates.
const marker = '\x00'

// frame collects the parameters of one statement. Fragments embed
// parameters as markers, which finish replaces with placeholders numbered
// in text order. Templates may thus reorder or repeat their arguments
// without breaking the argument order.
type frame struct {
	d      *Dialect
	r      *Resolver
	params []Parameter
}

func (f *frame) bind(p Parameter) string {
	f.params = append(f.params, p)
	return string(marker) + strconv.Itoa(len(f.params)-1) + string(marker)
}

// value binds v as a parameter of type t.
func (f *frame) value(v any, t metamodel.Type, a *metamodel.Attribute) (string, error) {
	p, err := f.d.Param(v, t, a)
	if err != nil {
		return "", err
	}
	return f.bind(p), nil
}

// ids renders a parenthesized list of identifiers. An empty list renders
// a list that matches nothing.
func (f *frame) ids(ids []uuid.UUID) string {
	if len(ids) == 0 {
		return "(NULL)"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = f.id(id)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (f *frame) id(id uuid.UUID) string {
	p, _ := f.d.Param(id, metamodel.TypeUUID, nil)
	return f.bind(p)
}

func (f *frame) quote(name string) string { return f.d.Quote(name) }

// column renders alias.name.
func (f *frame) column(alias, name string) string {
	return f.d.Quote(alias) + "." + f.d.Quote(name)
}

func (f *frame) table(e *metamodel.EntityType) string {
	return f.d.Quote(f.r.Table(e))
}

// finish replaces markers with placeholders and returns the arguments in
// placeholder order.
func (f *frame) finish(s string) (string, []any, []Parameter) {
	var (
		b      strings.Builder
		args   []any
		params []Parameter
	)
	for {
		i := strings.IndexByte(s, marker)
		if i < 0 {
			b.WriteString(s)
			break
		}
		j := strings.IndexByte(s[i+1:], marker) + i + 1
		n, _ := strconv.Atoi(s[i+1 : j])
		p := f.params[n]
		b.WriteString(s[:i])
		args = append(args, p.Value)
		params = append(params, p)
		b.WriteString(f.placeholder(len(args), p))
		s = s[j+1:]
	}
	return b.String(), args, params
}

func (f *frame) placeholder(n int, p Parameter) string {
	ph := f.d.Placeholder(n)
	if f.d.numbered && p.Cast && p.SQLType != "" {
		return "CAST(" + ph + " AS " + p.SQLType + ")"
	}
	return ph
}
