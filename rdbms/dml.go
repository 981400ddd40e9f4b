package rdbms

import (
	"slices"
	"strings"

	"github.com/syssam/strata"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/statement"
)

// Command is a rendered data modification.
type Command struct {
	SQL    string
	Args   []any
	Params []Parameter
	// Versioned commands must affect exactly one row. Zero affected rows
	// means the instance changed since its version was read.
	Versioned bool
}

// Commands renders a writing statement. Checks are rendered by Check and
// validations by Select over the range condition.
func (b *Builder) Commands(s statement.Statement) ([]*Command, error) {
	switch s := s.(type) {
	case *statement.Insert:
		return b.Insert(s)
	case *statement.Update:
		return b.Update(s)
	case *statement.Delete:
		return b.Delete(s)
	case *statement.AddReference:
		return b.AddReference(s)
	case *statement.RemoveReference:
		return b.RemoveReference(s)
	}
	return nil, strata.NewConfigError(s.Kind().String(), "statement does not write")
}

// invalidValue reports a value the attribute type cannot hold as a
// validation failure of the instance.
func invalidValue(e *metamodel.EntityType, id any, a *metamodel.Attribute, err error) error {
	return strata.ValidationErrors{{
		Code: strata.CodeInvalidValue, Entity: e.Name, Element: a.Name, ID: id, Message: err.Error(),
	}}
}

type assignment struct {
	column string
	value  string
}

// Insert renders one INSERT per table of the hierarchy of the entity,
// root first.
func (b *Builder) Insert(s *statement.Insert) ([]*Command, error) {
	f := b.frame()
	tables := map[*metamodel.EntityType][]assignment{}
	for _, v := range s.Values {
		p, err := f.value(v.Value, v.Attribute.Type, v.Attribute)
		if err != nil {
			return nil, invalidValue(s.Entity, s.Identifier, v.Attribute, err)
		}
		owner := v.Attribute.Owner
		tables[owner] = append(tables[owner], assignment{b.resolver.Column(v.Attribute), p})
	}
	if ref := s.Container.Reference; ref != nil {
		if ref.Storage != metamodel.StorageInverseForeignKey {
			return nil, strata.NewConfigError(ref.QualifiedName(), "containment stored as %s", ref.Storage)
		}
		owner, col := b.resolver.ForeignKey(ref)
		tables[owner] = append(tables[owner], assignment{col, f.id(s.Container.ID)})
	}
	root := s.Entity.Root()
	var cmds []*Command
	for _, e := range s.Entity.Hierarchy() {
		set := []assignment{{ColumnID, f.id(s.Identifier)}}
		if e == root {
			set = append(set, b.audit(f, ColumnVersion, s.Version, metamodel.TypeInteger))
			set = append(set, b.audit(f, ColumnCreatedAt, s.Audit.Timestamp, metamodel.TypeTimestamp))
			set = append(set, b.audit(f, ColumnCreatedBy, actor(s.Audit), metamodel.TypeString))
			set = append(set, b.audit(f, ColumnUpdatedAt, s.Audit.Timestamp, metamodel.TypeTimestamp))
			set = append(set, b.audit(f, ColumnUpdatedBy, actor(s.Audit), metamodel.TypeString))
		}
		set = append(set, tables[e]...)
		delete(tables, e)
		cols := make([]string, len(set))
		vals := make([]string, len(set))
		for i, a := range set {
			cols[i], vals[i] = f.quote(a.column), a.value
		}
		cmds = append(cmds, f.command("INSERT INTO "+f.table(e)+" ("+strings.Join(cols, ", ")+") VALUES ("+strings.Join(vals, ", ")+")", false))
	}
	for e := range tables {
		return nil, strata.NewConfigError(e.Name, "table is outside the hierarchy of %s", s.Entity.Name)
	}
	return cmds, nil
}

// Update renders the update of the root table, which bumps the version
// if it still matches, and of every other table with changed values.
func (b *Builder) Update(s *statement.Update) ([]*Command, error) {
	f := b.frame()
	tables := map[*metamodel.EntityType][]assignment{}
	for _, v := range s.Values {
		p, err := f.value(v.Value, v.Attribute.Type, v.Attribute)
		if err != nil {
			return nil, invalidValue(s.Entity, s.Identifier, v.Attribute, err)
		}
		owner := v.Attribute.Owner
		tables[owner] = append(tables[owner], assignment{b.resolver.Column(v.Attribute), p})
	}
	root := s.Entity.Root()
	var cmds []*Command
	for _, e := range s.Entity.Hierarchy() {
		set := tables[e]
		if e != root && len(set) == 0 {
			continue
		}
		var parts []string
		if e == root {
			parts = append(parts,
				f.quote(ColumnVersion)+" = "+f.quote(ColumnVersion)+" + 1",
				f.assign(b.audit(f, ColumnUpdatedAt, s.Audit.Timestamp, metamodel.TypeTimestamp)),
				f.assign(b.audit(f, ColumnUpdatedBy, actor(s.Audit), metamodel.TypeString)),
			)
		}
		for _, a := range set {
			parts = append(parts, f.assign(a))
		}
		where := f.quote(ColumnID) + " = " + f.id(s.Identifier)
		if e == root {
			v := b.audit(f, ColumnVersion, s.Version, metamodel.TypeInteger)
			where += " AND " + f.assign(v)
		}
		cmds = append(cmds, f.command("UPDATE "+f.table(e)+" SET "+strings.Join(parts, ", ")+" WHERE "+where, e == root))
	}
	return cmds, nil
}

// Delete renders the removal of an instance: its junction rows, the
// inverse links pointing at it, then its rows from the most derived
// table up to the root.
func (b *Builder) Delete(s *statement.Delete) ([]*Command, error) {
	f := b.frame()
	var cmds []*Command
	for _, ref := range s.Entity.AllReferences() {
		switch {
		case ref.Storage == metamodel.StorageJunction:
			table, own, _ := b.resolver.Junction(ref)
			cmds = append(cmds, f.command("DELETE FROM "+f.quote(table)+" WHERE "+f.quote(own)+" = "+f.id(s.Identifier), false))
		case ref.Storage == metamodel.StorageInverseForeignKey && !ref.Containment:
			owner, col := b.resolver.ForeignKey(ref)
			cmds = append(cmds, f.command("UPDATE "+f.table(owner)+" SET "+f.quote(col)+" = NULL WHERE "+f.quote(col)+" = "+f.id(s.Identifier), false))
		}
	}
	tables := descendants(s.Entity)
	hierarchy := s.Entity.Hierarchy()
	slices.Reverse(hierarchy)
	tables = append(tables, hierarchy...)
	for _, e := range tables {
		cmds = append(cmds, f.command("DELETE FROM "+f.table(e)+" WHERE "+f.quote(ColumnID)+" = "+f.id(s.Identifier), false))
	}
	return cmds, nil
}

// descendants returns the transitive subtypes of e, most derived first.
func descendants(e *metamodel.EntityType) []*metamodel.EntityType {
	var (
		out  []*metamodel.EntityType
		seen = map[*metamodel.EntityType]bool{}
		walk func(*metamodel.EntityType)
	)
	walk = func(t *metamodel.EntityType) {
		for _, sub := range t.Subtypes() {
			if seen[sub] {
				continue
			}
			seen[sub] = true
			walk(sub)
			out = append(out, sub)
		}
	}
	walk(e)
	return out
}

// AddReference renders the linking of targets.
func (b *Builder) AddReference(s *statement.AddReference) ([]*Command, error) {
	ref := s.Reference
	if len(s.Targets) == 0 {
		return nil, nil
	}
	f := b.frame()
	switch ref.Storage {
	case metamodel.StorageForeignKey:
		if len(s.Targets) != 1 {
			return nil, strata.NewConfigError(ref.QualifiedName(), "foreign key holds one target, got %d", len(s.Targets))
		}
		owner, col := b.resolver.ForeignKey(ref)
		return []*Command{f.command("UPDATE "+f.table(owner)+" SET "+f.quote(col)+" = "+f.id(s.Targets[0])+
			" WHERE "+f.quote(ColumnID)+" = "+f.id(s.Identifier), false)}, nil
	case metamodel.StorageInverseForeignKey:
		owner, col := b.resolver.ForeignKey(ref)
		return []*Command{f.command("UPDATE "+f.table(owner)+" SET "+f.quote(col)+" = "+f.id(s.Identifier)+
			" WHERE "+f.quote(ColumnID)+" IN "+f.ids(s.Targets), false)}, nil
	case metamodel.StorageJunction:
		table, own, target := b.resolver.Junction(ref)
		rows := make([]string, len(s.Targets))
		for i, t := range s.Targets {
			rows[i] = "(" + f.id(s.Identifier) + ", " + f.id(t) + ")"
		}
		return []*Command{f.command("INSERT INTO "+f.quote(table)+" ("+f.quote(own)+", "+f.quote(target)+") VALUES "+strings.Join(rows, ", "), false)}, nil
	}
	return nil, strata.NewConfigError(ref.QualifiedName(), "unresolved storage")
}

// RemoveReference renders the unlinking of targets. Links to other
// targets are left alone.
func (b *Builder) RemoveReference(s *statement.RemoveReference) ([]*Command, error) {
	ref := s.Reference
	if len(s.Targets) == 0 {
		return nil, nil
	}
	f := b.frame()
	switch ref.Storage {
	case metamodel.StorageForeignKey:
		owner, col := b.resolver.ForeignKey(ref)
		return []*Command{f.command("UPDATE "+f.table(owner)+" SET "+f.quote(col)+" = NULL WHERE "+
			f.quote(ColumnID)+" = "+f.id(s.Identifier)+" AND "+f.quote(col)+" IN "+f.ids(s.Targets), false)}, nil
	case metamodel.StorageInverseForeignKey:
		owner, col := b.resolver.ForeignKey(ref)
		return []*Command{f.command("UPDATE "+f.table(owner)+" SET "+f.quote(col)+" = NULL WHERE "+
			f.quote(ColumnID)+" IN "+f.ids(s.Targets)+" AND "+f.quote(col)+" = "+f.id(s.Identifier), false)}, nil
	case metamodel.StorageJunction:
		table, own, target := b.resolver.Junction(ref)
		return []*Command{f.command("DELETE FROM "+f.quote(table)+" WHERE "+f.quote(own)+" = "+f.id(s.Identifier)+
			" AND "+f.quote(target)+" IN "+f.ids(s.Targets), false)}, nil
	}
	return nil, strata.NewConfigError(ref.QualifiedName(), "unresolved storage")
}

// Check renders the query of an instance existence or uniqueness check.
// The check holds when an existence query returns a row and a uniqueness
// query returns none.
func (b *Builder) Check(s statement.Statement) (*Query, error) {
	f := b.frame()
	var text string
	switch s := s.(type) {
	case *statement.InstanceExists:
		text = "SELECT " + f.quote(ColumnID) + " FROM " + f.table(s.Entity) + " WHERE " + f.quote(ColumnID) + " = " + f.id(s.Identifier)
	case *statement.CheckUnique:
		a := s.Attribute
		v, err := f.value(s.Value, a.Type, a)
		if err != nil {
			return nil, invalidValue(s.Entity, s.Identifier, a, err)
		}
		text = "SELECT " + f.quote(ColumnID) + " FROM " + f.table(a.Owner) + " WHERE " + f.quote(b.resolver.Column(a)) + " = " + v +
			" AND " + f.quote(ColumnID) + " <> " + f.id(s.Identifier) + " LIMIT 1"
	default:
		return nil, strata.NewConfigError(s.Kind().String(), "statement is not a check")
	}
	q := &Query{}
	q.SQL, q.Args, q.Params = f.finish(text)
	q.Columns = []Column{{Label: ColumnID, Type: metamodel.TypeUUID}}
	return q, nil
}

func (b *Builder) frame() *frame {
	return &frame{d: b.dialect, r: b.resolver}
}

func (b *Builder) audit(f *frame, col string, v any, t metamodel.Type) assignment {
	p, _ := f.value(v, t, nil)
	return assignment{col, p}
}

func (f *frame) assign(a assignment) string {
	return f.quote(a.column) + " = " + a.value
}

// command finishes the text of one command. Parameters bound for other
// commands of the frame are skipped.
func (f *frame) command(text string, versioned bool) *Command {
	c := &Command{Versioned: versioned}
	c.SQL, c.Args, c.Params = f.finish(text)
	return c
}

func actor(a statement.Audit) any {
	if a.Actor == "" {
		return nil
	}
	return a.Actor
}
