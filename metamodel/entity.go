package metamodel

import "slices"

// Attribute is a primitive-typed property of an entity type.
type Attribute struct {
	Name      string
	Type      Type
	Precision int      // decimal digits; digits of big integers
	Scale     int      // decimal fraction digits
	MaxLength int      // strings; 0 means unbounded
	Enum      []string // enum literals in ordinal order
	Required  bool
	Unique    bool

	// Owner is the declaring entity type, set by Model.Link.
	Owner *EntityType
}

// Ordinal returns the stored value of an enum literal.
func (a *Attribute) Ordinal(literal string) (int, bool) {
	i := slices.Index(a.Enum, literal)
	return i, i >= 0
}

// Reference is a typed link from an entity type to another one.
type Reference struct {
	Name         string
	TargetName   string
	Lower        int
	Upper        int // Many for unbounded
	Containment  bool
	OppositeName string

	// Storage is derived by Model.Link unless set explicitly.
	Storage Storage

	// Resolved by Model.Link.
	Owner    *EntityType
	Target   *EntityType
	Opposite *Reference
}

// IsMany reports whether the reference holds more than one target.
func (r *Reference) IsMany() bool { return r.Upper == Many || r.Upper > 1 }

// Required reports whether at least one target is mandatory.
func (r *Reference) Required() bool { return r.Lower > 0 }

// QualifiedName returns Owner.Name.
func (r *Reference) QualifiedName() string {
	if r.Owner == nil {
		return r.Name
	}
	return r.Owner.Name + "." + r.Name
}

// OwnsJunction reports whether the junction table of a bidirectional
// junction pair is named after this end. The end whose qualified name is
// lexicographically smaller owns it.
func (r *Reference) OwnsJunction() bool {
	return r.Opposite == nil || r.QualifiedName() <= r.Opposite.QualifiedName()
}

// EntityType is a persistent type. Every entity type is stored in a table
// of its own holding the declared attributes; subtypes share the identifier
// of their supertype rows.
type EntityType struct {
	Name           string
	Abstract       bool
	SupertypeNames []string
	Attributes     []*Attribute
	References     []*Reference

	// Supertypes is resolved by Model.Link.
	Supertypes []*EntityType
	subtypes   []*EntityType
}

// Ancestors returns the transitive supertypes, nearest first, each once.
func (e *EntityType) Ancestors() []*EntityType {
	var (
		out  []*EntityType
		seen = map[*EntityType]bool{e: true}
		todo = slices.Clone(e.Supertypes)
	)
	for len(todo) > 0 {
		s := todo[0]
		todo = todo[1:]
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		todo = append(todo, s.Supertypes...)
	}
	return out
}

// Root returns the topmost type of the primary supertype chain. The root
// table holds the system columns of the whole hierarchy.
func (e *EntityType) Root() *EntityType {
	r := e
	for len(r.Supertypes) > 0 {
		r = r.Supertypes[0]
	}
	return r
}

// IsKindOf reports whether e is other or one of its subtypes.
func (e *EntityType) IsKindOf(other *EntityType) bool {
	return e == other || slices.Contains(e.Ancestors(), other)
}

// Subtypes returns the direct subtypes, in declaration order.
func (e *EntityType) Subtypes() []*EntityType { return e.subtypes }

// Attribute returns the attribute of the given name, declared by e or
// inherited from an ancestor.
func (e *EntityType) Attribute(name string) *Attribute {
	for _, t := range e.lineage() {
		for _, a := range t.Attributes {
			if a.Name == name {
				return a
			}
		}
	}
	return nil
}

// Reference returns the reference of the given name, declared by e or
// inherited from an ancestor.
func (e *EntityType) Reference(name string) *Reference {
	for _, t := range e.lineage() {
		for _, r := range t.References {
			if r.Name == name {
				return r
			}
		}
	}
	return nil
}

// AllAttributes returns the inherited attributes, topmost declarations
// first, followed by the declared ones.
func (e *EntityType) AllAttributes() []*Attribute {
	lineage := e.lineage()
	var out []*Attribute
	for i := len(lineage) - 1; i >= 0; i-- {
		out = append(out, lineage[i].Attributes...)
	}
	return out
}

// AllReferences returns the inherited and declared references.
func (e *EntityType) AllReferences() []*Reference {
	lineage := e.lineage()
	var out []*Reference
	for i := len(lineage) - 1; i >= 0; i-- {
		out = append(out, lineage[i].References...)
	}
	return out
}

// lineage returns e followed by its ancestors.
func (e *EntityType) lineage() []*EntityType {
	return append([]*EntityType{e}, e.Ancestors()...)
}

// Hierarchy returns the tables an instance of e spans: the most distant
// ancestors first and e last.
func (e *EntityType) Hierarchy() []*EntityType {
	out := e.Ancestors()
	slices.Reverse(out)
	return append(out, e)
}
