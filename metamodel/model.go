package metamodel

import (
	"slices"

	"github.com/syssam/strata"
	"github.com/syssam/strata/expr"
)

// Model is the registry of entity types, transfer types and operations.
// It is created with NewModel, linked once with Link and read-only
// afterwards, so a linked Model can be shared between goroutines.
type Model struct {
	entities   []*EntityType
	transfers  []*TransferType
	operations []*Operation

	entityIndex    map[string]*EntityType
	transferIndex  map[string]*TransferType
	operationIndex map[string]*Operation
	linked         bool
}

// NewModel returns an unlinked model of the given elements.
func NewModel(entities []*EntityType, transfers []*TransferType, operations []*Operation) *Model {
	return &Model{
		entities:   entities,
		transfers:  transfers,
		operations: operations,
	}
}

// Entity returns the entity type of the given name, or nil.
func (m *Model) Entity(name string) *EntityType { return m.entityIndex[name] }

// Transfer returns the transfer type of the given name, or nil.
func (m *Model) Transfer(name string) *TransferType { return m.transferIndex[name] }

// Operation returns the operation of the given name, or nil.
func (m *Model) Operation(name string) *Operation { return m.operationIndex[name] }

// Entities returns the entity types in declaration order.
func (m *Model) Entities() []*EntityType { return m.entities }

// Transfers returns the transfer types in declaration order.
func (m *Model) Transfers() []*TransferType { return m.transfers }

// Operations returns the operations in declaration order.
func (m *Model) Operations() []*Operation { return m.operations }

// Link resolves names to elements, derives reference storage and validates
// the model. Defects are reported as *strata.ConfigError.
func (m *Model) Link() error {
	if m.linked {
		return nil
	}
	steps := []func() error{
		m.indexEntities,
		m.linkSupertypes,
		m.linkMembers,
		m.linkOpposites,
		m.deriveStorage,
		m.linkTransfers,
		m.linkOperations,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	m.linked = true
	return nil
}

func (m *Model) indexEntities() error {
	m.entityIndex = make(map[string]*EntityType, len(m.entities))
	for _, e := range m.entities {
		if e.Name == "" {
			return strata.NewConfigError("entity", "entity type without name")
		}
		if _, ok := m.entityIndex[e.Name]; ok {
			return strata.NewConfigError(e.Name, "duplicate entity type")
		}
		m.entityIndex[e.Name] = e
	}
	return nil
}

func (m *Model) linkSupertypes() error {
	for _, e := range m.entities {
		e.Supertypes, e.subtypes = nil, e.subtypes[:0]
	}
	for _, e := range m.entities {
		for _, name := range e.SupertypeNames {
			s := m.entityIndex[name]
			if s == nil {
				return strata.NewConfigError(e.Name, "unknown supertype %q", name)
			}
			e.Supertypes = append(e.Supertypes, s)
			s.subtypes = append(s.subtypes, e)
		}
	}
	// A cycle makes a type its own ancestor.
	for _, e := range m.entities {
		if err := checkAcyclic(e, nil); err != nil {
			return err
		}
	}
	return nil
}

func checkAcyclic(e *EntityType, path []*EntityType) error {
	if slices.Contains(path, e) {
		return strata.NewConfigError(e.Name, "supertype cycle")
	}
	path = append(path, e)
	for _, s := range e.Supertypes {
		if err := checkAcyclic(s, path); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) linkMembers() error {
	for _, e := range m.entities {
		for _, a := range e.Attributes {
			a.Owner = e
			if a.Type == TypeEnum && len(a.Enum) == 0 {
				return strata.NewConfigError(e.Name+"."+a.Name, "enum attribute without literals")
			}
		}
		for _, r := range e.References {
			r.Owner = e
			if r.Target = m.entityIndex[r.TargetName]; r.Target == nil {
				return strata.NewConfigError(r.QualifiedName(), "unknown target %q", r.TargetName)
			}
			if r.Upper == 0 {
				r.Upper = 1
			}
		}
	}
	// Names are unique along the lineage of every type.
	for _, e := range m.entities {
		seen := make(map[string]bool)
		for _, a := range e.AllAttributes() {
			if seen[a.Name] {
				return strata.NewConfigError(e.Name+"."+a.Name, "duplicate member")
			}
			seen[a.Name] = true
		}
		for _, r := range e.AllReferences() {
			if seen[r.Name] {
				return strata.NewConfigError(r.QualifiedName(), "duplicate member")
			}
			seen[r.Name] = true
		}
	}
	return nil
}

func (m *Model) linkOpposites() error {
	for _, e := range m.entities {
		for _, r := range e.References {
			r.Opposite = nil
			if r.OppositeName == "" {
				continue
			}
			o := r.Target.Reference(r.OppositeName)
			if o == nil {
				return strata.NewConfigError(r.QualifiedName(), "missing opposite %q on %s", r.OppositeName, r.Target.Name)
			}
			if !e.IsKindOf(o.Target) && !o.Target.IsKindOf(e) {
				return strata.NewConfigError(r.QualifiedName(), "opposite %s does not point back", o.QualifiedName())
			}
			if o.OppositeName != "" && o.OppositeName != r.Name {
				return strata.NewConfigError(r.QualifiedName(), "opposite %s names %q as its opposite", o.QualifiedName(), o.OppositeName)
			}
			if r.Containment && o.Containment {
				return strata.NewConfigError(r.QualifiedName(), "both ends of a reference pair are containments")
			}
			r.Opposite = o
		}
	}
	return nil
}

// deriveStorage decides where every reference is persisted:
//
//	containment                         inverse foreign key in the child table
//	to-one                              foreign key in the owner table
//	to-one, to-one opposite             one end keeps the foreign key, the other shares it
//	to-many, to-one opposite            inverse foreign key shared with the opposite
//	to-many otherwise                   junction table
func (m *Model) deriveStorage() error {
	for _, e := range m.entities {
		for _, r := range e.References {
			if r.Storage != 0 {
				continue
			}
			o := r.Opposite
			switch {
			case r.Containment:
				r.Storage = StorageInverseForeignKey
			case !r.IsMany() && o != nil && !o.IsMany() && !o.Containment && !r.OwnsJunction():
				r.Storage = StorageInverseForeignKey
			case !r.IsMany():
				r.Storage = StorageForeignKey
			case o != nil && !o.IsMany():
				r.Storage = StorageInverseForeignKey
			default:
				r.Storage = StorageJunction
			}
		}
	}
	for _, e := range m.entities {
		for _, r := range e.References {
			if err := validateStorage(r); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateStorage(r *Reference) error {
	o := r.Opposite
	switch r.Storage {
	case StorageForeignKey:
		if r.IsMany() {
			return strata.NewConfigError(r.QualifiedName(), "to-many reference cannot be stored as a foreign key")
		}
		if o != nil && o.Storage != StorageInverseForeignKey && !(o.Containment) {
			return strata.NewConfigError(r.QualifiedName(), "opposite %s is stored as %s", o.QualifiedName(), o.Storage)
		}
	case StorageInverseForeignKey:
		if o != nil && o.Storage != StorageForeignKey {
			return strata.NewConfigError(r.QualifiedName(), "inverse foreign key needs a foreign key opposite, %s is stored as %s", o.QualifiedName(), o.Storage)
		}
	case StorageJunction:
		if o != nil && o.Storage != StorageJunction {
			return strata.NewConfigError(r.QualifiedName(), "junction needs a junction opposite, %s is stored as %s", o.QualifiedName(), o.Storage)
		}
	default:
		return strata.NewConfigError(r.QualifiedName(), "unresolved storage")
	}
	return nil
}

func (m *Model) linkTransfers() error {
	m.transferIndex = make(map[string]*TransferType, len(m.transfers))
	for _, t := range m.transfers {
		if _, ok := m.transferIndex[t.Name]; ok {
			return strata.NewConfigError(t.Name, "duplicate transfer type")
		}
		m.transferIndex[t.Name] = t
	}
	for _, t := range m.transfers {
		t.Entity = nil
		if t.EntityName != "" {
			if t.Entity = m.entityIndex[t.EntityName]; t.Entity == nil {
				return strata.NewConfigError(t.Name, "unknown entity type %q", t.EntityName)
			}
		}
		seen := make(map[string]bool)
		for _, a := range t.Attributes {
			if seen[a.Name] {
				return strata.NewConfigError(t.Name+"."+a.Name, "duplicate member")
			}
			seen[a.Name] = true
			a.Attribute = nil
			if name, ok := selfStep(a.Binding); ok && t.Entity != nil {
				a.Attribute = t.Entity.Attribute(name)
			}
			if a.Type == 0 && a.Attribute != nil {
				a.Type = a.Attribute.Type
			}
		}
		for _, r := range t.Relations {
			if seen[r.Name] {
				return strata.NewConfigError(t.Name+"."+r.Name, "duplicate member")
			}
			seen[r.Name] = true
			r.Owner = t
			if r.Target = m.transferIndex[r.TargetName]; r.Target == nil {
				return strata.NewConfigError(r.QualifiedName(), "unknown target %q", r.TargetName)
			}
			r.Reference = nil
			if name, ok := selfStep(r.Binding); ok && t.Entity != nil {
				r.Reference = t.Entity.Reference(name)
			}
			if ref := r.Reference; ref != nil {
				if r.Upper == 0 {
					r.Lower, r.Upper = ref.Lower, ref.Upper
				}
				r.Containment = r.Containment || ref.Containment
				if te := r.Target.Entity; te != nil && !te.IsKindOf(ref.Target) && !ref.Target.IsKindOf(te) {
					return strata.NewConfigError(r.QualifiedName(), "target %s does not map %s", r.Target.Name, ref.Target.Name)
				}
			}
			if r.Upper == 0 {
				r.Upper = 1
			}
		}
	}
	return nil
}

// selfStep returns the member name if e reads one member of self.
func selfStep(e expr.Expr) (string, bool) {
	switch e := e.(type) {
	case expr.Attr:
		if _, ok := e.From.(expr.SelfExpr); ok {
			return e.Name, true
		}
	case expr.Nav:
		if _, ok := e.From.(expr.SelfExpr); ok {
			return e.Reference, true
		}
	}
	return "", false
}

func (m *Model) linkOperations() error {
	m.operationIndex = make(map[string]*Operation, len(m.operations))
	for _, op := range m.operations {
		if _, ok := m.operationIndex[op.Name]; ok {
			return strata.NewConfigError(op.Name, "duplicate operation")
		}
		m.operationIndex[op.Name] = op
		if op.Owner = m.transferIndex[op.OwnerName]; op.Owner == nil {
			return strata.NewConfigError(op.Name, "unknown owner %q", op.OwnerName)
		}
		op.Relation = nil
		if op.Behaviour.RelationBehaviour() {
			if op.Relation = op.Owner.Relation(op.RelationName); op.Relation == nil {
				return strata.NewConfigError(op.Name, "%s needs a relation of %s, got %q", op.Behaviour, op.Owner.Name, op.RelationName)
			}
		}
	}
	return nil
}
