// Package statement holds the mutation statements planned for a payload
// graph and the planner producing them.
//
// Statements are created through their constructors, which copy the
// slices they are given, and are never mutated afterwards. An executor
// consumes each statement once.
package statement

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/strata/metamodel"
)

// Kind is the kind of a statement.
type Kind int

// Statement kinds.
const (
	KindInsert Kind = iota + 1
	KindUpdate
	KindDelete
	KindAddReference
	KindRemoveReference
	KindValidation
	KindInstanceExists
	KindCheckUnique
)

var kindNames = [...]string{
	KindInsert:          "insert",
	KindUpdate:          "update",
	KindDelete:          "delete",
	KindAddReference:    "add-reference",
	KindRemoveReference: "remove-reference",
	KindValidation:      "validation",
	KindInstanceExists:  "instance-exists",
	KindCheckUnique:     "check-unique",
}

// String returns the kind name.
func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "statement"
}

// Statement is one step of a mutation plan.
type Statement interface {
	// Instance returns the instance the statement applies to.
	Instance() InstanceValue
	// Kind returns the statement kind.
	Kind() Kind
	statement()
}

// InstanceValue identifies an entity instance.
type InstanceValue struct {
	Entity     *metamodel.EntityType
	Identifier uuid.UUID
}

// Instance returns v.
func (v InstanceValue) Instance() InstanceValue { return v }

// Value is an attribute value written by an insert or an update.
type Value struct {
	Attribute *metamodel.Attribute
	Value     any
}

// Audit records who changed an instance and when.
type Audit struct {
	Actor     string
	Timestamp time.Time
}

// Container is the instance holding a contained instance, and the
// containment reference of the container holding it.
type Container struct {
	Reference *metamodel.Reference
	ID        uuid.UUID
}

// Insert creates an instance with version 1.
type Insert struct {
	InstanceValue
	Container Container
	// ReferenceID is the client correlation id of the payload.
	ReferenceID string
	Version     int
	Values      []Value
	Audit       Audit
}

// NewInsert returns the insert of a new instance.
func NewInsert(e *metamodel.EntityType, id uuid.UUID, c Container, referenceID string, values []Value, audit Audit) *Insert {
	return &Insert{
		InstanceValue: InstanceValue{Entity: e, Identifier: id},
		Container:     c,
		ReferenceID:   referenceID,
		Version:       1,
		Values:        slices.Clone(values),
		Audit:         audit,
	}
}

// Update changes attributes of an instance. Version is the version the
// instance had when it was loaded.
type Update struct {
	InstanceValue
	Version int
	Values  []Value
	Audit   Audit
}

// NewUpdate returns the update of an instance loaded at version.
func NewUpdate(e *metamodel.EntityType, id uuid.UUID, version int, values []Value, audit Audit) *Update {
	return &Update{
		InstanceValue: InstanceValue{Entity: e, Identifier: id},
		Version:       version,
		Values:        slices.Clone(values),
		Audit:         audit,
	}
}

// Delete removes an instance.
type Delete struct {
	InstanceValue
}

// NewDelete returns the delete of an instance.
func NewDelete(e *metamodel.EntityType, id uuid.UUID) *Delete {
	return &Delete{InstanceValue: InstanceValue{Entity: e, Identifier: id}}
}

// AddReference links targets to an instance. Current holds the targets
// linked before the change.
type AddReference struct {
	InstanceValue
	Reference *metamodel.Reference
	Targets   []uuid.UUID
	Current   []uuid.UUID
}

// NewAddReference returns the linking of targets through ref.
func NewAddReference(e *metamodel.EntityType, id uuid.UUID, ref *metamodel.Reference, targets, current []uuid.UUID) *AddReference {
	return &AddReference{
		InstanceValue: InstanceValue{Entity: e, Identifier: id},
		Reference:     ref,
		Targets:       slices.Clone(targets),
		Current:       slices.Clone(current),
	}
}

// RemoveReference unlinks targets from an instance.
type RemoveReference struct {
	InstanceValue
	Reference *metamodel.Reference
	Targets   []uuid.UUID
}

// NewRemoveReference returns the unlinking of targets through ref.
func NewRemoveReference(e *metamodel.EntityType, id uuid.UUID, ref *metamodel.Reference, targets []uuid.UUID) *RemoveReference {
	return &RemoveReference{
		InstanceValue: InstanceValue{Entity: e, Identifier: id},
		Reference:     ref,
		Targets:       slices.Clone(targets),
	}
}

// Validation checks that targets are in the range of a relation of the
// instance.
type Validation struct {
	InstanceValue
	Relation *metamodel.TransferRelation
	Targets  []uuid.UUID
}

// NewValidation returns the range check of targets of rel.
func NewValidation(e *metamodel.EntityType, id uuid.UUID, rel *metamodel.TransferRelation, targets []uuid.UUID) *Validation {
	return &Validation{
		InstanceValue: InstanceValue{Entity: e, Identifier: id},
		Relation:      rel,
		Targets:       slices.Clone(targets),
	}
}

// InstanceExists checks that a referenced instance exists. Element names
// the relation the instance is referenced through.
type InstanceExists struct {
	InstanceValue
	Element string
}

// NewInstanceExists returns the existence check of an instance.
func NewInstanceExists(e *metamodel.EntityType, id uuid.UUID, element string) *InstanceExists {
	return &InstanceExists{InstanceValue: InstanceValue{Entity: e, Identifier: id}, Element: element}
}

// CheckUnique checks that no instance other than the written one holds
// Value in a unique attribute.
type CheckUnique struct {
	InstanceValue
	Attribute *metamodel.Attribute
	Value     any
}

// NewCheckUnique returns the uniqueness check of a value written to an
// instance.
func NewCheckUnique(e *metamodel.EntityType, id uuid.UUID, a *metamodel.Attribute, v any) *CheckUnique {
	return &CheckUnique{InstanceValue: InstanceValue{Entity: e, Identifier: id}, Attribute: a, Value: v}
}

func (*Insert) Kind() Kind          { return KindInsert }
func (*Update) Kind() Kind          { return KindUpdate }
func (*Delete) Kind() Kind          { return KindDelete }
func (*AddReference) Kind() Kind    { return KindAddReference }
func (*RemoveReference) Kind() Kind { return KindRemoveReference }
func (*Validation) Kind() Kind      { return KindValidation }
func (*InstanceExists) Kind() Kind  { return KindInstanceExists }
func (*CheckUnique) Kind() Kind     { return KindCheckUnique }

func (*Insert) statement()          {}
func (*Update) statement()          {}
func (*Delete) statement()          {}
func (*AddReference) statement()    {}
func (*RemoveReference) statement() {}
func (*Validation) statement()      {}
func (*InstanceExists) statement()  {}
func (*CheckUnique) statement()     {}
