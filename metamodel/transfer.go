package metamodel

import (
	"fmt"

	"github.com/syssam/strata/expr"
)

// Permissions are the CRUD flags of a transfer type or relation. A nil
// *Permissions means the model lacks the annotation.
type Permissions struct {
	Create bool `yaml:"create"`
	Update bool `yaml:"update"`
	Delete bool `yaml:"delete"`
}

// AllowAll returns permissions granting every flag.
func AllowAll() *Permissions { return &Permissions{Create: true, Update: true, Delete: true} }

// TransferType is the client-facing shape of an entity type: a projection
// of bound attributes and relations.
type TransferType struct {
	Name        string
	EntityName  string
	Attributes  []*TransferAttribute
	Relations   []*TransferRelation
	Permissions *Permissions

	// Entity is resolved by Model.Link. It is nil for unmapped transfer
	// types, which cannot be queried.
	Entity *EntityType
}

// Attribute returns the transfer attribute of the given name.
func (t *TransferType) Attribute(name string) *TransferAttribute {
	for _, a := range t.Attributes {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Relation returns the transfer relation of the given name.
func (t *TransferType) Relation(name string) *TransferRelation {
	for _, r := range t.Relations {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Mapped reports whether the transfer type projects an entity type.
func (t *TransferType) Mapped() bool { return t.Entity != nil }

// TransferAttribute is a transfer type property computed by its binding.
type TransferAttribute struct {
	Name     string
	Type     Type
	Binding  expr.Expr
	Required bool

	// Attribute is the entity attribute when the binding reads one of self
	// directly; such attributes are writable. Resolved by Model.Link.
	Attribute *Attribute
}

// Writable reports whether the planner persists values of the attribute.
func (a *TransferAttribute) Writable() bool { return a.Attribute != nil }

// Order is one ordering criterion of an embedded to-many relation.
type Order struct {
	Attribute  string `yaml:"attribute"`
	Descending bool   `yaml:"descending"`
}

// TransferRelation is a transfer type property holding transfer instances
// of Target, computed by navigating Binding.
type TransferRelation struct {
	Name        string
	TargetName  string
	Lower       int
	Upper       int
	Binding     expr.Expr
	Embedded    bool
	Containment bool
	Permissions *Permissions
	OrderBy     []Order
	// Range restricts the candidates offered for the relation. It is a
	// condition evaluated on each candidate instance; nil admits every
	// instance of the target entity.
	Range expr.Expr

	// Resolved by Model.Link.
	Owner  *TransferType
	Target *TransferType
	// Reference is the entity reference when the binding navigates one
	// reference of self directly; such relations are writable.
	Reference *Reference
}

// IsMany reports whether the relation holds more than one instance.
func (r *TransferRelation) IsMany() bool { return r.Upper == Many || r.Upper > 1 }

// QualifiedName returns Owner.Name.
func (r *TransferRelation) QualifiedName() string {
	if r.Owner == nil {
		return r.Name
	}
	return r.Owner.Name + "." + r.Name
}

// Behaviour is what an operation does.
type Behaviour string

// Operation behaviours.
const (
	BehaviourList            Behaviour = "list"
	BehaviourCreate          Behaviour = "create"
	BehaviourUpdate          Behaviour = "update"
	BehaviourDelete          Behaviour = "delete"
	BehaviourRefresh         Behaviour = "refresh"
	BehaviourSetReference    Behaviour = "set-reference"
	BehaviourUnsetReference  Behaviour = "unset-reference"
	BehaviourAddReference    Behaviour = "add-reference"
	BehaviourRemoveReference Behaviour = "remove-reference"
	BehaviourGetRange        Behaviour = "get-range"
	BehaviourGetInputRange   Behaviour = "get-input-range"
	BehaviourGetTemplate     Behaviour = "get-template"
)

var behaviours = []Behaviour{
	BehaviourList, BehaviourCreate, BehaviourUpdate, BehaviourDelete, BehaviourRefresh,
	BehaviourSetReference, BehaviourUnsetReference, BehaviourAddReference,
	BehaviourRemoveReference, BehaviourGetRange, BehaviourGetInputRange, BehaviourGetTemplate,
}

// ParseBehaviour returns the behaviour of the given name.
func ParseBehaviour(s string) (Behaviour, error) {
	for _, b := range behaviours {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("metamodel: unknown behaviour %q", s)
}

// ReferenceBehaviour reports whether the behaviour edits the links of a
// relation.
func (b Behaviour) ReferenceBehaviour() bool {
	switch b {
	case BehaviourSetReference, BehaviourUnsetReference, BehaviourAddReference, BehaviourRemoveReference:
		return true
	}
	return false
}

// RelationBehaviour reports whether the operation is bound to a relation.
func (b Behaviour) RelationBehaviour() bool {
	return b.ReferenceBehaviour() || b == BehaviourGetRange || b == BehaviourGetInputRange
}

// Operation is a named, client-callable action on a transfer type.
type Operation struct {
	Name         string
	Behaviour    Behaviour
	OwnerName    string
	RelationName string
	// Public operations can be called without an authenticated actor.
	Public bool

	// Resolved by Model.Link.
	Owner    *TransferType
	Relation *TransferRelation
}
