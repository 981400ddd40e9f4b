// Package query compiles transfer types and their bound expressions into a
// relational query model.
//
// A Model is an arena owned by one compilation: selects, subselects and
// joins (nodes), targets and features live in flat slices and refer to each
// other by integer identifiers. Models are immutable once Compile returns
// and are safe to share.
package query

import (
	"strconv"

	"github.com/syssam/strata/metamodel"
)

// NodeID identifies a Select, SubSelect or Join of a Model. Zero is no node.
type NodeID int

// TargetID identifies a Target of a Model. Zero is no target.
type TargetID int

// FeatureID identifies a Feature of a Model. Zero is no feature.
type FeatureID int

// Label returns the result column label of the feature.
func (id FeatureID) Label() string { return "f" + strconv.Itoa(int(id)) }

// Node is a Select, SubSelect or Join.
type Node interface {
	queryNode()
	ID() NodeID
}

// Model is the compiled query of a transfer type.
type Model struct {
	Root     NodeID
	nodes    []Node
	targets  []*Target
	features []*Feature
}

func newModel() *Model {
	// Index zero is reserved for "none".
	return &Model{nodes: []Node{nil}, targets: []*Target{nil}, features: []*Feature{nil}}
}

// Node returns the node of the given id.
func (m *Model) Node(id NodeID) Node { return m.nodes[id] }

// Select returns the select of the given id. It panics if the node is not a select.
func (m *Model) Select(id NodeID) *Select { return m.nodes[id].(*Select) }

// SubSelect returns the subselect of the given id.
func (m *Model) SubSelect(id NodeID) *SubSelect { return m.nodes[id].(*SubSelect) }

// Join returns the join of the given id.
func (m *Model) Join(id NodeID) *Join { return m.nodes[id].(*Join) }

// Target returns the target of the given id.
func (m *Model) Target(id TargetID) *Target { return m.targets[id] }

// Feature returns the feature of the given id.
func (m *Model) Feature(id FeatureID) *Feature { return m.features[id] }

// RootSelect returns the select the model was compiled for.
func (m *Model) RootSelect() *Select { return m.Select(m.Root) }

// Nodes returns every node in creation order.
func (m *Model) Nodes() []Node { return m.nodes[1:] }

// Aliases returns the alias of every select, join and junction table in
// creation order. Relation subselects reuse the alias of their partner join.
func (m *Model) Aliases() []string {
	var out []string
	for _, n := range m.Nodes() {
		switch n := n.(type) {
		case *Select:
			out = append(out, n.Alias)
		case *Join:
			out = append(out, n.Alias)
			if n.JunctionAlias != "" {
				out = append(out, n.JunctionAlias)
			}
		}
	}
	for _, f := range m.features[1:] {
		if f.Link != nil && f.Link.Junction != "" {
			out = append(out, f.Link.Junction)
		}
	}
	return out
}

func (m *Model) addNode(n interface {
	Node
	setID(NodeID)
}) NodeID {
	id := NodeID(len(m.nodes))
	n.setID(id)
	m.nodes = append(m.nodes, n)
	return id
}

func (m *Model) addTarget(t *Target) TargetID {
	t.id = TargetID(len(m.targets))
	m.targets = append(m.targets, t)
	return t.id
}

func (m *Model) addFeature(f *Feature) FeatureID {
	f.id = FeatureID(len(m.features))
	m.features = append(m.features, f)
	return f.id
}

// Order is an ORDER BY criterion of a select.
type Order struct {
	Feature    FeatureID
	Descending bool
}

// Select is a SELECT over the table of an entity type.
type Select struct {
	id       NodeID
	Alias    string
	Entity   *metamodel.EntityType
	Transfer *metamodel.TransferType // nil for scalar subselects
	// Owner is the subselect the select is nested in, zero for the root.
	Owner      NodeID
	MainTarget TargetID
	Targets    []TargetID
	// Features are projected in order, labelled by FeatureID.Label.
	Features []FeatureID
	// Filters are the conjuncts of the WHERE clause.
	Filters    []FeatureID
	Joins      []NodeID
	SubSelects []NodeID // relation subselects, executed separately
	Orders     []Order
	Limit      int
}

func (*Select) queryNode()        {}
func (s *Select) ID() NodeID      { return s.id }
func (s *Select) setID(id NodeID) { s.id = id }

// SubSelectKind is the role of a subselect.
type SubSelectKind int

// Subselect kinds.
const (
	// SubSelectRelation fetches the instances of an embedded to-many
	// relation for a batch of partner identifiers.
	SubSelectRelation SubSelectKind = iota + 1
	// SubSelectAggregate is a correlated scalar aggregate.
	SubSelectAggregate
	// SubSelectExists is a correlated EXISTS test.
	SubSelectExists
	// SubSelectSelector picks the identifier of one element per partner.
	SubSelectSelector
)

// String returns the kind name.
func (k SubSelectKind) String() string {
	switch k {
	case SubSelectRelation:
		return "relation"
	case SubSelectAggregate:
		return "aggregate"
	case SubSelectExists:
		return "exists"
	case SubSelectSelector:
		return "selector"
	}
	return "subselect"
}

// SubSelect nests a Select in the query of its partner.
type SubSelect struct {
	id    NodeID
	Alias string
	Kind  SubSelectKind
	// Select is the nested select.
	Select NodeID
	// Partner is the select whose rows the subselect belongs to.
	Partner NodeID
	// Relation kind only: the target holding the relation, the relation,
	// and the projected identifier of the partner copy joined inside the
	// nested select (aliased Alias).
	Target     TargetID
	Relation   *metamodel.TransferRelation
	PartnerKey FeatureID
}

func (*SubSelect) queryNode()        {}
func (s *SubSelect) ID() NodeID      { return s.id }
func (s *SubSelect) setID(id NodeID) { s.id = id }

// JoinKind is the role of a join.
type JoinKind int

// Join kinds.
const (
	// JoinReference follows a reference, forwards or in reverse.
	JoinReference JoinKind = iota + 1
	// JoinIdentity joins another table of the same instance (an ancestor
	// or subtype table) on the shared identifier.
	JoinIdentity
	// JoinSelector joins the element picked by a selector subselect.
	JoinSelector
)

// Join adds a table to a select.
type Join struct {
	id     NodeID
	Alias  string
	Kind   JoinKind
	Entity *metamodel.EntityType // entity type of the joined table
	Select NodeID
	Outer  bool
	// Link is the join condition of reference joins. Partner is the alias
	// of identity joins.
	Link    *Link
	Partner string
	// JunctionAlias is Link.Junction, kept for alias listings.
	JunctionAlias string
	// On are additional join conditions.
	On        []FeatureID
	SubSelect NodeID // JoinSelector
}

func (*Join) queryNode()        {}
func (j *Join) ID() NodeID      { return j.id }
func (j *Join) setID(id NodeID) { j.id = id }

// Link is the condition relating an owner row and a target row of a
// reference, by table alias.
type Link struct {
	Reference *metamodel.Reference
	Owner     string
	Target    string
	// Junction is the junction table alias of junction references.
	Junction string
}

// Target is a transfer instance materialized from the rows of a select.
type Target struct {
	id TargetID
	// Index is unique within the select.
	Index    int
	Select   NodeID
	Alias    string // table alias providing the instance identifier
	Transfer *metamodel.TransferType
	Parent   TargetID
	Relation *metamodel.TransferRelation // relation of Parent filled by the target
	// Referenced targets only carry the identifier of a non-embedded
	// to-one relation.
	Referenced bool
	Identifier FeatureID
	Version    FeatureID
}

// ID returns the target id.
func (t *Target) ID() TargetID { return t.id }

// FeatureKind is the kind of a feature.
type FeatureKind int

// Feature kinds.
const (
	FeatureAttribute FeatureKind = iota + 1
	FeatureIdentifier
	FeatureVersion
	FeatureConstant
	FeatureFunction
	FeatureSubSelect
	FeatureLink
)

// Feature is a value computed by a select: a column, a bound constant, a
// function of other features, a scalar subselect or a link condition.
type Feature struct {
	id        FeatureID
	Kind      FeatureKind
	Type      metamodel.Type
	Alias     string               // attribute, identifier and version
	Attribute *metamodel.Attribute // attribute; type hint of constants
	Value     any                  // constant
	Signature Signature            // function
	Params    []FeatureID          // function
	SubSelect NodeID               // subselect
	Link      *Link                // link
	Mappings  []Mapping
}

// ID returns the feature id.
func (f *Feature) ID() FeatureID { return f.id }

// Mapping assigns a projected feature to a transfer attribute of a target.
type Mapping struct {
	Target TargetID
	Name   string
}
