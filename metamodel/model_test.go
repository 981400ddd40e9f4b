package metamodel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/metamodel"
)

func TestDerivedStorage(t *testing.T) {
	m := loadShop(t)
	tests := []struct {
		entity, reference string
		storage           metamodel.Storage
	}{
		{"Category", "parent", metamodel.StorageForeignKey},
		{"Category", "children", metamodel.StorageInverseForeignKey},
		{"Category", "products", metamodel.StorageInverseForeignKey},
		{"Product", "category", metamodel.StorageForeignKey},
		{"Product", "tags", metamodel.StorageJunction},
		{"Tag", "products", metamodel.StorageJunction},
		{"Customer", "orders", metamodel.StorageInverseForeignKey},
		{"Order", "lines", metamodel.StorageInverseForeignKey},
		{"OrderLine", "product", metamodel.StorageForeignKey},
	}
	for _, tt := range tests {
		t.Run(tt.entity+"."+tt.reference, func(t *testing.T) {
			r := m.Entity(tt.entity).Reference(tt.reference)
			require.NotNil(t, r)
			assert.Equal(t, tt.storage, r.Storage)
		})
	}

	t.Run("JunctionOwner", func(t *testing.T) {
		tags := m.Entity("Product").Reference("tags")
		assert.True(t, tags.OwnsJunction())
		assert.False(t, tags.Opposite.OwnsJunction())
	})
}

func TestOneToOneStorage(t *testing.T) {
	passport := &metamodel.EntityType{
		Name:       "Passport",
		References: []*metamodel.Reference{{Name: "holder", TargetName: "Person", Upper: 1, OppositeName: "passport"}},
	}
	person := &metamodel.EntityType{
		Name:       "Person",
		References: []*metamodel.Reference{{Name: "passport", TargetName: "Passport", Upper: 1, OppositeName: "holder"}},
	}
	m := metamodel.NewModel([]*metamodel.EntityType{passport, person}, nil, nil)
	require.NoError(t, m.Link())
	assert.Equal(t, metamodel.StorageForeignKey, passport.References[0].Storage)
	assert.Equal(t, metamodel.StorageInverseForeignKey, person.References[0].Storage)
}

func TestInheritance(t *testing.T) {
	m := loadShop(t)
	customer := m.Entity("Customer")
	party := m.Entity("Party")

	assert.Equal(t, []*metamodel.EntityType{party}, customer.Ancestors())
	assert.Same(t, party, customer.Root())
	assert.True(t, customer.IsKindOf(party))
	assert.False(t, party.IsKindOf(customer))
	assert.Equal(t, []*metamodel.EntityType{customer}, party.Subtypes())
	assert.Equal(t, []*metamodel.EntityType{party, customer}, customer.Hierarchy())

	name := customer.Attribute("name")
	require.NotNil(t, name)
	assert.Same(t, party, name.Owner)

	var names []string
	for _, a := range customer.AllAttributes() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"name", "email"}, names)
}

func TestLinkErrors(t *testing.T) {
	tests := []struct {
		name     string
		entities func() []*metamodel.EntityType
		element  string
	}{
		{
			name: "SupertypeCycle",
			entities: func() []*metamodel.EntityType {
				return []*metamodel.EntityType{
					{Name: "A", SupertypeNames: []string{"B"}},
					{Name: "B", SupertypeNames: []string{"A"}},
				}
			},
			element: "A",
		},
		{
			name: "UnknownTarget",
			entities: func() []*metamodel.EntityType {
				return []*metamodel.EntityType{
					{Name: "A", References: []*metamodel.Reference{{Name: "b", TargetName: "B", Upper: 1}}},
				}
			},
			element: "A.b",
		},
		{
			name: "MissingOpposite",
			entities: func() []*metamodel.EntityType {
				return []*metamodel.EntityType{
					{Name: "A", References: []*metamodel.Reference{{Name: "b", TargetName: "B", Upper: 1, OppositeName: "a"}}},
					{Name: "B"},
				}
			},
			element: "A.b",
		},
		{
			name: "ManyAsForeignKey",
			entities: func() []*metamodel.EntityType {
				return []*metamodel.EntityType{
					{Name: "A", References: []*metamodel.Reference{{Name: "b", TargetName: "A", Upper: metamodel.Many, Storage: metamodel.StorageForeignKey}}},
				}
			},
			element: "A.b",
		},
		{
			name: "DuplicateMember",
			entities: func() []*metamodel.EntityType {
				return []*metamodel.EntityType{
					{Name: "A", Attributes: []*metamodel.Attribute{{Name: "x", Type: metamodel.TypeString}}},
					{Name: "B", SupertypeNames: []string{"A"}, Attributes: []*metamodel.Attribute{{Name: "x", Type: metamodel.TypeString}}},
				}
			},
			element: "B.x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := metamodel.NewModel(tt.entities(), nil, nil).Link()
			require.Error(t, err)
			var ce *strata.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.element, ce.Element)
		})
	}
}

func TestLinkTransfers(t *testing.T) {
	item := &metamodel.EntityType{
		Name:       "Item",
		Attributes: []*metamodel.Attribute{{Name: "title", Type: metamodel.TypeString}},
		References: []*metamodel.Reference{{Name: "next", TargetName: "Item"}},
	}
	view := &metamodel.TransferType{
		Name:       "ItemView",
		EntityName: "Item",
		Attributes: []*metamodel.TransferAttribute{
			{Name: "title", Binding: expr.Attribute(expr.Self(), "title")},
			{Name: "shout", Type: metamodel.TypeString, Binding: expr.Apply(expr.FuncUpper, expr.Attribute(expr.Self(), "title"))},
		},
		Relations: []*metamodel.TransferRelation{
			{Name: "next", TargetName: "ItemView", Binding: expr.Navigate(expr.Self(), "next")},
		},
	}
	m := metamodel.NewModel([]*metamodel.EntityType{item}, []*metamodel.TransferType{view}, nil)
	require.NoError(t, m.Link())
	require.NoError(t, m.Link(), "linking twice is a no-op")

	assert.Equal(t, metamodel.TypeString, view.Attributes[0].Type)
	assert.Same(t, item.Attributes[0], view.Attributes[0].Attribute)
	assert.False(t, view.Attributes[1].Writable())

	next := view.Relations[0]
	assert.Same(t, item.References[0], next.Reference)
	assert.Equal(t, 1, next.Upper, "upper bound defaults to one")
	assert.Same(t, view, next.Owner)
	assert.Same(t, view, next.Target)
	assert.Equal(t, metamodel.StorageForeignKey, item.References[0].Storage)
}

func TestBehaviour(t *testing.T) {
	b, err := metamodel.ParseBehaviour("get-range")
	require.NoError(t, err)
	assert.True(t, b.RelationBehaviour())
	assert.False(t, b.ReferenceBehaviour())
	assert.True(t, metamodel.BehaviourRemoveReference.ReferenceBehaviour())
	assert.False(t, metamodel.BehaviourList.RelationBehaviour())

	_, err = metamodel.ParseBehaviour("jump")
	assert.Error(t, err)
}

func TestParseType(t *testing.T) {
	typ, err := metamodel.ParseType(" Decimal ")
	require.NoError(t, err)
	assert.Equal(t, metamodel.TypeDecimal, typ)
	assert.True(t, typ.Numeric())
	assert.True(t, metamodel.TypeText.Textual())
	assert.True(t, metamodel.TypeDate.Temporal())
	assert.Equal(t, "timestamp", metamodel.TypeTimestamp.String())
	_, err = metamodel.ParseType("blob")
	assert.Error(t, err)
}
