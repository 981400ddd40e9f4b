package statement_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/privacy"
	"github.com/syssam/strata/statement"
)

var epoch = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func loadShop(t *testing.T) *metamodel.Model {
	t.Helper()
	m, err := metamodel.LoadFile("../testdata/shop.yaml")
	require.NoError(t, err)
	return m
}

// sequence returns a generator of identifiers 00..01, 00..02 and so on.
func sequence() func() uuid.UUID {
	var n byte
	return func() uuid.UUID {
		n++
		return uuid.UUID{15: n}
	}
}

func seq(n byte) uuid.UUID { return uuid.UUID{15: n} }

func newPlanner() *statement.Planner {
	return statement.NewPlanner(
		statement.WithIdentifiers(sequence()),
		statement.WithClock(func() time.Time { return epoch }),
	)
}

func kinds(stmts []statement.Statement) []statement.Kind {
	out := make([]statement.Kind, len(stmts))
	for i, s := range stmts {
		out[i] = s.Kind()
	}
	return out
}

func TestPlanCreate(t *testing.T) {
	m := loadShop(t)
	ctx := privacy.WithActor(context.Background(), &privacy.SimpleActor{ID: "u1"})

	stmts, err := newPlanner().Plan(ctx, statement.Request{
		Behaviour: metamodel.BehaviourCreate,
		Type:      m.Transfer("CategoryInfo"),
		Payload:   statement.Payload{"name": "Beverages", statement.KeyReferenceID: "r1"},
	})
	require.NoError(t, err)
	require.Equal(t, []statement.Kind{statement.KindCheckUnique, statement.KindInsert}, kinds(stmts))

	unique := stmts[0].(*statement.CheckUnique)
	assert.Equal(t, "name", unique.Attribute.Name)
	assert.Equal(t, "Beverages", unique.Value)
	assert.Equal(t, seq(1), unique.Identifier)

	insert := stmts[1].(*statement.Insert)
	assert.Equal(t, "Category", insert.Entity.Name)
	assert.Equal(t, seq(1), insert.Identifier)
	assert.Equal(t, 1, insert.Version)
	assert.Equal(t, "r1", insert.ReferenceID)
	assert.Nil(t, insert.Container.Reference)
	require.Len(t, insert.Values, 1)
	assert.Equal(t, "name", insert.Values[0].Attribute.Name)
	assert.Equal(t, statement.Audit{Actor: "u1", Timestamp: epoch}, insert.Audit)
}

func TestPlanCreateContained(t *testing.T) {
	m := loadShop(t)
	stmts, err := newPlanner().Plan(context.Background(), statement.Request{
		Behaviour: metamodel.BehaviourCreate,
		Type:      m.Transfer("CategoryInfo"),
		Payload: statement.Payload{
			"name":     "Beverages",
			"children": []any{map[string]any{"name": "Tea"}, statement.Payload{"name": "Coffee"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, []statement.Kind{
		statement.KindCheckUnique, statement.KindCheckUnique, statement.KindCheckUnique,
		statement.KindInsert, statement.KindInsert, statement.KindInsert,
	}, kinds(stmts))

	parent := stmts[5].(*statement.Insert)
	assert.Equal(t, seq(1), parent.Identifier, "the container gets its identifier first")
	children := m.Entity("Category").Reference("children")
	for i, name := range []string{"Tea", "Coffee"} {
		child := stmts[3+i].(*statement.Insert)
		assert.Equal(t, name, child.Values[0].Value)
		assert.Equal(t, statement.Container{Reference: children, ID: seq(1)}, child.Container)
	}
}

func TestPlanCreateReferences(t *testing.T) {
	m := loadShop(t)
	customer, product := uuid.New(), uuid.New()
	stmts, err := newPlanner().Plan(context.Background(), statement.Request{
		Behaviour: metamodel.BehaviourCreate,
		Type:      m.Transfer("OrderInfo"),
		Payload: statement.Payload{
			"number":   "A-1",
			"customer": statement.Payload{statement.KeyIdentifier: customer.String()},
			"lines": []statement.Payload{{
				"quantity":  2,
				"unitPrice": decimal.RequireFromString("9.90"),
				"product":   statement.Payload{statement.KeyIdentifier: product},
			}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []statement.Kind{
		statement.KindCheckUnique,
		statement.KindInstanceExists,
		statement.KindInstanceExists,
		statement.KindValidation,
		statement.KindInsert,
		statement.KindInsert,
		statement.KindAddReference,
		statement.KindAddReference,
	}, kinds(stmts))

	exists := stmts[1].(*statement.InstanceExists)
	assert.Equal(t, "Customer", exists.Entity.Name)
	assert.Equal(t, customer, exists.Identifier)
	assert.Equal(t, "OrderInfo.customer", exists.Element)

	inRange := stmts[3].(*statement.Validation)
	assert.Equal(t, "OrderLineInfo.product", inRange.Relation.QualifiedName())
	assert.Equal(t, []uuid.UUID{product}, inRange.Targets)
	assert.Equal(t, seq(2), inRange.Identifier)

	line := stmts[4].(*statement.Insert)
	assert.Equal(t, "OrderLine", line.Entity.Name)
	assert.Equal(t, seq(1), line.Container.ID)
	assert.Equal(t, "Order", stmts[5].(*statement.Insert).Entity.Name)

	link := stmts[6].(*statement.AddReference)
	assert.Equal(t, "customer", link.Reference.Name)
	assert.Equal(t, []uuid.UUID{customer}, link.Targets)
	assert.Empty(t, link.Current)
}

func TestPlanCreateThroughReference(t *testing.T) {
	m := loadShop(t)
	stmts, err := newPlanner().Plan(context.Background(), statement.Request{
		Behaviour: metamodel.BehaviourCreate,
		Type:      m.Transfer("CustomerInfo"),
		Payload: statement.Payload{
			"name":   "Ann",
			"orders": []any{map[string]any{"number": "A-1"}},
		},
	})
	require.NoError(t, err, "the required customer of the new order is set by the link of the customer")
	require.Equal(t, []statement.Kind{
		statement.KindCheckUnique,
		statement.KindInsert,
		statement.KindInsert,
		statement.KindAddReference,
	}, kinds(stmts), "a target inserted by the plan is not checked for existence")

	order := stmts[1].(*statement.Insert)
	assert.Equal(t, "Order", order.Entity.Name)
	assert.Equal(t, seq(2), order.Identifier)
	assert.Nil(t, order.Container.Reference)
	assert.Equal(t, "Customer", stmts[2].(*statement.Insert).Entity.Name)

	link := stmts[3].(*statement.AddReference)
	assert.Equal(t, seq(1), link.Identifier)
	assert.Equal(t, "orders", link.Reference.Name)
	assert.Equal(t, []uuid.UUID{seq(2)}, link.Targets)
}

func TestPlanRootPermission(t *testing.T) {
	m := loadShop(t)
	archived := m.Transfer("ArchivedCategoryInfo")
	id := uuid.New()
	tests := []struct {
		name string
		req  statement.Request
		flag string
	}{
		{"Create", statement.Request{
			Behaviour: metamodel.BehaviourCreate, Type: archived,
			Payload: statement.Payload{"name": "Beverages"},
		}, "create"},
		{"Update", statement.Request{
			Behaviour: metamodel.BehaviourUpdate, Type: archived,
			Payload:  statement.Payload{statement.KeyIdentifier: id, "name": "Drinks"},
			Original: statement.Payload{statement.KeyIdentifier: id, statement.KeyVersion: 1, "name": "Beverages"},
		}, "update"},
		{"Delete", statement.Request{
			Behaviour: metamodel.BehaviourDelete, Type: m.Transfer("CustomerInfo"),
			Original: statement.Payload{statement.KeyIdentifier: id},
		}, "delete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts, err := newPlanner().Plan(context.Background(), tt.req)
			assert.Empty(t, stmts)
			var ae *strata.AuthorizationError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, strata.CodePermissionDenied, ae.Code)
			assert.Equal(t, tt.req.Type.Name, ae.Element)
			assert.Contains(t, ae.Message, tt.flag)
		})
	}

	stmts, err := newPlanner().Plan(context.Background(), statement.Request{
		Behaviour: metamodel.BehaviourDelete, Type: archived,
		Original: statement.Payload{statement.KeyIdentifier: id},
	})
	require.NoError(t, err)
	assert.Equal(t, []statement.Kind{statement.KindDelete}, kinds(stmts))
}

func TestPlanInvalidValue(t *testing.T) {
	m := loadShop(t)
	tests := []struct {
		name     string
		transfer string
		payload  statement.Payload
		elements []string
	}{
		{"String", "CategoryInfo", statement.Payload{"name": 42}, []string{"name"}},
		{"Collected", "ProductInfo", statement.Payload{"name": "Cola", "price": "cheap", "status": "GONE"}, []string{"price", "status"}},
		{"Date", "ProductScheduleInfo", statement.Payload{"name": "Cola", "releasedOn": "next week"}, []string{"releasedOn"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts, err := newPlanner().Plan(context.Background(), statement.Request{
				Behaviour: metamodel.BehaviourCreate,
				Type:      m.Transfer(tt.transfer),
				Payload:   tt.payload,
			})
			assert.Nil(t, stmts)
			require.True(t, strata.IsValidationError(err), "got %v", err)
			assert.False(t, strata.IsConfigError(err))
			var errs strata.ValidationErrors
			require.ErrorAs(t, err, &errs)
			var elements []string
			for _, e := range errs {
				assert.Equal(t, strata.CodeInvalidValue, e.Code)
				elements = append(elements, e.Element)
			}
			assert.Equal(t, tt.elements, elements)
		})
	}
}

func TestConform(t *testing.T) {
	m := loadShop(t)
	product, order := m.Entity("Product"), m.Entity("Order")
	tests := []struct {
		name string
		a    *metamodel.Attribute
		in   any
		want any
	}{
		{"IntegerFromFloat", product.Attribute("stock"), float64(7), int64(7)},
		{"IntegerFromInt", product.Attribute("stock"), 7, int64(7)},
		{"DecimalFromString", product.Attribute("price"), "9.90", decimal.RequireFromString("9.90")},
		{"EnumOrdinal", product.Attribute("status"), 1, "ACTIVE"},
		{"EnumLiteral", product.Attribute("status"), "RETIRED", "RETIRED"},
		{"DateFromTime", product.Attribute("releasedOn"), epoch, "2024-03-01"},
		{"DateFromTimestampText", product.Attribute("releasedOn"), "2024-03-01T09:30:00Z", "2024-03-01"},
		{"TimestampFromText", order.Attribute("placedAt"), "2024-03-01T10:30:00+01:00", epoch},
		{"Nil", product.Attribute("stock"), nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := statement.Conform(tt.a, tt.in)
			require.NoError(t, err)
			if want, ok := tt.want.(time.Time); ok {
				assert.True(t, want.Equal(got.(time.Time)), "got %v", got)
				return
			}
			if want, ok := tt.want.(decimal.Decimal); ok {
				assert.True(t, want.Equal(got.(decimal.Decimal)), "got %v", got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := statement.Conform(order.Attribute("paid"), "yes")
	assert.Error(t, err)
	_, err = statement.Conform(product.Attribute("status"), 9)
	assert.Error(t, err)
}

func TestPlanNestedPermission(t *testing.T) {
	m := loadShop(t)
	stmts, err := newPlanner().Plan(context.Background(), statement.Request{
		Behaviour: metamodel.BehaviourCreate,
		Type:      m.Transfer("CategoryInfo"),
		Payload: statement.Payload{
			"name":     "Beverages",
			"products": []any{map[string]any{"name": "Cola"}},
		},
	})
	assert.Nil(t, stmts)
	var ae *strata.AuthorizationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, strata.CodePermissionDenied, ae.Code)
	assert.Equal(t, "CategoryInfo.products", ae.Element)
}

func TestPlanMissingRequired(t *testing.T) {
	m := loadShop(t)
	stmts, err := newPlanner().Plan(context.Background(), statement.Request{
		Behaviour: metamodel.BehaviourCreate,
		Type:      m.Transfer("OrderInfo"),
		Payload:   statement.Payload{"paid": false},
	})
	assert.Nil(t, stmts)
	require.True(t, strata.IsValidationError(err))
	var errs strata.ValidationErrors
	require.ErrorAs(t, err, &errs)
	var elements []string
	for _, e := range errs {
		assert.Equal(t, strata.CodeMissingRequired, e.Code)
		assert.Equal(t, "Order", e.Entity)
		elements = append(elements, e.Element)
	}
	assert.Equal(t, []string{"number", "customer"}, elements)

	_, err = newPlanner().Plan(context.Background(), statement.Request{
		Behaviour: metamodel.BehaviourCreate,
		Type:      m.Transfer("CategoryInfo"),
		Payload:   statement.Payload{"name": nil},
	})
	assert.True(t, strata.IsValidationError(err), "explicit nil counts as missing")
}

func TestPlanUpdate(t *testing.T) {
	m := loadShop(t)
	id := uuid.New()
	orig := statement.Payload{statement.KeyIdentifier: id, statement.KeyVersion: 3, "name": "Beverages", "description": "Drinks"}

	t.Run("Changed", func(t *testing.T) {
		stmts, err := newPlanner().Plan(context.Background(), statement.Request{
			Behaviour: metamodel.BehaviourUpdate,
			Type:      m.Transfer("CategoryInfo"),
			Payload:   statement.Payload{statement.KeyIdentifier: id, "name": "Beverages", "description": "Cold drinks"},
			Original:  orig,
		})
		require.NoError(t, err)
		require.Equal(t, []statement.Kind{statement.KindUpdate}, kinds(stmts), "unchanged unique values are not checked")
		update := stmts[0].(*statement.Update)
		assert.Equal(t, 3, update.Version)
		require.Len(t, update.Values, 1)
		assert.Equal(t, "description", update.Values[0].Attribute.Name)
	})
	t.Run("Unchanged", func(t *testing.T) {
		stmts, err := newPlanner().Plan(context.Background(), statement.Request{
			Behaviour: metamodel.BehaviourUpdate,
			Type:      m.Transfer("CategoryInfo"),
			Payload:   statement.Payload{statement.KeyIdentifier: id, "name": "Beverages"},
			Original:  orig,
		})
		require.NoError(t, err)
		assert.Empty(t, stmts)
	})
	t.Run("Renamed", func(t *testing.T) {
		stmts, err := newPlanner().Plan(context.Background(), statement.Request{
			Behaviour: metamodel.BehaviourUpdate,
			Type:      m.Transfer("CategoryInfo"),
			Payload:   statement.Payload{statement.KeyIdentifier: id, "name": "Drinks"},
			Original:  orig,
		})
		require.NoError(t, err)
		assert.Equal(t, []statement.Kind{statement.KindCheckUnique, statement.KindUpdate}, kinds(stmts))
	})
	t.Run("Decimal", func(t *testing.T) {
		line := uuid.New()
		stmts, err := newPlanner().Plan(context.Background(), statement.Request{
			Behaviour: metamodel.BehaviourUpdate,
			Type:      m.Transfer("OrderLineInfo"),
			Payload:   statement.Payload{statement.KeyIdentifier: line, "unitPrice": decimal.RequireFromString("9.9")},
			Original:  statement.Payload{statement.KeyIdentifier: line, statement.KeyVersion: 1, "unitPrice": decimal.RequireFromString("9.90")},
		})
		require.NoError(t, err)
		assert.Empty(t, stmts)
	})
	t.Run("Conformed", func(t *testing.T) {
		product := uuid.New()
		stored := statement.Payload{statement.KeyIdentifier: product, statement.KeyVersion: 1, "name": "Cola", "stock": int64(5), "releasedOn": "2024-03-01"}
		stmts, err := newPlanner().Plan(context.Background(), statement.Request{
			Behaviour: metamodel.BehaviourUpdate,
			Type:      m.Transfer("ProductScheduleInfo"),
			Payload:   statement.Payload{statement.KeyIdentifier: product, "stock": 5, "releasedOn": time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
			Original:  stored,
		})
		require.NoError(t, err)
		assert.Empty(t, stmts, "a date given as time.Time equals its stored text")

		stmts, err = newPlanner().Plan(context.Background(), statement.Request{
			Behaviour: metamodel.BehaviourUpdate,
			Type:      m.Transfer("ProductScheduleInfo"),
			Payload:   statement.Payload{statement.KeyIdentifier: product, "releasedOn": epoch.AddDate(0, 0, 1)},
			Original:  stored,
		})
		require.NoError(t, err)
		require.Equal(t, []statement.Kind{statement.KindUpdate}, kinds(stmts))
		assert.Equal(t, "2024-03-02", stmts[0].(*statement.Update).Values[0].Value)
	})
	t.Run("NotFound", func(t *testing.T) {
		_, err := newPlanner().Plan(context.Background(), statement.Request{
			Behaviour: metamodel.BehaviourUpdate,
			Type:      m.Transfer("CategoryInfo"),
			Payload:   statement.Payload{statement.KeyIdentifier: id, "name": "Drinks"},
		})
		assert.True(t, strata.IsNotFound(err))
	})
}

func TestPlanUpdateContained(t *testing.T) {
	m := loadShop(t)
	order, kept, dropped := uuid.New(), uuid.New(), uuid.New()
	product := uuid.New()
	orig := statement.Payload{
		statement.KeyIdentifier: order, statement.KeyVersion: 2, "number": "A-1",
		"customer": statement.Payload{statement.KeyIdentifier: uuid.New()},
		"lines": []statement.Payload{
			{statement.KeyIdentifier: kept, statement.KeyVersion: 1, "quantity": 1, "product": statement.Payload{statement.KeyIdentifier: product}},
			{statement.KeyIdentifier: dropped, statement.KeyVersion: 1, "quantity": 5},
		},
	}
	stmts, err := newPlanner().Plan(context.Background(), statement.Request{
		Behaviour: metamodel.BehaviourUpdate,
		Type:      m.Transfer("OrderInfo"),
		Payload: statement.Payload{
			statement.KeyIdentifier: order, "number": "A-1",
			"lines": []any{
				statement.Payload{statement.KeyIdentifier: kept, "quantity": 3},
				statement.Payload{"quantity": 1, "product": statement.Payload{statement.KeyIdentifier: product}},
			},
		},
		Original: orig,
	})
	require.NoError(t, err)
	require.Equal(t, []statement.Kind{
		statement.KindInstanceExists,
		statement.KindValidation,
		statement.KindUpdate,
		statement.KindInsert,
		statement.KindAddReference,
		statement.KindDelete,
	}, kinds(stmts))
	assert.Equal(t, kept, stmts[2].Instance().Identifier)
	assert.Equal(t, order, stmts[3].(*statement.Insert).Container.ID)
	assert.Equal(t, dropped, stmts[5].Instance().Identifier)
}

func TestPlanDelete(t *testing.T) {
	m := loadShop(t)
	order, l1, l2 := uuid.New(), uuid.New(), uuid.New()
	stmts, err := newPlanner().Plan(context.Background(), statement.Request{
		Behaviour: metamodel.BehaviourDelete,
		Type:      m.Transfer("OrderInfo"),
		Original: statement.Payload{
			statement.KeyIdentifier: order,
			"lines": []statement.Payload{{statement.KeyIdentifier: l1}, {statement.KeyIdentifier: l2}},
		},
	})
	require.NoError(t, err)
	var ids []uuid.UUID
	for _, s := range stmts {
		require.Equal(t, statement.KindDelete, s.Kind())
		ids = append(ids, s.Instance().Identifier)
	}
	assert.Equal(t, []uuid.UUID{l1, l2, order}, ids, "contained instances go first")
}

func TestPlanReference(t *testing.T) {
	m := loadShop(t)
	info := m.Transfer("CategoryInfo")
	products := info.Relation("products")
	owner := uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	orig := statement.Payload{
		statement.KeyIdentifier: owner,
		"products":              []any{map[string]any{statement.KeyIdentifier: a.String()}, map[string]any{statement.KeyIdentifier: b}},
	}
	plan := func(t *testing.T, b metamodel.Behaviour, targets ...uuid.UUID) []statement.Statement {
		t.Helper()
		stmts, err := newPlanner().Plan(context.Background(), statement.Request{
			Behaviour: b, Type: info, Relation: products, Original: orig, Targets: targets,
		})
		require.NoError(t, err)
		return stmts
	}

	t.Run("Set", func(t *testing.T) {
		stmts := plan(t, metamodel.BehaviourSetReference, b, c)
		require.Equal(t, []statement.Kind{
			statement.KindInstanceExists, statement.KindValidation,
			statement.KindRemoveReference, statement.KindAddReference,
		}, kinds(stmts))
		assert.Equal(t, c, stmts[0].Instance().Identifier)
		assert.Equal(t, []uuid.UUID{a}, stmts[2].(*statement.RemoveReference).Targets)
		add := stmts[3].(*statement.AddReference)
		assert.Equal(t, owner, add.Identifier)
		assert.Equal(t, []uuid.UUID{c}, add.Targets)
		assert.Equal(t, []uuid.UUID{a, b}, add.Current)
	})
	t.Run("Unset", func(t *testing.T) {
		stmts := plan(t, metamodel.BehaviourUnsetReference)
		require.Equal(t, []statement.Kind{statement.KindRemoveReference}, kinds(stmts))
		assert.Equal(t, []uuid.UUID{a, b}, stmts[0].(*statement.RemoveReference).Targets)
	})
	t.Run("Add", func(t *testing.T) {
		stmts := plan(t, metamodel.BehaviourAddReference, b, c)
		require.Equal(t, []statement.Kind{
			statement.KindInstanceExists, statement.KindValidation, statement.KindAddReference,
		}, kinds(stmts))
	})
	t.Run("Remove", func(t *testing.T) {
		stmts := plan(t, metamodel.BehaviourRemoveReference, b, c)
		require.Equal(t, []statement.Kind{statement.KindRemoveReference}, kinds(stmts))
		assert.Equal(t, []uuid.UUID{b}, stmts[0].(*statement.RemoveReference).Targets)
	})
	t.Run("SetSame", func(t *testing.T) {
		assert.Empty(t, plan(t, metamodel.BehaviourSetReference, a, b))
	})
	t.Run("SingleValued", func(t *testing.T) {
		_, err := newPlanner().Plan(context.Background(), statement.Request{
			Behaviour: metamodel.BehaviourSetReference,
			Type:      m.Transfer("ProductInfo"),
			Relation:  m.Transfer("ProductInfo").Relation("category"),
			Owner:     owner,
			Targets:   []uuid.UUID{a, b},
		})
		require.Error(t, err)
	})
}

func TestPlanRejects(t *testing.T) {
	m := loadShop(t)
	tests := []struct {
		name string
		req  statement.Request
	}{
		{"Unmapped", statement.Request{Behaviour: metamodel.BehaviourCreate, Type: m.Transfer("SearchQuery")}},
		{"List", statement.Request{Behaviour: metamodel.BehaviourList, Type: m.Transfer("CategoryInfo")}},
		{"CreateWithIdentifier", statement.Request{
			Behaviour: metamodel.BehaviourCreate,
			Type:      m.Transfer("CategoryInfo"),
			Payload:   statement.Payload{statement.KeyIdentifier: uuid.New(), "name": "x"},
		}},
		{"Containment", statement.Request{
			Behaviour: metamodel.BehaviourSetReference,
			Type:      m.Transfer("CategoryInfo"),
			Relation:  m.Transfer("CategoryInfo").Relation("children"),
			Owner:     uuid.New(),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts, err := newPlanner().Plan(context.Background(), tt.req)
			assert.Nil(t, stmts)
			assert.True(t, strata.IsConfigError(err))
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newPlanner().Plan(ctx, statement.Request{Behaviour: metamodel.BehaviourCreate, Type: m.Transfer("CategoryInfo")})
	assert.ErrorIs(t, err, context.Canceled)
}
