package rdbms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/rdbms"
)

func TestResolverNames(t *testing.T) {
	m := loadShop(t)
	r := rdbms.NewResolver(0)

	assert.Equal(t, "t_order_line", r.Table(m.Entity("OrderLine")))
	assert.Equal(t, "c_released_on", r.Column(m.Entity("Product").Attribute("releasedOn")))
	assert.Equal(t, "c_name", r.Column(m.Entity("Customer").Attribute("name")))
	assert.Equal(t, "t_cafe_menu", r.Table(&metamodel.EntityType{Name: "CaféMenu"}))
	assert.Equal(t, "t_order_2024", r.Table(&metamodel.EntityType{Name: "Order 2024"}))
}

func TestResolverForeignKey(t *testing.T) {
	m := loadShop(t)
	r := rdbms.NewResolver(0)
	category, product, order := m.Entity("Category"), m.Entity("Product"), m.Entity("Order")

	tests := []struct {
		name   string
		ref    *metamodel.Reference
		table  string
		column string
	}{
		{"Owned", product.Reference("category"), "Product", "fk_category"},
		{"Opposite", category.Reference("products"), "Product", "fk_category"},
		{"Containment", order.Reference("lines"), "OrderLine", "fk_order"},
		{"Tree", category.Reference("children"), "Category", "fk_parent"},
		{"Customer", m.Entity("Customer").Reference("orders"), "Order", "fk_customer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, col := r.ForeignKey(tt.ref)
			assert.Equal(t, tt.table, e.Name)
			assert.Equal(t, tt.column, col)
		})
	}

	// A one-way inverse foreign key is named after both ends.
	owner := &metamodel.EntityType{Name: "Basket"}
	item := &metamodel.EntityType{Name: "Item"}
	ref := &metamodel.Reference{Name: "items", Owner: owner, Target: item, Upper: metamodel.Many, Storage: metamodel.StorageInverseForeignKey}
	e, col := r.ForeignKey(ref)
	assert.Equal(t, item, e)
	assert.Equal(t, "fk_basket_items", col)
}

func TestResolverJunction(t *testing.T) {
	m := loadShop(t)
	r := rdbms.NewResolver(0)

	table, own, target := r.Junction(m.Entity("Product").Reference("tags"))
	assert.Equal(t, []string{"j_product_tags", "c_product_id", "c_tags_id"}, []string{table, own, target})

	table, own, target = r.Junction(m.Entity("Tag").Reference("products"))
	assert.Equal(t, []string{"j_product_tags", "c_tags_id", "c_product_id"}, []string{table, own, target})

	// A self junction keeps its columns apart.
	person := &metamodel.EntityType{Name: "Person"}
	ref := &metamodel.Reference{Name: "person", Owner: person, Target: person, Upper: metamodel.Many, Storage: metamodel.StorageJunction}
	table, own, target = r.Junction(ref)
	assert.Equal(t, []string{"j_person_person", "c_person_id", "c_person_target_id"}, []string{table, own, target})
}

func TestResolverTruncate(t *testing.T) {
	r := rdbms.NewResolver(24)
	a := r.Table(&metamodel.EntityType{Name: "ExtraordinarilyLongEntityNameOne"})
	b := r.Table(&metamodel.EntityType{Name: "ExtraordinarilyLongEntityNameTwo"})
	assert.Len(t, a, 24)
	assert.Len(t, b, 24)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, r.Table(&metamodel.EntityType{Name: "ExtraordinarilyLongEntityNameOne"}), "names are stable")
	assert.Equal(t, "t_tag", r.Table(&metamodel.EntityType{Name: "Tag"}))
}
