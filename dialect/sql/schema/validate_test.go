package schema

import (
	"testing"

	"ariga.io/atlas/sql/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/rdbms"
)

func TestValidateSchema(t *testing.T) {
	tables, err := Tables(loadShop(t), rdbms.Postgres)
	require.NoError(t, err)
	r := ValidateSchema(tables)
	assert.False(t, r.HasErrors(), r.String())
	assert.Equal(t, "no issues", r.String())

	id := schema.NewColumn("id").SetType(&schema.UUIDType{T: "uuid"})
	name := schema.NewStringColumn("c_name", "varchar")
	a := schema.NewTable("t_a").AddColumns(id, name)
	a.SetPrimaryKey(schema.NewPrimaryKey(id))
	a.AddIndexes(schema.NewUniqueIndex("u_name").AddColumns(name))
	b := schema.NewTable("t_b").AddColumns(schema.NewStringColumn("c_name", "varchar"))
	b.AddIndexes(schema.NewIndex("u_name").AddColumns(schema.NewStringColumn("c_label", "varchar")))

	r = ValidateSchema([]*schema.Table{a, b, a})
	var messages []string
	for _, i := range r.Errors {
		messages = append(messages, i.Error())
	}
	assert.Contains(t, messages, "t_b: table has no primary key")
	assert.Contains(t, messages, "t_b: index u_name is also defined on t_a")
	assert.Contains(t, messages, "t_b.c_label: index u_name covers a missing column")
	assert.Contains(t, messages, "t_a: table name is not unique")
}

func TestValidateDiff(t *testing.T) {
	table := func(nullable bool, size int, unique bool) *schema.Table {
		id := schema.NewColumn("id").SetType(&schema.UUIDType{T: "uuid"})
		name := schema.NewStringColumn("c_name", "varchar", schema.StringSize(size)).SetNull(nullable)
		t := schema.NewTable("t_category").AddColumns(id, name)
		t.SetPrimaryKey(schema.NewPrimaryKey(id))
		if unique {
			t.AddIndexes(schema.NewUniqueIndex("u_category_c_name").AddColumns(name))
		}
		return t
	}
	from := []*schema.Table{table(true, 200, false), schema.NewTable("t_legacy")}

	tests := []struct {
		name     string
		to       []*schema.Table
		opts     []ValidateOption
		errors   int
		warnings int
		breaking bool
	}{
		{name: "Unchanged", to: []*schema.Table{table(true, 200, false), schema.NewTable("t_legacy")}},
		{name: "DropTable", to: []*schema.Table{table(true, 200, false)}, errors: 1, breaking: true},
		{name: "DropTableAllowed", to: []*schema.Table{table(true, 200, false)}, opts: []ValidateOption{AllowDropTable()}, warnings: 1, breaking: true},
		{
			name:     "Tighten",
			to:       []*schema.Table{table(false, 100, true), schema.NewTable("t_legacy")},
			errors:   1,
			warnings: 3,
			breaking: true,
		},
		{
			name:     "TightenAllowed",
			to:       []*schema.Table{table(false, 200, false), schema.NewTable("t_legacy")},
			opts:     []ValidateOption{AllowNullToNotNull()},
			warnings: 1,
			breaking: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ValidateDiff(from, tt.to, tt.opts...)
			assert.Len(t, r.Errors, tt.errors, r.String())
			assert.Len(t, r.Warnings, tt.warnings, r.String())
			assert.Equal(t, tt.breaking, r.HasBreakingChanges())
		})
	}
}
