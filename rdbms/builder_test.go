package rdbms_test

import (
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/query"
	"github.com/syssam/strata/rdbms"
)

func loadShop(t *testing.T) *metamodel.Model {
	t.Helper()
	m, err := metamodel.LoadFile("../testdata/shop.yaml")
	require.NoError(t, err)
	return m
}

func compile(t *testing.T, m *metamodel.Model, transfer string, opts ...query.Option) *query.Model {
	t.Helper()
	qm, ok, err := query.NewCompiler(m).Compile(m.Transfer(transfer), opts...)
	require.NoError(t, err)
	require.True(t, ok)
	return qm
}

func subSelects(qm *query.Model, kind query.SubSelectKind) []*query.SubSelect {
	var out []*query.SubSelect
	for _, n := range qm.Nodes() {
		if s, ok := n.(*query.SubSelect); ok && s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// numbers returns the numbers of the placeholders of a query, in text
// order.
func numbers(sql string) []int {
	var out []int
	for _, m := range placeholder.FindAllStringSubmatch(sql, -1) {
		n, _ := strconv.Atoi(m[1])
		out = append(out, n)
	}
	return out
}

func TestSelectCondition(t *testing.T) {
	m := loadShop(t)
	qm, err := query.NewCompiler(m).Condition(m.Entity("Product"), expr.MustParse("status == #ACTIVE and stock > 0"))
	require.NoError(t, err)

	q, err := rdbms.NewBuilder(rdbms.Postgres).Select(qm, qm.Root, rdbms.WithIdentifiers(seq(4), seq(8)))
	require.NoError(t, err)
	assert.Equal(t, `SELECT "_t1"."id" AS "f1" FROM "t_product" AS "_t1"`+
		` WHERE (("_t1"."c_status" = $1) AND ("_t1"."c_stock" > $2)) AND "_t1"."id" IN (CAST($3 AS UUID), CAST($4 AS UUID))`+
		` ORDER BY "_t1"."id"`, q.SQL)
	require.Len(t, q.Args, 4)
	assert.Equal(t, int64(1), q.Args[0])
	assert.Equal(t, []any{seq(4).String(), seq(8).String()}, q.Args[2:])
	require.Len(t, q.Columns, 1)
	assert.Equal(t, "f1", q.Columns[0].Label)
	assert.Equal(t, metamodel.TypeUUID, q.Columns[0].Type)

	q, err = rdbms.NewBuilder(rdbms.MySQL).Select(qm, qm.Root)
	require.NoError(t, err)
	assert.Equal(t, "SELECT `_t1`.`id` AS `f1` FROM `t_product` AS `_t1`"+
		" WHERE ((`_t1`.`c_status` = ?) AND (`_t1`.`c_stock` > ?)) ORDER BY `_t1`.`id`", q.SQL)
}

func TestSelectPlaceholderOrder(t *testing.T) {
	m := loadShop(t)
	tests := []struct {
		name     string
		transfer string
		opts     []query.Option
	}{
		{name: "Filters", transfer: "ProductInfo", opts: []query.Option{
			query.WithFilter(expr.MustParse("stock > 10")),
			query.WithFilter(expr.MustParse("price <= 99.5")),
		}},
		{name: "Aggregates", transfer: "CustomerInfo"},
		{name: "Computed", transfer: "OrderInfo"},
		{name: "Concatenation", transfer: "ProductInfo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qm := compile(t, m, tt.transfer, tt.opts...)
			q, err := rdbms.NewBuilder(rdbms.Postgres).Select(qm, qm.Root)
			require.NoError(t, err)
			got := numbers(q.SQL)
			require.Len(t, got, len(q.Args))
			require.Len(t, q.Params, len(q.Args))
			for i, n := range got {
				assert.Equal(t, i+1, n)
			}
			assert.NotContains(t, q.SQL, "\x00")
		})
	}
}

func TestSelectPortable(t *testing.T) {
	m := loadShop(t)
	qm := compile(t, m, "ProductInfo",
		query.WithFilter(expr.MustParse("status == #ACTIVE and name like 'A%'")),
		query.WithOrder(expr.Desc(expr.MustParse("price"))),
	)
	var args [][]any
	for _, d := range []*rdbms.Dialect{rdbms.Postgres, rdbms.MySQL, rdbms.SQLite} {
		q, err := rdbms.NewBuilder(d).Select(qm, qm.Root)
		require.NoError(t, err, d.Name)
		assert.Equal(t, len(q.Args), strings.Count(q.SQL, "?")+len(numbers(q.SQL)), d.Name)
		assert.Len(t, q.Columns, len(qm.RootSelect().Features))
		args = append(args, q.Args)
	}
	assert.Equal(t, args[0], args[1])
	assert.Equal(t, args[0], args[2])
}

func TestSelectJoins(t *testing.T) {
	m := loadShop(t)
	b := rdbms.NewBuilder(rdbms.Postgres)

	t.Run("ForeignKey", func(t *testing.T) {
		qm := compile(t, m, "ProductInfo")
		q, err := b.Select(qm, qm.Root)
		require.NoError(t, err)
		assert.Contains(t, q.SQL, `LEFT OUTER JOIN "t_category" AS`)
		assert.Contains(t, q.SQL, `."fk_category" = `)
	})
	t.Run("Subtype", func(t *testing.T) {
		qm := compile(t, m, "CustomerInfo")
		q, err := b.Select(qm, qm.Root)
		require.NoError(t, err)
		assert.Contains(t, q.SQL, `FROM "t_customer" AS "_t1"`)
		assert.Contains(t, q.SQL, `JOIN "t_party" AS`)
	})
	t.Run("Aggregate", func(t *testing.T) {
		qm := compile(t, m, "OrderInfo")
		q, err := b.Select(qm, qm.Root)
		require.NoError(t, err)
		assert.Contains(t, q.SQL, "(SELECT COALESCE(SUM(")
		assert.Contains(t, q.SQL, `FROM "t_order_line" AS`)
	})
	t.Run("Selector", func(t *testing.T) {
		qm := compile(t, m, "CustomerInfo")
		q, err := b.Select(qm, qm.Root)
		require.NoError(t, err)
		assert.Contains(t, q.SQL, " LIMIT 1))")
		assert.Contains(t, q.SQL, `LEFT OUTER JOIN "t_order" AS`)
	})
}

func TestSelectRelation(t *testing.T) {
	m := loadShop(t)
	qm := compile(t, m, "CategoryInfo")
	b := rdbms.NewBuilder(rdbms.Postgres)
	rels := subSelects(qm, query.SubSelectRelation)
	require.Len(t, rels, 1)

	_, err := b.Select(qm, rels[0].Select)
	assert.True(t, strata.IsConfigError(err), "relation selects need partners")

	q, err := b.Select(qm, rels[0].Select, rdbms.WithPartners(seq(1), seq(2)))
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `FROM "t_category" AS`)
	assert.Contains(t, q.SQL, ` IN (CAST($1 AS UUID), CAST($2 AS UUID))`)
	assert.Equal(t, []any{seq(1).String(), seq(2).String()}, q.Args)
	assert.Contains(t, q.SQL, " ORDER BY ")

	q, err = b.Select(qm, rels[0].Select, rdbms.WithPartners())
	require.NoError(t, err)
	assert.Contains(t, q.SQL, " IN (NULL)")
}

func TestSelectCorrelated(t *testing.T) {
	m := loadShop(t)
	qm := compile(t, m, "OrderInfo")
	aggs := subSelects(qm, query.SubSelectAggregate)
	require.NotEmpty(t, aggs)
	_, err := rdbms.NewBuilder(rdbms.Postgres).Select(qm, aggs[0].Select)
	assert.True(t, strata.IsConfigError(err))

	_, err = rdbms.NewBuilder(rdbms.Postgres).Select(qm, aggs[0].ID())
	assert.True(t, strata.IsConfigError(err), "not a select")
}

func TestSelectPage(t *testing.T) {
	m := loadShop(t)
	b := rdbms.NewBuilder(rdbms.SQLite)
	limited := compile(t, m, "TagInfo", query.WithLimit(25))
	open := compile(t, m, "TagInfo")

	tests := []struct {
		name   string
		qm     *query.Model
		opts   []rdbms.SelectOption
		suffix string
	}{
		{name: "Compiled", qm: limited, suffix: " LIMIT 25"},
		{name: "Open", qm: open, opts: []rdbms.SelectOption{rdbms.WithPage(10, 0)}, suffix: " LIMIT 10"},
		{name: "Capped", qm: limited, opts: []rdbms.SelectOption{rdbms.WithPage(10, 20)}, suffix: " LIMIT 5 OFFSET 20"},
		{name: "Past", qm: limited, opts: []rdbms.SelectOption{rdbms.WithPage(10, 30)}, suffix: " LIMIT 0 OFFSET 30"},
		{name: "OffsetOnly", qm: open, opts: []rdbms.SelectOption{rdbms.WithPage(0, 5)}, suffix: " LIMIT 9223372036854775807 OFFSET 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := b.Select(tt.qm, tt.qm.Root, tt.opts...)
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(q.SQL, tt.suffix), q.SQL)
		})
	}
}

func TestSelectUnsupportedFunction(t *testing.T) {
	m := loadShop(t)
	qm := compile(t, m, "ProductInfo", query.WithFilter(expr.MatchesOf(expr.Attribute(expr.Self(), "name"), expr.String("^A"))))

	_, err := rdbms.NewBuilder(rdbms.SQLite).Select(qm, qm.Root)
	require.Error(t, err)
	assert.True(t, strata.IsConfigError(err))
	assert.Contains(t, err.Error(), "not supported by sqlite")

	q, err := rdbms.NewBuilder(rdbms.Postgres).Select(qm, qm.Root)
	require.NoError(t, err)
	assert.Contains(t, q.SQL, " ~ ")
}
