package executor_test

import (
	"context"
	"database/sql/driver"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/executor"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/query"
	"github.com/syssam/strata/rdbms"
	"github.com/syssam/strata/statement"
)

func seq(n byte) uuid.UUID { return uuid.UUID{15: n} }

func loadShop(t *testing.T) *metamodel.Model {
	t.Helper()
	m, err := metamodel.LoadFile("../testdata/shop.yaml")
	require.NoError(t, err)
	return m
}

func compile(t *testing.T, m *metamodel.Model, transfer string) *query.Model {
	t.Helper()
	qm, ok, err := query.NewCompiler(m).Compile(m.Transfer(transfer))
	require.NoError(t, err)
	require.True(t, ok)
	return qm
}

func mockDB(t *testing.T) (*sql.Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sql.OpenDB(dialect.Postgres, db), mock
}

func values(args []any) []driver.Value {
	out := make([]driver.Value, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}

// row builds a result row of q for the instance id of target tid. Other
// columns take their value from extra, by feature, or stay NULL.
func row(qm *query.Model, q *rdbms.Query, tid query.TargetID, id uuid.UUID, attrs map[string]any, extra map[query.FeatureID]any) []driver.Value {
	tg := qm.Target(tid)
	out := make([]driver.Value, len(q.Columns))
	for i, c := range q.Columns {
		switch {
		case c.Feature == tg.Identifier:
			out[i] = id.String()
		case c.Feature == tg.Version:
			out[i] = int64(3)
		default:
			out[i] = extra[c.Feature]
			for _, mp := range qm.Feature(c.Feature).Mappings {
				if mp.Target == tid {
					out[i] = attrs[mp.Name]
				}
			}
		}
	}
	return out
}

func labels(q *rdbms.Query) []string {
	out := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		out[i] = c.Label
	}
	return out
}

func expect(mock sqlmock.Sqlmock, q *rdbms.Query, rows ...[]driver.Value) {
	r := sqlmock.NewRows(labels(q))
	for _, v := range rows {
		r.AddRow(v...)
	}
	mock.ExpectQuery(q.SQL).WithArgs(values(q.Args)...).WillReturnRows(r)
}

func TestSelectRun(t *testing.T) {
	m := loadShop(t)
	qm := compile(t, m, "CategoryInfo")
	b := rdbms.NewBuilder(rdbms.Postgres)
	drv, mock := mockDB(t)

	root := qm.RootSelect()
	require.Len(t, root.SubSelects, 1)
	sub := qm.SubSelect(root.SubSelects[0])
	inner := qm.Select(sub.Select)

	page1, err := b.Select(qm, qm.Root, rdbms.WithPage(2, 0))
	require.NoError(t, err)
	children, err := b.Select(qm, inner.ID(), rdbms.WithPartners(seq(1), seq(2)))
	require.NoError(t, err)
	page2, err := b.Select(qm, qm.Root, rdbms.WithPage(2, 2))
	require.NoError(t, err)

	expect(mock, page1,
		row(qm, page1, root.MainTarget, seq(1), map[string]any{"name": "Beverages", "productCount": int64(2)}, nil),
		row(qm, page1, root.MainTarget, seq(2), map[string]any{"name": "Snacks", "productCount": int64(0)}, nil),
	)
	expect(mock, children,
		row(qm, children, inner.MainTarget, seq(3), map[string]any{"name": "Tea"}, map[query.FeatureID]any{sub.PartnerKey: seq(1).String()}),
	)
	expect(mock, page2)

	got, err := executor.NewSelect(b, executor.WithChunkSize(2)).All(context.Background(), drv, qm)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, got, 2)

	assert.Equal(t, seq(1), got[0][statement.KeyIdentifier])
	assert.Equal(t, int64(3), got[0][statement.KeyVersion])
	assert.Equal(t, "Category", got[0][statement.KeyEntityType])
	assert.Equal(t, "Beverages", got[0]["name"])
	assert.Nil(t, got[0]["description"])
	assert.Equal(t, int64(2), got[0]["productCount"])
	kids, ok := got[0]["children"].([]statement.Payload)
	require.True(t, ok)
	require.Len(t, kids, 1)
	assert.Equal(t, "Tea", kids[0]["name"])
	assert.Equal(t, seq(3), kids[0][statement.KeyIdentifier])
	assert.Equal(t, []statement.Payload{}, got[1]["children"])
}

func TestSelectStop(t *testing.T) {
	m := loadShop(t)
	qm := compile(t, m, "TagInfo")
	b := rdbms.NewBuilder(rdbms.Postgres)
	drv, mock := mockDB(t)

	q, err := b.Select(qm, qm.Root, rdbms.WithPage(1, 0))
	require.NoError(t, err)
	main := qm.RootSelect().MainTarget
	expect(mock, q, row(qm, q, main, seq(5), map[string]any{"label": "hot"}, nil))

	n := 0
	for p, err := range executor.NewSelect(b).Run(context.Background(), drv, qm, executor.Limit(1)) {
		require.NoError(t, err)
		assert.Equal(t, "hot", p["label"])
		n++
	}
	assert.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet(), "a full limit ends the paging")
}

func TestSelectError(t *testing.T) {
	m := loadShop(t)
	qm := compile(t, m, "TagInfo")
	b := rdbms.NewBuilder(rdbms.Postgres)
	drv, mock := mockDB(t)

	q, err := b.Select(qm, qm.Root, rdbms.WithPage(executor.DefaultChunkSize, 0), rdbms.WithIdentifiers(seq(5)))
	require.NoError(t, err)
	mock.ExpectQuery(q.SQL).WillReturnError(assert.AnError)

	_, err = executor.NewSelect(b).All(context.Background(), drv, qm, executor.Identifiers(seq(5)))
	var qe *strata.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "TagInfo", qe.Entity)
	assert.ErrorIs(t, err, assert.AnError)
}

type memoryCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[key], nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

func (c *memoryCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.m {
		if strings.HasPrefix(k, prefix) {
			delete(c.m, k)
		}
	}
	return nil
}

func TestSelectCache(t *testing.T) {
	m := loadShop(t)
	qm := compile(t, m, "ProductInfo")
	b := rdbms.NewBuilder(rdbms.Postgres)
	drv, mock := mockDB(t)
	cache := &memoryCache{m: make(map[string][]byte)}

	q, err := b.Select(qm, qm.Root, rdbms.WithPage(executor.DefaultChunkSize, 0))
	require.NoError(t, err)
	main := qm.RootSelect().MainTarget
	expect(mock, q, row(qm, q, main, seq(4), map[string]any{"name": "Tea", "price": "9.50", "status": int64(1)}, nil))

	s := executor.NewSelect(b, executor.WithCache(cache, time.Minute))
	for range 2 {
		got, err := s.All(context.Background(), drv, qm)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "ACTIVE", got[0]["status"], "enum ordinals map to literals")
		assert.True(t, decimal.RequireFromString("9.5").Equal(got[0]["price"].(decimal.Decimal)))
	}
	require.NoError(t, mock.ExpectationsWereMet(), "the second run is served by the cache")
	assert.NotEmpty(t, cache.m)

	require.NoError(t, cache.DeletePrefix(context.Background(), strata.CachePrefix))
	assert.Empty(t, cache.m)
}

func TestSelectCacheArgs(t *testing.T) {
	m := loadShop(t)
	b := rdbms.NewBuilder(rdbms.Postgres)
	drv, mock := mockDB(t)
	cache := &memoryCache{m: make(map[string][]byte)}
	s := executor.NewSelect(b, executor.WithCache(cache, time.Minute))

	filtered := func(name, sku string) (*query.Model, *rdbms.Query) {
		qm, _, err := query.NewCompiler(m).Compile(m.Transfer("ProductInfo"),
			query.WithFilter(expr.MustParse("name == '"+name+"' and sku == '"+sku+"'")))
		require.NoError(t, err)
		q, err := b.Select(qm, qm.Root, rdbms.WithPage(executor.DefaultChunkSize, 0))
		require.NoError(t, err)
		return qm, q
	}
	first, q1 := filtered("ab", "c")
	second, q2 := filtered("a", "bc")
	require.Equal(t, q1.SQL, q2.SQL)

	expect(mock, q1, row(first, q1, first.RootSelect().MainTarget, seq(4), map[string]any{"name": "ab", "sku": "c"}, nil))
	expect(mock, q2)

	got, err := s.All(context.Background(), drv, first)
	require.NoError(t, err)
	require.Len(t, got, 1)
	got, err = s.All(context.Background(), drv, second)
	require.NoError(t, err)
	assert.Empty(t, got, "other arguments miss the cached rows")
	require.NoError(t, mock.ExpectationsWereMet())
}
