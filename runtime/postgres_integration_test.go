//go:build integration

package runtime_test

import (
	"context"
	stdsql "database/sql"
	"net/url"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/rdbms"
	"github.com/syssam/strata/runtime"
	"github.com/syssam/strata/statement"
)

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// postgresDSN starts one PostgreSQL container per test binary. Ryuk
// removes it when the tests exit.
func postgresDSN(t *testing.T) string {
	t.Helper()
	containerOnce.Do(func() {
		ctx := context.Background()
		c, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("postgres"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			containerErr = err
			return
		}
		containerDSN, containerErr = c.ConnectionString(ctx, "sslmode=disable")
	})
	require.NoError(t, containerErr)
	return containerDSN
}

// openPostgres creates a fresh database holding the tables of the shop
// model and opens it with the given database/sql driver.
func openPostgres(t *testing.T, driverName, name string) *sql.Driver {
	t.Helper()
	ctx := context.Background()
	dsn := postgresDSN(t)
	admin, err := stdsql.Open("pgx", dsn)
	require.NoError(t, err)
	defer admin.Close()
	_, err = admin.ExecContext(ctx, "CREATE DATABASE "+name)
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	u.Path = "/" + name
	drv, err := sql.Open(driverName, u.String())
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	require.Equal(t, dialect.Postgres, drv.Dialect())

	tables, err := schema.Tables(loadShop(t), rdbms.Postgres)
	require.NoError(t, err)
	plan, err := schema.Create(ctx, dialect.Postgres, tables)
	require.NoError(t, err)
	for _, s := range schema.Statements(plan) {
		require.NoError(t, drv.Exec(ctx, s, []any{}, nil), s)
	}
	return drv
}

func TestPostgres(t *testing.T) {
	for _, tt := range []struct{ driver, db string }{
		{driver: "pgx", db: "strata_pgx"},
		{driver: "postgres", db: "strata_pq"},
	} {
		t.Run(tt.driver, func(t *testing.T) {
			m := loadShop(t)
			drv := openPostgres(t, tt.driver, tt.db)
			stats := sql.NewStatsDriver(drv, sql.WithSlowThreshold(time.Second))
			rt, err := runtime.New(m, stats)
			require.NoError(t, err)
			ctx := clerk()

			out, err := rt.Call(ctx, "createCategory", runtime.Input{Payload: statement.Payload{
				"name":     "Beverages",
				"children": []any{map[string]any{"name": "Tea"}, map[string]any{"name": "Coffee"}},
			}})
			require.NoError(t, err)
			created := out[0]
			id := created[statement.KeyIdentifier]
			assert.EqualValues(t, 1, created[statement.KeyVersion])
			assert.EqualValues(t, 0, created["productCount"])
			assert.Len(t, created["children"], 2)

			_, err = rt.Call(ctx, "createCategory", runtime.Input{Payload: statement.Payload{"name": "Tea"}})
			var violations strata.ValidationErrors
			require.ErrorAs(t, err, &violations)
			assert.Equal(t, strata.CodeNotUnique, violations[0].Code)

			out, err = rt.Call(ctx, "listCategories", runtime.Input{Limit: 2})
			require.NoError(t, err)
			assert.Len(t, out, 2)

			out, err = rt.Call(ctx, "updateCategory", runtime.Input{Payload: statement.Payload{
				statement.KeyIdentifier: id,
				statement.KeyVersion:    created[statement.KeyVersion],
				"name":                  "Drinks",
			}})
			require.NoError(t, err)
			assert.Equal(t, "Drinks", out[0]["name"])

			_, err = rt.Call(ctx, "updateCategory", runtime.Input{Payload: statement.Payload{
				statement.KeyIdentifier: id,
				statement.KeyVersion:    created[statement.KeyVersion],
				"name":                  "Stale",
			}})
			assert.True(t, strata.IsConflict(err))

			_, err = rt.Call(ctx, "deleteCategory", runtime.Input{Payload: statement.Payload{statement.KeyIdentifier: id}})
			require.NoError(t, err)
			out, err = rt.Call(ctx, "listCategories", runtime.Input{})
			require.NoError(t, err)
			assert.Empty(t, out)

			assert.NotZero(t, stats.Stats().Queries)
		})
	}
}
