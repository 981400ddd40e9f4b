package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/internal/config"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/rdbms"
)

const shopModel = "../../testdata/shop.yaml"

// shopModelAbs is resolved once, before any test changes the working directory.
var shopModelAbs, shopModelAbsErr = filepath.Abs(shopModel)

func TestResolveString(t *testing.T) {
	assert.Equal(t, "flag", resolveString("flag", "config"))
	assert.Equal(t, "config", resolveString("", "config"))
	assert.Empty(t, resolveString("", ""))
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in   string
		desc bool
		want string
	}{
		{in: "name", want: "name"},
		{in: "name desc", desc: true, want: "name"},
		{in: "price ASC", want: "price"},
		{in: " category.name  desc ", desc: true, want: "category.name"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseOrder(tt.in)
			require.NoError(t, err)
			want, err := expr.Parse(tt.want)
			require.NoError(t, err)
			assert.Equal(t, want, got.By)
			assert.Equal(t, tt.desc, got.Descending)
		})
	}
	_, err := parseOrder("name +")
	require.Error(t, err)
}

func TestReadPayload(t *testing.T) {
	p, err := readPayload(strings.NewReader("name: Tea\nchildren:\n  - name: Green\n"), "-")
	require.NoError(t, err)
	assert.Equal(t, "Tea", p["name"])
	kids, err := p.Related("children")
	require.NoError(t, err)
	assert.Len(t, kids, 1)

	p, err = readPayload(strings.NewReader(""), "-")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = readPayload(nil, "")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = readPayload(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestCompileAll(t *testing.T) {
	m, err := metamodel.LoadFile(shopModel)
	require.NoError(t, err)
	b := rdbms.NewBuilder(rdbms.Postgres)

	all, err := compileAll(context.Background(), b, m, nil)
	require.NoError(t, err)
	var mapped []string
	for _, tt := range m.Transfers() {
		if tt.Mapped() {
			mapped = append(mapped, tt.Name)
		}
	}
	require.Len(t, all, len(mapped))
	for i, c := range all {
		assert.Equal(t, mapped[i], c.transfer, "results keep declaration order")
		require.NotEmpty(t, c.selects)
		assert.True(t, strings.HasPrefix(c.selects[0], "SELECT"), c.selects[0])
	}

	one, err := compileAll(context.Background(), b, m, []string{"CategoryInfo"})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Greater(t, len(one[0].selects), 1, "relation selects follow the root select")

	_, err = compileAll(context.Background(), b, m, []string{"Nope"})
	require.Error(t, err)
	assert.True(t, strata.IsConfigError(err))
}

// run executes the root command in a directory without config file.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	model, err := shopModelAbs, shopModelAbsErr
	require.NoError(t, err)
	t.Chdir(t.TempDir())
	t.Cleanup(func() { modelFile, cfgFile, verbose = "", "", 0 })
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--model", model))
	err = rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands(t *testing.T) {
	t.Run("Compile", func(t *testing.T) {
		out, err := run(t, "compile", "--dialect", "mysql", "TagInfo")
		require.NoError(t, err)
		assert.Contains(t, out, "-- TagInfo\nSELECT")
		assert.Contains(t, out, "`t_tag`")
	})
	t.Run("DDL", func(t *testing.T) {
		out, err := run(t, "ddl", "--dialect", "sqlite")
		require.NoError(t, err)
		assert.Contains(t, out, "CREATE TABLE")
	})
	t.Run("Plan", func(t *testing.T) {
		payload := filepath.Join(t.TempDir(), "category.yaml")
		require.NoError(t, os.WriteFile(payload, []byte("name: Beverages\nchildren:\n  - name: Tea\n"), 0o644))
		out, err := run(t, "plan", "createCategory", "--dialect", "postgres", "--payload", payload)
		require.NoError(t, err)
		assert.Equal(t, 2, strings.Count(out, "-- check-unique Category"), out)
		assert.Equal(t, 2, strings.Count(out, "-- insert Category"), out)
		assert.Contains(t, out, `INSERT INTO "t_category"`)

		_, err = run(t, "plan", "updateCategory", "--payload", payload)
		assert.True(t, strata.IsConfigError(err))
	})
	t.Run("ConfigShow", func(t *testing.T) {
		t.Setenv("STRATA_SIGNING_KEY", "secret")
		out, err := run(t, "config", "show", "--source")
		require.NoError(t, err)
		assert.Contains(t, out, "# source: (defaults and environment only)")
		assert.Contains(t, out, "dialect: postgres")
		assert.NotContains(t, out, "secret")
	})
	t.Run("UnknownDialect", func(t *testing.T) {
		_, err := run(t, "compile", "--dialect", "oracle")
		var ee *exitError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, exitConfig, ee.code)
	})
}

func TestResolver(t *testing.T) {
	cfg = &config.Config{}
	assert.Equal(t, rdbms.NewResolver(rdbms.Postgres.MaxIdentifier), resolver(rdbms.Postgres))
	cfg.Naming.MaxIdentifier = 30
	assert.Equal(t, rdbms.NewResolver(30), resolver(rdbms.Postgres))
}
