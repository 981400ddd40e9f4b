package rdbms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/query"
	"github.com/syssam/strata/rdbms"
)

func TestDialectFor(t *testing.T) {
	for _, name := range []string{"postgres", "mysql", "sqlite"} {
		d, err := rdbms.DialectFor(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.Name)
	}
	_, err := rdbms.DialectFor("oracle")
	assert.True(t, strata.IsConfigError(err))
}

func TestDialectQuote(t *testing.T) {
	assert.Equal(t, `"t_order"`, rdbms.Postgres.Quote("t_order"))
	assert.Equal(t, `"a""b"`, rdbms.SQLite.Quote(`a"b`))
	assert.Equal(t, "`a``b`", rdbms.MySQL.Quote("a`b"))
	assert.Equal(t, "$3", rdbms.Postgres.Placeholder(3))
	assert.Equal(t, "?", rdbms.MySQL.Placeholder(3))
}

func TestDialectCall(t *testing.T) {
	tests := []struct {
		name string
		d    *rdbms.Dialect
		sig  query.Signature
		args []string
		want string
	}{
		{"Equals", rdbms.Postgres, query.SigEquals, []string{"a", "b"}, "(a = b)"},
		{"Position", rdbms.Postgres, query.SigPosition, []string{"s", "x"}, "POSITION(x IN s)"},
		{"PositionMySQL", rdbms.MySQL, query.SigPosition, []string{"s", "x"}, "LOCATE(x, s)"},
		{"Concat", rdbms.MySQL, query.SigConcatenate, []string{"a", "b"}, "CONCAT(a, b)"},
		{"Floor", rdbms.SQLite, query.SigFloor, []string{"v"}, "(CAST(v AS INTEGER) - (v < CAST(v AS INTEGER)))"},
		{"AddDays", rdbms.SQLite, query.SigAddDays, []string{"d", "n"}, "date(d, printf('%+d days', n))"},
		{"Today", rdbms.Postgres, query.SigToday, nil, "CURRENT_DATE"},
		{"ArgumentsNotRescanned", rdbms.Postgres, query.SigEquals, []string{"'{1}'", "b"}, "('{1}' = b)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.d.Call(tt.sig, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := rdbms.Postgres.Call(query.SigEquals, "a")
	assert.True(t, strata.IsConfigError(err), "missing argument")
}

func TestDialectCoverage(t *testing.T) {
	for _, d := range []*rdbms.Dialect{rdbms.Postgres, rdbms.MySQL, rdbms.SQLite} {
		t.Run(d.Name, func(t *testing.T) {
			for _, sig := range query.Signatures() {
				if d == rdbms.SQLite && sig == query.SigMatches {
					continue
				}
				_, err := d.Template(sig)
				assert.NoError(t, err, sig)
			}
			for typ := metamodel.TypeString; typ <= metamodel.TypeUUID; typ++ {
				assert.NotEmpty(t, d.TypeName(typ), typ)
			}
		})
	}
	_, err := rdbms.SQLite.Template(query.SigMatches)
	assert.True(t, strata.IsConfigError(err))
}

func TestAggregateTemplates(t *testing.T) {
	for _, sig := range query.Signatures() {
		op, ok := sig.Op()
		if !ok {
			continue
		}
		tmpl, err := rdbms.Postgres.Template(sig)
		require.NoError(t, err)
		assert.Contains(t, tmpl, "({0})", "%s %v", sig, op)
	}
}
