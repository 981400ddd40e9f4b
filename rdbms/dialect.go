package rdbms

import (
	"maps"
	"strconv"
	"strings"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/query"
)

// Dialect is the SQL flavour of one database.
type Dialect struct {
	// Name is one of dialect.Postgres, dialect.MySQL and dialect.SQLite.
	Name string
	// MaxIdentifier is the longest identifier the database accepts.
	MaxIdentifier int

	open, close string
	numbered    bool
	functions   map[query.Signature]string
	types       map[metamodel.Type]string
}

// Supported dialects.
var (
	Postgres = newDialect(dialect.Postgres, 63).
		quotes(`"`, `"`).
		numberedPlaceholders().
		function(query.SigXor, "({0} <> {1})").
		function(query.SigModulo, "MOD({0}, {1})").
		function(query.SigDivideInteger, "(CAST({0} AS NUMERIC) / {1})").
		function(query.SigDateDifference, "({0} - {1})").
		function(query.SigTimestampDifference, "CAST(EXTRACT(EPOCH FROM ({0} - {1})) * 1000 AS BIGINT)").
		function(query.SigAddDays, "({0} + CAST({1} AS INTEGER))").
		function(query.SigNow, "CURRENT_TIMESTAMP").
		function(query.SigToday, "CURRENT_DATE").
		function(query.SigYear, "CAST(EXTRACT(YEAR FROM {0}) AS INTEGER)").
		function(query.SigMonth, "CAST(EXTRACT(MONTH FROM {0}) AS INTEGER)").
		function(query.SigDay, "CAST(EXTRACT(DAY FROM {0}) AS INTEGER)").
		function(query.SigHour, "CAST(EXTRACT(HOUR FROM {0}) AS INTEGER)").
		function(query.SigMinute, "CAST(EXTRACT(MINUTE FROM {0}) AS INTEGER)").
		function(query.SigSecond, "CAST(FLOOR(EXTRACT(SECOND FROM {0})) AS INTEGER)").
		function(query.SigMillisecond, "MOD(CAST(FLOOR(EXTRACT(MILLISECONDS FROM {0})) AS INTEGER), 1000)").
		function(query.SigConcatenate, "({0} || {1})").
		function(query.SigLength, "CHAR_LENGTH({0})").
		function(query.SigPosition, "POSITION({1} IN {0})").
		function(query.SigILike, "({0} ILIKE {1})").
		function(query.SigMatches, "({0} ~ {1})").
		function(query.SigToString, "CAST({0} AS TEXT)").
		function(query.SigFloor, "FLOOR({0})").
		function(query.SigCeil, "CEIL({0})").
		typeNames(map[metamodel.Type]string{
			metamodel.TypeString:     "VARCHAR",
			metamodel.TypeText:       "TEXT",
			metamodel.TypeInteger:    "BIGINT",
			metamodel.TypeBigInteger: "NUMERIC",
			metamodel.TypeDecimal:    "NUMERIC",
			metamodel.TypeFloat:      "DOUBLE PRECISION",
			metamodel.TypeBoolean:    "BOOLEAN",
			metamodel.TypeDate:       "DATE",
			metamodel.TypeTime:       "TIME",
			metamodel.TypeTimestamp:  "TIMESTAMP WITH TIME ZONE",
			metamodel.TypeEnum:       "INTEGER",
			metamodel.TypeUUID:       "UUID",
		})

	MySQL = newDialect(dialect.MySQL, 64).
		quotes("`", "`").
		function(query.SigXor, "({0} XOR {1})").
		function(query.SigModulo, "MOD({0}, {1})").
		function(query.SigDivideInteger, "({0} / {1})").
		function(query.SigDateDifference, "TIMESTAMPDIFF(DAY, {1}, {0})").
		function(query.SigTimestampDifference, "(TIMESTAMPDIFF(MICROSECOND, {1}, {0}) DIV 1000)").
		function(query.SigAddDays, "DATE_ADD({0}, INTERVAL {1} DAY)").
		function(query.SigNow, "CURRENT_TIMESTAMP(3)").
		function(query.SigToday, "CURRENT_DATE").
		function(query.SigYear, "YEAR({0})").
		function(query.SigMonth, "MONTH({0})").
		function(query.SigDay, "DAY({0})").
		function(query.SigHour, "HOUR({0})").
		function(query.SigMinute, "MINUTE({0})").
		function(query.SigSecond, "SECOND({0})").
		function(query.SigMillisecond, "(MICROSECOND({0}) DIV 1000)").
		function(query.SigConcatenate, "CONCAT({0}, {1})").
		function(query.SigLength, "CHAR_LENGTH({0})").
		function(query.SigPosition, "LOCATE({1}, {0})").
		function(query.SigILike, "(LOWER({0}) LIKE LOWER({1}))").
		function(query.SigMatches, "({0} REGEXP {1})").
		function(query.SigToString, "CAST({0} AS CHAR)").
		function(query.SigFloor, "FLOOR({0})").
		function(query.SigCeil, "CEIL({0})").
		typeNames(map[metamodel.Type]string{
			metamodel.TypeString:     "VARCHAR",
			metamodel.TypeText:       "LONGTEXT",
			metamodel.TypeInteger:    "BIGINT",
			metamodel.TypeBigInteger: "DECIMAL",
			metamodel.TypeDecimal:    "DECIMAL",
			metamodel.TypeFloat:      "DOUBLE",
			metamodel.TypeBoolean:    "BOOLEAN",
			metamodel.TypeDate:       "DATE",
			metamodel.TypeTime:       "TIME(3)",
			metamodel.TypeTimestamp:  "DATETIME(3)",
			metamodel.TypeEnum:       "INTEGER",
			metamodel.TypeUUID:       "CHAR(36)",
		})

	SQLite = newDialect(dialect.SQLite, 128).
		quotes(`"`, `"`).
		function(query.SigXor, "({0} <> {1})").
		function(query.SigModulo, "({0} % {1})").
		function(query.SigDivideInteger, "(CAST({0} AS REAL) / {1})").
		function(query.SigDateDifference, "CAST(julianday({0}) - julianday({1}) AS INTEGER)").
		function(query.SigTimestampDifference, "CAST(ROUND((julianday({0}) - julianday({1})) * 86400000) AS INTEGER)").
		function(query.SigAddDays, "date({0}, printf('%+d days', {1}))").
		function(query.SigNow, "strftime('%Y-%m-%dT%H:%M:%fZ', 'now')").
		function(query.SigToday, "date('now')").
		function(query.SigYear, "CAST(strftime('%Y', {0}) AS INTEGER)").
		function(query.SigMonth, "CAST(strftime('%m', {0}) AS INTEGER)").
		function(query.SigDay, "CAST(strftime('%d', {0}) AS INTEGER)").
		function(query.SigHour, "CAST(strftime('%H', {0}) AS INTEGER)").
		function(query.SigMinute, "CAST(strftime('%M', {0}) AS INTEGER)").
		function(query.SigSecond, "CAST(strftime('%S', {0}) AS INTEGER)").
		function(query.SigMillisecond, "CAST(substr(strftime('%f', {0}), 4) AS INTEGER)").
		function(query.SigConcatenate, "({0} || {1})").
		function(query.SigLength, "LENGTH({0})").
		function(query.SigPosition, "INSTR({0}, {1})").
		function(query.SigILike, "(LOWER({0}) LIKE LOWER({1}))").
		function(query.SigToString, "CAST({0} AS TEXT)").
		function(query.SigFloor, "(CAST({0} AS INTEGER) - ({0} < CAST({0} AS INTEGER)))").
		function(query.SigCeil, "(CAST({0} AS INTEGER) + ({0} > CAST({0} AS INTEGER)))").
		typeNames(map[metamodel.Type]string{
			metamodel.TypeString:     "TEXT",
			metamodel.TypeText:       "TEXT",
			metamodel.TypeInteger:    "INTEGER",
			metamodel.TypeBigInteger: "NUMERIC",
			metamodel.TypeDecimal:    "NUMERIC",
			metamodel.TypeFloat:      "REAL",
			metamodel.TypeBoolean:    "BOOLEAN",
			metamodel.TypeDate:       "TEXT",
			metamodel.TypeTime:       "TEXT",
			metamodel.TypeTimestamp:  "TEXT",
			metamodel.TypeEnum:       "INTEGER",
			metamodel.TypeUUID:       "TEXT",
		})
)

// DialectFor returns the dialect of the given name.
func DialectFor(name string) (*Dialect, error) {
	switch name {
	case dialect.Postgres:
		return Postgres, nil
	case dialect.MySQL:
		return MySQL, nil
	case dialect.SQLite:
		return SQLite, nil
	}
	return nil, strata.NewConfigError(name, "unsupported dialect")
}

// base holds the templates shared by every dialect.
var base = map[query.Signature]string{
	query.SigEquals:         "({0} = {1})",
	query.SigNotEquals:      "({0} <> {1})",
	query.SigLessThan:       "({0} < {1})",
	query.SigLessOrEqual:    "({0} <= {1})",
	query.SigGreaterThan:    "({0} > {1})",
	query.SigGreaterOrEqual: "({0} >= {1})",

	query.SigAnd:     "({0} AND {1})",
	query.SigOr:      "({0} OR {1})",
	query.SigImplies: "(NOT {0} OR {1})",
	query.SigNot:     "(NOT {0})",

	query.SigAdd:             "({0} + {1})",
	query.SigSubtract:        "({0} - {1})",
	query.SigMultiply:        "({0} * {1})",
	query.SigDivide:          "({0} / {1})",
	query.SigNegate:          "(-{0})",
	query.SigAddDecimal:      "({0} + {1})",
	query.SigSubtractDecimal: "({0} - {1})",
	query.SigMultiplyDecimal: "({0} * {1})",
	query.SigDivideDecimal:   "({0} / {1})",

	query.SigLower:     "LOWER({0})",
	query.SigUpper:     "UPPER({0})",
	query.SigTrim:      "TRIM({0})",
	query.SigSubstring: "SUBSTR({0}, {1}, {2})",
	query.SigReplace:   "REPLACE({0}, {1}, {2})",
	query.SigLike:      "({0} LIKE {1})",

	query.SigRound: "ROUND({0})",
	query.SigAbs:   "ABS({0})",

	query.SigIsNull: "({0} IS NULL)",
	query.SigCount:  "COUNT({0})",
}

func newDialect(name string, maxIdentifier int) *Dialect {
	d := &Dialect{Name: name, MaxIdentifier: maxIdentifier, functions: maps.Clone(base)}
	for _, sig := range query.Signatures() {
		op, ok := sig.Op()
		if !ok || sig == query.SigCount {
			continue
		}
		switch op {
		case expr.AggSum:
			d.functions[sig] = "COALESCE(SUM({0}), 0)"
		case expr.AggMin:
			d.functions[sig] = "MIN({0})"
		case expr.AggMax:
			d.functions[sig] = "MAX({0})"
		case expr.AggAvg:
			d.functions[sig] = "AVG({0})"
		}
	}
	return d
}

func (d *Dialect) quotes(open, close string) *Dialect {
	d.open, d.close = open, close
	return d
}

func (d *Dialect) numberedPlaceholders() *Dialect {
	d.numbered = true
	return d
}

func (d *Dialect) function(sig query.Signature, template string) *Dialect {
	d.functions[sig] = template
	return d
}

func (d *Dialect) typeNames(types map[metamodel.Type]string) *Dialect {
	d.types = types
	return d
}

// Quote returns ident as a quoted identifier.
func (d *Dialect) Quote(ident string) string {
	return d.open + strings.ReplaceAll(ident, d.close, d.close+d.close) + d.close
}

// Placeholder returns the n-th (1-based) bind placeholder.
func (d *Dialect) Placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// TypeName returns the column type of values of t.
func (d *Dialect) TypeName(t metamodel.Type) string {
	return d.types[t]
}

// Template returns the SQL template of a function signature. Parameters
// are written {0}, {1} and so on.
func (d *Dialect) Template(sig query.Signature) (string, error) {
	t, ok := d.functions[sig]
	if !ok {
		return "", strata.NewConfigError(string(sig), "function is not supported by %s", d.Name)
	}
	return t, nil
}

// Call renders a function signature over rendered arguments.
func (d *Dialect) Call(sig query.Signature, args ...string) (string, error) {
	t, err := d.Template(sig)
	if err != nil {
		return "", err
	}
	return expand(t, args)
}

// expand substitutes the {n} parameters of a template in a single pass,
// so arguments are never rescanned.
func expand(template string, args []string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '{' {
			b.WriteByte(c)
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			b.WriteString(template[i:])
			break
		}
		n, err := strconv.Atoi(template[i+1 : i+end])
		if err != nil {
			// Not a parameter, e.g. a literal brace.
			b.WriteByte(c)
			continue
		}
		if n < 0 || n >= len(args) {
			return "", strata.NewConfigError(template, "template parameter {%d} without argument", n)
		}
		b.WriteString(args[n])
		i += end
	}
	return b.String(), nil
}
