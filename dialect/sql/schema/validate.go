package schema

import (
	"fmt"
	"strings"

	"ariga.io/atlas/sql/schema"
)

// Issue is a defect of derived tables, or a risk of moving a database
// from the tables of one model version to the next.
type Issue struct {
	Table   string
	Column  string
	Message string
	// Breaking marks changes that lose stored data.
	Breaking bool
}

func (i *Issue) Error() string {
	if i.Column == "" {
		return i.Table + ": " + i.Message
	}
	return i.Table + "." + i.Column + ": " + i.Message
}

// Report collects the issues of a validation. Errors block a migration,
// warnings only inform.
type Report struct {
	Errors   []*Issue
	Warnings []*Issue
}

func (r *Report) HasErrors() bool   { return len(r.Errors) > 0 }
func (r *Report) HasWarnings() bool { return len(r.Warnings) > 0 }

// HasBreakingChanges reports whether any issue, allowed or not, loses
// stored data.
func (r *Report) HasBreakingChanges() bool {
	for _, list := range [][]*Issue{r.Errors, r.Warnings} {
		for _, i := range list {
			if i.Breaking {
				return true
			}
		}
	}
	return false
}

func (r *Report) String() string {
	if !r.HasErrors() && !r.HasWarnings() {
		return "no issues"
	}
	var b strings.Builder
	for _, group := range []struct {
		title  string
		issues []*Issue
	}{{"errors", r.Errors}, {"warnings", r.Warnings}} {
		if len(group.issues) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", group.title)
		for _, i := range group.issues {
			fmt.Fprintf(&b, "  %s", i.Error())
			if i.Breaking {
				b.WriteString(" (breaking)")
			}
			b.WriteByte('\n')
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// warn records a warning, or an error when the issue is breaking and not
// allowed.
func (r *Report) warn(i *Issue, allowed bool) {
	if i.Breaking && !allowed {
		r.Errors = append(r.Errors, i)
		return
	}
	r.Warnings = append(r.Warnings, i)
}

// ValidateOption allows breaking changes in ValidateDiff.
type ValidateOption func(*allow)

type allow struct {
	dropTable, dropColumn, tighten bool
}

// AllowDropTable reports dropped tables as warnings.
func AllowDropTable() ValidateOption { return func(a *allow) { a.dropTable = true } }

// AllowDropColumn reports dropped columns as warnings.
func AllowDropColumn() ValidateOption { return func(a *allow) { a.dropColumn = true } }

// AllowNullToNotNull reports nullable columns becoming required as
// warnings.
func AllowNullToNotNull() ValidateOption { return func(a *allow) { a.tighten = true } }

// ValidateDiff checks the move from the tables of the current model to the
// desired ones. Dropping tables or columns and making columns required are
// errors unless allowed. Type changes, shrinking strings, new required
// columns and new unique indexes are warnings.
func ValidateDiff(current, desired []*schema.Table, opts ...ValidateOption) *Report {
	var a allow
	for _, opt := range opts {
		opt(&a)
	}
	r := &Report{}
	for _, from := range current {
		to, ok := Lookup(desired, from.Name)
		if !ok {
			r.warn(&Issue{Table: from.Name, Message: "table is dropped", Breaking: true}, a.dropTable)
			continue
		}
		diffTable(r, a, from, to)
	}
	return r
}

func diffTable(r *Report, a allow, from, to *schema.Table) {
	for _, c := range from.Columns {
		if _, ok := to.Column(c.Name); !ok {
			r.warn(&Issue{Table: from.Name, Column: c.Name, Message: "column is dropped", Breaking: true}, a.dropColumn)
		}
	}
	for _, c := range to.Columns {
		old, ok := from.Column(c.Name)
		if !ok {
			if !c.Type.Null && c.Default == nil {
				r.warn(&Issue{Table: to.Name, Column: c.Name, Message: "new required column has no default"}, true)
			}
			continue
		}
		if was, is := describe(old.Type.Type), describe(c.Type.Type); was != is {
			r.warn(&Issue{Table: to.Name, Column: c.Name, Message: "type changes from " + was + " to " + is}, true)
		}
		if old.Type.Null && !c.Type.Null {
			r.warn(&Issue{Table: to.Name, Column: c.Name, Message: "column becomes required", Breaking: true}, a.tighten)
		}
		if was, is := length(old.Type.Type), length(c.Type.Type); is > 0 && is < was {
			r.warn(&Issue{Table: to.Name, Column: c.Name, Message: fmt.Sprintf("length shrinks from %d to %d", was, is)}, true)
		}
	}
	for _, idx := range to.Indexes {
		if old, ok := from.Index(idx.Name); idx.Unique && (!ok || !old.Unique) {
			r.warn(&Issue{Table: to.Name, Message: "unique index " + idx.Name + " is added"}, true)
		}
	}
}

// ValidateSchema checks derived tables before any DDL is planned: names
// must be unique, with index names unique across tables, every table
// needs a primary key and indexes must cover existing columns.
func ValidateSchema(tables []*schema.Table) *Report {
	r := &Report{}
	seen := make(map[string]bool, len(tables))
	indexes := make(map[string]string)
	for _, t := range tables {
		if seen[t.Name] {
			r.Errors = append(r.Errors, &Issue{Table: t.Name, Message: "table name is not unique"})
		}
		seen[t.Name] = true
		if t.PrimaryKey == nil || len(t.PrimaryKey.Parts) == 0 {
			r.Errors = append(r.Errors, &Issue{Table: t.Name, Message: "table has no primary key"})
		}
		columns := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			if columns[c.Name] {
				r.Errors = append(r.Errors, &Issue{Table: t.Name, Column: c.Name, Message: "column name is not unique"})
			}
			columns[c.Name] = true
			if _, ok := c.Type.Type.(*schema.UnsupportedType); ok {
				r.Errors = append(r.Errors, &Issue{Table: t.Name, Column: c.Name, Message: "unsupported type " + describe(c.Type.Type)})
			}
		}
		for _, idx := range t.Indexes {
			if other, ok := indexes[idx.Name]; ok {
				r.Errors = append(r.Errors, &Issue{Table: t.Name, Message: "index " + idx.Name + " is also defined on " + other})
			}
			indexes[idx.Name] = t.Name
			for _, p := range idx.Parts {
				if p.C != nil && !columns[p.C.Name] {
					r.Errors = append(r.Errors, &Issue{Table: t.Name, Column: p.C.Name, Message: "index " + idx.Name + " covers a missing column"})
				}
			}
		}
	}
	return r
}

// describe renders a column type for comparison and messages.
func describe(t schema.Type) string {
	switch t := t.(type) {
	case nil:
		return "none"
	case *schema.StringType:
		if t.Size > 0 {
			return fmt.Sprintf("%s(%d)", t.T, t.Size)
		}
		return t.T
	case *schema.DecimalType:
		return fmt.Sprintf("%s(%d,%d)", t.T, t.Precision, t.Scale)
	case *schema.IntegerType:
		return t.T
	case *schema.FloatType:
		return t.T
	case *schema.BoolType:
		return t.T
	case *schema.TimeType:
		return t.T
	case *schema.UUIDType:
		return t.T
	case *schema.EnumType:
		return t.T + "(" + strings.Join(t.Values, ",") + ")"
	case *schema.UnsupportedType:
		return t.T
	}
	return fmt.Sprintf("%T", t)
}

func length(t schema.Type) int {
	if s, ok := t.(*schema.StringType); ok {
		return s.Size
	}
	return 0
}
