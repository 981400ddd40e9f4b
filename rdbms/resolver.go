package rdbms

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/syssam/strata/metamodel"
)

// System columns. The identifier column is present in every table of a
// hierarchy; the others only in the root table.
const (
	ColumnID        = "id"
	ColumnVersion   = "_version"
	ColumnCreatedAt = "_created_at"
	ColumnCreatedBy = "_created_by"
	ColumnUpdatedAt = "_updated_at"
	ColumnUpdatedBy = "_updated_by"
)

// Resolver derives physical names from the metamodel. Names are stable:
// the same model element always yields the same name.
type Resolver struct {
	limit int
}

// NewResolver returns a resolver truncating names longer than limit
// bytes. A limit of zero disables truncation.
func NewResolver(limit int) *Resolver {
	return &Resolver{limit: limit}
}

// Table returns the table of an entity type.
func (r *Resolver) Table(e *metamodel.EntityType) string {
	return r.name("t_", e.Name)
}

// Column returns the column of an attribute, in the table of its owner.
func (r *Resolver) Column(a *metamodel.Attribute) string {
	return r.name("c_", a.Name)
}

// ForeignKey returns the entity type whose table holds the link column of
// a foreign key or inverse foreign key reference, and the column.
func (r *Resolver) ForeignKey(ref *metamodel.Reference) (*metamodel.EntityType, string) {
	if ref.Storage == metamodel.StorageForeignKey {
		return ref.Owner, r.name("fk_", ref.Name)
	}
	if o := ref.Opposite; o != nil && o.Storage == metamodel.StorageForeignKey {
		return o.Owner, r.name("fk_", o.Name)
	}
	return ref.Target, r.name("fk_", ref.Owner.Name, ref.Name)
}

// Junction returns the junction table of a reference and its columns:
// the one holding the identifier of ref's owner and the one holding the
// target identifier. Both ends of a pair share the table, which is named
// after the owning end.
func (r *Resolver) Junction(ref *metamodel.Reference) (table, owner, target string) {
	own := ref
	if !ref.OwnsJunction() {
		own = ref.Opposite
	}
	table = r.name("j_", own.Owner.Name, own.Name)
	a, b := r.name("c_", own.Owner.Name, "id"), r.name("c_", own.Name, "id")
	if a == b {
		b = r.name("c_", own.Name, "target_id")
	}
	if own != ref {
		a, b = b, a
	}
	return table, a, b
}

// Index returns the name of an index on a column of a table. The prefix
// tells unique indexes ("u") from plain ones ("i").
func (r *Resolver) Index(prefix, table, column string) string {
	return r.truncate(prefix + "_" + table + "_" + column)
}

func (r *Resolver) name(prefix string, parts ...string) string {
	words := make([]string, len(parts))
	for i, p := range parts {
		words[i] = snake(p)
	}
	return r.truncate(prefix + strings.Join(words, "_"))
}

// truncate shortens names over the limit, keeping them distinct with a
// hash of the full name.
func (r *Resolver) truncate(s string) string {
	if r.limit <= 0 || len(s) <= r.limit {
		return s
	}
	h := fnv.New32a()
	h.Write([]byte(s))
	suffix := fmt.Sprintf("_%08x", h.Sum32())
	return s[:r.limit-len(suffix)] + suffix
}

// snake turns a model name into a lower snake case identifier made of
// ASCII letters, digits and underscores.
func snake(s string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if t, _, err := transform.String(fold, s); err == nil {
		s = t
	}
	s = inflect.Underscore(s)
	var b strings.Builder
	under := false
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
			under = false
		case c >= 'A' && c <= 'Z':
			b.WriteRune(unicode.ToLower(c))
			under = false
		case !under && b.Len() > 0:
			b.WriteByte('_')
			under = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
