// Package schema derives the tables storing a metamodel and plans the DDL
// creating or migrating them with atlas.
package schema

import (
	"fmt"
	"slices"

	"ariga.io/atlas/sql/schema"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/rdbms"
)

// Option configures table derivation.
type Option func(*config)

type config struct {
	schemaName string
	resolver   *rdbms.Resolver
}

// WithSchemaName qualifies the derived tables with a database schema.
func WithSchemaName(name string) Option {
	return func(c *config) {
		c.schemaName = name
	}
}

// WithResolver sets the resolver of physical names. It must be the one
// used to render queries against the tables.
func WithResolver(r *rdbms.Resolver) Option {
	return func(c *config) {
		c.resolver = r
	}
}

// Tables derives the tables of the entity types of m: one table per
// entity type holding its declared attributes, the system columns in the
// root table of each hierarchy, link columns and junction tables.
//
// No foreign key constraints are derived. Link columns are nullable and
// indexed; referential checks are made by the statements validating a
// mutation.
func Tables(m *metamodel.Model, d *rdbms.Dialect, opts ...Option) ([]*schema.Table, error) {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	if c.resolver == nil {
		c.resolver = rdbms.NewResolver(d.MaxIdentifier)
	}
	b := &builder{
		dialect: d,
		r:       c.resolver,
		schema:  schema.New(c.schemaName),
		tables:  make(map[string]*schema.Table),
	}
	for _, e := range m.Entities() {
		if err := b.entity(e); err != nil {
			return nil, err
		}
	}
	for _, e := range m.Entities() {
		for _, ref := range e.References {
			if err := b.reference(ref); err != nil {
				return nil, err
			}
		}
	}
	if res := ValidateSchema(b.schema.Tables); res.HasErrors() {
		return nil, strata.NewConfigError(m.Entities()[0].Name, "derived tables are invalid:\n%s", res)
	}
	return b.schema.Tables, nil
}

type builder struct {
	dialect *rdbms.Dialect
	r       *rdbms.Resolver
	schema  *schema.Schema
	tables  map[string]*schema.Table
}

func (b *builder) table(name string) *schema.Table {
	if t, ok := b.tables[name]; ok {
		return t
	}
	t := schema.NewTable(name)
	b.schema.AddTables(t)
	b.tables[name] = t
	return t
}

func (b *builder) entity(e *metamodel.EntityType) error {
	name := b.r.Table(e)
	if _, ok := b.tables[name]; ok {
		return strata.NewConfigError(e.Name, "table %s is already used", name)
	}
	t := b.table(name)
	id := schema.NewColumn(rdbms.ColumnID).SetType(b.columnType(metamodel.TypeUUID, nil))
	t.AddColumns(id)
	t.SetPrimaryKey(schema.NewPrimaryKey(id))
	if len(e.Supertypes) == 0 {
		t.AddColumns(
			schema.NewColumn(rdbms.ColumnVersion).SetType(b.columnType(metamodel.TypeInteger, nil)),
			schema.NewColumn(rdbms.ColumnCreatedAt).SetType(b.columnType(metamodel.TypeTimestamp, nil)),
			schema.NewNullColumn(rdbms.ColumnCreatedBy).SetType(b.columnType(metamodel.TypeString, nil)),
			schema.NewColumn(rdbms.ColumnUpdatedAt).SetType(b.columnType(metamodel.TypeTimestamp, nil)),
			schema.NewNullColumn(rdbms.ColumnUpdatedBy).SetType(b.columnType(metamodel.TypeString, nil)),
		)
	}
	for _, a := range e.Attributes {
		col := schema.NewColumn(b.r.Column(a)).SetType(b.columnType(a.Type, a)).SetNull(!a.Required)
		t.AddColumns(col)
		if a.Unique {
			t.AddIndexes(schema.NewUniqueIndex(b.r.Index("u", name, col.Name)).AddColumns(col))
		}
	}
	return nil
}

// reference adds the link column or junction table of ref. Each pair of
// opposite references is stored once.
func (b *builder) reference(ref *metamodel.Reference) error {
	switch ref.Storage {
	case metamodel.StorageForeignKey, metamodel.StorageInverseForeignKey:
		if ref.Storage == metamodel.StorageInverseForeignKey && ref.Opposite != nil {
			// Stored by the foreign key of the opposite end.
			return nil
		}
		owner, name := b.r.ForeignKey(ref)
		t := b.table(b.r.Table(owner))
		if _, ok := t.Column(name); ok {
			return strata.NewConfigError(ref.QualifiedName(), "column %s.%s is already used", t.Name, name)
		}
		col := schema.NewNullColumn(name).SetType(b.columnType(metamodel.TypeUUID, nil))
		t.AddColumns(col)
		t.AddIndexes(schema.NewIndex(b.r.Index("i", t.Name, name)).AddColumns(col))
	case metamodel.StorageJunction:
		if !ref.OwnsJunction() {
			return nil
		}
		name, own, target := b.r.Junction(ref)
		if _, ok := b.tables[name]; ok {
			return strata.NewConfigError(ref.QualifiedName(), "table %s is already used", name)
		}
		t := b.table(name)
		oc := schema.NewColumn(own).SetType(b.columnType(metamodel.TypeUUID, nil))
		tc := schema.NewColumn(target).SetType(b.columnType(metamodel.TypeUUID, nil))
		t.AddColumns(oc, tc)
		t.SetPrimaryKey(schema.NewPrimaryKey(oc, tc))
		t.AddIndexes(schema.NewIndex(b.r.Index("i", name, target)).AddColumns(tc))
	default:
		return strata.NewConfigError(ref.QualifiedName(), "unresolved storage")
	}
	return nil
}

// columnType maps a metamodel type to the column type of the dialect.
func (b *builder) columnType(t metamodel.Type, a *metamodel.Attribute) schema.Type {
	size := 0
	if a != nil {
		size = a.MaxLength
	}
	switch b.dialect.Name {
	case dialect.Postgres:
		switch t {
		case metamodel.TypeString:
			if size == 0 {
				return &schema.StringType{T: "text"}
			}
			return &schema.StringType{T: "varchar", Size: size}
		case metamodel.TypeText:
			return &schema.StringType{T: "text"}
		case metamodel.TypeInteger:
			return &schema.IntegerType{T: "bigint"}
		case metamodel.TypeEnum:
			return &schema.IntegerType{T: "integer"}
		case metamodel.TypeBigInteger:
			return &schema.DecimalType{T: "numeric", Precision: precision(a, 38)}
		case metamodel.TypeDecimal:
			return &schema.DecimalType{T: "numeric", Precision: precision(a, 38), Scale: scale(a)}
		case metamodel.TypeFloat:
			return &schema.FloatType{T: "double precision"}
		case metamodel.TypeBoolean:
			return &schema.BoolType{T: "boolean"}
		case metamodel.TypeDate:
			return &schema.TimeType{T: "date"}
		case metamodel.TypeTime:
			return &schema.TimeType{T: "time without time zone"}
		case metamodel.TypeTimestamp:
			return &schema.TimeType{T: "timestamp with time zone"}
		case metamodel.TypeUUID:
			return &schema.UUIDType{T: "uuid"}
		}
	case dialect.MySQL:
		ms := 3
		switch t {
		case metamodel.TypeString:
			if size == 0 {
				size = 255
			}
			return &schema.StringType{T: "varchar", Size: size}
		case metamodel.TypeText:
			return &schema.StringType{T: "longtext"}
		case metamodel.TypeInteger:
			return &schema.IntegerType{T: "bigint"}
		case metamodel.TypeEnum:
			return &schema.IntegerType{T: "int"}
		case metamodel.TypeBigInteger:
			return &schema.DecimalType{T: "decimal", Precision: precision(a, 65)}
		case metamodel.TypeDecimal:
			return &schema.DecimalType{T: "decimal", Precision: precision(a, 65), Scale: scale(a)}
		case metamodel.TypeFloat:
			return &schema.FloatType{T: "double"}
		case metamodel.TypeBoolean:
			return &schema.BoolType{T: "bool"}
		case metamodel.TypeDate:
			return &schema.TimeType{T: "date"}
		case metamodel.TypeTime:
			return &schema.TimeType{T: "time", Precision: &ms}
		case metamodel.TypeTimestamp:
			return &schema.TimeType{T: "datetime", Precision: &ms}
		case metamodel.TypeUUID:
			return &schema.StringType{T: "char", Size: 36}
		}
	case dialect.SQLite:
		switch t {
		case metamodel.TypeString, metamodel.TypeText, metamodel.TypeDate, metamodel.TypeTime, metamodel.TypeTimestamp, metamodel.TypeUUID:
			return &schema.StringType{T: "text"}
		case metamodel.TypeInteger, metamodel.TypeEnum:
			return &schema.IntegerType{T: "integer"}
		case metamodel.TypeBigInteger, metamodel.TypeDecimal:
			return &schema.DecimalType{T: "numeric"}
		case metamodel.TypeFloat:
			return &schema.FloatType{T: "real"}
		case metamodel.TypeBoolean:
			return &schema.BoolType{T: "boolean"}
		}
	}
	return &schema.UnsupportedType{T: fmt.Sprintf("%s/%s", b.dialect.Name, t)}
}

func precision(a *metamodel.Attribute, fallback int) int {
	if a != nil && a.Precision > 0 {
		return a.Precision
	}
	return fallback
}

func scale(a *metamodel.Attribute) int {
	if a != nil && a.Precision > 0 {
		return a.Scale
	}
	return 10
}

// Lookup returns the table of the given name.
func Lookup(tables []*schema.Table, name string) (*schema.Table, bool) {
	i := slices.IndexFunc(tables, func(t *schema.Table) bool { return t.Name == name })
	if i < 0 {
		return nil, false
	}
	return tables[i], true
}
