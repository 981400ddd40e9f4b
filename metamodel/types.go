// Package metamodel describes the entity and transfer types the query
// compiler and the statement planner work on.
//
// A Model is built once (from Go values or a YAML file), linked, and then
// shared read-only: nothing in it is mutated after Link returns. Reloading
// a model file produces a new Model.
package metamodel

import (
	"fmt"
	"strings"
)

// Type is the primitive type of an attribute.
type Type int

// Attribute types.
const (
	TypeString Type = iota + 1
	TypeText
	TypeInteger
	TypeBigInteger
	TypeDecimal
	TypeFloat
	TypeBoolean
	TypeDate
	TypeTime
	TypeTimestamp
	TypeEnum
	TypeUUID
)

var typeNames = map[Type]string{
	TypeString:     "string",
	TypeText:       "text",
	TypeInteger:    "integer",
	TypeBigInteger: "biginteger",
	TypeDecimal:    "decimal",
	TypeFloat:      "float",
	TypeBoolean:    "boolean",
	TypeDate:       "date",
	TypeTime:       "time",
	TypeTimestamp:  "timestamp",
	TypeEnum:       "enum",
	TypeUUID:       "uuid",
}

// String returns the type name as written in model files.
func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType returns the type of the given name.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("metamodel: unknown attribute type %q", s)
}

// Numeric reports whether values of the type support arithmetic.
func (t Type) Numeric() bool {
	switch t {
	case TypeInteger, TypeBigInteger, TypeDecimal, TypeFloat:
		return true
	}
	return false
}

// Textual reports whether the type holds character data.
func (t Type) Textual() bool { return t == TypeString || t == TypeText }

// Temporal reports whether the type is a date, time or timestamp.
func (t Type) Temporal() bool { return t == TypeDate || t == TypeTime || t == TypeTimestamp }

// Storage tells where the link of a reference is persisted.
type Storage int

// Reference storage kinds.
const (
	// StorageForeignKey keeps the target identifier in a column of the
	// table of the declaring entity.
	StorageForeignKey Storage = iota + 1
	// StorageInverseForeignKey keeps the owner identifier in a column of the
	// target table.
	StorageInverseForeignKey
	// StorageJunction keeps pairs of identifiers in a table of its own.
	StorageJunction
)

// String returns the storage name as written in model files.
func (s Storage) String() string {
	switch s {
	case StorageForeignKey:
		return "foreignKey"
	case StorageInverseForeignKey:
		return "inverseForeignKey"
	case StorageJunction:
		return "junction"
	}
	return "unresolved"
}

func parseStorage(s string) (Storage, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "foreignkey", "fk":
		return StorageForeignKey, nil
	case "inverseforeignkey", "inverse":
		return StorageInverseForeignKey, nil
	case "junction":
		return StorageJunction, nil
	}
	return 0, fmt.Errorf("metamodel: unknown reference storage %q", s)
}

// Many is the upper bound of an unbounded multiplicity.
const Many = -1
