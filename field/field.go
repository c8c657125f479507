// Package field defines the dynamic field type system for tenant-defined
// entities and the typed accessors used to read record values.
package field

import (
	"context"
	"fmt"
)

// Type is the declared type of an entity field
type Type string

// Declared field types
const (
	TypeText        Type = "text"
	TypeNumber      Type = "number"
	TypeBoolean     Type = "boolean"
	TypeDate        Type = "date"
	TypeSelect      Type = "select"
	TypeMultiSelect Type = "multiselect"
	TypeRating      Type = "rating"
	TypeUser        Type = "user"
	TypeJSON        Type = "json"
)

// allTypes indexes every declared type for validation
var allTypes = map[Type]struct{}{
	TypeText:        {},
	TypeNumber:      {},
	TypeBoolean:     {},
	TypeDate:        {},
	TypeSelect:      {},
	TypeMultiSelect: {},
	TypeRating:      {},
	TypeUser:        {},
	TypeJSON:        {},
}

// Valid reports whether t is a declared field type
func (t Type) Valid() bool {
	_, ok := allTypes[t]
	return ok
}

// String returns the string form of the type
func (t Type) String() string {
	return string(t)
}

// Numeric reports whether values of this type order numerically
func (t Type) Numeric() bool {
	return t == TypeNumber || t == TypeDate || t == TypeRating
}

// TextLike reports whether values of this type support substring operators
func (t Type) TextLike() bool {
	return t == TypeText || t == TypeSelect || t == TypeUser
}

// ParseType parses s into a Type
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown field type: %q", s)
	}
	return t, nil
}

// Schema maps field keys to their declared types for one entity
type Schema map[string]Type

// TypeOf returns the declared type for a field key
func (s Schema) TypeOf(key string) (Type, bool) {
	t, ok := s[key]
	return t, ok
}

// Registry resolves the field schema for an entity. Implementations are
// expected to reflect the current schema on every call: rules may reference
// fields that were renamed or removed after the rule was authored.
type Registry interface {
	EntityFields(ctx context.Context, entityID string) (Schema, error)
}
