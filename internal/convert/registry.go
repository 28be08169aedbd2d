// Package convert maps values between semantic types that differ across engines.
package convert

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tendant/pgmigrate/internal/schema"
	"github.com/tendant/pgmigrate/internal/value"
)

// Func converts a value of one semantic type to another. A null result means "no value".
// Implementations are pure.
type Func func(value.Value) value.Value

// Pair keys a converter by source and target semantic type.
type Pair struct {
	From schema.SemanticType
	To   schema.SemanticType
}

func (p Pair) String() string { return fmt.Sprintf("%s->%s", p.From, p.To) }

// Entry declares one converter.
type Entry struct {
	Pair
	Convert Func
}

// Registry is an immutable set of converters.
type Registry struct {
	funcs map[Pair]Func
}

// NewRegistry builds a registry from entries. A later entry for the same pair wins.
func NewRegistry(entries ...Entry) *Registry {
	funcs := make(map[Pair]Func, len(entries))
	for _, e := range entries {
		funcs[e.Pair] = e.Convert
	}
	return &Registry{funcs: funcs}
}

// Default returns the registry with the converters every migration needs.
func Default() *Registry {
	return NewRegistry(
		Entry{Pair{schema.String, schema.UUID}, StringToUUID},
		Entry{Pair{schema.Int32, schema.Bool}, IntegerToBool},
		Entry{Pair{schema.Int64, schema.Bool}, IntegerToBool},
	)
}

// Supports reports whether a value can travel from one type to another.
func (r *Registry) Supports(from, to schema.SemanticType) bool {
	if from == to {
		return true
	}
	_, ok := r.funcs[Pair{from, to}]
	return ok
}

// Lookup returns the converter for a pair. Identical types need no converter and yield nil.
func (r *Registry) Lookup(from, to schema.SemanticType) (Func, error) {
	if from == to {
		return nil, nil
	}
	fn, ok := r.funcs[Pair{from, to}]
	if !ok {
		return nil, &UnsupportedConversionError{From: from, To: to}
	}
	return fn, nil
}

// Convert passes v through unchanged when the types are identical and applies the
// registered converter otherwise.
func (r *Registry) Convert(v value.Value, from, to schema.SemanticType) (value.Value, error) {
	fn, err := r.Lookup(from, to)
	if err != nil {
		return value.Value{}, err
	}
	if fn == nil {
		return v, nil
	}
	return fn(v), nil
}

// StringToUUID parses a UUID string; malformed and null input yield a null UUID.
func StringToUUID(v value.Value) value.Value {
	if v.IsNull() || v.Kind() != schema.String {
		return value.Null(schema.UUID)
	}
	id, err := uuid.Parse(v.AsString())
	if err != nil {
		return value.Null(schema.UUID)
	}
	return value.UUID(id)
}

// IntegerToBool maps 1 to true and any other integer to false; null stays null.
func IntegerToBool(v value.Value) value.Value {
	if v.IsNull() {
		return value.Null(schema.Bool)
	}
	switch v.Kind() {
	case schema.Int32, schema.Int64:
		return value.Bool(v.AsInt64() == 1)
	default:
		return value.Null(schema.Bool)
	}
}

// UnsupportedConversionError reports differing semantic types with no registered converter.
type UnsupportedConversionError struct {
	From   schema.SemanticType
	To     schema.SemanticType
	Table  string
	Column string
}

func (e *UnsupportedConversionError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("no conversion registered from %s to %s", e.From, e.To)
	}
	return fmt.Sprintf("no conversion registered from %s to %s for column %q of table %q", e.From, e.To, e.Column, e.Table)
}
