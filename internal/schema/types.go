package schema

import (
	"fmt"
	"strings"
)

// SemanticType is the engine-neutral classification of a column's values.
type SemanticType int

const (
	Unknown SemanticType = iota
	DateTime
	Int64
	Bytes
	String
	Bool
	Int32
	Decimal
	UUID
)

var semanticTypeNames = map[SemanticType]string{
	Unknown:  "unknown",
	DateTime: "datetime",
	Int64:    "int64",
	Bytes:    "bytes",
	String:   "string",
	Bool:     "bool",
	Int32:    "int32",
	Decimal:  "decimal",
	UUID:     "uuid",
}

func (t SemanticType) String() string {
	if name, ok := semanticTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SemanticType(%d)", int(t))
}

// TypeMap translates engine-native type names to semantic types. Keys are lower case.
type TypeMap map[string]SemanticType

// Lookup resolves a raw type name, ignoring case and surrounding whitespace.
func (m TypeMap) Lookup(rawType string) (SemanticType, bool) {
	t, ok := m[strings.ToLower(strings.TrimSpace(rawType))]
	return t, ok
}

// ColumnDefinition describes one column as read from an engine's metadata.
type ColumnDefinition struct {
	Name         string
	RawType      string
	SemanticType SemanticType
	Nullable     bool
	// Position is the 1-based ordinal position of the column within its table.
	Position int
}

func (c ColumnDefinition) String() string {
	return fmt.Sprintf("%s %s(%s)", c.Name, c.RawType, c.SemanticType)
}

// Table is a base table with its columns ordered by ordinal position.
type Table struct {
	Name    string
	Columns []ColumnDefinition
}

// Column returns the column at the given ordinal position.
func (t Table) Column(position int) (ColumnDefinition, bool) {
	for _, col := range t.Columns {
		if col.Position == position {
			return col, true
		}
	}
	return ColumnDefinition{}, false
}

// Database is the result of introspecting one engine.
type Database struct {
	Engine string
	Schema string
	Tables []Table
}

// Table returns the table with exactly the given name.
func (d *Database) Table(name string) (Table, bool) {
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// TableNames returns the table names in introspection order.
func (d *Database) TableNames() []string {
	names := make([]string, len(d.Tables))
	for i, t := range d.Tables {
		names[i] = t.Name
	}
	return names
}
