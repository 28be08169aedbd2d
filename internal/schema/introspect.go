package schema

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// RawColumn is a column row exactly as an engine's metadata query returns it.
type RawColumn struct {
	Table    string
	Name     string
	RawType  string
	Nullable bool
	Position int
}

// Catalog is the metadata capability every engine provides.
type Catalog interface {
	// Engine names the engine for logging ("mysql", "mssql", "postgres").
	Engine() string
	// SchemaName is the schema the catalog is restricted to.
	SchemaName() string
	// ListTables returns the base table names of the schema.
	ListTables(ctx context.Context) ([]string, error)
	// ListColumns returns the columns of every base table of the schema.
	ListColumns(ctx context.Context) ([]RawColumn, error)
	// TypeMap is the engine's fixed raw type dictionary.
	TypeMap() TypeMap
}

// Timeouts bounds the two introspection phases.
type Timeouts struct {
	ListTables  time.Duration
	ListColumns time.Duration
}

// Introspect reads the tables and columns of a catalog and resolves every column's semantic type.
// Tables keep the order returned by ListTables; columns are ordered by ordinal position.
func Introspect(ctx context.Context, catalog Catalog, timeouts Timeouts) (*Database, error) {
	names, err := listTables(ctx, catalog, timeouts.ListTables)
	if err != nil {
		return nil, err
	}

	raw, err := listColumns(ctx, catalog, timeouts.ListColumns)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(names))
	tables := make([]Table, len(names))
	for i, name := range names {
		index[name] = i
		tables[i] = Table{Name: name, Columns: []ColumnDefinition{}}
	}

	typeMap := catalog.TypeMap()
	for _, rc := range raw {
		i, ok := index[rc.Table]
		if !ok {
			return nil, fmt.Errorf("unknown table %q when retrieving column definitions (%s)", rc.Table, catalog.Engine())
		}
		semantic, ok := typeMap.Lookup(rc.RawType)
		if !ok {
			return nil, &UnsupportedTypeError{Engine: catalog.Engine(), Table: rc.Table, Column: rc.Name, RawType: rc.RawType}
		}
		tables[i].Columns = append(tables[i].Columns, ColumnDefinition{
			Name:         rc.Name,
			RawType:      rc.RawType,
			SemanticType: semantic,
			Nullable:     rc.Nullable,
			Position:     rc.Position,
		})
	}

	for i := range tables {
		cols := tables[i].Columns
		sort.SliceStable(cols, func(a, b int) bool { return cols[a].Position < cols[b].Position })
		for j := 1; j < len(cols); j++ {
			if cols[j].Position == cols[j-1].Position {
				return nil, fmt.Errorf("table %q has two columns at ordinal position %d (%s, %s)",
					tables[i].Name, cols[j].Position, cols[j-1].Name, cols[j].Name)
			}
		}
	}

	return &Database{Engine: catalog.Engine(), Schema: catalog.SchemaName(), Tables: tables}, nil
}

func listTables(ctx context.Context, catalog Catalog, timeout time.Duration) ([]string, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	names, err := catalog.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing %s tables: %w", catalog.Engine(), err)
	}
	return names, nil
}

func listColumns(ctx context.Context, catalog Catalog, timeout time.Duration) ([]RawColumn, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	cols, err := catalog.ListColumns(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing %s columns: %w", catalog.Engine(), err)
	}
	return cols, nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
