// Package sqlsource reads source engines that are reached through database/sql.
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tendant/pgmigrate/internal/schema"
	"github.com/tendant/pgmigrate/internal/transfer"
)

// Dialect holds what differs between database/sql source engines.
type Dialect struct {
	Engine string
	Types  schema.TypeMap
	// TablesQuery takes the schema name as its only parameter and returns table names.
	TablesQuery string
	// ColumnsQuery takes the schema name as its only parameter and returns
	// table, column, data type, nullability ("YES"/"NO") and ordinal position.
	ColumnsQuery string
	// QualifiedName quotes a schema-qualified table name.
	QualifiedName func(schemaName, table string) string
	// QuoteIdentifier quotes a column name.
	QuoteIdentifier func(name string) string
	// ParseUUID converts a scanned uuid column value.
	ParseUUID func(raw any) (uuid.UUID, error)
}

// DB is a schema-restricted source catalog and table reader.
type DB struct {
	db      *sql.DB
	schema  string
	dialect Dialect
}

func New(db *sql.DB, schemaName string, dialect Dialect) *DB {
	if dialect.ParseUUID == nil {
		dialect.ParseUUID = ParseUUID
	}
	return &DB{db: db, schema: schemaName, dialect: dialect}
}

func (s *DB) Engine() string { return s.dialect.Engine }

func (s *DB) SchemaName() string { return s.schema }

func (s *DB) TypeMap() schema.TypeMap { return s.dialect.Types }

func (s *DB) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.TablesQuery, s.schema)
	if err != nil {
		return nil, fmt.Errorf("error querying tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("error scanning table row: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading tables: %w", err)
	}
	return tables, nil
}

func (s *DB) ListColumns(ctx context.Context) ([]schema.RawColumn, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.ColumnsQuery, s.schema)
	if err != nil {
		return nil, fmt.Errorf("error querying columns: %w", err)
	}
	defer rows.Close()

	var cols []schema.RawColumn
	for rows.Next() {
		var (
			c        schema.RawColumn
			nullable string
		)
		if err := rows.Scan(&c.Table, &c.Name, &c.RawType, &nullable, &c.Position); err != nil {
			return nil, fmt.Errorf("error scanning column row: %w", err)
		}
		c.Nullable = strings.EqualFold(nullable, "YES")
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading columns: %w", err)
	}
	return cols, nil
}

// SelectQuery builds the full-table scan of the given columns.
func (s *DB) SelectQuery(table string, columns []schema.ColumnDefinition) string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = s.dialect.QuoteIdentifier(c.Name)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), s.dialect.QualifiedName(s.schema, table))
}

// Scan opens a forward-only cursor over every row of the table.
func (s *DB) Scan(ctx context.Context, table string, columns []schema.ColumnDefinition) (transfer.Cursor, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns to select from table %q", table)
	}
	rows, err := s.db.QueryContext(ctx, s.SelectQuery(table, columns))
	if err != nil {
		return nil, err
	}
	return newCursor(rows, columns, s.dialect.ParseUUID), nil
}

func (s *DB) Close() error { return s.db.Close() }

// ParseUUID accepts the canonical string form and the 16 raw bytes of a UUID.
func ParseUUID(raw any) (uuid.UUID, error) {
	switch v := raw.(type) {
	case string:
		return uuid.Parse(v)
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}
		return uuid.ParseBytes(v)
	default:
		return uuid.Nil, fmt.Errorf("cannot read %T as uuid", raw)
	}
}
