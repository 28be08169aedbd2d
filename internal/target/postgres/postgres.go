// Package postgres is the PostgreSQL target engine.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/tendant/pgmigrate/internal/schema"
)

const (
	Engine        = "postgres"
	DefaultSchema = "public"
)

const tablesQuery = `
	SELECT table_name::text
	FROM information_schema.tables
	WHERE table_schema = $1
	AND table_type = 'BASE TABLE'
	ORDER BY table_name`

const columnsQuery = `
	SELECT c.table_name::text, c.column_name::text, c.data_type::text, c.is_nullable::text, c.ordinal_position::int
	FROM information_schema.columns c
	INNER JOIN information_schema.tables t
		ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	WHERE t.table_schema = $1
	AND t.table_type = 'BASE TABLE'
	ORDER BY c.table_name, c.ordinal_position`

// Types is the PostgreSQL raw type dictionary, keyed by information_schema data_type.
var Types = schema.TypeMap{
	"timestamp without time zone": schema.DateTime,
	"timestamp with time zone":    schema.DateTime,
	"date":                        schema.DateTime,
	"bigint":                      schema.Int64,
	"integer":                     schema.Int32,
	"smallint":                    schema.Int32,
	"bytea":                       schema.Bytes,
	"text":                        schema.String,
	"character varying":           schema.String,
	"character":                   schema.String,
	"boolean":                     schema.Bool,
	"uuid":                        schema.UUID,
	"numeric":                     schema.Decimal,
	"double precision":            schema.Decimal,
	"real":                        schema.Decimal,
}

// DB is the target connection. All statements run on one connection.
type DB struct {
	conn   *pgx.Conn
	schema string
}

// Connect opens the target connection. An empty schema name selects public.
func Connect(ctx context.Context, dsn, schemaName string) (*DB, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to PostgreSQL: %w", err)
	}
	if schemaName == "" {
		schemaName = DefaultSchema
	}
	return &DB{conn: conn, schema: schemaName}, nil
}

func (db *DB) Engine() string { return Engine }

func (db *DB) SchemaName() string { return db.schema }

func (db *DB) TypeMap() schema.TypeMap { return Types }

func (db *DB) ListTables(ctx context.Context) ([]string, error) {
	rows, err := db.conn.Query(ctx, tablesQuery, db.schema)
	if err != nil {
		return nil, fmt.Errorf("error querying tables: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (db *DB) ListColumns(ctx context.Context) ([]schema.RawColumn, error) {
	rows, err := db.conn.Query(ctx, columnsQuery, db.schema)
	if err != nil {
		return nil, fmt.Errorf("error querying columns: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (schema.RawColumn, error) {
		var (
			c        schema.RawColumn
			nullable string
		)
		err := row.Scan(&c.Table, &c.Name, &c.RawType, &nullable, &c.Position)
		c.Nullable = strings.EqualFold(nullable, "YES")
		return c, err
	})
}

// ExecDDL runs one schema statement outside any transaction.
func (db *DB) ExecDDL(ctx context.Context, ddl string) error {
	_, err := db.conn.Exec(ctx, ddl)
	return err
}

func (db *DB) Close(ctx context.Context) error { return db.conn.Close(ctx) }

// qualifiedName quotes a table of the target schema.
func qualifiedName(schemaName, table string) string {
	return pq.QuoteIdentifier(schemaName) + "." + pq.QuoteIdentifier(table)
}

func quoteColumns(columns []schema.ColumnDefinition) string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = pq.QuoteIdentifier(c.Name)
	}
	return strings.Join(names, ", ")
}
