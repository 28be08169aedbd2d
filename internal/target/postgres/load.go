package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/tendant/pgmigrate/internal/schema"
	"github.com/tendant/pgmigrate/internal/transfer"
	"github.com/tendant/pgmigrate/internal/value"
)

// ErrUnmatchedKey is returned when a blob update does not address exactly one target row.
var ErrUnmatchedKey = errors.New("key does not match exactly one target row")

// load is one table's clear-and-copy transaction.
type load struct {
	tx     pgx.Tx
	schema string
	table  string
}

// BeginLoad opens the transaction in which a table is cleared and bulk loaded.
func (db *DB) BeginLoad(ctx context.Context, table string) (transfer.Load, error) {
	tx, err := db.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	return &load{tx: tx, schema: db.schema, table: table}, nil
}

func (l *load) Clear(ctx context.Context) error {
	_, err := l.tx.Exec(ctx, "DELETE FROM "+qualifiedName(l.schema, l.table))
	return err
}

func (l *load) OpenBulkLoad(ctx context.Context, columns []schema.ColumnDefinition) (transfer.BulkLoader, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns to copy into table %q", l.table)
	}
	sql := copyStatement(l.schema, l.table, columns)
	return startCopy(ctx, l.tx.Conn().PgConn(), sql, columns), nil
}

func (l *load) Commit(ctx context.Context) error { return l.tx.Commit(ctx) }

func (l *load) Rollback(ctx context.Context) error { return l.tx.Rollback(ctx) }

func updateStatement(schemaName, table string, key schema.ColumnDefinition, columns []schema.ColumnDefinition) string {
	set := make([]string, len(columns))
	for i, c := range columns {
		set[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(c.Name), i+1)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		qualifiedName(schemaName, table), strings.Join(set, ", "), pq.QuoteIdentifier(key.Name), len(columns)+1)
}

// UpdateBlobs sets the binary columns of the row whose key column equals id.
func (db *DB) UpdateBlobs(ctx context.Context, table string, key schema.ColumnDefinition, id value.Value,
	columns []schema.ColumnDefinition, data [][]byte) error {
	if len(columns) != len(data) {
		return fmt.Errorf("%d values for %d binary columns", len(data), len(columns))
	}
	keyArg, err := param(id)
	if err != nil {
		return err
	}

	args := make([]any, 0, len(columns)+1)
	for _, d := range data {
		args = append(args, d)
	}
	args = append(args, keyArg)

	tag, err := db.conn.Exec(ctx, updateStatement(db.schema, table, key, columns), args...)
	if err != nil {
		return err
	}
	return checkUpdated(tag)
}

// checkUpdated requires the key to address exactly one row.
func checkUpdated(tag pgconn.CommandTag) error {
	if n := tag.RowsAffected(); n != 1 {
		return fmt.Errorf("%w: %d rows updated", ErrUnmatchedKey, n)
	}
	return nil
}
