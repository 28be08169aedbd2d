package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/tendant/pgmigrate/internal/constraint"
)

const foreignKeysQuery = `
	SELECT n.nspname::text, c.relname::text, con.conname::text, pg_get_constraintdef(con.oid)
	FROM pg_constraint con
	INNER JOIN pg_class c ON con.conrelid = c.oid
	INNER JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE con.contype = 'f'
	ORDER BY n.nspname, c.relname, con.conname`

// ForeignKeys lists every foreign key of the database with the DDL that drops and recreates it.
func (db *DB) ForeignKeys(ctx context.Context) ([]constraint.ForeignKey, error) {
	rows, err := db.conn.Query(ctx, foreignKeysQuery)
	if err != nil {
		return nil, fmt.Errorf("error querying foreign keys: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (constraint.ForeignKey, error) {
		var (
			key        constraint.Key
			definition string
		)
		if err := row.Scan(&key.Namespace, &key.Relation, &key.Name, &definition); err != nil {
			return constraint.ForeignKey{}, err
		}
		return foreignKey(key, definition), nil
	})
}

func foreignKey(key constraint.Key, definition string) constraint.ForeignKey {
	table := qualifiedName(key.Namespace, key.Relation)
	return constraint.ForeignKey{
		Key:     key,
		DropDDL: fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", table, pq.QuoteIdentifier(key.Name)),
		AddDDL:  fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s", table, pq.QuoteIdentifier(key.Name), definition),
	}
}
