package sqlsource

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/tendant/pgmigrate/internal/schema"
	"github.com/tendant/pgmigrate/internal/value"
)

// Cursor turns *sql.Rows into typed values, one scan slot per column.
type Cursor struct {
	rows      *sql.Rows
	columns   []schema.ColumnDefinition
	dest      []any
	parseUUID func(any) (uuid.UUID, error)
}

func newCursor(rows *sql.Rows, columns []schema.ColumnDefinition, parseUUID func(any) (uuid.UUID, error)) *Cursor {
	dest := make([]any, len(columns))
	for i, c := range columns {
		dest[i] = slotFor(c.SemanticType)
	}
	return &Cursor{rows: rows, columns: columns, dest: dest, parseUUID: parseUUID}
}

func slotFor(t schema.SemanticType) any {
	switch t {
	case schema.DateTime:
		return new(sql.NullTime)
	case schema.Int64:
		return new(sql.NullInt64)
	case schema.Int32:
		return new(sql.NullInt32)
	case schema.Bool:
		return new(sql.NullBool)
	case schema.String, schema.Decimal:
		return new(sql.NullString)
	case schema.Bytes:
		return new([]byte)
	default:
		return new(any)
	}
}

func (c *Cursor) Next() bool { return c.rows.Next() }

func (c *Cursor) Err() error { return c.rows.Err() }

func (c *Cursor) Close() error { return c.rows.Close() }

func (c *Cursor) Values() ([]value.Value, error) {
	if err := c.rows.Scan(c.dest...); err != nil {
		return nil, err
	}
	out := make([]value.Value, len(c.columns))
	for i, col := range c.columns {
		v, err := c.convert(col, c.dest[i])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

func (c *Cursor) convert(col schema.ColumnDefinition, slot any) (value.Value, error) {
	switch col.SemanticType {
	case schema.DateTime:
		n := slot.(*sql.NullTime)
		if !n.Valid {
			return value.Null(schema.DateTime), nil
		}
		return value.DateTime(n.Time), nil
	case schema.Int64:
		n := slot.(*sql.NullInt64)
		if !n.Valid {
			return value.Null(schema.Int64), nil
		}
		return value.Int64(n.Int64), nil
	case schema.Int32:
		n := slot.(*sql.NullInt32)
		if !n.Valid {
			return value.Null(schema.Int32), nil
		}
		return value.Int32(n.Int32), nil
	case schema.Bool:
		n := slot.(*sql.NullBool)
		if !n.Valid {
			return value.Null(schema.Bool), nil
		}
		return value.Bool(n.Bool), nil
	case schema.String:
		n := slot.(*sql.NullString)
		if !n.Valid {
			return value.Null(schema.String), nil
		}
		return value.String(n.String), nil
	case schema.Decimal:
		n := slot.(*sql.NullString)
		if !n.Valid {
			return value.Null(schema.Decimal), nil
		}
		return value.Decimal(n.String), nil
	case schema.Bytes:
		return value.Bytes(*slot.(*[]byte)), nil
	case schema.UUID:
		raw := *slot.(*any)
		if raw == nil {
			return value.Null(schema.UUID), nil
		}
		u, err := c.parseUUID(raw)
		if err != nil {
			return value.Value{}, err
		}
		return value.UUID(u), nil
	default:
		return value.Value{}, fmt.Errorf("cannot read %s values", col.SemanticType)
	}
}
