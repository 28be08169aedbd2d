package transfer

import (
	"context"

	"github.com/tendant/pgmigrate/internal/schema"
	"github.com/tendant/pgmigrate/internal/value"
)

// Cursor is a forward-only read over a full table scan.
type Cursor interface {
	Next() bool
	// Values returns the current row, one value per requested column.
	Values() ([]value.Value, error)
	Err() error
	Close() error
}

// Source reads whole tables. Each column is scanned according to its SemanticType.
type Source interface {
	Scan(ctx context.Context, table string, columns []schema.ColumnDefinition) (Cursor, error)
}

// BulkLoader is a row-oriented insert stream into one target table.
type BulkLoader interface {
	WriteRow(row []value.Value) error
	Flush() error
	// Commit finalizes the stream and returns the number of rows the target accepted.
	Commit() (int64, error)
	// Cancel aborts the stream so the target discards it.
	Cancel(reason string) error
	// Close releases the stream; after Commit or Cancel it is a no-op.
	Close() error
}

// Load scopes the clearing and bulk loading of one target table.
type Load interface {
	Clear(ctx context.Context) error
	OpenBulkLoad(ctx context.Context, columns []schema.ColumnDefinition) (BulkLoader, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Target writes into the target engine.
type Target interface {
	BeginLoad(ctx context.Context, table string) (Load, error)
	// UpdateBlobs sets columns to data on the row whose key column equals id.
	UpdateBlobs(ctx context.Context, table string, key schema.ColumnDefinition, id value.Value,
		columns []schema.ColumnDefinition, data [][]byte) error
}

// Recorder receives progress counts.
type Recorder interface {
	RowCopied(table string)
	BlobRowBackfilled(table string)
}
