package transfer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/pgmigrate/internal/convert"
	"github.com/tendant/pgmigrate/internal/reconcile"
	"github.com/tendant/pgmigrate/internal/schema"
	"github.com/tendant/pgmigrate/internal/value"
)

// fakeSource serves rows indexed by source ordinal position minus one.
type fakeSource struct {
	rows    map[string][][]value.Value
	failAt  int
	scanned [][]schema.ColumnDefinition
}

func (s *fakeSource) Scan(ctx context.Context, table string, columns []schema.ColumnDefinition) (Cursor, error) {
	rows, ok := s.rows[table]
	if !ok {
		return nil, errors.New("no such table")
	}
	s.scanned = append(s.scanned, columns)
	return &fakeCursor{rows: rows, columns: columns, failAt: s.failAt, pos: -1}, nil
}

type fakeCursor struct {
	rows    [][]value.Value
	columns []schema.ColumnDefinition
	failAt  int
	pos     int
	closed  bool
}

func (c *fakeCursor) Next() bool {
	c.pos++
	return c.pos < len(c.rows)
}

func (c *fakeCursor) Values() ([]value.Value, error) {
	if c.failAt > 0 && c.pos+1 == c.failAt {
		return nil, errors.New("connection reset")
	}
	out := make([]value.Value, len(c.columns))
	for i, col := range c.columns {
		out[i] = c.rows[c.pos][col.Position-1]
	}
	return out, nil
}

func (c *fakeCursor) Err() error { return nil }

func (c *fakeCursor) Close() error {
	c.closed = true
	return nil
}

type fakeTarget struct {
	events    []string
	committed map[string][][]value.Value
	columns   []schema.ColumnDefinition
	updates   []update
	updateErr error
	acceptAll bool
}

type update struct {
	id      value.Value
	columns []string
	data    [][]byte
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{committed: map[string][][]value.Value{}, acceptAll: true}
}

func (t *fakeTarget) BeginLoad(ctx context.Context, table string) (Load, error) {
	t.events = append(t.events, "begin")
	return &fakeLoad{target: t, table: table}, nil
}

func (t *fakeTarget) UpdateBlobs(ctx context.Context, table string, key schema.ColumnDefinition, id value.Value,
	columns []schema.ColumnDefinition, data [][]byte) error {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	t.updates = append(t.updates, update{id: id, columns: names, data: data})
	return t.updateErr
}

type fakeLoad struct {
	target *fakeTarget
	table  string
	rows   [][]value.Value
}

func (l *fakeLoad) Clear(ctx context.Context) error {
	l.target.events = append(l.target.events, "clear")
	return nil
}

func (l *fakeLoad) OpenBulkLoad(ctx context.Context, columns []schema.ColumnDefinition) (BulkLoader, error) {
	l.target.events = append(l.target.events, "open")
	l.target.columns = columns
	return &fakeLoader{load: l}, nil
}

func (l *fakeLoad) Commit(ctx context.Context) error {
	l.target.events = append(l.target.events, "commit")
	l.target.committed[l.table] = l.rows
	return nil
}

func (l *fakeLoad) Rollback(ctx context.Context) error {
	l.target.events = append(l.target.events, "rollback")
	return nil
}

type fakeLoader struct {
	load    *fakeLoad
	pending [][]value.Value
	done    bool
}

func (f *fakeLoader) WriteRow(row []value.Value) error {
	f.pending = append(f.pending, row)
	return nil
}

func (f *fakeLoader) Flush() error { return nil }

func (f *fakeLoader) Commit() (int64, error) {
	f.done = true
	f.load.target.events = append(f.load.target.events, "finalize")
	f.load.rows = f.pending
	if !f.load.target.acceptAll {
		return int64(len(f.pending)) - 1, nil
	}
	return int64(len(f.pending)), nil
}

func (f *fakeLoader) Cancel(reason string) error {
	f.done = true
	f.load.target.events = append(f.load.target.events, "cancel")
	return nil
}

func (f *fakeLoader) Close() error { return nil }

type countingRecorder struct {
	rows, blobs map[string]int
}

func (r *countingRecorder) RowCopied(table string)         { r.rows[table]++ }
func (r *countingRecorder) BlobRowBackfilled(table string) { r.blobs[table]++ }

func col(name string, pos int, t schema.SemanticType) schema.ColumnDefinition {
	return schema.ColumnDefinition{Name: name, RawType: t.String(), SemanticType: t, Position: pos, Nullable: true}
}

func pair(src, dst schema.ColumnDefinition) reconcile.ColumnPair {
	return reconcile.ColumnPair{Source: src, Target: &dst}
}

func usersMapping() reconcile.TableMapping {
	return reconcile.TableMapping{
		SourceTable: "Users",
		TargetTable: "users",
		Columns: []reconcile.ColumnPair{
			pair(col("Id", 1, schema.String), col("id", 1, schema.UUID)),
			pair(col("Active", 2, schema.Int32), col("active", 2, schema.Bool)),
			pair(col("CreatedAt", 3, schema.DateTime), col("created_at", 3, schema.DateTime)),
			pair(col("Avatar", 4, schema.Bytes), col("avatar", 4, schema.Bytes)),
		},
	}
}

const userID = "0b7e7dee-87b4-4d2c-9d5e-1f2f3c4d5e6f"

func newEngine(src Source, dst Target, opts Options) (*Engine, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewEngine(src, dst, convert.Default(), logger, opts), hook
}

func TestMigrateUsers(t *testing.T) {
	created := time.Date(2023, 5, 1, 10, 30, 0, 0, time.UTC)
	avatar := []byte{0x89, 0x50, 0x4e, 0x47, 0x00, 0xff}
	src := &fakeSource{rows: map[string][][]value.Value{
		"Users": {
			{value.String(userID), value.Int32(1), value.DateTime(created), value.Bytes(avatar)},
			{value.String("not-a-uuid"), value.Int32(0), value.Null(schema.DateTime), value.Null(schema.Bytes)},
		},
	}}
	dst := newFakeTarget()
	rec := &countingRecorder{rows: map[string]int{}, blobs: map[string]int{}}
	engine, hook := newEngine(src, dst, Options{Recorder: rec})

	res, err := engine.Migrate(context.Background(), usersMapping())
	require.NoError(t, err)
	assert.Equal(t, Result{Rows: 2, BlobRows: 1}, res)
	assert.Equal(t, []string{"begin", "clear", "open", "finalize", "commit"}, dst.events)

	// The bulk pass never reads the binary column.
	require.Len(t, src.scanned, 2)
	assert.Len(t, src.scanned[0], 3)

	rows := dst.committed["users"]
	require.Len(t, rows, 2)
	id := uuid.MustParse(userID)
	assert.True(t, rows[0][0].Equal(value.UUID(id)))
	assert.True(t, rows[0][1].Equal(value.Bool(true)))
	assert.True(t, rows[0][2].Equal(value.DateTime(created)))
	assert.True(t, rows[0][3].IsNull())
	assert.True(t, rows[1][0].Equal(value.Null(schema.UUID)))
	assert.True(t, rows[1][1].Equal(value.Bool(false)))
	assert.True(t, rows[1][2].IsNull())

	// The second row has no usable identity, so no update can address it.
	require.Len(t, dst.updates, 1)
	assert.True(t, dst.updates[0].id.Equal(value.UUID(id)))
	assert.Equal(t, []string{"avatar"}, dst.updates[0].columns)
	assert.Equal(t, avatar, dst.updates[0].data[0])

	var skipped []string
	for _, e := range hook.AllEntries() {
		if id, ok := e.Data["source_id"].(string); ok && e.Level == logrus.WarnLevel {
			skipped = append(skipped, id)
		}
	}
	assert.Equal(t, []string{`string("not-a-uuid")`}, skipped)

	// Backfill scans the identity followed by the binary column as raw bytes.
	assert.Equal(t, "Id", src.scanned[1][0].Name)
	assert.Equal(t, schema.Bytes, src.scanned[1][1].SemanticType)

	assert.Equal(t, 2, rec.rows["users"])
	assert.Equal(t, 1, rec.blobs["users"])
}

func TestTransferUsesTargetColumnOrder(t *testing.T) {
	src := &fakeSource{rows: map[string][][]value.Value{
		"Orders": {{value.Int64(7), value.String("open")}},
	}}
	dst := newFakeTarget()
	engine, _ := newEngine(src, dst, Options{})

	m := reconcile.TableMapping{
		SourceTable: "Orders",
		TargetTable: "orders",
		Columns: []reconcile.ColumnPair{
			pair(col("Id", 1, schema.Int64), col("id", 2, schema.Int64)),
			pair(col("Status", 2, schema.String), col("status", 1, schema.String)),
		},
	}
	rows, err := engine.Transfer(context.Background(), m)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	require.Len(t, dst.columns, 2)
	assert.Equal(t, "status", dst.columns[0].Name)
	assert.Equal(t, "id", dst.columns[1].Name)
	got := dst.committed["orders"][0]
	assert.True(t, got[0].Equal(value.String("open")))
	assert.True(t, got[1].Equal(value.Int64(7)))
}

func TestTransferSkipsUnmatchedColumns(t *testing.T) {
	src := &fakeSource{rows: map[string][][]value.Value{
		"Orders": {{value.Int64(1), value.String("legacy"), value.String("open")}},
	}}
	dst := newFakeTarget()
	engine, _ := newEngine(src, dst, Options{})

	m := reconcile.TableMapping{
		SourceTable: "Orders",
		TargetTable: "orders",
		Columns: []reconcile.ColumnPair{
			pair(col("Id", 1, schema.Int64), col("id", 1, schema.Int64)),
			{Source: col("LegacyCode", 2, schema.String)},
			pair(col("Status", 3, schema.String), col("status", 2, schema.String)),
		},
	}
	_, err := engine.Transfer(context.Background(), m)
	require.NoError(t, err)

	assert.Len(t, src.scanned[0], 2)
	got := dst.committed["orders"][0]
	require.Len(t, got, 2)
	assert.True(t, got[1].Equal(value.String("open")))
}

func TestUnsupportedConversionAbortsBeforeWriting(t *testing.T) {
	src := &fakeSource{rows: map[string][][]value.Value{"Prices": {{value.Int64(1), value.Decimal("9.99")}}}}
	dst := newFakeTarget()
	engine, _ := newEngine(src, dst, Options{})

	m := reconcile.TableMapping{
		SourceTable: "Prices",
		TargetTable: "prices",
		Columns: []reconcile.ColumnPair{
			pair(col("Id", 1, schema.Int64), col("id", 1, schema.Int64)),
			pair(col("Amount", 2, schema.Decimal), col("amount", 2, schema.String)),
		},
	}
	_, err := engine.Migrate(context.Background(), m)

	var convErr *convert.UnsupportedConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, schema.Decimal, convErr.From)
	assert.Equal(t, schema.String, convErr.To)
	assert.Equal(t, "amount", convErr.Column)
	assert.Empty(t, dst.events)
	assert.Empty(t, src.scanned)
}

func TestStreamFailureCancelsAndRollsBack(t *testing.T) {
	src := &fakeSource{failAt: 3, rows: map[string][][]value.Value{
		"Items": {{value.Int64(1)}, {value.Int64(2)}, {value.Int64(3)}, {value.Int64(4)}},
	}}
	dst := newFakeTarget()
	engine, hook := newEngine(src, dst, Options{})

	m := reconcile.TableMapping{
		SourceTable: "Items",
		TargetTable: "items",
		Columns:     []reconcile.ColumnPair{pair(col("Id", 1, schema.Int64), col("id", 1, schema.Int64))},
	}
	rows, err := engine.Transfer(context.Background(), m)

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, "copy", transferErr.Op)
	assert.EqualValues(t, 2, transferErr.Rows)
	assert.EqualValues(t, 2, rows)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, []string{"begin", "clear", "open", "cancel", "rollback"}, dst.events)
	assert.NotContains(t, dst.committed, "items")

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestFinalizeRowCountMismatchFails(t *testing.T) {
	src := &fakeSource{rows: map[string][][]value.Value{"Items": {{value.Int64(1)}, {value.Int64(2)}}}}
	dst := newFakeTarget()
	dst.acceptAll = false
	engine, _ := newEngine(src, dst, Options{})

	m := reconcile.TableMapping{
		SourceTable: "Items",
		TargetTable: "items",
		Columns:     []reconcile.ColumnPair{pair(col("Id", 1, schema.Int64), col("id", 1, schema.Int64))},
	}
	_, err := engine.Transfer(context.Background(), m)

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, "finalize", transferErr.Op)
	assert.Equal(t, []string{"begin", "clear", "open", "finalize", "rollback"}, dst.events)
}

func TestProgressIsLogged(t *testing.T) {
	var rows [][]value.Value
	for i := 0; i < 5; i++ {
		rows = append(rows, []value.Value{value.Int64(int64(i))})
	}
	src := &fakeSource{rows: map[string][][]value.Value{"Items": rows}}
	engine, hook := newEngine(src, newFakeTarget(), Options{ProgressInterval: 2})

	m := reconcile.TableMapping{
		SourceTable: "Items",
		TargetTable: "items",
		Columns:     []reconcile.ColumnPair{pair(col("Id", 1, schema.Int64), col("id", 1, schema.Int64))},
	}
	_, err := engine.Transfer(context.Background(), m)
	require.NoError(t, err)

	var progress []string
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, "records inserted") {
			progress = append(progress, e.Message)
		}
	}
	assert.Equal(t, []string{
		"2 records inserted in table 'items'",
		"4 records inserted in table 'items'",
		"5 records inserted in table 'items'",
	}, progress)
}

func TestBackfillWithoutIdentity(t *testing.T) {
	src := &fakeSource{rows: map[string][][]value.Value{"Files": {}}}
	engine, _ := newEngine(src, newFakeTarget(), Options{})

	m := reconcile.TableMapping{
		SourceTable: "Files",
		TargetTable: "files",
		Columns: []reconcile.ColumnPair{
			pair(col("Name", 1, schema.String), col("name", 2, schema.String)),
			pair(col("Data", 2, schema.Bytes), col("data", 1, schema.Bytes)),
		},
	}
	_, err := engine.Backfill(context.Background(), m)

	var backfillErr *BackfillError
	require.ErrorAs(t, err, &backfillErr)
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestMigrateRejectsBinaryColumnsWithoutIdentityBeforeWriting(t *testing.T) {
	src := &fakeSource{rows: map[string][][]value.Value{
		"Files": {{value.String("a"), value.Bytes([]byte("payload"))}},
	}}
	dst := newFakeTarget()
	engine, _ := newEngine(src, dst, Options{})

	m := reconcile.TableMapping{
		SourceTable: "Files",
		TargetTable: "files",
		Columns: []reconcile.ColumnPair{
			pair(col("Name", 1, schema.String), col("name", 2, schema.String)),
			pair(col("Data", 2, schema.Bytes), col("data", 1, schema.Bytes)),
		},
	}
	res, err := engine.Migrate(context.Background(), m)

	assert.ErrorIs(t, err, ErrNoIdentity)
	assert.Equal(t, Result{}, res)
	assert.Empty(t, dst.events)
	assert.Empty(t, dst.committed)
	assert.Empty(t, src.scanned)
}

func TestMigrateRejectsUnsupportedIdentityConversionBeforeWriting(t *testing.T) {
	src := &fakeSource{rows: map[string][][]value.Value{}}
	dst := newFakeTarget()
	engine, _ := newEngine(src, dst, Options{})

	m := reconcile.TableMapping{
		SourceTable: "Files",
		TargetTable: "files",
		Columns: []reconcile.ColumnPair{
			pair(col("Id", 1, schema.Decimal), col("id", 1, schema.UUID)),
			pair(col("Data", 2, schema.Bytes), col("data", 2, schema.Bytes)),
		},
	}
	_, err := engine.Migrate(context.Background(), m)

	var backfillErr *BackfillError
	require.ErrorAs(t, err, &backfillErr)
	var convErr *convert.UnsupportedConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, "id", convErr.Column)
	assert.Empty(t, dst.events)
}

func TestBackfillUpdateFailureStopsTable(t *testing.T) {
	src := &fakeSource{rows: map[string][][]value.Value{
		"Files": {
			{value.Int64(1), value.Bytes([]byte("one"))},
			{value.Int64(2), value.Bytes([]byte("two"))},
		},
	}}
	dst := newFakeTarget()
	dst.updateErr = errors.New("no row with key 1")
	engine, _ := newEngine(src, dst, Options{})

	m := reconcile.TableMapping{
		SourceTable: "Files",
		TargetTable: "files",
		Columns: []reconcile.ColumnPair{
			pair(col("Id", 1, schema.Int64), col("id", 1, schema.Int64)),
			pair(col("Data", 2, schema.Bytes), col("data", 2, schema.Bytes)),
		},
	}
	n, err := engine.Backfill(context.Background(), m)

	var backfillErr *BackfillError
	require.ErrorAs(t, err, &backfillErr)
	assert.Equal(t, "files", backfillErr.Table)
	assert.Zero(t, n)
	assert.Len(t, dst.updates, 1)
}

func TestBackfillSkipsTablesWithoutBinaryColumns(t *testing.T) {
	src := &fakeSource{rows: map[string][][]value.Value{}}
	dst := newFakeTarget()
	engine, _ := newEngine(src, dst, Options{})

	m := reconcile.TableMapping{
		SourceTable: "Items",
		TargetTable: "items",
		Columns:     []reconcile.ColumnPair{pair(col("Id", 1, schema.Int64), col("id", 1, schema.Int64))},
	}
	n, err := engine.Backfill(context.Background(), m)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, src.scanned)
	assert.Empty(t, dst.updates)
}
