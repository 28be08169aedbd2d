// Package transfer streams table rows from the source engine into the target engine.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tendant/pgmigrate/internal/convert"
	"github.com/tendant/pgmigrate/internal/reconcile"
	"github.com/tendant/pgmigrate/internal/schema"
	"github.com/tendant/pgmigrate/internal/value"
)

const defaultProgressInterval = 1000

type Options struct {
	TransferTimeout  time.Duration
	BackfillTimeout  time.Duration
	ProgressInterval int
	Recorder         Recorder
	Durations        DurationRecorder
}

// DurationRecorder receives the wall time of each table phase.
type DurationRecorder interface {
	PhaseDuration(table, phase string, d time.Duration)
}

// Result summarizes one migrated table.
type Result struct {
	Rows     int64
	BlobRows int64
}

// Engine moves one table at a time, one row at a time.
type Engine struct {
	source   Source
	target   Target
	registry *convert.Registry
	log      logrus.FieldLogger
	opts     Options
}

func NewEngine(source Source, target Target, registry *convert.Registry, log logrus.FieldLogger, opts Options) *Engine {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Durations == nil {
		opts.Durations = nopRecorder{}
	}
	return &Engine{source: source, target: target, registry: registry, log: log, opts: opts}
}

// Migrate clears and bulk loads the target table, then backfills its binary columns. A table
// whose binary columns cannot be addressed is rejected before it is cleared.
func (e *Engine) Migrate(ctx context.Context, m reconcile.TableMapping) (Result, error) {
	var res Result

	blobs, err := e.planBlobs(m)
	if err != nil {
		return res, err
	}

	start := time.Now()
	rows, err := e.Transfer(ctx, m)
	res.Rows = rows
	e.opts.Durations.PhaseDuration(m.TargetTable, "transfer", time.Since(start))
	if err != nil {
		return res, err
	}

	if blobs == nil {
		return res, nil
	}
	start = time.Now()
	blobRows, err := e.backfill(ctx, m, blobs)
	res.BlobRows = blobRows
	e.opts.Durations.PhaseDuration(m.TargetTable, "backfill", time.Since(start))
	return res, err
}

// Transfer replaces the content of the target table with the rows of the source table.
// Clearing and loading share one target transaction, so a failure leaves the previous content.
func (e *Engine) Transfer(ctx context.Context, m reconcile.TableMapping) (int64, error) {
	plan, err := e.planRows(m)
	if err != nil {
		return 0, err
	}

	ctx, cancel := withTimeout(ctx, e.opts.TransferTimeout)
	defer cancel()

	log := e.log.WithFields(logrus.Fields{"source_table": m.SourceTable, "table": m.TargetTable})
	log.Infof("Migrate data from '%s' to '%s'", m.SourceTable, m.TargetTable)

	load, err := e.target.BeginLoad(ctx, m.TargetTable)
	if err != nil {
		return 0, &TransferError{Table: m.TargetTable, Op: "begin", Err: err}
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := load.Rollback(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).Warn("Rolling back table load failed")
		}
	}()

	if err := load.Clear(ctx); err != nil {
		return 0, &TransferError{Table: m.TargetTable, Op: "clear", Err: err}
	}
	log.Infof("Records of table '%s' deleted", m.TargetTable)

	rows, err := e.bulkLoad(ctx, load, m, plan, log)
	if err != nil {
		return rows, err
	}

	if err := load.Commit(ctx); err != nil {
		return rows, &TransferError{Table: m.TargetTable, Op: "commit", Rows: rows, Err: err}
	}
	committed = true
	return rows, nil
}

func (e *Engine) bulkLoad(ctx context.Context, load Load, m reconcile.TableMapping, plan *rowPlan, log logrus.FieldLogger) (int64, error) {
	loader, err := load.OpenBulkLoad(ctx, plan.targetColumns)
	if err != nil {
		return 0, &TransferError{Table: m.TargetTable, Op: "open bulk load", Err: err}
	}
	defer func() {
		if err := loader.Close(); err != nil {
			log.WithError(err).Warn("Closing bulk load channel failed")
		}
	}()

	rows, err := e.stream(ctx, loader, m, plan, log)
	if err != nil {
		log.WithError(err).Error("Bulk load failed")
		if cancelErr := loader.Cancel("Undo copy"); cancelErr != nil {
			log.WithError(cancelErr).Warn("Cancelling bulk load channel failed")
		}
		return rows, &TransferError{Table: m.TargetTable, Op: "copy", Rows: rows, Err: err}
	}

	accepted, err := loader.Commit()
	if err != nil {
		return rows, &TransferError{Table: m.TargetTable, Op: "finalize", Rows: rows, Err: err}
	}
	if accepted != rows {
		return rows, &TransferError{Table: m.TargetTable, Op: "finalize", Rows: rows,
			Err: fmt.Errorf("target accepted %d of %d rows", accepted, rows)}
	}
	return rows, nil
}

func (e *Engine) stream(ctx context.Context, loader BulkLoader, m reconcile.TableMapping, plan *rowPlan, log logrus.FieldLogger) (int64, error) {
	cur, err := e.source.Scan(ctx, m.SourceTable, plan.sourceColumns)
	if err != nil {
		return 0, fmt.Errorf("error querying source table: %w", err)
	}
	defer closeCursor(cur, log)

	var count int64
	for cur.Next() {
		raw, err := cur.Values()
		if err != nil {
			return count, fmt.Errorf("error scanning row: %w", err)
		}
		row, err := plan.assemble(raw)
		if err != nil {
			return count, err
		}
		if err := loader.WriteRow(row); err != nil {
			return count, fmt.Errorf("error writing row: %w", err)
		}
		if err := loader.Flush(); err != nil {
			return count, fmt.Errorf("error flushing row: %w", err)
		}

		count++
		e.opts.Recorder.RowCopied(m.TargetTable)
		if count%int64(e.opts.ProgressInterval) == 0 {
			log.WithField("rows", count).Infof("%d records inserted in table '%s'", count, m.TargetTable)
		}
	}
	if err := cur.Err(); err != nil {
		return count, fmt.Errorf("error reading source table: %w", err)
	}

	log.WithField("rows", count).Infof("%d records inserted in table '%s'", count, m.TargetTable)
	return count, nil
}

// rowPlan resolves, once per table, where each outbound value comes from.
type rowPlan struct {
	// sourceColumns are scanned in source ordinal order.
	sourceColumns []schema.ColumnDefinition
	// targetColumns is the COPY column list in target ordinal order.
	targetColumns []schema.ColumnDefinition
	cells         []cell
}

type cell struct {
	// index into the scanned row; -1 writes a binary placeholder.
	index   int
	convert convert.Func
}

// planRows checks every conversion of the table before anything is written. Binary target
// columns are not scanned: the bulk pass writes null for them and the backfill pass fills them.
func (e *Engine) planRows(m reconcile.TableMapping) (*rowPlan, error) {
	plan := &rowPlan{}
	index := make(map[int]int)
	for _, p := range m.Columns {
		if p.Target == nil || p.Target.SemanticType == schema.Bytes {
			continue
		}
		index[p.Source.Position] = len(plan.sourceColumns)
		plan.sourceColumns = append(plan.sourceColumns, p.Source)
	}

	for _, p := range m.TargetOrder() {
		plan.targetColumns = append(plan.targetColumns, *p.Target)
		if p.Target.SemanticType == schema.Bytes {
			plan.cells = append(plan.cells, cell{index: -1})
			continue
		}
		fn, err := e.registry.Lookup(p.Source.SemanticType, p.Target.SemanticType)
		if err != nil {
			return nil, withColumn(err, m.TargetTable, p.Target.Name)
		}
		plan.cells = append(plan.cells, cell{index: index[p.Source.Position], convert: fn})
	}
	return plan, nil
}

func (p *rowPlan) assemble(raw []value.Value) ([]value.Value, error) {
	if len(raw) != len(p.sourceColumns) {
		return nil, fmt.Errorf("source row has %d values, expected %d", len(raw), len(p.sourceColumns))
	}
	row := make([]value.Value, len(p.cells))
	for i, c := range p.cells {
		if c.index < 0 {
			row[i] = value.Null(schema.Bytes)
			continue
		}
		v := raw[c.index]
		if c.convert != nil {
			v = c.convert(v)
		}
		row[i] = v
	}
	return row, nil
}

func withColumn(err error, table, column string) error {
	var convErr *convert.UnsupportedConversionError
	if errors.As(err, &convErr) {
		return &convert.UnsupportedConversionError{From: convErr.From, To: convErr.To, Table: table, Column: column}
	}
	return err
}

func closeCursor(cur Cursor, log logrus.FieldLogger) {
	if err := cur.Close(); err != nil {
		log.WithError(err).Warn("Closing source cursor failed")
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

type nopRecorder struct{}

func (nopRecorder) RowCopied(string) {}

func (nopRecorder) BlobRowBackfilled(string) {}

func (nopRecorder) PhaseDuration(string, string, time.Duration) {}
