package transfer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tendant/pgmigrate/internal/convert"
	"github.com/tendant/pgmigrate/internal/reconcile"
	"github.com/tendant/pgmigrate/internal/schema"
)

// blobPlan addresses the binary columns of one table through its identity column.
type blobPlan struct {
	key           reconcile.ColumnPair
	toKey         convert.Func
	sourceColumns []schema.ColumnDefinition
	targetColumns []schema.ColumnDefinition
}

// planBlobs returns nil for tables without binary columns. A table that has some must carry
// an identity at ordinal position 1 on both sides whose conversion is supported.
func (e *Engine) planBlobs(m reconcile.TableMapping) (*blobPlan, error) {
	blobs := m.BlobPairs()
	if len(blobs) == 0 {
		return nil, nil
	}

	key, ok := m.Identity()
	if !ok {
		return nil, &BackfillError{Table: m.TargetTable, Err: ErrNoIdentity}
	}
	toKey, err := e.registry.Lookup(key.Source.SemanticType, key.Target.SemanticType)
	if err != nil {
		return nil, &BackfillError{Table: m.TargetTable, Err: withColumn(err, m.TargetTable, key.Target.Name)}
	}

	plan := &blobPlan{key: key, toKey: toKey, sourceColumns: []schema.ColumnDefinition{key.Source}}
	for _, p := range blobs {
		col := p.Source
		col.SemanticType = schema.Bytes
		plan.sourceColumns = append(plan.sourceColumns, col)
		plan.targetColumns = append(plan.targetColumns, *p.Target)
	}
	return plan, nil
}

// Backfill copies the binary columns of a table row by row, addressing each target row by the
// identity column. Tables without binary columns are skipped.
func (e *Engine) Backfill(ctx context.Context, m reconcile.TableMapping) (int64, error) {
	plan, err := e.planBlobs(m)
	if err != nil || plan == nil {
		return 0, err
	}
	return e.backfill(ctx, m, plan)
}

func (e *Engine) backfill(ctx context.Context, m reconcile.TableMapping, plan *blobPlan) (int64, error) {
	ctx, cancel := withTimeout(ctx, e.opts.BackfillTimeout)
	defer cancel()

	log := e.log.WithFields(logrus.Fields{"source_table": m.SourceTable, "table": m.TargetTable})
	log.Infof("Backfill %d binary columns of table '%s'", len(plan.targetColumns), m.TargetTable)

	cur, err := e.source.Scan(ctx, m.SourceTable, plan.sourceColumns)
	if err != nil {
		return 0, &BackfillError{Table: m.TargetTable, Err: fmt.Errorf("error querying source table: %w", err)}
	}
	defer closeCursor(cur, log)

	var count int64
	for cur.Next() {
		vals, err := cur.Values()
		if err != nil {
			return count, &BackfillError{Table: m.TargetTable, Rows: count, Err: fmt.Errorf("error scanning row: %w", err)}
		}

		id := vals[0]
		if plan.toKey != nil {
			id = plan.toKey(id)
		}
		if id.IsNull() {
			log.WithField("source_id", vals[0].String()).Warn("Row has no usable identity, its binary columns are not migrated")
			continue
		}
		data := make([][]byte, len(plan.targetColumns))
		for i := range plan.targetColumns {
			data[i] = vals[i+1].AsBytes()
		}

		if err := e.target.UpdateBlobs(ctx, m.TargetTable, *plan.key.Target, id, plan.targetColumns, data); err != nil {
			return count, &BackfillError{Table: m.TargetTable, Rows: count, Err: fmt.Errorf("error updating row %s: %w", id, err)}
		}

		count++
		e.opts.Recorder.BlobRowBackfilled(m.TargetTable)
		if count%int64(e.opts.ProgressInterval) == 0 {
			log.WithField("rows", count).Infof("%d records updated in table '%s'", count, m.TargetTable)
		}
	}
	if err := cur.Err(); err != nil {
		return count, &BackfillError{Table: m.TargetTable, Rows: count, Err: fmt.Errorf("error reading source table: %w", err)}
	}

	log.WithField("rows", count).Infof("%d records updated in table '%s'", count, m.TargetTable)
	return count, nil
}
