// Package migrate runs a full migration: introspection, reconciliation, constraint removal,
// per-table transfer and constraint restoration.
package migrate

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tendant/pgmigrate/internal/config"
	"github.com/tendant/pgmigrate/internal/constraint"
	"github.com/tendant/pgmigrate/internal/convert"
	"github.com/tendant/pgmigrate/internal/metrics"
	"github.com/tendant/pgmigrate/internal/reconcile"
	"github.com/tendant/pgmigrate/internal/schema"
	"github.com/tendant/pgmigrate/internal/transfer"
)

// Source is the engine rows are read from.
type Source interface {
	schema.Catalog
	transfer.Source
}

// Target is the PostgreSQL side.
type Target interface {
	schema.Catalog
	constraint.Catalog
	constraint.Executor
	transfer.Target
}

type Options struct {
	Timeouts         config.Timeouts
	ProgressInterval int
	// Registry defaults to convert.Default().
	Registry *convert.Registry
	Metrics  *metrics.Recorder
}

type Migrator struct {
	source Source
	target Target
	log    logrus.FieldLogger
	opts   Options

	closeFn func() error
}

func New(source Source, target Target, log logrus.FieldLogger, opts Options) *Migrator {
	if opts.Registry == nil {
		opts.Registry = convert.Default()
	}
	return &Migrator{source: source, target: target, log: log, opts: opts}
}

// Plan is the reconciled view of both databases.
type Plan struct {
	Source   *schema.Database
	Target   *schema.Database
	Mappings []reconcile.TableMapping
}

// Plan introspects both databases and pairs their tables and columns. Nothing is written.
func (m *Migrator) Plan(ctx context.Context) (*Plan, error) {
	timeouts := schema.Timeouts{ListTables: m.opts.Timeouts.ListTables, ListColumns: m.opts.Timeouts.ListColumns}

	m.log.Infof("Retrieve %s schema '%s'", m.source.Engine(), m.source.SchemaName())
	src, err := schema.Introspect(ctx, m.source, timeouts)
	if err != nil {
		return nil, err
	}
	m.log.Infof("Retrieve %s schema '%s'", m.target.Engine(), m.target.SchemaName())
	tgt, err := schema.Introspect(ctx, m.target, timeouts)
	if err != nil {
		return nil, err
	}

	mappings, err := reconcile.New(m.log).Reconcile(src, tgt)
	if err != nil {
		return nil, err
	}
	m.log.Infof("Reconciled %d tables", len(mappings))
	return &Plan{Source: src, Target: tgt, Mappings: mappings}, nil
}

// Run performs the whole migration and stops at the first error. Tables already transferred
// keep their data; constraints dropped before the failure stay dropped.
func (m *Migrator) Run(ctx context.Context) error {
	started := time.Now()

	plan, err := m.Plan(ctx)
	if err != nil {
		return err
	}

	constraints := constraint.NewManager(m.target, m.target, m.log, constraint.Options{
		CaptureTimeout: m.opts.Timeouts.Constraints,
		DDLTimeout:     m.opts.Timeouts.ConstraintDDL,
		Counter:        m.opts.Metrics,
	})
	fks, err := constraints.Capture(ctx)
	if err != nil {
		return err
	}
	if err := constraints.Drop(ctx, fks); err != nil {
		return err
	}

	engine := transfer.NewEngine(m.source, m.target, m.opts.Registry, m.log, transfer.Options{
		TransferTimeout:  m.opts.Timeouts.Transfer,
		BackfillTimeout:  m.opts.Timeouts.Backfill,
		ProgressInterval: m.opts.ProgressInterval,
		Recorder:         m.opts.Metrics,
		Durations:        m.opts.Metrics,
	})
	for _, tm := range plan.Mappings {
		log := m.log.WithFields(logrus.Fields{"source_table": tm.SourceTable, "table": tm.TargetTable})
		log.Infof("Start migration of table '%s'", tm.TargetTable)

		res, err := engine.Migrate(ctx, tm)
		if err != nil {
			log.WithError(err).Error("Migration of table failed")
			return err
		}

		log.WithFields(logrus.Fields{"rows": res.Rows, "blob_rows": res.BlobRows}).
			Infof("End migration of table '%s'", tm.TargetTable)
	}

	if err := constraints.Restore(ctx, fks); err != nil {
		return err
	}

	m.opts.Metrics.Succeeded(time.Now())
	m.log.WithField("duration", time.Since(started).Round(time.Millisecond)).
		Infof("Migrated %d tables", len(plan.Mappings))
	return nil
}

// Close releases the connections opened by Open.
func (m *Migrator) Close() error {
	if m.closeFn == nil {
		return nil
	}
	return m.closeFn()
}
