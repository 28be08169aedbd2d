//go:generate go run go.uber.org/mock/mockgen -package constraint -destination mock_executor_test.go github.com/tendant/pgmigrate/internal/constraint Executor

// Package constraint removes foreign keys from the target before loading and restores them after.
package constraint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Key orders constraint statements.
type Key struct {
	Namespace string
	Relation  string
	Name      string
}

func (k Key) String() string { return k.Namespace + "." + k.Relation + "." + k.Name }

func (k Key) less(o Key) bool {
	if k.Namespace != o.Namespace {
		return k.Namespace < o.Namespace
	}
	if k.Relation != o.Relation {
		return k.Relation < o.Relation
	}
	return k.Name < o.Name
}

// ForeignKey is one foreign-key constraint with the DDL that removes and recreates it.
type ForeignKey struct {
	Key
	DropDDL string
	AddDDL  string
}

// Statement is an opaque DDL string with its sort key.
type Statement struct {
	Key
	DDL string
}

// Catalog lists the foreign keys currently defined on the target.
type Catalog interface {
	ForeignKeys(ctx context.Context) ([]ForeignKey, error)
}

// Executor runs a DDL statement on the target.
type Executor interface {
	ExecDDL(ctx context.Context, ddl string) error
}

var (
	ErrAlreadyDropped  = errors.New("constraint plan already dropped")
	ErrAlreadyRestored = errors.New("constraint plan already restored")
	ErrNotDropped      = errors.New("constraint plan restored before being dropped")
)

// Plan holds the captured drop and restore lists. Each list is consumed once.
type Plan struct {
	Drop    []Statement
	Restore []Statement

	dropped  bool
	restored bool
}

// NewPlan sorts drop statements ascending by key and restore statements descending, so
// restoration replays drops in exact reverse.
func NewPlan(fks []ForeignKey) *Plan {
	sorted := append([]ForeignKey(nil), fks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key.less(sorted[j].Key) })

	p := &Plan{
		Drop:    make([]Statement, len(sorted)),
		Restore: make([]Statement, len(sorted)),
	}
	for i, fk := range sorted {
		p.Drop[i] = Statement{Key: fk.Key, DDL: fk.DropDDL}
		p.Restore[len(sorted)-1-i] = Statement{Key: fk.Key, DDL: fk.AddDDL}
	}
	return p
}

// DDLError reports a failed drop or restore statement.
type DDLError struct {
	Phase     string
	Statement Statement
	Err       error
}

func (e *DDLError) Error() string {
	return fmt.Sprintf("error during constraint %s of %s: %v", e.Phase, e.Statement.Key, e.Err)
}

func (e *DDLError) Unwrap() error { return e.Err }

// Counter receives one call per executed statement.
type Counter interface {
	ConstraintStatement(phase string)
}

// Manager captures, drops and restores foreign keys.
type Manager struct {
	catalog        Catalog
	exec           Executor
	log            logrus.FieldLogger
	counter        Counter
	captureTimeout time.Duration
	ddlTimeout     time.Duration
}

type Options struct {
	CaptureTimeout time.Duration
	DDLTimeout     time.Duration
	Counter        Counter
}

func NewManager(catalog Catalog, exec Executor, log logrus.FieldLogger, opts Options) *Manager {
	return &Manager{
		catalog:        catalog,
		exec:           exec,
		log:            log,
		counter:        opts.Counter,
		captureTimeout: opts.CaptureTimeout,
		ddlTimeout:     opts.DDLTimeout,
	}
}

// Capture reads every foreign key of the target. It must run before anything is dropped.
func (m *Manager) Capture(ctx context.Context) (*Plan, error) {
	ctx, cancel := withTimeout(ctx, m.captureTimeout)
	defer cancel()

	fks, err := m.catalog.ForeignKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("error capturing foreign key constraints: %w", err)
	}
	plan := NewPlan(fks)
	m.log.Infof("Captured %d foreign key constraints", len(plan.Drop))
	return plan, nil
}

// Drop runs the drop list in order, stopping at the first failure.
func (m *Manager) Drop(ctx context.Context, plan *Plan) error {
	if plan.dropped {
		return ErrAlreadyDropped
	}
	plan.dropped = true

	m.log.Info("Remove foreign key constraints")
	return m.run(ctx, "drop", plan.Drop)
}

// Restore runs the restore list in order, stopping at the first failure.
func (m *Manager) Restore(ctx context.Context, plan *Plan) error {
	if !plan.dropped {
		return ErrNotDropped
	}
	if plan.restored {
		return ErrAlreadyRestored
	}
	plan.restored = true

	m.log.Info("Add foreign key constraints")
	return m.run(ctx, "restore", plan.Restore)
}

func (m *Manager) run(ctx context.Context, phase string, stmts []Statement) error {
	for _, stmt := range stmts {
		m.log.Debug(stmt.DDL)
		if err := m.execOne(ctx, stmt.DDL); err != nil {
			return &DDLError{Phase: phase, Statement: stmt, Err: err}
		}
		if m.counter != nil {
			m.counter.ConstraintStatement(phase)
		}
	}
	return nil
}

func (m *Manager) execOne(ctx context.Context, ddl string) error {
	ctx, cancel := withTimeout(ctx, m.ddlTimeout)
	defer cancel()
	return m.exec.ExecDDL(ctx, ddl)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
