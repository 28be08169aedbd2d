// Package reconcile pairs source tables and columns with their target counterparts.
package reconcile

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/tendant/pgmigrate/internal/schema"
)

// ColumnPair maps one source column to its target column. Target is nil when no target
// column matched.
type ColumnPair struct {
	Source schema.ColumnDefinition
	Target *schema.ColumnDefinition
}

// TableMapping is the unit of migration: one source table, its target table and one pair per
// source column in source ordinal order.
type TableMapping struct {
	SourceTable string
	TargetTable string
	Columns     []ColumnPair
}

// TargetOrder returns the matched pairs ordered by target ordinal position.
func (m TableMapping) TargetOrder() []ColumnPair {
	pairs := make([]ColumnPair, 0, len(m.Columns))
	for _, p := range m.Columns {
		if p.Target != nil {
			pairs = append(pairs, p)
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Target.Position < pairs[j].Target.Position })
	return pairs
}

// BlobPairs returns the matched pairs whose target column is binary, in target order.
func (m TableMapping) BlobPairs() []ColumnPair {
	var pairs []ColumnPair
	for _, p := range m.TargetOrder() {
		if p.Target.SemanticType == schema.Bytes {
			pairs = append(pairs, p)
		}
	}
	return pairs
}

// Identity returns the pair used to address rows: the column at ordinal position 1 on both sides.
func (m TableMapping) Identity() (ColumnPair, bool) {
	for _, p := range m.Columns {
		if p.Source.Position == 1 && p.Target != nil && p.Target.Position == 1 {
			return p, true
		}
	}
	return ColumnPair{}, false
}

// Unmatched returns the source columns with no target column.
func (m TableMapping) Unmatched() []schema.ColumnDefinition {
	var cols []schema.ColumnDefinition
	for _, p := range m.Columns {
		if p.Target == nil {
			cols = append(cols, p.Source)
		}
	}
	return cols
}

// Reconciler builds table mappings between two introspected databases.
type Reconciler struct {
	log logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Reconciler {
	return &Reconciler{log: log}
}

// Reconcile maps every source table, in source order, and stops at the first table that cannot be
// mapped: no target or several, an ambiguous column, two source columns on one target column, or a
// different column count.
func (r *Reconciler) Reconcile(source, target *schema.Database) ([]TableMapping, error) {
	mappings := make([]TableMapping, 0, len(source.Tables))
	for _, srcTable := range source.Tables {
		m, err := r.MapTable(srcTable, target)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// MapTable maps a single source table.
func (r *Reconciler) MapTable(srcTable schema.Table, target *schema.Database) (TableMapping, error) {
	match := FindTable(srcTable.Name, target.Tables)
	switch match.Outcome {
	case NoMatch:
		return TableMapping{}, &TableNotFoundError{SourceTable: srcTable.Name, TargetSchema: target.Schema}
	case Ambiguous:
		names := make([]string, len(match.Candidates))
		for i, t := range match.Candidates {
			names[i] = t.Name
		}
		return TableMapping{}, &AmbiguousTableMatchError{SourceTable: srcTable.Name, Candidates: names}
	}
	tgtTable, _ := match.Value()

	log := r.log.WithFields(logrus.Fields{"source_table": srcTable.Name, "table": tgtTable.Name})

	source := append([]schema.ColumnDefinition(nil), srcTable.Columns...)
	sort.SliceStable(source, func(i, j int) bool { return source[i].Position < source[j].Position })

	pairs := make([]ColumnPair, 0, len(source))
	claimed := make(map[string]string, len(source))
	for _, col := range source {
		colMatch := FindColumn(col, tgtTable.Columns)
		switch colMatch.Outcome {
		case Unique:
			tgt, _ := colMatch.Value()
			if prev, ok := claimed[tgt.Name]; ok {
				return TableMapping{}, &DuplicateColumnMatchError{
					SourceTable:   srcTable.Name,
					TargetTable:   tgtTable.Name,
					TargetColumn:  tgt.Name,
					SourceColumns: []string{prev, col.Name},
				}
			}
			claimed[tgt.Name] = col.Name
			pairs = append(pairs, ColumnPair{Source: col, Target: &tgt})
		case NoMatch:
			log.WithField("column", col.Name).Warn("Column has no equivalent in target table, it will not be migrated")
			pairs = append(pairs, ColumnPair{Source: col})
		case Ambiguous:
			names := make([]string, len(colMatch.Candidates))
			for i, c := range colMatch.Candidates {
				names[i] = c.Name
			}
			return TableMapping{}, &AmbiguousColumnMatchError{
				SourceTable:  srcTable.Name,
				TargetTable:  tgtTable.Name,
				SourceColumn: col.Name,
				Candidates:   names,
			}
		}
	}

	if len(srcTable.Columns) != len(tgtTable.Columns) {
		return TableMapping{}, &ColumnMismatchError{
			SourceTable:   srcTable.Name,
			TargetTable:   tgtTable.Name,
			SourceColumns: len(srcTable.Columns),
			TargetColumns: len(tgtTable.Columns),
		}
	}

	log.Debugf("Mapped %d columns", len(pairs))
	return TableMapping{SourceTable: srcTable.Name, TargetTable: tgtTable.Name, Columns: pairs}, nil
}
