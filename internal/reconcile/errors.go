package reconcile

import (
	"fmt"
	"strings"
)

// TableNotFoundError reports a source table without an equal-named target table.
type TableNotFoundError struct {
	SourceTable  string
	TargetSchema string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("source table %q has no matching table in target schema %q", e.SourceTable, e.TargetSchema)
}

// AmbiguousTableMatchError reports a source table whose name matches several target tables.
type AmbiguousTableMatchError struct {
	SourceTable string
	Candidates  []string
}

func (e *AmbiguousTableMatchError) Error() string {
	return fmt.Sprintf("source table %q matches several target tables: %s", e.SourceTable, strings.Join(e.Candidates, ", "))
}

// AmbiguousColumnMatchError reports a source column whose name matches several target columns.
type AmbiguousColumnMatchError struct {
	SourceTable  string
	TargetTable  string
	SourceColumn string
	Candidates   []string
}

func (e *AmbiguousColumnMatchError) Error() string {
	return fmt.Sprintf("column %q of table %q matches several columns of table %q: %s",
		e.SourceColumn, e.SourceTable, e.TargetTable, strings.Join(e.Candidates, ", "))
}

// DuplicateColumnMatchError reports several source columns resolving to the same target column.
type DuplicateColumnMatchError struct {
	SourceTable   string
	TargetTable   string
	TargetColumn  string
	SourceColumns []string
}

func (e *DuplicateColumnMatchError) Error() string {
	return fmt.Sprintf("columns %s of table %q all match column %q of table %q",
		strings.Join(e.SourceColumns, ", "), e.SourceTable, e.TargetColumn, e.TargetTable)
}

// ColumnMismatchError reports tables whose column counts differ.
type ColumnMismatchError struct {
	SourceTable   string
	TargetTable   string
	SourceColumns int
	TargetColumns int
}

func (e *ColumnMismatchError) Error() string {
	return fmt.Sprintf("source table %q (%d columns) does not have the same definition as target table %q (%d columns)",
		e.SourceTable, e.SourceColumns, e.TargetTable, e.TargetColumns)
}
