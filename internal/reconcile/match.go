package reconcile

import (
	"strings"

	"github.com/tendant/pgmigrate/internal/schema"
)

// Normalize strips underscores and lower-cases a name. Two names match when their
// normalized forms are equal, so user_id, UserId and userid are the same name.
func Normalize(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

// SameName compares two identifiers ignoring case and underscores.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.ReplaceAll(a, "_", ""), strings.ReplaceAll(b, "_", ""))
}

// Outcome classifies a name lookup.
type Outcome int

const (
	NoMatch Outcome = iota
	Unique
	Ambiguous
)

func (o Outcome) String() string {
	switch o {
	case NoMatch:
		return "no match"
	case Unique:
		return "unique"
	case Ambiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// Match is the result of looking up one name among candidates.
type Match[T any] struct {
	Outcome Outcome
	// Candidates holds every equal-named candidate; exactly one when Outcome is Unique.
	Candidates []T
}

// Value returns the unique candidate.
func (m Match[T]) Value() (T, bool) {
	var zero T
	if m.Outcome != Unique {
		return zero, false
	}
	return m.Candidates[0], true
}

func matchOf[T any](candidates []T) Match[T] {
	switch len(candidates) {
	case 0:
		return Match[T]{Outcome: NoMatch}
	case 1:
		return Match[T]{Outcome: Unique, Candidates: candidates}
	default:
		return Match[T]{Outcome: Ambiguous, Candidates: candidates}
	}
}

// FindTable looks up the target table whose name matches name.
func FindTable(name string, targets []schema.Table) Match[schema.Table] {
	var found []schema.Table
	for _, t := range targets {
		if SameName(t.Name, name) {
			found = append(found, t)
		}
	}
	return matchOf(found)
}

// FindColumn looks up the target column equivalent to col. The column at the same ordinal
// position is taken when its name matches; otherwise every target column is searched by name.
func FindColumn(col schema.ColumnDefinition, targets []schema.ColumnDefinition) Match[schema.ColumnDefinition] {
	for _, t := range targets {
		if t.Position == col.Position {
			if SameName(t.Name, col.Name) {
				return matchOf([]schema.ColumnDefinition{t})
			}
			break
		}
	}

	var found []schema.ColumnDefinition
	for _, t := range targets {
		if SameName(t.Name, col.Name) {
			found = append(found, t)
		}
	}
	return matchOf(found)
}
