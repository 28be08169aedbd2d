package schema

import "fmt"

// UnsupportedTypeError reports a raw engine type with no semantic mapping.
type UnsupportedTypeError struct {
	Engine  string
	Table   string
	Column  string
	RawType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported %s data type %q for column %q of table %q", e.Engine, e.RawType, e.Column, e.Table)
}
