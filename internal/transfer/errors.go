package transfer

import (
	"errors"
	"fmt"
)

// ErrNoIdentity means a table with binary columns has no column at ordinal position 1 on both sides.
var ErrNoIdentity = errors.New("no identity column at ordinal position 1 on both sides")

// TransferError reports a failure while clearing or bulk loading a table.
type TransferError struct {
	Table string
	Op    string
	Rows  int64
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("error migrating table %q (%s, after %d rows): %v", e.Table, e.Op, e.Rows, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// BackfillError reports a failure while populating binary columns.
type BackfillError struct {
	Table string
	Rows  int64
	Err   error
}

func (e *BackfillError) Error() string {
	return fmt.Sprintf("error updating binary columns of table %q (after %d rows): %v", e.Table, e.Rows, e.Err)
}

func (e *BackfillError) Unwrap() error { return e.Err }
