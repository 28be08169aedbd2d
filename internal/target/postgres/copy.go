package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tendant/pgmigrate/internal/schema"
	"github.com/tendant/pgmigrate/internal/value"
)

// copier is the part of *pgconn.PgConn the COPY stream uses.
type copier interface {
	CopyFrom(ctx context.Context, r io.Reader, sql string) (pgconn.CommandTag, error)
}

var (
	errStreamFinished = errors.New("copy stream already finished")
	errStreamEnded    = errors.New("copy stream ended")
)

type cancelError struct{ reason string }

func (e *cancelError) Error() string { return e.reason }

// copyStream feeds a running COPY FROM STDIN through a pipe. The driver drains the pipe in its
// own goroutine, so every Flush hands the buffered row to the server before returning.
type copyStream struct {
	columns []schema.ColumnDefinition
	pw      *io.PipeWriter
	buf     []byte

	done     chan struct{}
	tag      pgconn.CommandTag
	err      error
	finished bool
}

func copyStatement(schemaName, table string, columns []schema.ColumnDefinition) string {
	return fmt.Sprintf("COPY %s (%s) FROM STDIN", qualifiedName(schemaName, table), quoteColumns(columns))
}

func startCopy(ctx context.Context, conn copier, sql string, columns []schema.ColumnDefinition) *copyStream {
	pr, pw := io.Pipe()
	s := &copyStream{columns: columns, pw: pw, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		s.tag, s.err = conn.CopyFrom(ctx, pr, sql)
		// unblock a writer when the server ends the copy early
		if s.err != nil {
			pr.CloseWithError(s.err)
		} else {
			pr.CloseWithError(errStreamEnded)
		}
	}()
	return s
}

func (s *copyStream) WriteRow(row []value.Value) error {
	if s.finished {
		return errStreamFinished
	}
	if len(row) != len(s.columns) {
		return fmt.Errorf("row has %d values for %d columns", len(row), len(s.columns))
	}
	for i, v := range row {
		if !v.IsNull() && v.Kind() != s.columns[i].SemanticType {
			return fmt.Errorf("column %q expects %s, got %s", s.columns[i].Name, s.columns[i].SemanticType, v.Kind())
		}
	}
	buf, err := appendRow(s.buf, row)
	if err != nil {
		return err
	}
	s.buf = buf
	return nil
}

func (s *copyStream) Flush() error {
	if s.finished {
		return errStreamFinished
	}
	if len(s.buf) == 0 {
		return nil
	}
	_, err := s.pw.Write(s.buf)
	s.buf = s.buf[:0]
	return err
}

// Commit ends the data stream and waits for the server to accept the copy.
func (s *copyStream) Commit() (int64, error) {
	if err := s.Flush(); err != nil {
		return 0, err
	}
	s.finished = true
	s.pw.Close()
	<-s.done
	if s.err != nil {
		return 0, s.err
	}
	return s.tag.RowsAffected(), nil
}

// Cancel makes the driver send CopyFail, so the server discards every row of the stream.
func (s *copyStream) Cancel(reason string) error {
	if s.finished {
		return nil
	}
	s.finished = true
	s.pw.CloseWithError(&cancelError{reason: reason})
	<-s.done

	if s.err == nil {
		return errors.New("copy completed although it was cancelled")
	}
	var pgErr *pgconn.PgError
	if errors.As(s.err, &pgErr) {
		// the server acknowledged the abort
		return nil
	}
	return s.err
}

func (s *copyStream) Close() error {
	if s.finished {
		return nil
	}
	return s.Cancel("copy stream closed before commit")
}
