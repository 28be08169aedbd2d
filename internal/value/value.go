// Package value holds the tagged variant that carries column values between engines.
package value

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/pgmigrate/internal/schema"
)

// Value is a single column value of one semantic type, or null.
// The zero Value is an untyped null.
type Value struct {
	kind  schema.SemanticType
	valid bool

	i   int64
	b   bool
	s   string // String and Decimal
	t   time.Time
	u   uuid.UUID
	raw []byte
}

// Null returns the null value of the given kind.
func Null(kind schema.SemanticType) Value { return Value{kind: kind} }

func Int64(v int64) Value { return Value{kind: schema.Int64, valid: true, i: v} }

func Int32(v int32) Value { return Value{kind: schema.Int32, valid: true, i: int64(v)} }

func Bool(v bool) Value { return Value{kind: schema.Bool, valid: true, b: v} }

func String(v string) Value { return Value{kind: schema.String, valid: true, s: v} }

// Decimal holds the exact textual form of a decimal number as the engine reported it.
func Decimal(v string) Value { return Value{kind: schema.Decimal, valid: true, s: v} }

func DateTime(v time.Time) Value { return Value{kind: schema.DateTime, valid: true, t: v} }

func UUID(v uuid.UUID) Value { return Value{kind: schema.UUID, valid: true, u: v} }

// Bytes wraps v without copying. A nil slice yields null.
func Bytes(v []byte) Value {
	if v == nil {
		return Null(schema.Bytes)
	}
	return Value{kind: schema.Bytes, valid: true, raw: v}
}

func (v Value) Kind() schema.SemanticType { return v.kind }

func (v Value) IsNull() bool { return !v.valid }

// AsInt64 returns the integer content of Int64 and Int32 values.
func (v Value) AsInt64() int64 { return v.i }

func (v Value) AsInt32() int32 { return int32(v.i) }

func (v Value) AsBool() bool { return v.b }

// AsString returns the content of String and Decimal values.
func (v Value) AsString() string { return v.s }

func (v Value) AsTime() time.Time { return v.t }

func (v Value) AsUUID() uuid.UUID { return v.u }

func (v Value) AsBytes() []byte { return v.raw }

// Equal reports whether both values have the same kind, nullness and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.valid != o.valid {
		return false
	}
	if !v.valid {
		return true
	}
	switch v.kind {
	case schema.Int64, schema.Int32:
		return v.i == o.i
	case schema.Bool:
		return v.b == o.b
	case schema.String, schema.Decimal:
		return v.s == o.s
	case schema.DateTime:
		return v.t.Equal(o.t)
	case schema.UUID:
		return v.u == o.u
	case schema.Bytes:
		return bytes.Equal(v.raw, o.raw)
	default:
		return false
	}
}

func (v Value) String() string {
	if !v.valid {
		return fmt.Sprintf("null(%s)", v.kind)
	}
	switch v.kind {
	case schema.Int64, schema.Int32:
		return fmt.Sprintf("%s(%d)", v.kind, v.i)
	case schema.Bool:
		return fmt.Sprintf("bool(%t)", v.b)
	case schema.String, schema.Decimal:
		return fmt.Sprintf("%s(%q)", v.kind, v.s)
	case schema.DateTime:
		return fmt.Sprintf("datetime(%s)", v.t.Format(time.RFC3339Nano))
	case schema.UUID:
		return fmt.Sprintf("uuid(%s)", v.u)
	case schema.Bytes:
		return fmt.Sprintf("bytes(%d)", len(v.raw))
	default:
		return fmt.Sprintf("%s(?)", v.kind)
	}
}
