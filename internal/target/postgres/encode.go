package postgres

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tendant/pgmigrate/internal/schema"
	"github.com/tendant/pgmigrate/internal/value"
)

// timestampLayout keeps the offset so timestamptz columns receive the instant; timestamp columns
// ignore it.
const timestampLayout = "2006-01-02 15:04:05.999999-07:00"

// appendText appends v in the COPY text format.
func appendText(dst []byte, v value.Value) ([]byte, error) {
	if v.IsNull() {
		return append(dst, `\N`...), nil
	}
	switch v.Kind() {
	case schema.Int64, schema.Int32:
		return strconv.AppendInt(dst, v.AsInt64(), 10), nil
	case schema.Bool:
		if v.AsBool() {
			return append(dst, 't'), nil
		}
		return append(dst, 'f'), nil
	case schema.String, schema.Decimal:
		return appendEscaped(dst, v.AsString()), nil
	case schema.DateTime:
		return v.AsTime().AppendFormat(dst, timestampLayout), nil
	case schema.UUID:
		return append(dst, v.AsUUID().String()...), nil
	case schema.Bytes:
		// bytea hex format; the backslash itself is escaped for COPY
		dst = append(dst, `\\x`...)
		return append(dst, hex.EncodeToString(v.AsBytes())...), nil
	default:
		return dst, fmt.Errorf("cannot encode %s values", v.Kind())
	}
}

func appendEscaped(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			dst = append(dst, '\\', '\\')
		case '\t':
			dst = append(dst, '\\', 't')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		default:
			dst = append(dst, c)
		}
	}
	return dst
}

// appendRow appends one COPY text line.
func appendRow(dst []byte, row []value.Value) ([]byte, error) {
	var err error
	for i, v := range row {
		if i > 0 {
			dst = append(dst, '\t')
		}
		if dst, err = appendText(dst, v); err != nil {
			return dst, err
		}
	}
	return append(dst, '\n'), nil
}

// param converts v into a query argument pgx can encode.
func param(v value.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch v.Kind() {
	case schema.Int64:
		return v.AsInt64(), nil
	case schema.Int32:
		return v.AsInt32(), nil
	case schema.Bool:
		return v.AsBool(), nil
	case schema.String:
		return v.AsString(), nil
	case schema.Decimal:
		var n pgtype.Numeric
		if err := n.Scan(v.AsString()); err != nil {
			return nil, fmt.Errorf("invalid decimal %q: %w", v.AsString(), err)
		}
		return n, nil
	case schema.DateTime:
		return v.AsTime(), nil
	case schema.UUID:
		return pgtype.UUID{Bytes: [16]byte(v.AsUUID()), Valid: true}, nil
	case schema.Bytes:
		return v.AsBytes(), nil
	default:
		return nil, fmt.Errorf("cannot bind %s values", v.Kind())
	}
}
