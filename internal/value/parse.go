package value

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/edm"
)

// ErrUnsupportedDatatype is returned for datatypes outside the closed set.
var ErrUnsupportedDatatype = errors.New("unsupported datatype")

// Parse converts a loosely-typed input into a Value of datatype dt.
//
// Accepted inputs are the shapes produced by encoding/json (string,
// float64, json.Number, bool) and by database/sql drivers (int64, float64,
// bool, []byte, string, time.Time), plus the matching Go types. Parse never
// coerces across kinds: a bool is not a number and a number is not a date.
func Parse(dt edm.Datatype, in any) (Value, error) {
	if in == nil {
		return nil, fmt.Errorf("parse %s: nil input", dt)
	}
	if v, ok := in.(Value); ok {
		if v.Datatype() != dt {
			return nil, fmt.Errorf("parse %s: got %s value", dt, v.Datatype())
		}
		return v, nil
	}

	switch dt {
	case edm.String:
		s, err := asString(in)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", dt, err)
		}
		return String(s), nil
	case edm.Guid:
		return parseGuid(in)
	case edm.Byte:
		n, err := asInt(in, 0, math.MaxUint8)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", dt, err)
		}
		return Byte(n), nil
	case edm.Int16:
		n, err := asInt(in, math.MinInt16, math.MaxInt16)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", dt, err)
		}
		return Int16(n), nil
	case edm.Int32:
		n, err := asInt(in, math.MinInt32, math.MaxInt32)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", dt, err)
		}
		return Int32(n), nil
	case edm.Int64:
		n, err := asInt(in, math.MinInt64, math.MaxInt64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", dt, err)
		}
		return Int64(n), nil
	case edm.Duration:
		if d, ok := in.(time.Duration); ok {
			return Duration(d.Truncate(time.Millisecond)), nil
		}
		ms, err := asInt(in, math.MinInt64, math.MaxInt64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", dt, err)
		}
		return Duration(time.Duration(ms) * time.Millisecond), nil
	case edm.Date:
		return parseDate(in)
	case edm.DateTimeOffset:
		return parseDateTimeOffset(in)
	case edm.Double:
		f, err := asFloat(in)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", dt, err)
		}
		return Double(f), nil
	case edm.Boolean:
		return parseBoolean(in)
	case edm.Binary:
		return parseBinary(in)
	default:
		return nil, fmt.Errorf("parse %q: %w", dt, ErrUnsupportedDatatype)
	}
}

// MustParse is Parse that panics on error. For tests and literals.
func MustParse(dt edm.Datatype, in any) Value {
	v, err := Parse(dt, in)
	if err != nil {
		panic(err)
	}
	return v
}

func asString(in any) (string, error) {
	switch v := in.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("expected string, got %T", in)
	}
}

func asInt(in any, lo, hi int64) (int64, error) {
	var n int64
	switch v := in.(type) {
	case int:
		n = int64(v)
	case int8:
		n = int64(v)
	case int16:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint8:
		n = int64(v)
	case uint16:
		n = int64(v)
	case uint32:
		n = int64(v)
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", v.String())
		}
		n = parsed
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v > math.MaxInt64 {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}
		n = int64(v)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", v)
		}
		n = parsed
	case []byte:
		return asInt(string(v), lo, hi)
	default:
		return 0, fmt.Errorf("expected integer, got %T", in)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

func asFloat(in any) (float64, error) {
	switch v := in.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	default:
		return 0, fmt.Errorf("expected number, got %T", in)
	}
}

func parseGuid(in any) (Value, error) {
	switch v := in.(type) {
	case uuid.UUID:
		return Guid(v), nil
	case [16]byte:
		return Guid(v), nil
	case []byte:
		if len(v) == 16 {
			id, err := uuid.FromBytes(v)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", edm.Guid, err)
			}
			return Guid(id), nil
		}
		return parseGuid(string(v))
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", edm.Guid, err)
		}
		return Guid(id), nil
	default:
		return nil, fmt.Errorf("parse %s: expected uuid, got %T", edm.Guid, in)
	}
}

func parseDate(in any) (Value, error) {
	switch v := in.(type) {
	case time.Time:
		return NewDate(v), nil
	case []byte:
		return parseDate(string(v))
	case string:
		// Postgres renders dates inside JSON aggregates as plain dates, but
		// drivers and callers may hand over full timestamps.
		if t, err := time.Parse(DateLayout, v); err == nil {
			return NewDate(t), nil
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parse %s: expected YYYY-MM-DD, got %q", edm.Date, v)
		}
		return NewDate(t), nil
	default:
		return nil, fmt.Errorf("parse %s: expected date, got %T", edm.Date, in)
	}
}

func parseDateTimeOffset(in any) (Value, error) {
	switch v := in.(type) {
	case time.Time:
		return DateTimeOffset(v), nil
	case []byte:
		return parseDateTimeOffset(string(v))
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999Z07", "2006-01-02 15:04:05.999999999Z07:00"} {
			if t, err := time.Parse(layout, v); err == nil {
				return DateTimeOffset(t), nil
			}
		}
		return nil, fmt.Errorf("parse %s: expected RFC 3339 timestamp, got %q", edm.DateTimeOffset, v)
	default:
		return nil, fmt.Errorf("parse %s: expected timestamp, got %T", edm.DateTimeOffset, in)
	}
}

func parseBoolean(in any) (Value, error) {
	switch v := in.(type) {
	case bool:
		return Boolean(v), nil
	case int64:
		// SQLite stores booleans as 0 and 1.
		if v == 0 || v == 1 {
			return Boolean(v == 1), nil
		}
	case json.Number:
		if v.String() == "0" || v.String() == "1" {
			return Boolean(v.String() == "1"), nil
		}
	case float64:
		if v == 0 || v == 1 {
			return Boolean(v == 1), nil
		}
	case string:
		b, err := strconv.ParseBool(v)
		if err == nil {
			return Boolean(b), nil
		}
	}
	return nil, fmt.Errorf("parse %s: expected boolean, got %v (%T)", edm.Boolean, in, in)
}

func parseBinary(in any) (Value, error) {
	switch v := in.(type) {
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return Binary(out), nil
	case string:
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("parse %s: expected base64: %w", edm.Binary, err)
		}
		return Binary(b), nil
	default:
		return nil, fmt.Errorf("parse %s: expected bytes, got %T", edm.Binary, in)
	}
}
