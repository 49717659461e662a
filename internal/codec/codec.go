// Package codec converts property values between their in-memory form and
// their column representation.
//
// Each datatype has exactly one encoder and one decoder, looked up in an
// explicit table. Decoding a datatype outside the table fails with
// value.ErrUnsupportedDatatype; callers log and omit that property rather
// than failing the whole read.
package codec

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/value"
)

// ErrNonFinite is returned when encoding a NaN or infinite Double, which
// not every dialect can store or aggregate.
var ErrNonFinite = errors.New("non-finite double")

type encoder func(d querysql.Dialect, v value.Value) any

type decoder func(src any) (value.Value, error)

var encoders = map[edm.Datatype]encoder{
	edm.String: func(_ querysql.Dialect, v value.Value) any {
		return norm.NFC.String(string(v.(value.String)))
	},
	edm.Guid: func(_ querysql.Dialect, v value.Value) any {
		return uuid.UUID(v.(value.Guid)).String()
	},
	edm.Byte:  func(_ querysql.Dialect, v value.Value) any { return int64(v.(value.Byte)) },
	edm.Int16: func(_ querysql.Dialect, v value.Value) any { return int64(v.(value.Int16)) },
	edm.Int32: func(_ querysql.Dialect, v value.Value) any { return int64(v.(value.Int32)) },
	edm.Int64: func(_ querysql.Dialect, v value.Value) any { return int64(v.(value.Int64)) },
	edm.Duration: func(_ querysql.Dialect, v value.Value) any {
		return time.Duration(v.(value.Duration)).Milliseconds()
	},
	edm.Date: func(d querysql.Dialect, v value.Value) any {
		date := v.(value.Date)
		if d.NativeTemporal() {
			return date.Time()
		}
		return date.String()
	},
	edm.DateTimeOffset: func(d querysql.Dialect, v value.Value) any {
		ts := v.(value.DateTimeOffset).Time()
		if d.NativeTemporal() {
			return ts
		}
		return ts.Format(time.RFC3339Nano)
	},
	edm.Double:  func(_ querysql.Dialect, v value.Value) any { return float64(v.(value.Double)) },
	edm.Boolean: func(_ querysql.Dialect, v value.Value) any { return bool(v.(value.Boolean)) },
	edm.Binary:  func(_ querysql.Dialect, v value.Value) any { return []byte(v.(value.Binary)) },
}

var decoders = map[edm.Datatype]decoder{}

func init() {
	for _, dt := range edm.Datatypes {
		decoders[dt] = func(src any) (value.Value, error) { return value.Parse(dt, src) }
	}
}

// Encode converts v to a bind argument for its value column under d.
func Encode(d querysql.Dialect, v value.Value) (any, error) {
	if v == nil {
		return nil, errors.New("encode: nil value")
	}
	enc, ok := encoders[v.Datatype()]
	if !ok {
		return nil, fmt.Errorf("encode %q: %w", v.Datatype(), value.ErrUnsupportedDatatype)
	}
	if f, ok := v.(value.Double); ok && !Finite(f) {
		return nil, fmt.Errorf("encode %v: %w", float64(f), ErrNonFinite)
	}
	return enc(d, v), nil
}

// Finite reports whether f is neither NaN nor infinite.
func Finite(f value.Double) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

// Decode converts a value scanned from a value column of datatype dt.
func Decode(dt edm.Datatype, src any) (value.Value, error) {
	dec, ok := decoders[dt]
	if !ok {
		return nil, fmt.Errorf("decode %q: %w", dt, value.ErrUnsupportedDatatype)
	}
	return dec(src)
}

// DecodeArray decodes a JSON array produced by Dialect.JSONArrayAgg. NULL
// and empty input decode to no values. Binary elements arrive hex encoded.
func DecodeArray(dt edm.Datatype, raw []byte) ([]value.Value, error) {
	dec, ok := decoders[dt]
	if !ok {
		return nil, fmt.Errorf("decode %q: %w", dt, value.ErrUnsupportedDatatype)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	jd := json.NewDecoder(bytes.NewReader(raw))
	jd.UseNumber()
	var elems []any
	if err := jd.Decode(&elems); err != nil {
		return nil, fmt.Errorf("decode %s array: %w", dt, err)
	}

	out := make([]value.Value, 0, len(elems))
	for i, elem := range elems {
		if elem == nil {
			continue
		}
		if dt == edm.Binary {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("decode %s array[%d]: expected hex string, got %T", dt, i, elem)
			}
			b, err := hex.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("decode %s array[%d]: %w", dt, i, err)
			}
			elem = b
		}
		v, err := dec(elem)
		if err != nil {
			return nil, fmt.Errorf("decode %s array[%d]: %w", dt, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
