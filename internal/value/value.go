// Package value is the in-memory representation of property values: a
// tagged union over the closed datatype set, plus the content hash that
// makes stored values idempotent.
package value

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/edm"
)

// Value is a sealed interface. Only the types in this file implement it, one
// per edm.Datatype.
type Value interface {
	Datatype() edm.Datatype
	value()
}

// String holds an edm.String value.
type String string

// Guid holds an edm.Guid value.
type Guid uuid.UUID

// Byte holds an edm.Byte value.
type Byte uint8

// Int16 holds an edm.Int16 value.
type Int16 int16

// Int32 holds an edm.Int32 value.
type Int32 int32

// Int64 holds an edm.Int64 value.
type Int64 int64

// Duration holds an edm.Duration value. It is stored at millisecond
// precision.
type Duration time.Duration

// Date holds an edm.Date value: a civil date without time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateTimeOffset holds an edm.DateTimeOffset value.
type DateTimeOffset time.Time

// Double holds an edm.Double value.
type Double float64

// Boolean holds an edm.Boolean value.
type Boolean bool

// Binary holds an edm.Binary value.
type Binary []byte

func (String) value()         {}
func (Guid) value()           {}
func (Byte) value()           {}
func (Int16) value()          {}
func (Int32) value()          {}
func (Int64) value()          {}
func (Duration) value()       {}
func (Date) value()           {}
func (DateTimeOffset) value() {}
func (Double) value()         {}
func (Boolean) value()        {}
func (Binary) value()         {}

func (String) Datatype() edm.Datatype         { return edm.String }
func (Guid) Datatype() edm.Datatype           { return edm.Guid }
func (Byte) Datatype() edm.Datatype           { return edm.Byte }
func (Int16) Datatype() edm.Datatype          { return edm.Int16 }
func (Int32) Datatype() edm.Datatype          { return edm.Int32 }
func (Int64) Datatype() edm.Datatype          { return edm.Int64 }
func (Duration) Datatype() edm.Datatype       { return edm.Duration }
func (Date) Datatype() edm.Datatype           { return edm.Date }
func (DateTimeOffset) Datatype() edm.Datatype { return edm.DateTimeOffset }
func (Double) Datatype() edm.Datatype         { return edm.Double }
func (Boolean) Datatype() edm.Datatype        { return edm.Boolean }
func (Binary) Datatype() edm.Datatype         { return edm.Binary }

// DateLayout is the text form of a Date.
const DateLayout = "2006-01-02"

// NewDate builds a Date from the calendar fields of t.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Time().Format(DateLayout)
}

// Time returns the wrapped time.
func (t DateTimeOffset) Time() time.Time {
	return time.Time(t)
}

// Native returns a JSON-friendly Go representation of v: strings for
// Guid, Date, and DateTimeOffset, base64 for Binary, milliseconds for
// Duration.
func Native(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Guid:
		return uuid.UUID(val).String()
	case Byte:
		return uint8(val)
	case Int16:
		return int16(val)
	case Int32:
		return int32(val)
	case Int64:
		return int64(val)
	case Duration:
		return time.Duration(val).Milliseconds()
	case Date:
		return val.String()
	case DateTimeOffset:
		return val.Time().Format(time.RFC3339Nano)
	case Double:
		return float64(val)
	case Boolean:
		return bool(val)
	case Binary:
		return base64.StdEncoding.EncodeToString(val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Equal reports whether a and b carry the same datatype and content.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Datatype() == b.Datatype() && ContentHash(a) == ContentHash(b)
}
