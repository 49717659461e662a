package value

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/edm"
)

func TestParse_Datatypes(t *testing.T) {
	id := uuid.MustParse("6f1e2d3c-4b5a-4968-8776-a5b4c3d2e1f0")
	ts := time.Date(2024, 3, 9, 14, 30, 0, 0, time.FixedZone("EST", -5*3600))

	tests := []struct {
		name string
		dt   edm.Datatype
		in   any
		want Value
	}{
		{"string", edm.String, "Alice", String("Alice")},
		{"string from bytes", edm.String, []byte("Alice"), String("Alice")},
		{"guid", edm.Guid, id.String(), Guid(id)},
		{"guid from raw bytes", edm.Guid, id[:], Guid(id)},
		{"byte", edm.Byte, json.Number("255"), Byte(255)},
		{"int16", edm.Int16, int64(-7), Int16(-7)},
		{"int32 from json float", edm.Int32, float64(30), Int32(30)},
		{"int64", edm.Int64, "9007199254740993", Int64(9007199254740993)},
		{"duration millis", edm.Duration, int64(1500), Duration(1500 * time.Millisecond)},
		{"date", edm.Date, "2024-03-09", Date{2024, time.March, 9}},
		{"date from time", edm.Date, ts, Date{2024, time.March, 9}},
		{"datetimeoffset", edm.DateTimeOffset, "2024-03-09T14:30:00-05:00", DateTimeOffset(ts)},
		{"double", edm.Double, json.Number("2.5"), Double(2.5)},
		{"boolean", edm.Boolean, true, Boolean(true)},
		{"boolean from sqlite int", edm.Boolean, int64(0), Boolean(false)},
		{"binary", edm.Binary, []byte{1, 2, 3}, Binary{1, 2, 3}},
		{"binary from base64", edm.Binary, "AQID", Binary{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.dt, tt.in)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "want %v, got %v", tt.want, got)
			assert.Equal(t, tt.dt, got.Datatype())
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		dt   edm.Datatype
		in   any
	}{
		{"nil", edm.String, nil},
		{"byte overflow", edm.Byte, int64(256)},
		{"int16 overflow", edm.Int16, int64(40000)},
		{"fractional int", edm.Int32, 2.5},
		{"bool is not a number", edm.Int32, true},
		{"bad date", edm.Date, "03/09/2024"},
		{"bad guid", edm.Guid, "not-a-uuid"},
		{"boolean out of range", edm.Boolean, int64(2)},
		{"wrong tagged value", edm.Int32, String("30")},
		{"unknown datatype", edm.Datatype("Geography"), "POINT(0 0)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.dt, tt.in)
			assert.Error(t, err)
		})
	}
}

func TestNative(t *testing.T) {
	assert.Equal(t, "2024-03-09", Native(Date{2024, time.March, 9}))
	assert.Equal(t, int64(1500), Native(Duration(1500*time.Millisecond)))
	assert.Equal(t, "AQID", Native(Binary{1, 2, 3}))
	assert.Equal(t, int32(30), Native(Int32(30)))
}

func TestContentHash_Deterministic(t *testing.T) {
	h1 := ContentHash(String("Alice"))
	h2 := ContentHash(String("Alice"))

	assert.Equal(t, h1, h2)
	assert.Len(t, h1.String(), 64)
}

func TestContentHash_NormalizesStrings(t *testing.T) {
	composed := String("caf\u00e9")
	decomposed := String("cafe\u0301")

	assert.Equal(t, ContentHash(composed), ContentHash(decomposed))
}

func TestContentHash_InstantsNotOffsets(t *testing.T) {
	utc := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	east := utc.In(time.FixedZone("UTC+2", 2*3600))

	assert.Equal(t, ContentHash(DateTimeOffset(utc)), ContentHash(DateTimeOffset(east)))
}

func TestContentHash_SeparatesDatatypes(t *testing.T) {
	assert.NotEqual(t, ContentHash(Int32(30)), ContentHash(Int64(30)))
	assert.NotEqual(t, ContentHash(String("30")), ContentHash(Int64(30)))
}

func TestContentHash_FoldsNegativeZero(t *testing.T) {
	negZero := Double(0)
	negZero = -negZero

	assert.Equal(t, ContentHash(Double(0)), ContentHash(negZero))
}

func TestHash_RoundTrip(t *testing.T) {
	h := ContentHash(Boolean(true))

	fromHex, err := ParseHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, fromHex)

	fromBytes, err := HashFromBytes(h.Bytes())
	require.NoError(t, err)
	assert.Equal(t, h, fromBytes)

	_, err = HashFromBytes([]byte{1, 2})
	assert.Error(t, err)
}
