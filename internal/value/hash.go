package value

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"golang.org/x/text/unicode/norm"
)

// hashDomain prefixes every content hash.
const hashDomain = "lattice/value/v1/"

// Hash is the content hash of a property value. It is part of the primary
// key of every property table row.
type Hash [sha256.Size]byte

// String renders the hash as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, len(h))
	copy(out, h[:])
	return out
}

// HashFromBytes converts a stored hash column back into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != len(h) {
		return h, fmt.Errorf("hash: expected %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// ParseHash parses the hex form produced by Hash.String.
func ParseHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("hash: %w", err)
	}
	return HashFromBytes(b)
}

// ContentHash computes SHA256(domain + datatype + 0x00 + canonical bytes).
// Equal values always hash equally: strings are NFC normalized, timestamps
// are compared as instants, and -0 and NaN payloads are folded.
func ContentHash(v Value) Hash {
	h := sha256.New()
	h.Write([]byte(hashDomain))
	h.Write([]byte(v.Datatype()))
	h.Write([]byte{0x00})
	h.Write(canonicalBytes(v))
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

func canonicalBytes(v Value) []byte {
	switch val := v.(type) {
	case String:
		return norm.NFC.Bytes([]byte(val))
	case Guid:
		return val[:]
	case Byte:
		return []byte{byte(val)}
	case Int16:
		return int64Bytes(int64(val))
	case Int32:
		return int64Bytes(int64(val))
	case Int64:
		return int64Bytes(int64(val))
	case Duration:
		return int64Bytes(time.Duration(val).Milliseconds())
	case Date:
		return []byte(val.String())
	case DateTimeOffset:
		return []byte(val.Time().UTC().Format(time.RFC3339Nano))
	case Double:
		f := float64(val)
		switch {
		case f == 0:
			f = 0
		case math.IsNaN(f):
			f = math.NaN()
		}
		return int64Bytes(int64(math.Float64bits(f)))
	case Boolean:
		if val {
			return []byte{1}
		}
		return []byte{0}
	case Binary:
		return val
	default:
		panic(fmt.Sprintf("value: unhandled type %T", v))
	}
}

func int64Bytes(n int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	return buf[:]
}
