// Package blob stores Binary property values outside the property tables.
//
// Objects are content addressed: the key embeds the value's content hash,
// so Put is idempotent and a stored object is never rewritten with
// different bytes. The property table keeps only a short reference.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/value"
)

// Driver identifies a blob backend.
type Driver string

const (
	// DriverMemory keeps objects in process memory (tests, single runs).
	DriverMemory Driver = "memory"
	// DriverS3 stores objects in an S3 compatible bucket.
	DriverS3 Driver = "s3"
)

// RefPrefix marks a value column that holds a blob reference instead of
// the payload.
const RefPrefix = "lattice-blob:"

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("blob not found")

// Store is the minimal object store the datastore needs.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Driver() Driver
}

// Key returns the object key for a value of one entity.
func Key(entitySetID, entityKeyID uuid.UUID, h value.Hash) string {
	return fmt.Sprintf("%s/%s/%s", entitySetID, entityKeyID, h)
}

// Ref encodes key as a column value.
func Ref(key string) []byte {
	return []byte(RefPrefix + key)
}

// ParseRef extracts the key from a column value. ok is false when b holds
// an inline payload.
func ParseRef(b []byte) (key string, ok bool) {
	s := string(b)
	if !strings.HasPrefix(s, RefPrefix) {
		return "", false
	}
	return strings.TrimPrefix(s, RefPrefix), true
}

// Config selects and configures a backend.
type Config struct {
	Driver      Driver
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// Open returns the configured store, or nil when no driver is set and
// binary values stay inline.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
