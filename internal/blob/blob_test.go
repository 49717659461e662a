package blob

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/value"
)

func TestRefRoundTrip(t *testing.T) {
	es := uuid.MustParse("0a4c6e8f-1b2d-4c3e-8f5a-6b7c8d9e0f10")
	id := uuid.MustParse("11111111-2222-4333-8444-555555555555")
	h := value.ContentHash(value.Binary("payload"))

	key := Key(es, id, h)
	assert.Equal(t, es.String()+"/"+id.String()+"/"+h.String(), key)

	got, ok := ParseRef(Ref(key))
	require.True(t, ok)
	assert.Equal(t, key, got)

	_, ok = ParseRef([]byte("inline bytes"))
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	assert.Equal(t, DriverMemory, m.Driver())

	data := []byte("hello")
	require.NoError(t, m.Put(ctx, "a/b", data))
	data[0] = 'j'

	got, err := m.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	// Idempotent put.
	require.NoError(t, m.Put(ctx, "a/b", []byte("hello")))
	assert.Equal(t, []string{"a/b"}, m.Keys())

	require.NoError(t, m.Delete(ctx, "a/b"))
	require.NoError(t, m.Delete(ctx, "a/b"))
	_, err = m.Get(ctx, "a/b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, s.Driver())

	_, err = Open(ctx, Config{Driver: "tape"})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: DriverS3})
	assert.Error(t, err)
}
