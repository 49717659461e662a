package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_Stable(t *testing.T) {
	assert.Equal(t, ID("pt/name"), ID("pt/name"))
	assert.NotEqual(t, ID("pt/name"), ID("pt/age"))
}

func TestNewFixtureStore(t *testing.T) {
	s, f := NewFixtureStore(t)
	ctx := context.Background()

	for _, pt := range f.All() {
		require.NoError(t, s.Registry().Require(ctx, pt), pt.Type.String())
	}

	pts, err := f.Catalog.PropertyTypesOf(f.People.ID)
	require.NoError(t, err)
	assert.Equal(t, f.PersonTypes(), pts)
}
