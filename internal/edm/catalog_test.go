package edm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
property_types:
  - id: 8f1c3a52-3f0b-4a5e-9d6e-3a2b1c0d9e01
    type: general.name
    datatype: String
    indexed: true
  - id: 8f1c3a52-3f0b-4a5e-9d6e-3a2b1c0d9e02
    type: general.age
    datatype: Int32
entity_types:
  - id: 5b0e7a1c-2d3e-4f50-8a9b-0c1d2e3f4a01
    type: general.person
    key: [8f1c3a52-3f0b-4a5e-9d6e-3a2b1c0d9e01]
    properties:
      - 8f1c3a52-3f0b-4a5e-9d6e-3a2b1c0d9e01
      - 8f1c3a52-3f0b-4a5e-9d6e-3a2b1c0d9e02
entity_sets:
  - id: 0a4c6e8f-1b3d-4f5a-8c7e-9d0f1a2b3c01
    name: people
    entity_type_id: 5b0e7a1c-2d3e-4f50-8a9b-0c1d2e3f4a01
`

func TestParseCatalogYAML(t *testing.T) {
	c, err := ParseCatalogYAML([]byte(catalogYAML))
	require.NoError(t, err)

	people, err := c.ResolveEntitySet("people")
	require.NoError(t, err)
	assert.Equal(t, uuid.MustParse("0a4c6e8f-1b3d-4f5a-8c7e-9d0f1a2b3c01"), people.ID)

	pts, err := c.PropertyTypesOf(people.ID)
	require.NoError(t, err)
	assert.Len(t, pts, 2)

	name, ok := c.PropertyTypeByFQN(NewFQN("general", "name"))
	require.True(t, ok)
	assert.True(t, name.Indexed)
	assert.Equal(t, String, name.Datatype)

	ordered := c.PropertyTypes()
	require.Len(t, ordered, 2)
	assert.Equal(t, "general.age", ordered[0].Type.String())
}

func TestNewCatalog_RejectsInvalidDocuments(t *testing.T) {
	ptID := uuid.New()
	tests := []struct {
		name string
		doc  Document
	}{
		{
			name: "missing namespace",
			doc: Document{PropertyTypes: []PropertyType{
				{ID: ptID, Type: FQN{Name: "age"}, Datatype: Int32},
			}},
		},
		{
			name: "unknown datatype",
			doc: Document{PropertyTypes: []PropertyType{
				{ID: ptID, Type: NewFQN("general", "shape"), Datatype: "Polygon"},
			}},
		},
		{
			name: "entity type references unknown property type",
			doc: Document{EntityTypes: []EntityType{
				{ID: uuid.New(), Type: NewFQN("general", "person"), Properties: []uuid.UUID{ptID}},
			}},
		},
		{
			name: "entity set references unknown entity type",
			doc: Document{EntitySets: []EntitySet{
				{ID: uuid.New(), Name: "orphans", EntityTypeID: uuid.New()},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.doc)
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog_CUE(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.cue")
	src := `
#Age: "8f1c3a52-3f0b-4a5e-9d6e-3a2b1c0d9e02"

property_types: [{
	id:       #Age
	type:     "general.age"
	datatype: "Int32"
	indexed:  false
}]
entity_types: []
entity_sets: []
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)

	pt, ok := c.PropertyType(uuid.MustParse("8f1c3a52-3f0b-4a5e-9d6e-3a2b1c0d9e02"))
	require.True(t, ok)
	assert.Equal(t, NewFQN("general", "age"), pt.Type)
}

func TestLoadCatalog_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	_, err := LoadCatalog(path)
	assert.Error(t, err)
}
