package edm

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// ErrNotInCatalog is returned when a lookup names something the catalog
// does not define.
var ErrNotInCatalog = errors.New("not in catalog")

// Document is the serialized form of a catalog.
type Document struct {
	PropertyTypes []PropertyType `json:"property_types" yaml:"property_types"`
	EntityTypes   []EntityType   `json:"entity_types" yaml:"entity_types"`
	EntitySets    []EntitySet    `json:"entity_sets" yaml:"entity_sets"`
}

// Catalog is an immutable, validated view over a Document.
type Catalog struct {
	propertyTypes map[uuid.UUID]PropertyType
	entityTypes   map[uuid.UUID]EntityType
	entitySets    map[uuid.UUID]EntitySet
}

// NewCatalog validates doc and indexes it.
func NewCatalog(doc Document) (*Catalog, error) {
	c := &Catalog{
		propertyTypes: make(map[uuid.UUID]PropertyType, len(doc.PropertyTypes)),
		entityTypes:   make(map[uuid.UUID]EntityType, len(doc.EntityTypes)),
		entitySets:    make(map[uuid.UUID]EntitySet, len(doc.EntitySets)),
	}
	var errs []error

	for _, pt := range doc.PropertyTypes {
		if _, dup := c.propertyTypes[pt.ID]; dup {
			errs = append(errs, fmt.Errorf("property type %s: duplicate id", pt.ID))
			continue
		}
		if !pt.Type.Valid() {
			errs = append(errs, fmt.Errorf("property type %s: missing namespace or name", pt.ID))
		}
		if !pt.Datatype.Valid() {
			errs = append(errs, fmt.Errorf("property type %s: unknown datatype %q", pt.ID, pt.Datatype))
		}
		c.propertyTypes[pt.ID] = pt
	}

	for _, et := range doc.EntityTypes {
		if _, dup := c.entityTypes[et.ID]; dup {
			errs = append(errs, fmt.Errorf("entity type %s: duplicate id", et.ID))
			continue
		}
		for _, ptID := range slices.Concat(et.Key, et.Properties) {
			if _, ok := c.propertyTypes[ptID]; !ok {
				errs = append(errs, fmt.Errorf("entity type %s: unknown property type %s", et.Type, ptID))
			}
		}
		c.entityTypes[et.ID] = et
	}

	for _, es := range doc.EntitySets {
		if _, dup := c.entitySets[es.ID]; dup {
			errs = append(errs, fmt.Errorf("entity set %s: duplicate id", es.ID))
			continue
		}
		if _, ok := c.entityTypes[es.EntityTypeID]; !ok {
			errs = append(errs, fmt.Errorf("entity set %s: unknown entity type %s", es.Name, es.EntityTypeID))
		}
		if exp := es.Expiration; exp != nil && exp.StartDateProperty != nil {
			if pt, ok := c.propertyTypes[*exp.StartDateProperty]; !ok || !pt.Datatype.Temporal() {
				errs = append(errs, fmt.Errorf("entity set %s: expiration start date property must be a Date or DateTimeOffset property type", es.Name))
			}
		}
		c.entitySets[es.ID] = es
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// PropertyType returns the property type with the given id.
func (c *Catalog) PropertyType(id uuid.UUID) (PropertyType, bool) {
	pt, ok := c.propertyTypes[id]
	return pt, ok
}

// PropertyTypeByFQN returns the property type with the given name.
func (c *Catalog) PropertyTypeByFQN(fqn FQN) (PropertyType, bool) {
	for _, pt := range c.propertyTypes {
		if pt.Type == fqn {
			return pt, true
		}
	}
	return PropertyType{}, false
}

// PropertyTypes returns all property types ordered by FQN.
func (c *Catalog) PropertyTypes() []PropertyType {
	out := make([]PropertyType, 0, len(c.propertyTypes))
	for _, pt := range c.propertyTypes {
		out = append(out, pt)
	}
	slices.SortFunc(out, func(a, b PropertyType) int {
		return strings.Compare(a.Type.String(), b.Type.String())
	})
	return out
}

// EntityType returns the entity type with the given id.
func (c *Catalog) EntityType(id uuid.UUID) (EntityType, bool) {
	et, ok := c.entityTypes[id]
	return et, ok
}

// EntitySet returns the entity set with the given id.
func (c *Catalog) EntitySet(id uuid.UUID) (EntitySet, bool) {
	es, ok := c.entitySets[id]
	return es, ok
}

// EntitySetByName returns the entity set with the given name.
func (c *Catalog) EntitySetByName(name string) (EntitySet, bool) {
	for _, es := range c.entitySets {
		if es.Name == name {
			return es, true
		}
	}
	return EntitySet{}, false
}

// EntitySets returns all entity sets ordered by name.
func (c *Catalog) EntitySets() []EntitySet {
	out := make([]EntitySet, 0, len(c.entitySets))
	for _, es := range c.entitySets {
		out = append(out, es)
	}
	slices.SortFunc(out, func(a, b EntitySet) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// PropertyTypesOf returns the property types of an entity set's entity type.
// The catalog performs no authorization: callers use the result as the
// authorized set only when they act with full access.
func (c *Catalog) PropertyTypesOf(entitySetID uuid.UUID) (PropertyTypes, error) {
	es, ok := c.entitySets[entitySetID]
	if !ok {
		return nil, fmt.Errorf("entity set %s: %w", entitySetID, ErrNotInCatalog)
	}
	et, ok := c.entityTypes[es.EntityTypeID]
	if !ok {
		return nil, fmt.Errorf("entity type %s: %w", es.EntityTypeID, ErrNotInCatalog)
	}
	out := make(PropertyTypes, len(et.Properties))
	for _, id := range et.Properties {
		out[id] = c.propertyTypes[id]
	}
	return out, nil
}

// ResolveEntitySet accepts an entity set name or id.
func (c *Catalog) ResolveEntitySet(nameOrID string) (EntitySet, error) {
	if id, err := uuid.Parse(nameOrID); err == nil {
		if es, ok := c.entitySets[id]; ok {
			return es, nil
		}
	}
	if es, ok := c.EntitySetByName(nameOrID); ok {
		return es, nil
	}
	return EntitySet{}, fmt.Errorf("entity set %q: %w", nameOrID, ErrNotInCatalog)
}
