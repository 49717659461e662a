// Package edm holds the read-only metadata the store consumes: property
// types, entity types, entity sets, and the keys that identify entities and
// edges.
//
// The store never mutates these values. They are owned by an external type
// catalog and handed in as value objects. edm imports nothing internal.
package edm
