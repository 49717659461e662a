package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/store"
)

var idNamespace = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")

// ID derives a stable UUID from name, so fixtures and assertions agree on
// identifiers without hard-coding them.
func ID(name string) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(name))
}

// Fixture is a small catalog: people, staff, a linking set over both, and
// a "contacted" association between them.
type Fixture struct {
	Catalog *edm.Catalog

	Name   edm.PropertyType // general.name, String, indexed
	Age    edm.PropertyType // general.age, Int32
	Birth  edm.PropertyType // general.birthdate, Date
	Seen   edm.PropertyType // general.lastseen, DateTimeOffset
	Photo  edm.PropertyType // general.photo, Binary
	Score  edm.PropertyType // general.score, Double
	Active edm.PropertyType // general.active, Boolean
	Weight edm.PropertyType // ol.weight, Double (association)

	Person    edm.EntityType
	Contacted edm.EntityType

	People   edm.EntitySet
	Staff    edm.EntitySet
	Contacts edm.EntitySet
	Linked   edm.EntitySet
}

// NewFixture builds the fixture catalog.
func NewFixture(t testing.TB) *Fixture {
	t.Helper()
	f := &Fixture{
		Name:   edm.PropertyType{ID: ID("pt/name"), Type: edm.NewFQN("general", "name"), Datatype: edm.String, Indexed: true},
		Age:    edm.PropertyType{ID: ID("pt/age"), Type: edm.NewFQN("general", "age"), Datatype: edm.Int32},
		Birth:  edm.PropertyType{ID: ID("pt/birth"), Type: edm.NewFQN("general", "birthdate"), Datatype: edm.Date},
		Seen:   edm.PropertyType{ID: ID("pt/seen"), Type: edm.NewFQN("general", "lastseen"), Datatype: edm.DateTimeOffset},
		Photo:  edm.PropertyType{ID: ID("pt/photo"), Type: edm.NewFQN("general", "photo"), Datatype: edm.Binary},
		Score:  edm.PropertyType{ID: ID("pt/score"), Type: edm.NewFQN("general", "score"), Datatype: edm.Double},
		Active: edm.PropertyType{ID: ID("pt/active"), Type: edm.NewFQN("general", "active"), Datatype: edm.Boolean},
		Weight: edm.PropertyType{ID: ID("pt/weight"), Type: edm.NewFQN("ol", "weight"), Datatype: edm.Double},
	}
	f.Person = edm.EntityType{
		ID:         ID("et/person"),
		Type:       edm.NewFQN("general", "person"),
		Key:        []uuid.UUID{f.Name.ID},
		Properties: []uuid.UUID{f.Name.ID, f.Age.ID, f.Birth.ID, f.Seen.ID, f.Photo.ID, f.Score.ID, f.Active.ID},
	}
	f.Contacted = edm.EntityType{
		ID:          ID("et/contacted"),
		Type:        edm.NewFQN("ol", "contacted"),
		Key:         []uuid.UUID{f.Weight.ID},
		Properties:  []uuid.UUID{f.Weight.ID},
		Association: true,
	}
	f.People = edm.EntitySet{ID: ID("es/people"), Name: "people", EntityTypeID: f.Person.ID, Title: "People"}
	f.Staff = edm.EntitySet{ID: ID("es/staff"), Name: "staff", EntityTypeID: f.Person.ID, Title: "Staff"}
	f.Contacts = edm.EntitySet{ID: ID("es/contacts"), Name: "contacts", EntityTypeID: f.Contacted.ID, Title: "Contacts"}
	f.Linked = edm.EntitySet{
		ID:           ID("es/linked"),
		Name:         "linked_people",
		EntityTypeID: f.Person.ID,
		Linking:      true,
		LinkedSets:   []uuid.UUID{f.People.ID, f.Staff.ID},
	}

	cat, err := edm.NewCatalog(edm.Document{
		PropertyTypes: f.All(),
		EntityTypes:   []edm.EntityType{f.Person, f.Contacted},
		EntitySets:    []edm.EntitySet{f.People, f.Staff, f.Contacts, f.Linked},
	})
	if err != nil {
		t.Fatalf("fixture catalog: %v", err)
	}
	f.Catalog = cat
	return f
}

// All returns every property type of the fixture.
func (f *Fixture) All() []edm.PropertyType {
	return []edm.PropertyType{f.Name, f.Age, f.Birth, f.Seen, f.Photo, f.Score, f.Active, f.Weight}
}

// PersonTypes returns the person property types as an authorized set.
func (f *Fixture) PersonTypes() edm.PropertyTypes {
	return edm.NewPropertyTypes(f.Name, f.Age, f.Birth, f.Seen, f.Photo, f.Score, f.Active)
}

// Authorized returns full access for every entity set of the fixture.
func (f *Fixture) Authorized() map[uuid.UUID]edm.PropertyTypes {
	return map[uuid.UUID]edm.PropertyTypes{
		f.People.ID:   f.PersonTypes(),
		f.Staff.ID:    f.PersonTypes(),
		f.Linked.ID:   f.PersonTypes(),
		f.Contacts.ID: edm.NewPropertyTypes(f.Weight),
	}
}

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewStore opens an empty SQLite store in a temporary directory. It is
// closed when the test ends.
func NewStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{
		Driver: querysql.SQLiteName,
		DSN:    filepath.Join(t.TempDir(), "lattice.db"),
		Logger: Logger(),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// NewFixtureStore opens a store with tables for every fixture property
// type.
func NewFixtureStore(t testing.TB) (*store.Store, *Fixture) {
	t.Helper()
	s := NewStore(t)
	f := NewFixture(t)
	if err := s.Registry().EnsurePropertyTables(context.Background(), f.All()); err != nil {
		t.Fatalf("ensure property tables: %v", err)
	}
	return s, f
}
