package edm

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Datatype is the closed set of primitive types a property can hold.
type Datatype string

const (
	String         Datatype = "String"
	Guid           Datatype = "Guid"
	Byte           Datatype = "Byte"
	Int16          Datatype = "Int16"
	Int32          Datatype = "Int32"
	Int64          Datatype = "Int64"
	Duration       Datatype = "Duration"
	Date           Datatype = "Date"
	DateTimeOffset Datatype = "DateTimeOffset"
	Double         Datatype = "Double"
	Boolean        Datatype = "Boolean"
	Binary         Datatype = "Binary"
)

// Datatypes lists every supported datatype in declaration order.
var Datatypes = []Datatype{
	String, Guid, Byte, Int16, Int32, Int64, Duration,
	Date, DateTimeOffset, Double, Boolean, Binary,
}

// Valid reports whether d is one of the supported datatypes.
func (d Datatype) Valid() bool {
	for _, known := range Datatypes {
		if d == known {
			return true
		}
	}
	return false
}

// Temporal reports whether values of d are points in time.
func (d Datatype) Temporal() bool {
	return d == Date || d == DateTimeOffset
}

// Numeric reports whether values of d can be aggregated arithmetically.
func (d Datatype) Numeric() bool {
	switch d {
	case Byte, Int16, Int32, Int64, Duration, Double:
		return true
	}
	return false
}

// FQN is a fully-qualified name: namespace plus name.
// It encodes as the text form "namespace.name" in JSON, YAML, and map keys.
type FQN struct {
	Namespace string
	Name      string
}

// NewFQN creates an FQN from its parts.
func NewFQN(namespace, name string) FQN {
	return FQN{Namespace: namespace, Name: name}
}

// ParseFQN parses "namespace.name". The namespace may itself contain dots;
// the name is everything after the last dot.
func ParseFQN(s string) (FQN, error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return FQN{}, fmt.Errorf("invalid fully qualified name %q: expected namespace.name", s)
	}
	return FQN{Namespace: s[:i], Name: s[i+1:]}, nil
}

// String renders the FQN as "namespace.name".
func (f FQN) String() string {
	return f.Namespace + "." + f.Name
}

// MarshalText implements encoding.TextMarshaler.
func (f FQN) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FQN) UnmarshalText(text []byte) error {
	parsed, err := ParseFQN(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Valid reports whether both parts are present.
func (f FQN) Valid() bool {
	return strings.TrimSpace(f.Namespace) != "" && strings.TrimSpace(f.Name) != ""
}

// Reserved pseudo-properties used for system metadata columns.
const SystemNamespace = "openlattice"

var (
	IDFQN        = NewFQN(SystemNamespace, "@id")
	CountFQN     = NewFQN(SystemNamespace, "@count")
	LastIndexFQN = NewFQN(SystemNamespace, "@lastIndex")
	LastWriteFQN = NewFQN(SystemNamespace, "@lastWrite")
)

// PropertyType describes one typed, named attribute. Each property type is
// backed by its own physical table.
type PropertyType struct {
	ID       uuid.UUID `json:"id" yaml:"id"`
	Type     FQN       `json:"type" yaml:"type"`
	Datatype Datatype  `json:"datatype" yaml:"datatype"`
	Indexed  bool      `json:"indexed" yaml:"indexed"`
	Title    string    `json:"title,omitempty" yaml:"title,omitempty"`
}

// EntityType groups property types into a schema for entities.
type EntityType struct {
	ID         uuid.UUID   `json:"id" yaml:"id"`
	Type       FQN         `json:"type" yaml:"type"`
	Key        []uuid.UUID `json:"key" yaml:"key"`
	Properties []uuid.UUID `json:"properties" yaml:"properties"`
	// Association entity types describe edges.
	Association bool `json:"association,omitempty" yaml:"association,omitempty"`
}

// EntitySet is a tenant-scoped collection of entities of one entity type.
type EntitySet struct {
	ID           uuid.UUID   `json:"id" yaml:"id"`
	Name         string      `json:"name" yaml:"name"`
	EntityTypeID uuid.UUID   `json:"entity_type_id" yaml:"entity_type_id"`
	Title        string      `json:"title,omitempty" yaml:"title,omitempty"`
	Description  string      `json:"description,omitempty" yaml:"description,omitempty"`
	Contacts     []string    `json:"contacts,omitempty" yaml:"contacts,omitempty"`
	Linking      bool        `json:"linking,omitempty" yaml:"linking,omitempty"`
	LinkedSets   []uuid.UUID `json:"linked_entity_sets,omitempty" yaml:"linked_entity_sets,omitempty"`
	Expiration   *Expiration `json:"expiration,omitempty" yaml:"expiration,omitempty"`
}

// ExpirationType selects which timestamp a data expiration policy reads.
type ExpirationType string

const (
	ExpireFirstWrite   ExpirationType = "FIRST_WRITE"
	ExpireLastWrite    ExpirationType = "LAST_WRITE"
	ExpireDateProperty ExpirationType = "DATE_PROPERTY"
)

// DeleteType distinguishes soft (tombstone) from hard (physical) deletion.
type DeleteType string

const (
	SoftDelete DeleteType = "Soft"
	HardDelete DeleteType = "Hard"
)

// Expiration is the per-entity-set data retention policy.
type Expiration struct {
	Type              ExpirationType `json:"type" yaml:"type"`
	TimeToExpiration  string         `json:"time_to_expiration" yaml:"time_to_expiration"`
	StartDateProperty *uuid.UUID     `json:"start_date_property,omitempty" yaml:"start_date_property,omitempty"`
	DeleteType        DeleteType     `json:"delete_type" yaml:"delete_type"`
}

// EntityDataKey identifies one entity: its entity set and entity key id.
type EntityDataKey struct {
	EntitySetID uuid.UUID `json:"entity_set_id"`
	EntityKeyID uuid.UUID `json:"entity_key_id"`
}

// String renders the key as "entitySetId:entityKeyId".
func (k EntityDataKey) String() string {
	return k.EntitySetID.String() + ":" + k.EntityKeyID.String()
}

// ParseEntityDataKey parses the form produced by EntityDataKey.String.
func ParseEntityDataKey(s string) (EntityDataKey, error) {
	es, id, ok := strings.Cut(s, ":")
	if !ok {
		return EntityDataKey{}, fmt.Errorf("invalid entity data key %q: expected entitySetId:entityKeyId", s)
	}
	esID, err := uuid.Parse(es)
	if err != nil {
		return EntityDataKey{}, fmt.Errorf("invalid entity set id in %q: %w", s, err)
	}
	keyID, err := uuid.Parse(id)
	if err != nil {
		return EntityDataKey{}, fmt.Errorf("invalid entity key id in %q: %w", s, err)
	}
	return EntityDataKey{EntitySetID: esID, EntityKeyID: keyID}, nil
}

// EdgeKey identifies an edge by the ordered (src, dst, edge) triple. The edge
// is itself an entity, so it can carry properties.
type EdgeKey struct {
	Src  EntityDataKey `json:"src"`
	Dst  EntityDataKey `json:"dst"`
	Edge EntityDataKey `json:"edge"`
}

// PropertyTypes indexes property types by id. It is the shape every
// authorized-property-type argument takes.
type PropertyTypes map[uuid.UUID]PropertyType

// NewPropertyTypes builds a PropertyTypes map from a list.
func NewPropertyTypes(pts ...PropertyType) PropertyTypes {
	m := make(PropertyTypes, len(pts))
	for _, pt := range pts {
		m[pt.ID] = pt
	}
	return m
}

// ByFQN looks up a property type by its fully-qualified name.
func (p PropertyTypes) ByFQN(fqn FQN) (PropertyType, bool) {
	for _, pt := range p {
		if pt.Type == fqn {
			return pt, true
		}
	}
	return PropertyType{}, false
}

// IDs returns the property type ids. Order is unspecified.
func (p PropertyTypes) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	return ids
}
