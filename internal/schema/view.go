package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/querysql"
)

// ViewDefinition describes an entity set's es_ view: one row per live
// entity with a JSON array column per property FQN.
type ViewDefinition struct {
	Name          string
	EntitySetID   uuid.UUID
	PropertyTypes []edm.PropertyType
}

// BuildEntitySetView produces the view definition for an entity set over
// the given property types. Columns are ordered by FQN.
func BuildEntitySetView(es edm.EntitySet, pts []edm.PropertyType) (ViewDefinition, error) {
	if es.ID == uuid.Nil {
		return ViewDefinition{}, invalid(uuid.Nil, "entity set %q has no id", es.Name)
	}
	ordered := slices.Clone(pts)
	for _, pt := range ordered {
		if _, err := BuildPropertyTable(pt); err != nil {
			return ViewDefinition{}, err
		}
	}
	slices.SortFunc(ordered, func(a, b edm.PropertyType) int {
		return strings.Compare(a.Type.String(), b.Type.String())
	})
	return ViewDefinition{Name: EntitySetViewName(es.ID), EntitySetID: es.ID, PropertyTypes: ordered}, nil
}

// Render produces the statements that (re)create the view. Views hold no
// data, so they are dropped and recreated rather than altered.
func (v ViewDefinition) Render(d querysql.Dialect) []string {
	cols := []string{
		fmt.Sprintf("i.%s AS %s", querysql.Quote(ColID), querysql.Quote(edm.IDFQN.Name)),
		fmt.Sprintf("i.%s AS %s", querysql.Quote(ColLastWrite), querysql.Quote(edm.LastWriteFQN.Name)),
		fmt.Sprintf("i.%s AS %s", querysql.Quote(ColLastIndex), querysql.Quote(edm.LastIndexFQN.Name)),
	}
	for _, pt := range v.PropertyTypes {
		cols = append(cols, fmt.Sprintf("%s AS %s", LiveValuesSubquery(d, pt, "i"), querysql.Quote(ValueColumn(pt))))
	}

	// Views cannot take parameters. A UUID's text form is hex and dashes
	// only, so it is safe to inline.
	create := fmt.Sprintf("CREATE VIEW %s AS SELECT %s FROM %s AS i WHERE i.%s = %s AND i.%s > 0;",
		querysql.Quote(v.Name),
		strings.Join(cols, ", "),
		querysql.Quote(IDsTable),
		querysql.Quote(ColEntitySetID), uuidLiteral(d, v.EntitySetID),
		querysql.Quote(ColVersion),
	)
	return []string{
		fmt.Sprintf("DROP VIEW IF EXISTS %s;", querysql.Quote(v.Name)),
		create,
	}
}

func uuidLiteral(d querysql.Dialect, id uuid.UUID) string {
	if d.Name() == querysql.PostgresName {
		return "'" + id.String() + "'::uuid"
	}
	return "'" + id.String() + "'"
}
