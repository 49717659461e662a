package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/metrics"
	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/store"
)

// ErrInvalidRanking is returned for a malformed ranking query.
var ErrInvalidRanking = errors.New("invalid ranking")

// AggregationType is an SQL aggregate applied to property values.
type AggregationType string

// Aggregations.
const (
	Sum   AggregationType = "SUM"
	Min   AggregationType = "MIN"
	Max   AggregationType = "MAX"
	Avg   AggregationType = "AVG"
	Count AggregationType = "COUNT"
)

// Valid reports whether t is a supported aggregation.
func (t AggregationType) Valid() bool {
	switch t {
	case Sum, Min, Max, Avg, Count:
		return true
	}
	return false
}

// WeightedAggregation scores an entity by aggregating one property type's
// live values and multiplying by Weight. Every type except Count requires
// a numeric datatype.
type WeightedAggregation struct {
	PropertyTypeID uuid.UUID       `json:"property_type_id" yaml:"property_type_id"`
	Weight         float64         `json:"weight" yaml:"weight"`
	Type           AggregationType `json:"type" yaml:"type"`
}

// RankingDetail scores ranked entities by their edges.
//
// The ranked entity is the src of each edge when UtilizerIsSrc is set and
// the dst otherwise; the opposite end is the neighbor. Edges count only
// when their association set is in AssociationEntitySetIDs and their
// neighbor set is in NeighborEntitySetIDs; an empty list allows any set.
// Association and neighbor aggregations read only the listed sets for
// which the property type is authorized.
type RankingDetail struct {
	AssociationEntitySetIDs []uuid.UUID           `json:"association_entity_set_ids" yaml:"association_entity_set_ids"`
	NeighborEntitySetIDs    []uuid.UUID           `json:"neighbor_entity_set_ids" yaml:"neighbor_entity_set_ids"`
	UtilizerIsSrc           bool                  `json:"utilizer_is_src" yaml:"utilizer_is_src"`
	CountWeight             float64               `json:"count_weight" yaml:"count_weight"`
	AssociationAggregations []WeightedAggregation `json:"association_aggregations,omitempty" yaml:"association_aggregations,omitempty"`
	NeighborAggregations    []WeightedAggregation `json:"neighbor_aggregations,omitempty" yaml:"neighbor_aggregations,omitempty"`
}

// LinkedResolution decides how contributions reaching one linked entity
// through several of its constituent entities combine.
type LinkedResolution string

const (
	// ResolveUnion counts every contribution of every constituent.
	ResolveUnion LinkedResolution = "union"
	// ResolveDistinct counts a neighbor, association, or property value
	// (by content hash) once per linked entity, however many constituents
	// reach it.
	ResolveDistinct LinkedResolution = "distinct"
)

// TopEntitiesQuery describes a ranking over EntitySetIDs.
type TopEntitiesQuery struct {
	Limit            int                   `json:"limit" yaml:"limit"`
	EntitySetIDs     []uuid.UUID           `json:"entity_set_ids" yaml:"entity_set_ids"`
	Details          []RankingDetail       `json:"details" yaml:"details"`
	SelfAggregations []WeightedAggregation `json:"self_aggregations,omitempty" yaml:"self_aggregations,omitempty"`
	// Linked ranks linked entities: constituents of EntitySetIDs sharing a
	// linking id score together and are reported under
	// LinkingEntitySetID. Entities without a linking id are not ranked.
	Linked             bool             `json:"linked,omitempty" yaml:"linked,omitempty"`
	LinkingEntitySetID uuid.UUID        `json:"linking_entity_set_id,omitempty" yaml:"linking_entity_set_id,omitempty"`
	Resolution         LinkedResolution `json:"resolution,omitempty" yaml:"resolution,omitempty"`
}

// ScoredEntity is one ranked row.
type ScoredEntity struct {
	Key   edm.EntityDataKey `json:"key"`
	Score float64           `json:"score"`
}

// ComputeTopEntities streams the Limit highest-scoring entities, by score
// descending and then entity key id. Entity set ids are sorted before the
// query is built, so the ranking does not depend on their order.
// Aggregations over property types not authorized for a set ignore that
// set; an aggregation authorized for none of its sets is ErrInvalidRanking.
func (s *Service) ComputeTopEntities(ctx context.Context, q TopEntitiesQuery, authorized map[uuid.UUID]edm.PropertyTypes) iter.Seq2[ScoredEntity, error] {
	return func(yield func(ScoredEntity, error) bool) {
		var err error
		done := metrics.Track(ctx, s.metrics, "compute_top_entities")
		defer func() { done(err) }()

		query, args, pts, err := buildRanking(s.dialect, q, authorized)
		if err != nil {
			yield(ScoredEntity{}, err)
			return
		}
		if query == "" {
			return
		}
		for _, pt := range pts {
			if err = s.registry.Require(ctx, pt); err != nil {
				yield(ScoredEntity{}, err)
				return
			}
		}
		for row, serr := range store.Stream(ctx, s.db, s.logger, query, args, scanScored(q)) {
			if serr != nil {
				err = serr
				yield(ScoredEntity{}, serr)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

func scanScored(q TopEntitiesQuery) store.ScanFunc[ScoredEntity] {
	return func(rows *sql.Rows) (ScoredEntity, error) {
		var r ScoredEntity
		if q.Linked {
			r.Key.EntitySetID = q.LinkingEntitySetID
			err := rows.Scan(&r.Key.EntityKeyID, &r.Score)
			return r, err
		}
		err := rows.Scan(&r.Key.EntitySetID, &r.Key.EntityKeyID, &r.Score)
		return r, err
	}
}

func validateRanking(q TopEntitiesQuery) error {
	if q.Limit <= 0 {
		return fmt.Errorf("limit %d: %w", q.Limit, ErrInvalidRanking)
	}
	if q.Linked && q.LinkingEntitySetID == uuid.Nil {
		return fmt.Errorf("linked ranking without linking entity set: %w", ErrInvalidRanking)
	}
	switch q.Resolution {
	case "", ResolveUnion, ResolveDistinct:
	default:
		return fmt.Errorf("resolution %q: %w", q.Resolution, ErrInvalidRanking)
	}
	check := func(aggs []WeightedAggregation) error {
		for _, a := range aggs {
			if !a.Type.Valid() {
				return fmt.Errorf("aggregation %q: %w", a.Type, ErrInvalidRanking)
			}
			if math.IsNaN(a.Weight) || math.IsInf(a.Weight, 0) {
				return fmt.Errorf("weight %v: %w", a.Weight, ErrInvalidRanking)
			}
		}
		return nil
	}
	if err := check(q.SelfAggregations); err != nil {
		return err
	}
	for _, d := range q.Details {
		if math.IsNaN(d.CountWeight) || math.IsInf(d.CountWeight, 0) {
			return fmt.Errorf("count weight %v: %w", d.CountWeight, ErrInvalidRanking)
		}
		if err := check(d.AssociationAggregations); err != nil {
			return err
		}
		if err := check(d.NeighborAggregations); err != nil {
			return err
		}
	}
	return nil
}

// ranker accumulates the UNION ALL branches of a ranking query.
type ranker struct {
	b          *querysql.Builder
	d          querysql.Dialect
	q          TopEntitiesQuery
	authorized map[uuid.UUID]edm.PropertyTypes
	sets       []uuid.UUID
	branches   []string
	pts        map[uuid.UUID]edm.PropertyType
}

// buildRanking renders the ranking query. It returns an empty query when
// nothing can contribute a score, and the property types whose tables the
// query reads.
func buildRanking(d querysql.Dialect, q TopEntitiesQuery, authorized map[uuid.UUID]edm.PropertyTypes) (string, []any, []edm.PropertyType, error) {
	if err := validateRanking(q); err != nil {
		return "", nil, nil, err
	}
	r := &ranker{
		b:          querysql.NewBuilder(d),
		d:          d,
		q:          q,
		authorized: authorized,
		sets:       sortedIDs(q.EntitySetIDs),
		pts:        make(map[uuid.UUID]edm.PropertyType),
	}
	if len(r.sets) == 0 {
		return "", nil, nil, nil
	}

	for _, a := range q.SelfAggregations {
		if err := r.self(a); err != nil {
			return "", nil, nil, err
		}
	}
	for _, det := range q.Details {
		if det.CountWeight != 0 {
			r.count(det)
		}
		for _, a := range det.AssociationAggregations {
			if err := r.viaEdge(det, a, edgeSide, det.AssociationEntitySetIDs); err != nil {
				return "", nil, nil, err
			}
		}
		for _, a := range det.NeighborAggregations {
			if err := r.viaEdge(det, a, neighborSide(det), det.NeighborEntitySetIDs); err != nil {
				return "", nil, nil, err
			}
		}
	}
	if len(r.branches) == 0 {
		return "", nil, nil, nil
	}

	key := "es, id"
	order := "total DESC, id, es"
	if q.Linked {
		key, order = "id", "total DESC, id"
	}
	r.b.Write("WITH contrib AS (%s) SELECT %s, SUM(score) AS total FROM contrib GROUP BY %s ORDER BY %s LIMIT %s",
		strings.Join(r.branches, " UNION ALL "), key, key, order, r.b.Arg(q.Limit))

	pts := sortedTypes(r.pts)
	return r.b.SQL(), r.b.Args(), pts, nil
}

func utilizerSide(det RankingDetail) side {
	if det.UtilizerIsSrc {
		return srcSide
	}
	return dstSide
}

func neighborSide(det RankingDetail) side {
	if det.UtilizerIsSrc {
		return dstSide
	}
	return srcSide
}

func (r *ranker) distinct() string {
	if r.q.Linked && r.q.Resolution == ResolveDistinct {
		return "DISTINCT "
	}
	return ""
}

// keyColumns selects the ranked entity's grouping key from ids alias i.
func (r *ranker) keyColumns() string {
	if r.q.Linked {
		return "i." + querysql.Quote(schema.ColLinkingID) + " AS id"
	}
	return "i." + querysql.Quote(schema.ColEntitySetID) + " AS es, i." + querysql.Quote(schema.ColID) + " AS id"
}

func (r *ranker) outerKey() string {
	if r.q.Linked {
		return "k.id"
	}
	return "k.es, k.id"
}

// rankedWhere restricts ids alias i to live ranked entities of sets.
func (r *ranker) rankedWhere(sets []uuid.UUID) string {
	w := fmt.Sprintf("i.%s IN %s AND i.%s > 0",
		querysql.Quote(schema.ColEntitySetID), querysql.List(r.b, sets), querysql.Quote(schema.ColVersion))
	if r.q.Linked {
		w += fmt.Sprintf(" AND i.%s IS NOT NULL", querysql.Quote(schema.ColLinkingID))
	}
	return w
}

// edgeJoin joins edges alias e at the ranked entity's side and filters by
// the detail's association and neighbor sets.
func (r *ranker) edgeJoin(det RankingDetail) (join, where string) {
	u, n := utilizerSide(det), neighborSide(det)
	join = fmt.Sprintf("JOIN %s AS e ON %s = i.%s AND %s = i.%s",
		querysql.Quote(schema.EdgesTable),
		u.set("e"), querysql.Quote(schema.ColEntitySetID),
		u.key("e"), querysql.Quote(schema.ColID))
	where = fmt.Sprintf("e.%s > 0", querysql.Quote(schema.ColVersion))
	if len(det.AssociationEntitySetIDs) > 0 {
		where += fmt.Sprintf(" AND %s IN %s", edgeSide.set("e"), querysql.List(r.b, sortedIDs(det.AssociationEntitySetIDs)))
	}
	if len(det.NeighborEntitySetIDs) > 0 {
		where += fmt.Sprintf(" AND %s IN %s", n.set("e"), querysql.List(r.b, sortedIDs(det.NeighborEntitySetIDs)))
	}
	return join, where
}

func (r *ranker) weight(w float64) string {
	return r.d.NumericCast(r.b.Arg(w))
}

func (r *ranker) count(det RankingDetail) {
	n := neighborSide(det)
	join, where := r.edgeJoin(det)
	r.branches = append(r.branches, fmt.Sprintf(
		"SELECT %s, %s * COUNT(*) AS score FROM (SELECT %s%s, %s AS ns, %s AS nk FROM %s AS i %s WHERE %s AND %s) AS k GROUP BY %s",
		r.outerKey(), r.weight(det.CountWeight),
		r.distinct(), r.keyColumns(), n.set("e"), n.key("e"),
		querysql.Quote(schema.IDsTable), join, r.rankedWhere(r.sets), where,
		r.outerKey(),
	))
}

// authorizedFor returns the property type of a and the subset of sets it
// is authorized for, which is never empty.
func (r *ranker) authorizedFor(a WeightedAggregation, sets []uuid.UUID) (edm.PropertyType, []uuid.UUID, error) {
	var (
		pt      edm.PropertyType
		allowed []uuid.UUID
	)
	for _, es := range sortedIDs(sets) {
		if p, ok := r.authorized[es][a.PropertyTypeID]; ok {
			pt = p
			allowed = append(allowed, es)
		}
	}
	if len(allowed) == 0 {
		return pt, nil, fmt.Errorf("property type %s not authorized in any of %d entity sets: %w", a.PropertyTypeID, len(sets), ErrInvalidRanking)
	}
	if a.Type != Count && !pt.Datatype.Numeric() {
		return pt, nil, fmt.Errorf("%s over %s (%s): %w", a.Type, pt.Type, pt.Datatype, ErrInvalidRanking)
	}
	return pt, allowed, nil
}

// aggregate renders the score expression and the value columns selected
// from property alias p.
func (r *ranker) aggregate(a WeightedAggregation, pt edm.PropertyType) (score, cols string) {
	cols = "p." + querysql.Quote(schema.ColHash) + " AS h"
	if a.Type == Count {
		return fmt.Sprintf("%s * COUNT(k.h)", r.weight(a.Weight)), cols
	}
	cols += ", " + r.d.NumericCast("p."+querysql.Quote(schema.ValueColumn(pt))) + " AS val"
	return fmt.Sprintf("%s * COALESCE(%s(k.val), 0)", r.weight(a.Weight), a.Type), cols
}

func (r *ranker) valueJoin(pt edm.PropertyType, setExpr, keyExpr string) string {
	return fmt.Sprintf("JOIN %s AS p ON p.%s = %s AND p.%s = %s AND p.%s > 0",
		querysql.Quote(schema.PropertyTableName(pt.ID)),
		querysql.Quote(schema.ColEntitySetID), setExpr,
		querysql.Quote(schema.ColID), keyExpr,
		querysql.Quote(schema.ColVersion))
}

// viaEdge adds an aggregation over the values of the entity at side t of
// matching edges: the association entity or the neighbor.
func (r *ranker) viaEdge(det RankingDetail, a WeightedAggregation, t side, sets []uuid.UUID) error {
	pt, allowed, err := r.authorizedFor(a, sets)
	if err != nil {
		return err
	}
	r.pts[pt.ID] = pt
	join, where := r.edgeJoin(det)
	score, cols := r.aggregate(a, pt)
	r.branches = append(r.branches, fmt.Sprintf(
		"SELECT %s, %s AS score FROM (SELECT %s%s, %s AS os, %s AS ok, %s FROM %s AS i %s %s WHERE %s AND %s AND %s IN %s) AS k GROUP BY %s",
		r.outerKey(), score,
		r.distinct(), r.keyColumns(), t.set("e"), t.key("e"), cols,
		querysql.Quote(schema.IDsTable), join, r.valueJoin(pt, t.set("e"), t.key("e")),
		r.rankedWhere(r.sets), where, t.set("e"), querysql.List(r.b, allowed),
		r.outerKey(),
	))
	return nil
}

// self adds an aggregation over the ranked entity's own values.
func (r *ranker) self(a WeightedAggregation) error {
	pt, allowed, err := r.authorizedFor(a, r.sets)
	if err != nil {
		return err
	}
	r.pts[pt.ID] = pt
	score, cols := r.aggregate(a, pt)
	r.branches = append(r.branches, fmt.Sprintf(
		"SELECT %s, %s AS score FROM (SELECT %s%s, %s FROM %s AS i %s WHERE %s) AS k GROUP BY %s",
		r.outerKey(), score,
		r.distinct(), r.keyColumns(), cols,
		querysql.Quote(schema.IDsTable),
		r.valueJoin(pt, "i."+querysql.Quote(schema.ColEntitySetID), "i."+querysql.Quote(schema.ColID)),
		r.rankedWhere(allowed),
		r.outerKey(),
	))
	return nil
}

func sortedTypes(pts map[uuid.UUID]edm.PropertyType) []edm.PropertyType {
	ids := make([]uuid.UUID, 0, len(pts))
	for id := range pts {
		ids = append(ids, id)
	}
	out := make([]edm.PropertyType, 0, len(ids))
	for _, id := range sortedIDs(ids) {
		out = append(out, pts[id])
	}
	return out
}
