package graph

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/data"
	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/value"
)

// contactGraph:
//
//	p1 -> p2 via c1 (weight 2)
//	p1 -> p3 via c2 (weight 3)
//	p2 -> p3 via c3 (weight 1)
//	s1 -> p2 via c4 (weight 4)
//
// Ages: p1 10, p2 20, p3 30, s1 40.
type contactGraph struct {
	p1, p2, p3, s1 uuid.UUID
}

func seedContacts(t *testing.T, e *env) contactGraph {
	t.Helper()
	ctx := context.Background()
	g := contactGraph{p1: uuid.New(), p2: uuid.New(), p3: uuid.New(), s1: uuid.New()}

	people := map[edm.EntityDataKey]int32{
		key(e.f.People, g.p1): 10,
		key(e.f.People, g.p2): 20,
		key(e.f.People, g.p3): 30,
		key(e.f.Staff, g.s1):  40,
	}
	for k, age := range people {
		_, err := e.data.MergeIntoEntity(ctx, k.EntitySetID, k.EntityKeyID, data.PropertyValues{e.f.Age.ID: {value.Int32(age)}}, e.f.PersonTypes())
		require.NoError(t, err)
	}

	type contact struct {
		src, dst edm.EntityDataKey
		weight   float64
	}
	var keys []edm.EdgeKey
	for _, c := range []contact{
		{key(e.f.People, g.p1), key(e.f.People, g.p2), 2},
		{key(e.f.People, g.p1), key(e.f.People, g.p3), 3},
		{key(e.f.People, g.p2), key(e.f.People, g.p3), 1},
		{key(e.f.Staff, g.s1), key(e.f.People, g.p2), 4},
	} {
		assoc := uuid.New()
		_, err := e.data.MergeIntoEntity(ctx, e.f.Contacts.ID, assoc, data.PropertyValues{e.f.Weight.ID: {value.Double(c.weight)}}, edm.NewPropertyTypes(e.f.Weight))
		require.NoError(t, err)
		keys = append(keys, edgeKey(c.src, c.dst, key(e.f.Contacts, assoc)))
	}
	_, err := e.graph.CreateEdges(ctx, keys)
	require.NoError(t, err)
	return g
}

func outgoingContacts(e *env) RankingDetail {
	return RankingDetail{
		AssociationEntitySetIDs: []uuid.UUID{e.f.Contacts.ID},
		NeighborEntitySetIDs:    []uuid.UUID{e.f.People.ID},
		UtilizerIsSrc:           true,
		CountWeight:             1,
		AssociationAggregations: []WeightedAggregation{{PropertyTypeID: e.f.Weight.ID, Weight: 1, Type: Sum}},
	}
}

func top(t *testing.T, e *env, q TopEntitiesQuery, authorized map[uuid.UUID]edm.PropertyTypes) []ScoredEntity {
	t.Helper()
	rows, err := store.Collect(e.graph.ComputeTopEntities(context.Background(), q, authorized))
	require.NoError(t, err)
	return rows
}

func assertRanking(t *testing.T, want, got []ScoredEntity) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Key, got[i].Key, "row %d", i)
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-9, "row %d", i)
	}
}

func TestComputeTopEntities_CountAndAssociationWeights(t *testing.T) {
	e := newEnv(t)
	g := seedContacts(t, e)

	got := top(t, e, TopEntitiesQuery{
		Limit:        10,
		EntitySetIDs: []uuid.UUID{e.f.People.ID},
		Details:      []RankingDetail{outgoingContacts(e)},
	}, e.f.Authorized())
	assertRanking(t, []ScoredEntity{
		{Key: key(e.f.People, g.p1), Score: 2 + 5},
		{Key: key(e.f.People, g.p2), Score: 1 + 1},
	}, got)
}

func TestComputeTopEntities_IndependentOfEntitySetOrder(t *testing.T) {
	e := newEnv(t)
	g := seedContacts(t, e)

	q := TopEntitiesQuery{Limit: 10, Details: []RankingDetail{outgoingContacts(e)}}
	q.EntitySetIDs = []uuid.UUID{e.f.People.ID, e.f.Staff.ID}
	forward := top(t, e, q, e.f.Authorized())
	q.EntitySetIDs = []uuid.UUID{e.f.Staff.ID, e.f.People.ID}
	backward := top(t, e, q, e.f.Authorized())

	assert.Equal(t, forward, backward)
	assertRanking(t, []ScoredEntity{
		{Key: key(e.f.People, g.p1), Score: 7},
		{Key: key(e.f.Staff, g.s1), Score: 1 + 4},
		{Key: key(e.f.People, g.p2), Score: 2},
	}, forward)
}

func TestComputeTopEntities_Limit(t *testing.T) {
	e := newEnv(t)
	g := seedContacts(t, e)

	got := top(t, e, TopEntitiesQuery{
		Limit:        1,
		EntitySetIDs: []uuid.UUID{e.f.People.ID, e.f.Staff.ID},
		Details:      []RankingDetail{outgoingContacts(e)},
	}, e.f.Authorized())
	assertRanking(t, []ScoredEntity{{Key: key(e.f.People, g.p1), Score: 7}}, got)
}

func TestComputeTopEntities_NeighborAggregation(t *testing.T) {
	e := newEnv(t)
	g := seedContacts(t, e)

	got := top(t, e, TopEntitiesQuery{
		Limit:        10,
		EntitySetIDs: []uuid.UUID{e.f.People.ID},
		Details: []RankingDetail{{
			NeighborEntitySetIDs: []uuid.UUID{e.f.People.ID, e.f.Staff.ID},
			NeighborAggregations: []WeightedAggregation{{PropertyTypeID: e.f.Age.ID, Weight: 1, Type: Max}},
		}},
	}, e.f.Authorized())
	assertRanking(t, []ScoredEntity{
		{Key: key(e.f.People, g.p2), Score: 40},
		{Key: key(e.f.People, g.p3), Score: 20},
	}, got)
}

func TestComputeTopEntities_SelfAggregation(t *testing.T) {
	e := newEnv(t)
	g := seedContacts(t, e)

	got := top(t, e, TopEntitiesQuery{
		Limit:            2,
		EntitySetIDs:     []uuid.UUID{e.f.People.ID},
		SelfAggregations: []WeightedAggregation{{PropertyTypeID: e.f.Age.ID, Weight: 0.5, Type: Sum}},
	}, e.f.Authorized())
	assertRanking(t, []ScoredEntity{
		{Key: key(e.f.People, g.p3), Score: 15},
		{Key: key(e.f.People, g.p2), Score: 10},
	}, got)
}

func TestComputeTopEntities_UnauthorizedPropertyTypeIsRejected(t *testing.T) {
	e := newEnv(t)
	seedContacts(t, e)

	authorized := e.f.Authorized()
	authorized[e.f.Contacts.ID] = edm.PropertyTypes{}
	_, err := store.Collect(e.graph.ComputeTopEntities(context.Background(), TopEntitiesQuery{
		Limit:        10,
		EntitySetIDs: []uuid.UUID{e.f.People.ID},
		Details:      []RankingDetail{outgoingContacts(e)},
	}, authorized))
	assert.ErrorIs(t, err, ErrInvalidRanking)
}

func TestComputeTopEntities_Linked(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	g := seedContacts(t, e)
	l1, l2 := uuid.New(), uuid.New()
	_, err := e.data.SetLinkingIDs(ctx, map[edm.EntityDataKey]uuid.UUID{
		key(e.f.People, g.p1): l1,
		key(e.f.Staff, g.s1):  l1,
		key(e.f.People, g.p2): l2,
	})
	require.NoError(t, err)

	q := TopEntitiesQuery{
		Limit:              10,
		EntitySetIDs:       []uuid.UUID{e.f.People.ID, e.f.Staff.ID},
		Details:            []RankingDetail{outgoingContacts(e)},
		Linked:             true,
		LinkingEntitySetID: e.f.Linked.ID,
	}
	linked := func(id uuid.UUID) edm.EntityDataKey { return key(e.f.Linked, id) }

	// p1 and s1 score together: three edges, weights 2 + 3 + 4.
	assertRanking(t, []ScoredEntity{
		{Key: linked(l1), Score: 3 + 9},
		{Key: linked(l2), Score: 1 + 1},
	}, top(t, e, q, e.f.Authorized()))

	// Distinct resolution counts p2 once as a neighbor of l1.
	q.Resolution = ResolveDistinct
	assertRanking(t, []ScoredEntity{
		{Key: linked(l1), Score: 2 + 9},
		{Key: linked(l2), Score: 1 + 1},
	}, top(t, e, q, e.f.Authorized()))
}

func TestComputeTopEntities_NothingToScore(t *testing.T) {
	e := newEnv(t)
	seedContacts(t, e)

	got := top(t, e, TopEntitiesQuery{Limit: 10, EntitySetIDs: []uuid.UUID{e.f.People.ID}}, e.f.Authorized())
	assert.Empty(t, got)
}

func TestComputeTopEntities_Invalid(t *testing.T) {
	e := newEnv(t)
	people := []uuid.UUID{e.f.People.ID}

	tests := []struct {
		name string
		q    TopEntitiesQuery
	}{
		{"zero limit", TopEntitiesQuery{EntitySetIDs: people}},
		{"linked without linking set", TopEntitiesQuery{Limit: 1, EntitySetIDs: people, Linked: true}},
		{"unknown resolution", TopEntitiesQuery{Limit: 1, EntitySetIDs: people, Resolution: "first"}},
		{"unknown aggregation", TopEntitiesQuery{Limit: 1, EntitySetIDs: people,
			SelfAggregations: []WeightedAggregation{{PropertyTypeID: e.f.Age.ID, Weight: 1, Type: "MEDIAN"}}}},
		{"sum over strings", TopEntitiesQuery{Limit: 1, EntitySetIDs: people,
			SelfAggregations: []WeightedAggregation{{PropertyTypeID: e.f.Name.ID, Weight: 1, Type: Sum}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Collect(e.graph.ComputeTopEntities(context.Background(), tt.q, e.f.Authorized()))
			assert.ErrorIs(t, err, ErrInvalidRanking)
		})
	}
}

func TestComputeTopEntities_CountOverStrings(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := uuid.New()
	_, err := e.data.MergeIntoEntity(ctx, e.f.People.ID, id, data.PropertyValues{
		e.f.Name.ID: {value.String("a"), value.String("b")},
	}, e.f.PersonTypes())
	require.NoError(t, err)

	got := top(t, e, TopEntitiesQuery{
		Limit:            1,
		EntitySetIDs:     []uuid.UUID{e.f.People.ID},
		SelfAggregations: []WeightedAggregation{{PropertyTypeID: e.f.Name.ID, Weight: 1, Type: Count}},
	}, e.f.Authorized())
	assertRanking(t, []ScoredEntity{{Key: key(e.f.People, id), Score: 2}}, got)
}

func TestBuildRanking_PostgresParameters(t *testing.T) {
	e := newEnv(t)
	q := TopEntitiesQuery{
		Limit:        5,
		EntitySetIDs: []uuid.UUID{e.f.Staff.ID, e.f.People.ID},
		Details:      []RankingDetail{outgoingContacts(e)},
	}
	sql, args, pts, err := buildRanking(querysql.Postgres{}, q, e.f.Authorized())
	require.NoError(t, err)

	assert.Contains(t, sql, "CAST($")
	assert.Contains(t, sql, "AS double precision)")
	assert.Contains(t, sql, "UNION ALL")
	assert.Equal(t, 5, args[len(args)-1])
	assert.Equal(t, []edm.PropertyType{e.f.Weight}, pts)

	q.EntitySetIDs = []uuid.UUID{e.f.People.ID, e.f.Staff.ID}
	again, againArgs, _, err := buildRanking(querysql.Postgres{}, q, e.f.Authorized())
	require.NoError(t, err)
	assert.Equal(t, sql, again)
	assert.Equal(t, args, againArgs)
}
