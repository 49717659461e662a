package deletion

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/data"
	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/graph"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/testutil"
	"github.com/roach88/lattice/internal/value"
)

type fixture struct {
	svc    *Service
	data   *data.Datastore
	graph  *graph.Service
	f      *testutil.Fixture
	p1, p2 uuid.UUID
	c1     uuid.UUID
	edge   edm.EdgeKey
}

// setup writes p1 -> p2 via c1, with a name on each person and a weight
// on the contact.
func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, f := testutil.NewFixtureStore(t)
	clock := testutil.NewVersionClock()
	ds := data.New(st, data.WithClock(clock), data.WithLogger(testutil.Logger()), data.WithCatalog(f.Catalog))
	gs := graph.New(st, graph.WithClock(clock), graph.WithLogger(testutil.Logger()))
	x := &fixture{
		svc:   New(ds, gs, testutil.Logger()),
		data:  ds,
		graph: gs,
		f:     f,
		p1:    uuid.New(),
		p2:    uuid.New(),
		c1:    uuid.New(),
	}
	for _, id := range []uuid.UUID{x.p1, x.p2} {
		_, err := ds.MergeIntoEntity(ctx, f.People.ID, id, data.PropertyValues{f.Name.ID: {value.String(id.String())}}, f.PersonTypes())
		require.NoError(t, err)
	}
	_, err := ds.MergeIntoEntity(ctx, f.Contacts.ID, x.c1, data.PropertyValues{f.Weight.ID: {value.Double(1)}}, edm.NewPropertyTypes(f.Weight))
	require.NoError(t, err)
	x.edge = edm.EdgeKey{
		Src:  edm.EntityDataKey{EntitySetID: f.People.ID, EntityKeyID: x.p1},
		Dst:  edm.EntityDataKey{EntitySetID: f.People.ID, EntityKeyID: x.p2},
		Edge: edm.EntityDataKey{EntitySetID: f.Contacts.ID, EntityKeyID: x.c1},
	}
	_, err = gs.CreateEdges(ctx, []edm.EdgeKey{x.edge})
	require.NoError(t, err)
	return x
}

func TestSoftDeleteTombstonesEntityEdgesAndAssociations(t *testing.T) {
	ctx := context.Background()
	x := setup(t)

	res, err := x.svc.ClearOrDeleteEntitiesAndNeighbors(ctx, x.f.People.ID, []uuid.UUID{x.p1}, edm.SoftDelete, x.f.Authorized())
	require.NoError(t, err)
	assert.Equal(t, Result{EdgesAffected: 1, EntitiesAffected: 1, AssociationsAffected: 1}, res)

	got, err := x.data.GetEntity(ctx, x.f.People.ID, x.p1, x.f.PersonTypes())
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = x.data.GetEntity(ctx, x.f.Contacts.ID, x.c1, edm.NewPropertyTypes(x.f.Weight))
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = x.data.GetEntity(ctx, x.f.People.ID, x.p2, x.f.PersonTypes())
	require.NoError(t, err)
	assert.NotEmpty(t, got, "the neighbor itself survives")

	live, err := store.Collect(x.graph.GetEdgeKeysContainingEntities(ctx, x.f.People.ID, []uuid.UUID{x.p2}))
	require.NoError(t, err)
	assert.Empty(t, live)
	all, err := store.Collect(x.graph.GetEdgeKeysContainingEntities(ctx, x.f.People.ID, []uuid.UUID{x.p2}, graph.IncludeTombstoned()))
	require.NoError(t, err)
	assert.Equal(t, []edm.EdgeKey{x.edge}, all)
}

func TestHardDeleteRemovesTombstonedEdges(t *testing.T) {
	ctx := context.Background()
	x := setup(t)

	_, err := x.svc.ClearOrDeleteEntitiesAndNeighbors(ctx, x.f.People.ID, []uuid.UUID{x.p1}, edm.SoftDelete, x.f.Authorized())
	require.NoError(t, err)
	res, err := x.svc.ClearOrDeleteEntitiesAndNeighbors(ctx, x.f.People.ID, []uuid.UUID{x.p1}, edm.HardDelete, x.f.Authorized())
	require.NoError(t, err)
	assert.Equal(t, Result{EdgesAffected: 1, EntitiesAffected: 1, AssociationsAffected: 1}, res)

	all, err := store.Collect(x.graph.GetEdgeKeysOfEntitySet(ctx, x.f.People.ID, graph.IncludeTombstoned()))
	require.NoError(t, err)
	assert.Empty(t, all)

	rows, err := x.data.GetPropertyMetadata(ctx, x.f.Contacts.ID, x.c1, x.f.Weight)
	require.NoError(t, err)
	assert.Empty(t, rows)
	rows, err = x.data.GetPropertyMetadata(ctx, x.f.People.ID, x.p1, x.f.Name)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDeletingAnAssociationEntity(t *testing.T) {
	ctx := context.Background()
	x := setup(t)

	res, err := x.svc.ClearOrDeleteEntitiesAndNeighbors(ctx, x.f.Contacts.ID, []uuid.UUID{x.c1}, edm.HardDelete, x.f.Authorized())
	require.NoError(t, err)
	assert.Equal(t, Result{EdgesAffected: 1, EntitiesAffected: 1}, res)

	for _, id := range []uuid.UUID{x.p1, x.p2} {
		got, err := x.data.GetEntity(ctx, x.f.People.ID, id, x.f.PersonTypes())
		require.NoError(t, err)
		assert.NotEmpty(t, got)
	}
}

func TestInvalidInput(t *testing.T) {
	ctx := context.Background()
	x := setup(t)

	_, err := x.svc.ClearOrDeleteEntitiesAndNeighbors(ctx, x.f.People.ID, []uuid.UUID{x.p1}, "Archive", x.f.Authorized())
	assert.ErrorIs(t, err, ErrInvalidDeleteType)

	res, err := x.svc.ClearOrDeleteEntitiesAndNeighbors(ctx, x.f.People.ID, nil, edm.SoftDelete, x.f.Authorized())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestUnauthorizedAssociationSetIsLeftAlone(t *testing.T) {
	for _, deleteType := range []edm.DeleteType{edm.SoftDelete, edm.HardDelete} {
		t.Run(string(deleteType), func(t *testing.T) {
			ctx := context.Background()
			x := setup(t)
			authorized := x.f.Authorized()
			delete(authorized, x.f.Contacts.ID)

			res, err := x.svc.ClearOrDeleteEntitiesAndNeighbors(ctx, x.f.People.ID, []uuid.UUID{x.p1}, deleteType, authorized)
			require.NoError(t, err)
			assert.Equal(t, Result{EdgesAffected: 1, EntitiesAffected: 1}, res)

			got, err := x.data.GetEntity(ctx, x.f.Contacts.ID, x.c1, edm.NewPropertyTypes(x.f.Weight))
			require.NoError(t, err)
			assert.Equal(t, data.Entity{x.f.Weight.Type: {value.Double(1)}}, got)
		})
	}
}
