package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/graph"
	"github.com/roach88/lattice/internal/store"
)

// EdgeList is the output of edge neighbors.
type EdgeList []graph.Edge

func (l EdgeList) String() string {
	if len(l) == 0 {
		return "(no edges)"
	}
	var sb strings.Builder
	for i, e := range l {
		if i > 0 {
			sb.WriteByte('\n')
		}
		state := "live"
		if !e.Live() {
			state = "tombstoned"
		}
		fmt.Fprintf(&sb, "%s -[%s]-> %s  v%d %s %s",
			e.Key.Src, e.Key.Edge, e.Key.Dst, e.Version, state, e.LastWrite.Format(time.RFC3339))
	}
	return sb.String()
}

// NewEdgeCommand creates the edge command group.
func NewEdgeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edge",
		Short: "Create, remove, and traverse edges",
		Long: `Create, remove, and traverse edges.

An edge is addressed by three entity keys written <entity-set>:<entity-key-id>,
where the entity set is a catalog name or id: the source, the destination,
and the association entity that carries the edge's properties.`,
	}
	cmd.AddCommand(newEdgeWriteCommand(rootOpts, "create", "Create or revive an edge"))
	cmd.AddCommand(newEdgeWriteCommand(rootOpts, "delete", "Tombstone an edge"))
	cmd.AddCommand(newEdgeWriteCommand(rootOpts, "clear", "Physically remove an edge"))
	cmd.AddCommand(newEdgeNeighborsCommand(rootOpts))
	return cmd
}

func newEdgeWriteCommand(rootOpts *RootOptions, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:           verb + " <src> <dst> <edge>",
		Short:         short,
		Example:       "  lattice edge " + verb + " people:<id> people:<id> contacts:<id>",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			ctx := cmd.Context()

			rt, err := openRuntime(ctx, cmd, rootOpts)
			if err != nil {
				return formatter.Fail("failed to open store", err)
			}
			defer rt.Close()

			var key edm.EdgeKey
			for i, dst := range []*edm.EntityDataKey{&key.Src, &key.Dst, &key.Edge} {
				if *dst, err = rt.entityKey(args[i]); err != nil {
					return formatter.Fail("invalid edge key", err)
				}
			}
			keys := []edm.EdgeKey{key}

			var ev store.WriteEvent
			switch verb {
			case "create":
				ev, err = rt.graph.CreateEdges(ctx, keys)
			case "delete":
				ev, err = rt.graph.DeleteEdges(ctx, keys)
			case "clear":
				ev.Count, err = rt.graph.ClearEdges(ctx, keys)
			}
			if err != nil {
				return formatter.Fail("failed to "+verb+" edge", err)
			}
			return formatter.Success(WriteResult{ev})
		},
	}
}

func newEdgeNeighborsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		src, dst, assoc []string
		tombstoned      bool
	)
	cmd := &cobra.Command{
		Use:   "neighbors <entity-set> <entity-key-id>...",
		Short: "List edges incident to entities",
		Long: `List the edges incident to the given entities, ordered by edge key.

--src restricts to edges whose source is in the listed entity sets (the
entities are destinations); --dst restricts to edges whose destination is
in the listed sets (the entities are sources). --assoc restricts the
association entity set.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			ctx := cmd.Context()

			rt, err := openRuntime(ctx, cmd, rootOpts)
			if err != nil {
				return formatter.Fail("failed to open store", err)
			}
			defer rt.Close()

			es, err := rt.catalog.ResolveEntitySet(args[0])
			if err != nil {
				return formatter.Fail("unknown entity set", err)
			}
			ids, err := parseIDs(args[1:])
			if err != nil {
				return formatter.Fail("invalid entity key id", err)
			}
			filter := graph.EntityNeighborsFilter{EntityKeyIDs: ids, IncludeTombstoned: tombstoned}
			if filter.SrcEntitySetIDs, err = rt.entitySets(src); err != nil {
				return formatter.Fail("unknown entity set", err)
			}
			if filter.DstEntitySetIDs, err = rt.entitySets(dst); err != nil {
				return formatter.Fail("unknown entity set", err)
			}
			if filter.AssociationEntitySetIDs, err = rt.entitySets(assoc); err != nil {
				return formatter.Fail("unknown entity set", err)
			}

			edges, err := store.Collect(rt.graph.GetEdgesAndNeighborsForVertices(ctx, es.ID, filter))
			if err != nil {
				return formatter.Fail("failed to read edges", err)
			}
			return formatter.Success(EdgeList(edges))
		},
	}
	cmd.Flags().StringSliceVar(&src, "src", nil, "source entity sets")
	cmd.Flags().StringSliceVar(&dst, "dst", nil, "destination entity sets")
	cmd.Flags().StringSliceVar(&assoc, "assoc", nil, "association entity sets")
	cmd.Flags().BoolVar(&tombstoned, "tombstoned", false, "include tombstoned edges")
	return cmd
}
