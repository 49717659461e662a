package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/data"
	"github.com/roach88/lattice/internal/deletion"
	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/value"
)

// Write modes accepted by entity write.
const (
	ModeReplace = "replace"
	ModePartial = "partial"
	ModeMerge   = "merge"
)

// EntityView is an entity rendered for output: property FQN to values.
type EntityView map[string][]any

func (v EntityView) String() string {
	if len(v) == 0 {
		return "(no live values)"
	}
	keys := make(map[edm.FQN][]any, len(v))
	for k, vals := range v {
		fqn, err := edm.ParseFQN(k)
		if err != nil {
			fqn = edm.FQN{Name: k}
		}
		keys[fqn] = vals
	}
	var sb strings.Builder
	for i, fqn := range sortedFQNs(keys) {
		if i > 0 {
			sb.WriteByte('\n')
		}
		parts := make([]string, len(keys[fqn]))
		for j, val := range keys[fqn] {
			parts[j] = fmt.Sprint(val)
		}
		fmt.Fprintf(&sb, "%s: %s", fqn, strings.Join(parts, ", "))
	}
	return sb.String()
}

func viewOf(e data.Entity) EntityView {
	out := make(EntityView, len(e))
	for fqn, vals := range e {
		natives := make([]any, len(vals))
		for i, v := range vals {
			natives[i] = value.Native(v)
		}
		out[fqn.String()] = natives
	}
	return out
}

// WriteResult is the output of the mutating entity and edge commands.
type WriteResult struct {
	store.WriteEvent
}

func (r WriteResult) String() string {
	return fmt.Sprintf("%d row(s) affected at version %d", r.Count, r.Version)
}

// NewEntityCommand creates the entity command group.
func NewEntityCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Read and write entities",
	}
	cmd.AddCommand(newEntityGetCommand(rootOpts))
	cmd.AddCommand(newEntityWriteCommand(rootOpts))
	cmd.AddCommand(newEntityRemoveCommand(rootOpts, "clear"))
	cmd.AddCommand(newEntityRemoveCommand(rootOpts, "delete"))
	return cmd
}

func newEntityGetCommand(rootOpts *RootOptions) *cobra.Command {
	var metadata bool
	cmd := &cobra.Command{
		Use:   "get <entity-set> <entity-key-id>",
		Short: "Print the live values of an entity",
		Example: `  lattice entity get people 0b0c3a52-1f0b-4a5e-9d6e-3a2b1c0d9e01
  lattice entity get people 0b0c3a52-1f0b-4a5e-9d6e-3a2b1c0d9e01 --metadata --format json`,
		Args:          cobra.ExactArgs(2),
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

			es, pts, err := rt.entitySet(args[0])
			if err != nil {
				return formatter.Fail("unknown entity set", err)
			}
			ids, err := parseIDs(args[1:])
			if err != nil {
				return formatter.Fail("invalid entity key id", err)
			}
			var readOpts []data.ReadOption
			if metadata {
				readOpts = append(readOpts, data.WithMetadata(data.EntityKeyID, data.LastWrite, data.LastIndex))
			}
			e, err := rt.data.GetEntity(ctx, es.ID, ids[0], pts, readOpts...)
			if err != nil {
				return formatter.Fail("failed to read entity", err)
			}
			return formatter.Success(viewOf(e))
		},
	}
	cmd.Flags().BoolVar(&metadata, "metadata", false, "include @id, @lastWrite and @lastIndex")
	return cmd
}

func newEntityWriteCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		mode    string
		payload string
	)
	cmd := &cobra.Command{
		Use:   "write <entity-set> <entity-key-id>",
		Short: "Write property values to an entity",
		Long: `Write property values to an entity.

--data is a JSON object keyed by property type FQN. Each value is a list
or a single scalar. Modes:
  replace  every property type of the entity set is replaced; absent ones are cleared
  partial  only the property types present are replaced
  merge    values are added; nothing is tombstoned`,
		Example:       `  lattice entity write people 0b0c3a52-1f0b-4a5e-9d6e-3a2b1c0d9e01 --data '{"general.name": ["Alice"], "general.age": 30}'`,
		Args:          cobra.ExactArgs(2),
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

			es, pts, err := rt.entitySet(args[0])
			if err != nil {
				return formatter.Fail("unknown entity set", err)
			}
			ids, err := parseIDs(args[1:])
			if err != nil {
				return formatter.Fail("invalid entity key id", err)
			}
			values, err := parsePayload([]byte(payload), pts)
			if err != nil {
				return formatter.Fail("invalid --data", err)
			}

			var ev store.WriteEvent
			switch mode {
			case ModeReplace:
				ev, err = rt.data.ReplaceEntity(ctx, es.ID, ids[0], values, pts)
			case ModePartial:
				ev, err = rt.data.PartialReplaceEntity(ctx, es.ID, ids[0], values, pts)
			case ModeMerge:
				ev, err = rt.data.MergeIntoEntity(ctx, es.ID, ids[0], values, pts)
			default:
				err = fmt.Errorf("mode %q: must be replace, partial or merge: %w", mode, errInvalidArgument)
			}
			if err != nil {
				return formatter.Fail("failed to write entity", err)
			}
			return formatter.Success(WriteResult{ev})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", ModeMerge, "write mode (replace|partial|merge)")
	cmd.Flags().StringVar(&payload, "data", "{}", "JSON object of property FQN to values")
	return cmd
}

// newEntityRemoveCommand builds entity clear (tombstone) and entity delete
// (physical removal).
func newEntityRemoveCommand(rootOpts *RootOptions, verb string) *cobra.Command {
	var neighbors bool
	deleteType := edm.SoftDelete
	short := "Tombstone entities, keeping history"
	if verb == "delete" {
		deleteType = edm.HardDelete
		short = "Physically remove entities and their history"
	}
	cmd := &cobra.Command{
		Use:           verb + " <entity-set> <entity-key-id>...",
		Short:         short,
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

			es, pts, err := rt.entitySet(args[0])
			if err != nil {
				return formatter.Fail("unknown entity set", err)
			}
			ids, err := parseIDs(args[1:])
			if err != nil {
				return formatter.Fail("invalid entity key id", err)
			}

			if neighbors {
				res, err := rt.deleter.ClearOrDeleteEntitiesAndNeighbors(ctx, es.ID, ids, deleteType, rt.authorizedAll())
				if err != nil {
					return formatter.Fail("failed to "+verb+" entities", err)
				}
				return formatter.Success(DeletionView{res})
			}

			var ev store.WriteEvent
			if deleteType == edm.HardDelete {
				ev, err = rt.data.DeleteEntities(ctx, es.ID, ids, pts)
			} else {
				ev, err = rt.data.ClearEntities(ctx, es.ID, ids, pts)
			}
			if err != nil {
				return formatter.Fail("failed to "+verb+" entities", err)
			}
			return formatter.Success(WriteResult{ev})
		},
	}
	cmd.Flags().BoolVar(&neighbors, "neighbors", false, "also remove incident edges and their association entities")
	return cmd
}

// parsePayload decodes a write payload keyed by FQN against the entity
// set's property types.
func parsePayload(raw []byte, pts edm.PropertyTypes) (data.PropertyValues, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidArgument, err)
	}

	out := make(data.PropertyValues, len(doc))
	for key, in := range doc {
		fqn, err := edm.ParseFQN(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errInvalidArgument, err)
		}
		pt, ok := pts.ByFQN(fqn)
		if !ok {
			return nil, fmt.Errorf("%s: %w", fqn, data.ErrUnknownPropertyType)
		}
		items, ok := in.([]any)
		if !ok {
			items = []any{in}
		}
		vals := make([]value.Value, 0, len(items))
		for _, item := range items {
			v, err := value.Parse(pt.Datatype, item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w: %w", fqn, data.ErrDatatypeMismatch, err)
			}
			vals = append(vals, v)
		}
		out[pt.ID] = vals
	}
	return out, nil
}

// DeletionView is the output of a neighbor-aware removal.
type DeletionView struct {
	deletion.Result
}

func (d DeletionView) String() string {
	return fmt.Sprintf("%d entity row(s), %d edge(s), %d association row(s) affected",
		d.EntitiesAffected, d.EdgesAffected, d.AssociationsAffected)
}
