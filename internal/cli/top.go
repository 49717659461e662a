package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/lattice/internal/graph"
	"github.com/roach88/lattice/internal/store"
)

// ScoreList is the output of the top command.
type ScoreList []graph.ScoredEntity

func (l ScoreList) String() string {
	if len(l) == 0 {
		return "(nothing to rank)"
	}
	var sb strings.Builder
	for i, s := range l {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%3d. %s  %g", i+1, s.Key, s.Score)
	}
	return sb.String()
}

// loadRanking reads a ranking specification from a YAML file.
func loadRanking(path string) (graph.TopEntitiesQuery, error) {
	var q graph.TopEntitiesQuery
	raw, err := os.ReadFile(path)
	if err != nil {
		return q, fmt.Errorf("read ranking: %w", err)
	}
	if err := yaml.Unmarshal(raw, &q); err != nil {
		return q, fmt.Errorf("decode ranking %s: %w: %w", path, errInvalidArgument, err)
	}
	return q, nil
}

// NewTopCommand creates the top command.
func NewTopCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		rankingPath string
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "top --ranking <file.yaml> [entity-set...]",
		Short: "Rank entities by weighted neighborhood aggregates",
		Long: `Rank entities by weighted edge counts and weighted aggregates over
association and neighbor property values.

The ranking file holds the query: entity_set_ids, details, and optional
self_aggregations, linked, linking_entity_set_id and resolution. Entity
set arguments and --limit override the file.`,
		Example:       `  lattice top --ranking contacts.yaml --limit 10 people`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			ctx := cmd.Context()

			q, err := loadRanking(rankingPath)
			if err != nil {
				return formatter.Fail("invalid ranking", err)
			}
			if limit > 0 {
				q.Limit = limit
			}

			rt, err := openRuntime(ctx, cmd, rootOpts)
			if err != nil {
				return formatter.Fail("failed to open store", err)
			}
			defer rt.Close()

			if len(args) > 0 {
				if q.EntitySetIDs, err = rt.entitySets(args); err != nil {
					return formatter.Fail("unknown entity set", err)
				}
			}
			formatter.VerboseLog("Ranking %d entity set(s) with %d detail(s)", len(q.EntitySetIDs), len(q.Details))

			scores, err := store.Collect(rt.graph.ComputeTopEntities(ctx, q, rt.authorizedAll()))
			if err != nil {
				return formatter.Fail("failed to rank entities", err)
			}
			return formatter.Success(ScoreList(scores))
		},
	}
	cmd.Flags().StringVar(&rankingPath, "ranking", "", "ranking specification (YAML)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of entities (overrides the file)")
	_ = cmd.MarkFlagRequired("ranking")
	return cmd
}
