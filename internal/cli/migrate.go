package cli

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"
)

// MigrateResult is the output of the migrate command.
type MigrateResult struct {
	PropertyTables int `json:"property_tables"`
	Views          int `json:"views"`
}

func (r MigrateResult) String() string {
	return fmt.Sprintf("Schema ready: %d property table(s), %d entity set view(s)", r.PropertyTables, r.Views)
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and views for the catalog",
		Long: `Ensure the shared tables, one table per catalog property type, and one
view per entity set. Existing tables are left untouched and views are
recreated, so migrate is safe to run repeatedly.

Example:
  lattice migrate --catalog catalog.yaml
  LATTICE_DRIVER=postgres LATTICE_POSTGRES_DSN=postgres://... lattice migrate`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, cmd)
		},
	}
	return cmd
}

func runMigrate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	rt, err := openRuntime(ctx, cmd, opts)
	if err != nil {
		return formatter.Fail("failed to open store", err)
	}
	defer rt.Close()

	reg := rt.store.Registry()
	pts := rt.catalog.PropertyTypes()
	formatter.VerboseLog("Ensuring %d property table(s)", len(pts))
	if err := reg.EnsurePropertyTables(ctx, pts); err != nil {
		return formatter.Fail("failed to create property tables", err)
	}

	var res MigrateResult
	res.PropertyTables = len(pts)
	for _, es := range rt.catalog.EntitySets() {
		esTypes, err := rt.catalog.PropertyTypesOf(es.ID)
		if err != nil {
			return formatter.Fail("failed to resolve entity set", err)
		}
		if err := reg.EnsureEntitySetView(ctx, es, slices.Collect(maps.Values(esTypes))); err != nil {
			return formatter.Fail(fmt.Sprintf("failed to create view for %s", es.Name), err)
		}
		res.Views++
	}
	rt.logger.Info("schema migrated", "property_tables", res.PropertyTables, "views", res.Views)
	return formatter.Success(res)
}
