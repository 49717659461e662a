package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/schema"
)

// DDLResult is the output of the ddl command.
type DDLResult struct {
	Dialect string `json:"dialect"`
	Script  string `json:"script"`
}

func (r DDLResult) String() string {
	return strings.TrimRight(r.Script, "\n")
}

// NewDDLCommand creates the ddl command.
func NewDDLCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ddl [property-type-fqn...]",
		Short: "Print generated DDL",
		Long: `Print the DDL for the shared tables and, when a catalog is configured,
for its property tables and entity set views.

With property type FQN arguments only those property tables are printed.
No database connection is made.

Example:
  lattice ddl --driver postgres --catalog catalog.yaml
  lattice ddl --catalog catalog.yaml general.name general.age`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDDL(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runDDL(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := opts.settings()
	if err != nil {
		return formatter.Fail("invalid configuration", err)
	}
	dialect, err := querysql.ForName(cfg.Driver, cfg.Citus)
	if err != nil {
		return formatter.Fail("unknown dialect", err)
	}

	var cat *edm.Catalog
	if cfg.Catalog != "" || len(args) > 0 {
		if cat, err = loadCatalog(cfg); err != nil {
			return formatter.Fail("failed to load catalog", err)
		}
	}

	script, err := renderDDL(dialect, cat, args)
	if err != nil {
		return formatter.Fail("failed to render DDL", err)
	}
	return formatter.Success(DDLResult{Dialect: dialect.Name(), Script: script})
}

// renderDDL builds the script. A nil catalog yields the shared tables only.
func renderDDL(d querysql.Dialect, cat *edm.Catalog, fqns []string) (string, error) {
	var stmts []string
	if len(fqns) == 0 {
		stmts = append(stmts, strings.TrimRight(schema.BaseScript(d), "\n"))
	}
	if cat == nil {
		return schema.Script(stmts), nil
	}

	pts := cat.PropertyTypes()
	if len(fqns) > 0 {
		pts = pts[:0:0]
		for _, s := range fqns {
			fqn, err := edm.ParseFQN(s)
			if err != nil {
				return "", fmt.Errorf("%w: %w", errInvalidArgument, err)
			}
			pt, ok := cat.PropertyTypeByFQN(fqn)
			if !ok {
				return "", fmt.Errorf("property type %s: %w", fqn, edm.ErrNotInCatalog)
			}
			pts = append(pts, pt)
		}
	}
	for _, pt := range pts {
		def, err := schema.BuildPropertyTable(pt)
		if err != nil {
			return "", err
		}
		stmts = append(stmts, "-- "+pt.Type.String())
		stmts = append(stmts, def.Render(d)...)
	}
	if len(fqns) > 0 {
		return schema.Script(stmts), nil
	}

	for _, es := range cat.EntitySets() {
		pts, err := cat.PropertyTypesOf(es.ID)
		if err != nil {
			return "", err
		}
		view, err := schema.BuildEntitySetView(es, slices.Collect(maps.Values(pts)))
		if err != nil {
			return "", err
		}
		stmts = append(stmts, "-- entity set "+es.Name)
		stmts = append(stmts, view.Render(d)...)
	}
	return schema.Script(stmts), nil
}
