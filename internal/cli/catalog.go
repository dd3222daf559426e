package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/upcheck/internal/catalog"
)

// CatalogOptions holds flags for the catalog command.
type CatalogOptions struct {
	*RootOptions
	ValidateOnly bool
}

// CatalogEntry is one check type in the catalog output.
type CatalogEntry struct {
	Type          catalog.Type              `json:"type"`
	SelectorLabel string                    `json:"selector_label"`
	ListLabel     string                    `json:"list_label"`
	Target        catalog.TargetKind        `json:"target"`
	Address       catalog.AddressConvention `json:"address"`
	Save          catalog.SaveMode          `json:"save"`
	Fields        []catalog.Field           `json:"fields"`
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the check type catalog",
		Long: `Show the check type catalog: for every check type, the label the form
offers, the label the list renders, what identifies a check of that type
and how its address column is rendered.

The catalog is validated against its schema first.

Examples:
  upcheck catalog
  upcheck catalog --validate
  upcheck catalog --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.ValidateOnly, "validate", false, "only validate the catalog")

	return cmd
}

func runCatalog(opts *CatalogOptions, cmd *cobra.Command) error {
	if err := catalog.Validate(); err != nil {
		return opts.fail(cmd, ExitCommandError, ErrCodeCatalog, "check type catalog is invalid", err)
	}

	f := opts.formatter(cmd)
	if opts.ValidateOnly {
		if opts.Format == "json" {
			return f.Success(map[string]any{"valid": true, "types": len(catalog.Types)})
		}
		return f.Success("✓ catalog is valid")
	}

	if opts.Format == "json" {
		contracts := catalog.All()
		entries := make([]CatalogEntry, 0, len(contracts))
		for _, c := range contracts {
			fields := c.Fields
			if fields == nil {
				fields = []catalog.Field{}
			}
			entries = append(entries, CatalogEntry{
				Type:          c.Type,
				SelectorLabel: c.SelectorLabel,
				ListLabel:     c.ListLabel,
				Target:        c.Target,
				Address:       c.Address,
				Save:          c.Save,
				Fields:        fields,
			})
		}
		return f.Success(entries)
	}
	return catalog.Render(cmd.OutOrStdout())
}
