package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/upcheck/internal/config"
	"github.com/roach88/upcheck/internal/fixture"
	"github.com/roach88/upcheck/internal/metrics"
)

// FixturesOptions holds flags for the fixtures subcommands.
type FixturesOptions struct {
	*RootOptions
	Color  string
	Tag    string
	Search string
}

// NewFixturesCommand creates the fixtures command and its subcommands.
func NewFixturesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FixturesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Manage fixture tags and checks through the API",
		Long: `Manage the tags and checks scenarios provision, directly through the
product's REST API. Useful to clean up after an interrupted run.

Examples:
  upcheck fixtures ensure-tag playwright
  upcheck fixtures list --tag checks_create
  upcheck fixtures purge --tag checks_create`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	ensure := &cobra.Command{
		Use:           "ensure-tag <tag>",
		Short:         "Create a tag unless it exists",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnsureTag(opts, args[0], cmd)
		},
	}
	ensure.Flags().StringVar(&opts.Color, "color", "", "hex color for a new tag (random when empty)")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List checks matching a tag or search",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListChecks(opts, cmd)
		},
	}

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete every check matching a tag or search",
		Long: `Delete every check matching a tag or search.

At least one of --tag and --search is required; an unfiltered purge
would delete every check in the account and is refused.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(opts, cmd)
		},
	}

	for _, c := range []*cobra.Command{list, purge} {
		c.Flags().StringVar(&opts.Tag, "tag", "", "match checks carrying this tag")
		c.Flags().StringVar(&opts.Search, "search", "", "match checks whose name contains this text")
	}

	cmd.AddCommand(ensure, list, purge)
	return cmd
}

// client loads configuration and builds a fixture client. The returned
// recorder has observed every request once the command is done.
func (opts *FixturesOptions) client(cmd *cobra.Command) (*fixture.Client, *metrics.Recorder, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		code := ErrCodeGeneric
		if config.IsConfigurationError(err) {
			code = ErrCodeConfig
		}
		return nil, nil, opts.fail(cmd, ExitCommandError, code, "failed to load configuration", err)
	}
	rec := metrics.New()
	logger := opts.newLogger(cmd.ErrOrStderr())
	return fixture.New(cfg.URL, cfg.APIToken, fixture.WithLogger(logger), fixture.WithObserver(rec)), rec, nil
}

func (opts *FixturesOptions) writeMetrics(cmd *cobra.Command, rec *metrics.Recorder) {
	if opts.MetricsFile == "" {
		return
	}
	if err := rec.WriteTextfile(opts.MetricsFile); err != nil {
		opts.newLogger(cmd.ErrOrStderr()).Warn("failed to write metrics", "path", opts.MetricsFile, "error", err)
	}
}

func runEnsureTag(opts *FixturesOptions, name string, cmd *cobra.Command) error {
	client, rec, err := opts.client(cmd)
	if err != nil {
		return err
	}
	defer opts.writeMetrics(cmd, rec)

	tag, err := client.EnsureTag(cmd.Context(), name, opts.Color)
	if err != nil {
		return opts.fail(cmd, ExitFailure, ErrCodeFixtures, "failed to ensure tag", err)
	}

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(tag)
	}
	return f.Success(fmt.Sprintf("✓ tag %s (%s)", tag.Tag, tag.ColorHex))
}

func runListChecks(opts *FixturesOptions, cmd *cobra.Command) error {
	client, rec, err := opts.client(cmd)
	if err != nil {
		return err
	}
	defer opts.writeMetrics(cmd, rec)

	checks, err := client.ListChecks(cmd.Context(), fixture.Filter{Tag: opts.Tag, Search: opts.Search})
	if err != nil {
		return opts.fail(cmd, ExitFailure, ErrCodeFixtures, "failed to list checks", err)
	}
	if checks == nil {
		checks = []fixture.Check{}
	}

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(checks)
	}
	w := cmd.OutOrStdout()
	for _, c := range checks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.PK, c.CheckType, c.Name, c.Address)
	}
	return f.Success(fmt.Sprintf("%d check(s)", len(checks)))
}

func runPurge(opts *FixturesOptions, cmd *cobra.Command) error {
	filter := fixture.Filter{Tag: opts.Tag, Search: opts.Search}
	if filter.IsZero() {
		return opts.fail(cmd, ExitCommandError, ErrCodeFixtures, "purge requires --tag or --search", fixture.ErrUnfilteredDelete)
	}

	client, rec, err := opts.client(cmd)
	if err != nil {
		return err
	}
	defer opts.writeMetrics(cmd, rec)

	n, err := client.DeleteChecksBy(cmd.Context(), filter)
	rec.RecordDeleted(n)
	if err != nil {
		exitCode := ExitFailure
		if errors.Is(err, fixture.ErrUnfilteredDelete) {
			exitCode = ExitCommandError
		}
		return opts.fail(cmd, exitCode, ErrCodeFixtures, "failed to purge checks", err)
	}

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(map[string]any{"deleted": n, "tag": opts.Tag, "search": opts.Search})
	}
	return f.Success(fmt.Sprintf("✓ deleted %d check(s)", n))
}
