package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigFile  string
	MetricsFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the upcheck CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "upcheck",
		Short: "End-to-end checks for a monitoring product's check management",
		Long: `upcheck creates and edits monitoring checks of every type through the
product's web UI and asserts how each one renders in the check list.

Every scenario runs in its own tag namespace, provisioned and cleaned up
through the product's REST API, so runs are safe against a shared account.

Configuration is read from UP_E2E_* environment variables, then from
upcheck.yaml (or --config), then from defaults.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./upcheck.yaml)")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write metrics in Prometheus text format to this file")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewFixturesCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// newLogger builds the diagnostic logger. It always writes to w (stderr in
// practice) so JSON output on stdout stays parseable.
func (o *RootOptions) newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if o.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  o.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: o.Verbose,
	}
}

// fail writes err through the formatter and returns an ExitError that is
// already reported.
func (o *RootOptions) fail(cmd *cobra.Command, exitCode int, code, message string, err error) error {
	var details any
	if err != nil {
		details = err.Error()
	}
	if ferr := o.formatter(cmd).Error(code, message, details); ferr != nil {
		return ferr
	}
	e := WrapExitError(exitCode, message, err)
	e.Reported = true
	return e
}
