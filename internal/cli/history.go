package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/upcheck/internal/harness"
	"github.com/roach88/upcheck/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	RunID    string
	Seq      int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded run outcomes",
		Long: `Show the outcomes recorded in a run ledger, newest run first.

With --run and --seq, shows the recorded trace of one scenario instead.

Examples:
  upcheck history --db ./upcheck.db
  upcheck history --db ./upcheck.db --limit 50 --format json
  upcheck history --db ./upcheck.db --run 0192f6c1-... --seq 3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite ledger (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of outcomes to show (0 for all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id whose scenario trace to show")
	cmd.Flags().IntVar(&opts.Seq, "seq", 0, "scenario position within --run, starting at 1")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	if (opts.RunID == "") != (opts.Seq == 0) {
		return opts.fail(cmd, ExitCommandError, ErrCodeGeneric, "--run and --seq must be given together", nil)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return opts.fail(cmd, ExitCommandError, ErrCodeLedger, "failed to open ledger", err)
	}
	defer st.Close()

	if opts.RunID != "" {
		return showTrace(ctx, opts, st, cmd)
	}

	entries, err := st.History(ctx, opts.Limit)
	if err != nil {
		return opts.fail(cmd, ExitCommandError, ErrCodeLedger, "failed to read history", err)
	}

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(entries)
	}
	if len(entries) == 0 {
		return f.Success("No runs recorded.")
	}

	w := cmd.OutOrStdout()
	run := ""
	for _, e := range entries {
		if e.RunID != run {
			run = e.RunID
			fmt.Fprintf(w, "Run %s  %s  %s\n", e.RunID, e.StartedAt.Format("2006-01-02 15:04:05Z07:00"), e.BaseURL)
		}
		fmt.Fprintf(w, "  %3d %s %-7s %s (%d attempt(s), %s)\n",
			e.Seq, statusMark(e.Status), e.Status, e.Scenario, e.Attempts, e.Duration)
		if e.Error != "" {
			fmt.Fprintf(w, "        %s\n", e.Error)
		}
	}
	return nil
}

func showTrace(ctx context.Context, opts *HistoryOptions, st *store.Store, cmd *cobra.Command) error {
	events, err := st.Trace(ctx, opts.RunID, opts.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return opts.fail(cmd, ExitCommandError, ErrCodeLedger,
			fmt.Sprintf("no outcome %d in run %s", opts.Seq, opts.RunID), nil)
	}
	if err != nil {
		return opts.fail(cmd, ExitCommandError, ErrCodeLedger, "failed to read trace", err)
	}

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(events)
	}
	w := cmd.OutOrStdout()
	for _, ev := range events {
		fmt.Fprintf(w, "%3d %-8s %s%s\n", ev.Seq, ev.Phase, ev.Action, formatArgs(ev.Args))
		if ev.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", ev.Error)
		}
	}
	return nil
}

func statusMark(s harness.Status) string {
	switch s {
	case harness.StatusPassed:
		return "✓"
	case harness.StatusSkipped:
		return "-"
	default:
		return "✗"
	}
}

// formatArgs renders args as " k=v ..." in key order.
func formatArgs(args map[string]string) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, args[k])
	}
	return b.String()
}
