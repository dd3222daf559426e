package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/upcheck/internal/browser"
	"github.com/roach88/upcheck/internal/catalog"
	"github.com/roach88/upcheck/internal/config"
	"github.com/roach88/upcheck/internal/fixture"
	"github.com/roach88/upcheck/internal/flow"
	"github.com/roach88/upcheck/internal/harness"
	"github.com/roach88/upcheck/internal/metrics"
	"github.com/roach88/upcheck/internal/report"
	"github.com/roach88/upcheck/internal/store"
)

// DriverFactory opens the browser a run drives. The returned func closes it.
type DriverFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (browser.Driver, func() error, error)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Suites        []string
	Filter        string
	ScenariosDir  string
	RemoteBrowser string

	// NewDriver allows overriding the browser (for testing).
	// If nil, a Chrome session is started.
	NewDriver DriverFactory

	// RunnerOptions are appended to the runner's options (for testing).
	RunnerOptions []harness.Option
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the check create and edit suites",
		Long: `Run the check create and edit suites against the configured account.

Each scenario acquires a fresh tag namespace, drives the web UI to create
or edit one check, asserts the rendered list row and releases its
fixtures. Retryable failures are re-run from setup up to the configured
retry count.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed or were skipped
  2 - Command error (configuration, invalid suites, etc.)

Examples:
  upcheck run
  upcheck run --suite checks_create --filter dns
  upcheck run --filter "C3*" --format json
  upcheck run --scenarios ./suites --remote-browser ws://127.0.0.1:9222/devtools/browser/abc`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuites(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Suites, "suite", nil, "run only this suite (repeatable)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "run scenarios whose case id or type matches this glob pattern")
	cmd.Flags().StringVar(&opts.ScenariosDir, "scenarios", "", "load suites from YAML files in this directory instead of the built-in suites")
	cmd.Flags().StringVar(&opts.RemoteBrowser, "remote-browser", "", "attach to a running browser's DevTools websocket")

	return cmd
}

func runSuites(opts *RunOptions, cmd *cobra.Command) error {
	logger := opts.newLogger(cmd.ErrOrStderr())

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		code := ErrCodeGeneric
		if config.IsConfigurationError(err) {
			code = ErrCodeConfig
		}
		return opts.fail(cmd, ExitCommandError, code, "failed to load configuration", err)
	}

	if err := catalog.Validate(); err != nil {
		return opts.fail(cmd, ExitCommandError, ErrCodeCatalog, "check type catalog is invalid", err)
	}

	suites, err := loadSuites(opts)
	if err != nil {
		return opts.fail(cmd, ExitCommandError, ErrCodeSuites, "failed to load suites", err)
	}
	if len(suites) == 0 {
		return opts.fail(cmd, ExitCommandError, ErrCodeSuites, "no scenarios selected", nil)
	}

	rec := metrics.New()
	client := fixture.New(cfg.URL, cfg.APIToken,
		fixture.WithLogger(logger),
		fixture.WithObserver(rec),
	)

	runnerOpts := []harness.Option{
		harness.WithAuthenticator(flow.LoginAuthenticator{Username: cfg.Username, Password: cfg.Password}),
		harness.WithMetrics(rec),
		harness.WithLogger(logger),
	}

	if cfg.LedgerPath != "" {
		logger.Debug("opening ledger", "path", cfg.LedgerPath)
		st, err := store.Open(cfg.LedgerPath)
		if err != nil {
			return opts.fail(cmd, ExitCommandError, ErrCodeLedger, "failed to open ledger", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing ledger", "error", closeErr)
			}
		}()
		runnerOpts = append(runnerOpts, harness.WithLedger(st))
	}

	if cfg.TestRail.Enabled {
		tr, err := report.NewTestRail(report.Config{
			Endpoint:        cfg.TestRail.Endpoint,
			Username:        cfg.TestRail.Username,
			Password:        cfg.TestRail.Password,
			StagingRunID:    cfg.TestRail.StagingRunID,
			ProductionRunID: cfg.TestRail.ProductionRunID,
			BaseURL:         cfg.URL,
		}, report.WithLogger(logger))
		if err != nil {
			return opts.fail(cmd, ExitCommandError, ErrCodeConfig, "failed to configure result reporting", err)
		}
		runnerOpts = append(runnerOpts, harness.WithReporter(tr))
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	newDriver := opts.NewDriver
	if newDriver == nil {
		newDriver = opts.chrome
	}
	drv, closeDriver, err := newDriver(ctx, cfg, logger)
	if err != nil {
		return opts.fail(cmd, ExitFailure, ErrCodeGeneric, "failed to start browser", err)
	}
	defer func() {
		if closeErr := closeDriver(); closeErr != nil {
			logger.Error("error closing browser", "error", closeErr)
		}
	}()

	runner := harness.NewRunner(client, drv, harness.Settings{
		BaseURL:         cfg.URL,
		BaseTag:         cfg.BaseTag,
		Retries:         cfg.Retries,
		ScenarioTimeout: cfg.ScenarioTimeout,
		GlobalTimeout:   cfg.GlobalTimeout,
		ArtifactsDir:    cfg.ArtifactsDir,
	}, append(runnerOpts, opts.RunnerOptions...)...)

	logger.Info("run starting", "run_id", runner.RunID(), "url", cfg.URL, "suites", len(suites))
	summary, runErr := runner.Run(ctx, suites)

	if opts.MetricsFile != "" {
		if err := rec.WriteTextfile(opts.MetricsFile); err != nil {
			logger.Error("failed to write metrics", "path", opts.MetricsFile, "error", err)
		}
	}

	// Nothing ran: login or the ledger failed before the first scenario.
	if summary.Total == 0 && runErr != nil {
		return opts.fail(cmd, ExitFailure, ErrCodeGeneric, "run aborted", runErr)
	}

	if err := opts.formatter(cmd).Run(newRunResult(summary, runErr)); err != nil {
		return err
	}

	switch {
	case !summary.OK():
		e := NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", summary.Failed+summary.Skipped))
		e.Err = runErr
		e.Reported = true
		return e
	case runErr != nil:
		e := WrapExitError(ExitFailure, "run completed with errors", runErr)
		e.Reported = true
		return e
	}
	return nil
}

func loadSuites(opts *RunOptions) ([]harness.Suite, error) {
	suites := harness.BuiltinSuites()
	if opts.ScenariosDir != "" {
		loaded, err := harness.LoadSuites(opts.ScenariosDir)
		if err != nil {
			return nil, err
		}
		suites = loaded
	}
	return harness.Select(suites, opts.Suites, opts.Filter)
}

func (opts *RunOptions) chrome(ctx context.Context, cfg *config.Config, logger *slog.Logger) (browser.Driver, func() error, error) {
	c, err := browser.NewChrome(ctx, browser.Options{
		RemoteURL:      opts.RemoteBrowser,
		Headless:       cfg.Headless,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
		BasicUsername:  cfg.HTTPBasicUsername,
		BasicPassword:  cfg.HTTPBasicPassword,
		ActionTimeout:  cfg.ExpectTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

// ScenarioResult is one scenario in the run output.
type ScenarioResult struct {
	Name      string   `json:"name"`
	Suite     string   `json:"suite"`
	Status    string   `json:"status"`
	Attempts  int      `json:"attempts"`
	Errors    []string `json:"errors,omitempty"`
	Artifacts string   `json:"artifacts,omitempty"`
}

// RunResult is the run output.
type RunResult struct {
	RunID     string           `json:"run_id"`
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	Total     int              `json:"total"`
	RunErrors []string         `json:"run_errors,omitempty"`
}

func newRunResult(s *harness.Summary, runErr error) RunResult {
	res := RunResult{
		RunID:     s.RunID,
		Scenarios: make([]ScenarioResult, 0, len(s.Outcomes)),
		Passed:    s.Passed,
		Failed:    s.Failed,
		Skipped:   s.Skipped,
		Total:     s.Total,
	}
	for _, o := range s.Outcomes {
		sr := ScenarioResult{
			Name:      o.Scenario,
			Suite:     o.Suite,
			Status:    string(o.Status),
			Attempts:  o.Attempts,
			Artifacts: o.Artifacts,
		}
		if o.Error != "" {
			sr.Errors = append(sr.Errors, o.Error)
		}
		res.Scenarios = append(res.Scenarios, sr)
	}
	if runErr != nil {
		res.RunErrors = splitJoined(runErr)
	}
	return res
}

// splitJoined flattens an errors.Join tree one level.
func splitJoined(err error) []string {
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range u.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
