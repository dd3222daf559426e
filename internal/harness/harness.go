package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/upcheck/internal/browser"
	"github.com/roach88/upcheck/internal/catalog"
	"github.com/roach88/upcheck/internal/facts"
	"github.com/roach88/upcheck/internal/flow"
	"github.com/roach88/upcheck/internal/isolation"
)

// releaseTimeout bounds scope teardown, which runs detached from the
// scenario deadline.
const releaseTimeout = 30 * time.Second

// Authenticator signs the browser session in before the first scenario.
type Authenticator interface {
	Authenticate(ctx context.Context, s browser.Session) error
}

// Reporter forwards finished scenarios to an external tracker.
type Reporter interface {
	Report(ctx context.Context, o Outcome) error
}

// Ledger persists runs and their outcomes.
type Ledger interface {
	BeginRun(ctx context.Context, runID, baseURL string, started time.Time) error
	RecordOutcome(ctx context.Context, runID string, seq int, o Outcome) error
}

// Metrics receives per-scenario and cleanup counters.
type Metrics interface {
	RecordScenario(suite, checkType, status string, attempts int, elapsed time.Duration)
	RecordDeleted(n int)
}

// Clock is the wall clock durations are measured with.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Facts generates the values typed into forms.
type Facts interface {
	Name() string
	Domain() string
	URL() string
	Port() string
	Threshold() string
	Word() string
}

// Settings are the run parameters.
type Settings struct {
	BaseURL string
	BaseTag string

	// Retries is how many times a retryable failure is re-run.
	Retries int

	ScenarioTimeout time.Duration
	GlobalTimeout   time.Duration

	// ArtifactsDir receives failure screenshots; empty disables them.
	ArtifactsDir string
}

// Runner executes suites against one product account through one browser.
type Runner struct {
	client   isolation.Provisioner
	drv      browser.Driver
	settings Settings

	auth       Authenticator
	reporter   Reporter
	ledger     Ledger
	metrics    Metrics
	clock      Clock
	facts      Facts
	namespaces isolation.Generator
	logger     *slog.Logger
	runID      string
}

// Option configures a Runner.
type Option func(*Runner)

func WithAuthenticator(a Authenticator) Option {
	return func(r *Runner) { r.auth = a }
}

func WithReporter(rep Reporter) Option {
	return func(r *Runner) { r.reporter = rep }
}

// WithLedger records every outcome in l.
func WithLedger(l Ledger) Option {
	return func(r *Runner) { r.ledger = l }
}

func WithMetrics(m Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithClock(c Clock) Option {
	return func(r *Runner) { r.clock = c }
}

func WithFacts(f Facts) Option {
	return func(r *Runner) { r.facts = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithRunID fixes the run id instead of generating a UUIDv7.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// WithNamespaces replaces the UUIDv7 namespace generator.
func WithNamespaces(g isolation.Generator) Option {
	return func(r *Runner) { r.namespaces = g }
}

// NewRunner creates a runner. client provisions fixtures; drv is the
// browser every scenario drives.
func NewRunner(client isolation.Provisioner, drv browser.Driver, settings Settings, opts ...Option) *Runner {
	r := &Runner{
		client:     client,
		drv:        drv,
		settings:   settings,
		clock:      systemClock{},
		namespaces: isolation.UUIDv7Generator{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.facts == nil {
		r.facts = facts.New(0)
	}
	if r.runID == "" {
		r.runID = uuid.Must(uuid.NewV7()).String()
	}
	return r
}

// RunID identifies the run in the ledger and in logs.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes every scenario of every suite, in order, one at a time.
//
// The returned error is reserved for failures outside the scenarios:
// authentication, the ledger and the reporter. Scenario failures are in
// the summary. Once the global timeout expires the remaining scenarios are
// skipped.
func (r *Runner) Run(ctx context.Context, suites []Suite) (*Summary, error) {
	if r.settings.GlobalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.settings.GlobalTimeout)
		defer cancel()
	}
	logger := r.logger.With("run_id", r.runID)
	summary := &Summary{RunID: r.runID, Outcomes: []Outcome{}}

	if r.ledger != nil {
		if err := r.ledger.BeginRun(ctx, r.runID, r.settings.BaseURL, r.clock.Now()); err != nil {
			return summary, fmt.Errorf("begin run: %w", err)
		}
	}
	if r.auth != nil {
		session := browser.Session{Driver: r.drv, BaseURL: r.settings.BaseURL}
		if err := r.auth.Authenticate(ctx, session); err != nil {
			return summary, fmt.Errorf("authenticate: %w", r.classify(ctx, ctx, err))
		}
	}

	var errs []error
	seq := 0
	for _, suite := range suites {
		for _, sc := range suite.Scenarios {
			seq++
			var o Outcome
			if ctx.Err() != nil {
				o = r.skipped(sc)
			} else {
				o = r.runScenario(ctx, sc)
			}
			summary.add(o)
			if err := r.finish(ctx, seq, o); err != nil {
				errs = append(errs, err)
			}
		}
	}

	logger.Info("run finished",
		"passed", summary.Passed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	return summary, errors.Join(errs...)
}

// finish hands a finished scenario to metrics, the ledger and the reporter.
// It runs detached from the run deadline so late scenarios are still
// recorded.
func (r *Runner) finish(ctx context.Context, seq int, o Outcome) error {
	ctx = context.WithoutCancel(ctx)
	if r.metrics != nil {
		r.metrics.RecordScenario(o.Suite, string(o.CheckType), string(o.Status), o.Attempts, o.Duration)
	}

	var errs []error
	if r.ledger != nil {
		if err := r.ledger.RecordOutcome(ctx, r.runID, seq, o); err != nil {
			errs = append(errs, fmt.Errorf("record %q: %w", o.Scenario, err))
		}
	}
	if r.reporter != nil && o.Status != StatusSkipped {
		if err := r.reporter.Report(ctx, o); err != nil {
			errs = append(errs, fmt.Errorf("report %q: %w", o.Scenario, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) skipped(sc Scenario) Outcome {
	err := &TimeoutError{Scope: "global", Limit: r.settings.GlobalTimeout}
	return Outcome{
		Scenario:  sc.Name,
		Case:      sc.Case(),
		Suite:     sc.Suite,
		Kind:      sc.Kind,
		CheckType: sc.Type,
		Status:    StatusSkipped,
		Err:       err,
		Error:     err.Error(),
	}
}

// runScenario runs sc until it passes, fails for good, or runs out of
// retries.
func (r *Runner) runScenario(ctx context.Context, sc Scenario) Outcome {
	logger := r.logger.With("run_id", r.runID, "suite", sc.Suite, "scenario", sc.Name)
	start := r.clock.Now()
	o := Outcome{
		Scenario:  sc.Name,
		Case:      sc.Case(),
		Suite:     sc.Suite,
		Kind:      sc.Kind,
		CheckType: sc.Type,
	}

	for attempt := 1; ; attempt++ {
		o.Attempts = attempt
		res, st, err := r.attempt(ctx, sc, attempt, logger)
		o.Result = res
		o.Namespace = st.namespace
		o.Fixtures = append(o.Fixtures, st.fixtures...)

		if err == nil {
			o.Status, o.Err, o.Error, o.Artifacts = StatusPassed, nil, "", ""
			break
		}
		o.Status, o.Err, o.Error, o.Artifacts = StatusFailed, err, err.Error(), st.artifacts
		if attempt > r.settings.Retries || !IsRetryable(err) || ctx.Err() != nil {
			break
		}
		logger.Warn("scenario attempt failed, retrying", "attempt", attempt, "error", err)
	}
	o.Duration = r.clock.Now().Sub(start)

	if o.Passed() {
		logger.Info("scenario passed", "attempts", o.Attempts, "duration", o.Duration)
	} else {
		logger.Error("scenario failed", "attempts", o.Attempts, "error", o.Err, "artifacts", o.Artifacts)
	}
	return o
}

// attemptState is what one attempt leaves behind besides its trace.
type attemptState struct {
	namespace string
	fixtures  []Fixture
	artifacts string
}

func (r *Runner) attempt(ctx context.Context, sc Scenario, attempt int, logger *slog.Logger) (*Result, *attemptState, error) {
	res := NewResult()
	st := &attemptState{}

	actx := ctx
	if r.settings.ScenarioTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, r.settings.ScenarioTimeout)
		defer cancel()
	}

	err := r.execute(actx, sc, attempt, res, st, logger.With("attempt", attempt))
	if err != nil {
		err = r.classify(ctx, actx, err)
		res.AddError(err.Error())
	}
	return res, st, err
}

// classify turns an error caused by an expired scenario or run deadline
// into a TimeoutError. Per-action timeouts are left as they are.
func (r *Runner) classify(runCtx, scenarioCtx context.Context, err error) error {
	if err == nil || IsTimeoutError(err) {
		return err
	}
	switch {
	case runCtx.Err() != nil:
		return &TimeoutError{Scope: "global", Limit: r.settings.GlobalTimeout, Err: err}
	case scenarioCtx.Err() != nil:
		return &TimeoutError{Scope: "scenario", Limit: r.settings.ScenarioTimeout, Err: err}
	}
	return err
}

// execute is one attempt: acquire a scope, drive the form, assert the row,
// release the scope.
func (r *Runner) execute(ctx context.Context, sc Scenario, attempt int, res *Result, st *attemptState, logger *slog.Logger) (err error) {
	contract, err := catalog.Lookup(sc.Type)
	if err != nil {
		return err
	}

	scope, err := isolation.Acquire(ctx, r.client, isolation.Options{
		BaseTag:     r.settings.BaseTag,
		Suite:       sc.Suite,
		Placeholder: true,
		Namespaces:  r.namespaces,
		Logger:      logger,
		OnDeleted:   r.onDeleted,
	})
	args := map[string]string{"suite": sc.Suite}
	if scope != nil {
		args["namespace"] = scope.Namespace
	}
	res.AddEvent(PhaseSetup, "acquire", args)
	if err != nil {
		res.failLast(err)
		return fmt.Errorf("setup: %w", err)
	}
	st.namespace = scope.Namespace

	var ui []Fixture
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		rerr := scope.Release(rctx)
		res.AddEvent(PhaseTeardown, "release", map[string]string{"namespace": scope.Namespace})
		if rerr != nil {
			res.failLast(rerr)
			err = errors.Join(err, fmt.Errorf("teardown: %w", rerr))
		}
		for _, c := range scope.Created() {
			t := sc.Type
			if c == scope.Placeholder {
				t = catalog.HTTP
			}
			st.fixtures = append(st.fixtures, Fixture{Source: "api", Name: c.Name, CheckType: t, URL: c.URL})
		}
		st.fixtures = append(st.fixtures, ui...)
	}()

	var opts []flow.Option
	opts = append(opts, flow.WithLogger(logger))
	if r.settings.ArtifactsDir != "" {
		st.artifacts = filepath.Join(r.settings.ArtifactsDir, slug(sc.Suite), slug(sc.Name), fmt.Sprintf("attempt-%d", attempt))
		opts = append(opts, flow.WithArtifactsDir(st.artifacts))
	}
	checks := flow.NewChecks(r.drv, r.settings.BaseURL, opts...)

	var name string
	switch sc.Kind {
	case KindCreate:
		name, err = r.create(ctx, checks, contract, sc, scope, res)
	case KindEdit:
		name, err = r.edit(ctx, checks, contract, sc, scope, res)
	default:
		err = fmt.Errorf("unknown scenario kind %q", sc.Kind)
	}
	if name != "" {
		ui = append(ui, Fixture{Source: "ui", Name: name, CheckType: sc.Type})
	}
	return err
}

// create fills the Add Check form and asserts the new row. It returns the
// name of the check once the form was saved.
func (r *Runner) create(ctx context.Context, checks *flow.Checks, contract catalog.Contract, sc Scenario, scope *isolation.Scope, res *Result) (string, error) {
	if err := r.open(ctx, checks, scope, res); err != nil {
		return "", err
	}

	v := r.values(contract, sc, scope.Tags())
	form, err := checks.CreateCheck(ctx, sc.Type, v)
	res.AddEvent(PhaseFlow, "create", formArgs(sc.Type, form))
	if err != nil {
		res.failLast(err)
		return "", err
	}

	row, err := contract.ExpectedRow(v.Name, v.Target)
	if err != nil {
		return v.Name, err
	}
	return v.Name, r.expectRow(ctx, checks, contract, row, res)
}

// edit creates a fixture through the API, renames and re-targets it
// through the Edit Check form and asserts the updated row.
func (r *Runner) edit(ctx context.Context, checks *flow.Checks, contract catalog.Contract, sc Scenario, scope *isolation.Scope, res *Result) (string, error) {
	original := r.facts.Name()
	originalTarget := r.target(contract, sc)
	_, err := scope.CreateFixture(ctx, sc.Type, original, originalTarget, nil)
	res.AddEvent(PhaseSetup, "create_fixture", map[string]string{"type": string(sc.Type)})
	if err != nil {
		res.failLast(err)
		return "", fmt.Errorf("setup: %w", err)
	}

	if err := r.open(ctx, checks, scope, res); err != nil {
		return "", err
	}

	v := r.values(contract, sc, scope.Tags())
	expected := v.Target
	switch contract.Target {
	case catalog.TargetScript:
		// The transaction editor is left alone; the check keeps its script.
		v.Target = ""
		expected = originalTarget
	case catalog.TargetStepURL:
		// An added step does not replace the first one, which the list
		// keeps rendering.
		expected = originalTarget
	}

	form, err := checks.EditCheck(ctx, sc.Type, original, v)
	res.AddEvent(PhaseFlow, "edit", formArgs(sc.Type, form))
	if err != nil {
		res.failLast(err)
		return "", err
	}

	res.AddEvent(PhaseFlow, "search", nil)
	if err := checks.ClearSearch(ctx); err != nil {
		res.failLast(err)
		return v.Name, err
	}
	if err := checks.Search(ctx, v.Name); err != nil {
		res.failLast(err)
		return v.Name, err
	}

	row, err := contract.ExpectedRow(v.Name, expected)
	if err != nil {
		return v.Name, err
	}
	return v.Name, r.expectRow(ctx, checks, contract, row, res)
}

func (r *Runner) open(ctx context.Context, checks *flow.Checks, scope *isolation.Scope, res *Result) error {
	res.AddEvent(PhaseFlow, "open", map[string]string{"tags": scope.BaseTag + "," + scope.SuiteTag})
	if err := checks.Open(ctx, scope.BaseTag, scope.SuiteTag); err != nil {
		res.failLast(err)
		return err
	}
	return nil
}

func (r *Runner) expectRow(ctx context.Context, checks *flow.Checks, contract catalog.Contract, row catalog.Row, res *Result) error {
	res.AddEvent(PhaseAssert, "expect_row", map[string]string{
		"type_label": row.TypeLabel,
		"address":    string(contract.Address),
	})
	if err := checks.ExpectRow(ctx, row); err != nil {
		res.failLast(err)
		return err
	}
	return nil
}

// values generates fresh form values for sc.
func (r *Runner) values(contract catalog.Contract, sc Scenario, tags []string) flow.Values {
	v := flow.Values{Name: r.facts.Name(), Tags: tags}
	if contract.HasTarget() {
		v.Target = r.target(contract, sc)
	}
	for _, f := range contract.Fields {
		switch f.Kind {
		case catalog.FieldPort:
			v.Port = r.facts.Port()
		case catalog.FieldSend:
			v.Send = r.facts.Word()
		case catalog.FieldExpect:
			v.Expect = r.facts.Word()
		case catalog.FieldThreshold:
			v.Threshold = sc.Threshold
			if v.Threshold == "" {
				v.Threshold = r.facts.Threshold()
			}
		}
	}
	return v
}

// target returns the scenario's pinned target or a generated one of the
// contract's kind.
func (r *Runner) target(contract catalog.Contract, sc Scenario) string {
	if sc.Target != "" {
		return sc.Target
	}
	switch contract.Target {
	case catalog.TargetNone:
		return ""
	case catalog.TargetURL:
		return r.facts.URL()
	default:
		return r.facts.Domain()
	}
}

func (r *Runner) onDeleted(n int) {
	if r.metrics != nil {
		r.metrics.RecordDeleted(n)
	}
}

func formArgs(t catalog.Type, form *flow.Form) map[string]string {
	args := map[string]string{"type": string(t)}
	if form != nil {
		args["state"] = form.State().String()
	}
	return args
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
