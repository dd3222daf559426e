// Package report forwards scenario outcomes to TestRail.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/upcheck/internal/harness"
)

// TestRail result statuses.
const (
	StatusPassed = 1
	StatusFailed = 5
)

// PassedComment annotates every passed result.
const PassedComment = "This is passed and commented from automation"

// ErrNoRunID is returned when no TestRail run id is configured for the
// target environment.
var ErrNoRunID = errors.New("Testrail run id is not given")

// Config addresses one TestRail project.
type Config struct {
	// Endpoint is the API root, e.g. https://example.testrail.io/index.php?/api/v2/
	Endpoint string
	Username string
	Password string

	StagingRunID    string
	ProductionRunID string

	// BaseURL is the application under test. URLs containing "staging"
	// report into StagingRunID.
	BaseURL string
}

// RunID returns the run results are added to.
func (c Config) RunID() (string, error) {
	id := c.ProductionRunID
	if strings.Contains(c.BaseURL, "staging") {
		id = c.StagingRunID
	}
	if id == "" {
		return "", ErrNoRunID
	}
	return id, nil
}

// TestRail implements harness.Reporter.
type TestRail struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

var _ harness.Reporter = (*TestRail)(nil)

// Option configures a TestRail reporter.
type Option func(*TestRail)

func WithHTTPClient(hc *http.Client) Option {
	return func(t *TestRail) { t.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *TestRail) { t.logger = l }
}

// NewTestRail creates a reporter. It fails when no run id applies to
// cfg.BaseURL.
func NewTestRail(cfg Config, opts ...Option) (*TestRail, error) {
	if _, err := cfg.RunID(); err != nil {
		return nil, err
	}
	t := &TestRail{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type result struct {
	StatusID int    `json:"status_id"`
	Comment  string `json:"comment"`
}

// Report adds the outcome as a result for its case. Outcomes without a
// case id and skipped scenarios are not reported.
func (t *TestRail) Report(ctx context.Context, o harness.Outcome) error {
	if o.Case == "" {
		t.logger.Warn("scenario has no case id, not reported", "scenario", o.Scenario)
		return nil
	}

	var r result
	switch o.Status {
	case harness.StatusPassed:
		r = result{StatusID: StatusPassed, Comment: PassedComment}
	case harness.StatusFailed:
		quoted, err := json.Marshal(o.Error)
		if err != nil {
			return fmt.Errorf("encode error message: %w", err)
		}
		r = result{StatusID: StatusFailed, Comment: string(quoted)}
	default:
		return nil
	}

	runID, err := t.cfg.RunID()
	if err != nil {
		return err
	}
	caseID := strings.TrimPrefix(o.Case, "C")
	url := t.cfg.Endpoint + "add_result_for_case/" + runID + "/" + caseID
	return t.post(ctx, url, r)
}

func (t *TestRail) post(ctx context.Context, url string, body result) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(t.cfg.Username, t.cfg.Password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	t.logger.Debug("testrail result added", "url", url, "status", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
