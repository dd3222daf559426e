package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mixedRun() RunResult {
	return RunResult{
		RunID: "run-1",
		Scenarios: []ScenarioResult{
			{Name: "C30 Create Check / DNS", Suite: "checks_create", Status: "passed", Attempts: 1},
			{
				Name: "C42 Create Check / TCP Port", Suite: "checks_create", Status: "failed", Attempts: 2,
				Errors:    []string{"fill Port: element detached"},
				Artifacts: "artifacts/run-1/002",
			},
			{Name: "C50 Edit Check / SSL", Suite: "checks_edit", Status: "skipped"},
		},
		Passed:  1,
		Failed:  1,
		Skipped: 1,
		Total:   3,
	}
}

func goldenRun(t *testing.T, format string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: format, Writer: buf}
	require.NoError(t, f.Run(mixedRun()))
	return buf.Bytes()
}

func TestOutputFormatter_RunGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "run_failed_json", goldenRun(t, "json"))
	g.Assert(t, "run_failed_text", goldenRun(t, "text"))
}

func TestOutputFormatter_RunPassed(t *testing.T) {
	result := RunResult{
		RunID:     "run-2",
		Scenarios: []ScenarioResult{{Name: "C1 Create Check / ICMP", Status: "passed", Attempts: 1}},
		Passed:    1,
		Total:     1,
	}

	buf := &bytes.Buffer{}
	require.NoError(t, (&OutputFormatter{Format: "json", Writer: buf}).Run(result))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)

	buf.Reset()
	require.NoError(t, (&OutputFormatter{Format: "text", Writer: buf}).Run(result))
	assert.Contains(t, buf.String(), "✓ All scenarios passed")
}

func TestOutputFormatter_RunErrorsWithoutFailures(t *testing.T) {
	result := RunResult{
		RunID:     "run-3",
		Scenarios: []ScenarioResult{{Name: "C1 Create Check / ICMP", Status: "passed", Attempts: 1}},
		Passed:    1,
		Total:     1,
		RunErrors: []string{"ledger: disk full", "release checks_create: DELETE returned 500"},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, (&OutputFormatter{Format: "json", Writer: buf}).Run(result))

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string   `json:"code"`
			Details []string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeGeneric, resp.Error.Code)
	assert.Equal(t, result.RunErrors, resp.Error.Details)

	buf.Reset()
	require.NoError(t, (&OutputFormatter{Format: "text", Writer: buf}).Run(result))
	assert.Contains(t, buf.String(), "! ledger: disk full")
	assert.NotContains(t, buf.String(), "All scenarios passed")
}

func TestOutputFormatter_Error(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		verbose bool
		want    []string
		notWant []string
	}{
		{"text hides details", "text", false, []string{"Error [E002]: failed to load configuration"}, []string{"Details:"}},
		{"text verbose shows details", "text", true, []string{"Error [E002]", "Details: UP_E2E_URL is required"}, nil},
		{"json", "json", false, []string{`"code": "E002"`, `"details": "UP_E2E_URL is required"`}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: tt.format, Writer: buf, Verbose: tt.verbose}
			require.NoError(t, f.Error(ErrCodeConfig, "failed to load configuration", "UP_E2E_URL is required"))
			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestOutputFormatter_SuccessText(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&OutputFormatter{Format: "text", Writer: buf}).Success("✓ deleted 2 check(s)"))
	assert.Equal(t, "✓ deleted 2 check(s)\n", buf.String())
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"exit error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("run: %w", WrapExitError(ExitFailure, "scenarios failed", errors.New("x"))), ExitFailure},
		{"plain error", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	cause := errors.New("no such file")
	wrapped := WrapExitError(ExitCommandError, "load suites", cause)
	assert.Equal(t, "load suites: no such file", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "3 scenario(s) failed", NewExitError(ExitFailure, "3 scenario(s) failed").Error())
}
