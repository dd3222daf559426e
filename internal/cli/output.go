package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/upcheck/internal/harness"
)

// Exit codes shared by every command.
const (
	ExitSuccess      = 0 // every scenario passed, or the command did what it was asked
	ExitFailure      = 1 // a scenario failed or was skipped, or the run itself broke
	ExitCommandError = 2 // bad flags, configuration, catalog or suite files
)

// Error codes carried in CLIError.Code.
const (
	ErrCodeGeneric         = "E001"
	ErrCodeConfig          = "E002"
	ErrCodeCatalog         = "E003"
	ErrCodeSuites          = "E004"
	ErrCodeFixtures        = "E005"
	ErrCodeLedger          = "E006"
	ErrCodeScenariosFailed = "E_SCENARIOS_FAILED"
)

// ExitError carries the process exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error

	// Reported is set when the command already wrote its own result, so
	// main only sets the exit code.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError creates an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of the first ExitError in err's chain, or
// ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope every --format json command writes.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes why a command did not succeed.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results to stdout as text or as a
// CLIResponse. Diagnostics go through the slog logger instead.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

func (f *OutputFormatter) json() bool { return f.Format == "json" }

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Success writes data. In text mode data is printed as is, so callers pass
// the line they want shown.
func (f *OutputFormatter) Success(data any) error {
	if f.json() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a failure. Text mode shows details only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.json() {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		_, err := fmt.Fprintf(f.Writer, "Details: %v\n", details)
		return err
	}
	return nil
}

// Run writes a finished run. A run with failed or skipped scenarios is an
// E_SCENARIOS_FAILED error whose details name those scenarios; a run whose
// scenarios all passed but which hit run-level errors (ledger, reporter,
// release) reports those under E001. Either way the full result is in data.
func (f *OutputFormatter) Run(result RunResult) error {
	if !f.json() {
		return writeRunText(f.Writer, result)
	}

	resp := CLIResponse{Status: "ok", Data: result}
	if notOK := result.Failed + result.Skipped; notOK > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    ErrCodeScenariosFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", notOK),
			Details: result.notPassed(),
		}
	} else if len(result.RunErrors) > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    ErrCodeGeneric,
			Message: "run completed with errors",
			Details: result.RunErrors,
		}
	}
	return f.encode(resp)
}

// notPassed names every scenario that did not pass, in run order.
func (r RunResult) notPassed() []string {
	var names []string
	for _, sc := range r.Scenarios {
		if sc.Status != string(harness.StatusPassed) {
			names = append(names, sc.Name)
		}
	}
	return names
}

func writeRunText(w io.Writer, result RunResult) error {
	for _, sc := range result.Scenarios {
		switch sc.Status {
		case string(harness.StatusPassed):
			fmt.Fprintf(w, "✓ %s\n", sc.Name)
		case string(harness.StatusSkipped):
			fmt.Fprintf(w, "- %s (skipped)\n", sc.Name)
		default:
			fmt.Fprintf(w, "✗ %s (%d attempt(s))\n", sc.Name, sc.Attempts)
			for _, e := range sc.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
			if sc.Artifacts != "" {
				fmt.Fprintf(w, "  artifacts: %s\n", sc.Artifacts)
			}
		}
	}
	for _, e := range result.RunErrors {
		fmt.Fprintf(w, "! %s\n", e)
	}

	fmt.Fprintln(w)
	_, err := fmt.Fprintf(w, "Run %s: %d passed, %d failed, %d skipped, %d total\n",
		result.RunID, result.Passed, result.Failed, result.Skipped, result.Total)
	if err != nil {
		return err
	}
	if result.Failed == 0 && result.Skipped == 0 && len(result.RunErrors) == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
	return nil
}
