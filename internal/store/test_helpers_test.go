package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/upcheck/internal/catalog"
	"github.com/roach88/upcheck/internal/harness"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustBeginRun(t *testing.T, s *Store, runID string) {
	t.Helper()
	if err := s.BeginRun(context.Background(), runID, "https://app.example.com", t0); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
}

// createTestOutcome creates a passed outcome with one trace event and
// two fixtures.
func createTestOutcome(scenario string, typ catalog.Type) harness.Outcome {
	res := harness.NewResult()
	res.AddEvent(harness.PhaseSetup, "acquire", map[string]string{"namespace": "ns-1"})
	return harness.Outcome{
		Scenario:  scenario,
		Case:      "C30",
		Suite:     harness.SuiteCreate,
		Kind:      harness.KindCreate,
		CheckType: typ,
		Status:    harness.StatusPassed,
		Attempts:  1,
		Namespace: "ns-1",
		Duration:  1500 * time.Millisecond,
		Result:    res,
		Fixtures: []harness.Fixture{
			{Source: "api", Name: "placeholder ns-1", CheckType: catalog.HTTP, URL: "https://api.example.com/api/v1/checks/5/"},
			{Source: "ui", Name: scenario + " check", CheckType: typ},
		},
	}
}
