package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the golden-file form of a scenario outcome.
type TraceSnapshot struct {
	Scenario string       `json:"scenario"`
	Status   Status       `json:"status"`
	Attempts int          `json:"attempts"`
	Trace    []TraceEvent `json:"trace"`
}

// Snapshot renders the trace of o's last attempt as indented JSON.
func Snapshot(o Outcome) ([]byte, error) {
	snap := TraceSnapshot{
		Scenario: o.Scenario,
		Status:   o.Status,
		Attempts: o.Attempts,
		Trace:    []TraceEvent{},
	}
	if o.Result != nil {
		snap.Trace = o.Result.Trace
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// AssertGolden compares the trace of o against
// testdata/golden/<scenario slug>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, o Outcome) {
	t.Helper()

	data, err := Snapshot(o)
	if err != nil {
		t.Fatalf("snapshot %q: %v", o.Scenario, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, slug(o.Scenario), data)
}
