package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/upcheck/internal/harness"
)

var _ harness.Ledger = (*Store)(nil)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// BeginRun records the start of a run.
// Uses ON CONFLICT(id) DO NOTHING, so re-recording a run is a no-op.
func (s *Store) BeginRun(ctx context.Context, runID, baseURL string, started time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, base_url)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, runID, started.UTC().Format(timeLayout), baseURL)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordOutcome stores a finished scenario and its fixtures in one
// transaction. The run must have been begun. A second outcome for the same
// (runID, seq) is ignored together with its fixtures.
func (s *Store) RecordOutcome(ctx context.Context, runID string, seq int, o harness.Outcome) error {
	trace := []byte("[]")
	if o.Result != nil && len(o.Result.Trace) > 0 {
		var err error
		if trace, err = json.Marshal(o.Result.Trace); err != nil {
			return fmt.Errorf("record outcome: encode trace: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO outcomes
		(run_id, seq, scenario, case_id, suite, kind, check_type, status,
		 attempts, error, namespace, duration_ms, artifacts, trace)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		seq,
		o.Scenario,
		o.Case,
		o.Suite,
		string(o.Kind),
		string(o.CheckType),
		string(o.Status),
		o.Attempts,
		o.Error,
		o.Namespace,
		o.Duration.Milliseconds(),
		o.Artifacts,
		string(trace),
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if n == 0 {
		return nil
	}

	for _, f := range o.Fixtures {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO fixtures (run_id, seq, source, name, check_type, resource_url)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, seq, f.Source, f.Name, string(f.CheckType), f.URL)
		if err != nil {
			return fmt.Errorf("record fixture %q: %w", f.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record outcome: commit: %w", err)
	}
	return nil
}
