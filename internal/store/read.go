package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/upcheck/internal/catalog"
	"github.com/roach88/upcheck/internal/harness"
)

// Entry is one recorded outcome together with its run.
type Entry struct {
	RunID     string          `json:"run_id"`
	StartedAt time.Time       `json:"started_at"`
	BaseURL   string          `json:"base_url"`
	Seq       int             `json:"seq"`
	Scenario  string          `json:"scenario"`
	Case      string          `json:"case,omitempty"`
	Suite     string          `json:"suite"`
	Kind      harness.Kind    `json:"kind"`
	CheckType catalog.Type    `json:"check_type"`
	Status    harness.Status  `json:"status"`
	Attempts  int             `json:"attempts"`
	Error     string          `json:"error,omitempty"`
	Namespace string          `json:"namespace,omitempty"`
	Duration  time.Duration   `json:"duration"`
	Artifacts string          `json:"artifacts,omitempty"`
	Fixtures  []FixtureRecord `json:"fixtures"`
}

// FixtureRecord is a check created during a recorded scenario.
type FixtureRecord struct {
	Source      string       `json:"source"`
	Name        string       `json:"name"`
	CheckType   catalog.Type `json:"check_type"`
	ResourceURL string       `json:"resource_url,omitempty"`
}

// History returns the outcomes of the most recent runs, newest run first
// and in run order within a run. limit caps the number of outcomes;
// zero or less means no cap.
func (s *Store) History(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.run_id, r.started_at, r.base_url, o.seq, o.scenario, o.case_id,
		       o.suite, o.kind, o.check_type, o.status, o.attempts, o.error,
		       o.namespace, o.duration_ms, o.artifacts
		FROM outcomes o
		JOIN runs r ON r.id = o.run_id
		ORDER BY r.started_at DESC, o.run_id COLLATE BINARY ASC, o.seq ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	for i := range entries {
		fixtures, err := s.fixtures(ctx, entries[i].RunID, entries[i].Seq)
		if err != nil {
			return nil, err
		}
		entries[i].Fixtures = fixtures
	}
	return entries, nil
}

// Trace returns the recorded trace of one outcome.
// Returns sql.ErrNoRows if the outcome does not exist.
func (s *Store) Trace(ctx context.Context, runID string, seq int) ([]harness.TraceEvent, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT trace FROM outcomes WHERE run_id = ? AND seq = ?
	`, runID, seq).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("read trace %s/%d: %w", runID, seq, err)
	}

	events := []harness.TraceEvent{}
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		return nil, fmt.Errorf("decode trace %s/%d: %w", runID, seq, err)
	}
	return events, nil
}

func (s *Store) fixtures(ctx context.Context, runID string, seq int) ([]FixtureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, name, check_type, resource_url
		FROM fixtures
		WHERE run_id = ? AND seq = ?
		ORDER BY id ASC
	`, runID, seq)
	if err != nil {
		return nil, fmt.Errorf("query fixtures: %w", err)
	}
	defer rows.Close()

	out := []FixtureRecord{}
	for rows.Next() {
		var f FixtureRecord
		var checkType string
		if err := rows.Scan(&f.Source, &f.Name, &checkType, &f.ResourceURL); err != nil {
			return nil, fmt.Errorf("scan fixture: %w", err)
		}
		f.CheckType = catalog.Type(checkType)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fixtures: %w", err)
	}
	return out, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                               Entry
		started, kind, checkType, state string
		durationMS                      int64
	)
	err := rows.Scan(
		&e.RunID, &started, &e.BaseURL, &e.Seq, &e.Scenario, &e.Case,
		&e.Suite, &kind, &checkType, &state, &e.Attempts, &e.Error,
		&e.Namespace, &durationMS, &e.Artifacts,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("scan outcome: %w", err)
	}

	e.StartedAt, err = time.Parse(timeLayout, started)
	if err != nil {
		return Entry{}, fmt.Errorf("parse started_at %q: %w", started, err)
	}
	e.Kind = harness.Kind(kind)
	e.CheckType = catalog.Type(checkType)
	e.Status = harness.Status(state)
	e.Duration = time.Duration(durationMS) * time.Millisecond
	return e, nil
}
