// Package store is the SQLite run ledger.
//
// Every run records one row in runs, one row per finished scenario in
// outcomes and one row per check the scenario created in fixtures. The
// fixtures table is what an operator reads when a teardown failed and
// checks were left in the shared account.
//
// # Ordering
//
// Outcomes are keyed by (run_id, seq), where seq is the scenario's position
// in the run. Reads order by seq, never by wall time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
