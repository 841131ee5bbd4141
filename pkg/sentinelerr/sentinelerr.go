// Package sentinelerr defines the error taxonomy of the comparison engine
// (spec §7). Each kind wraps an underlying cause so callers can use
// errors.As to decide how far the error should propagate: a BatchError is
// absorbed by the orchestrator, everything else aborts its enclosing scope.
package sentinelerr

import "fmt"

// ConfigError indicates a missing or malformed configuration. Fatal at startup.
type ConfigError struct{ Cause error }

func (e *ConfigError) Error() string { return fmt.Sprintf("config error: %v", e.Cause) }
func (e *ConfigError) Unwrap() error { return e.Cause }

// ConnectError indicates a database could not be reached. Fatal per-run.
type ConnectError struct {
	Role  string // "source" or "target"
	Cause error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect error (%s): %v", e.Role, e.Cause)
}
func (e *ConnectError) Unwrap() error { return e.Cause }

// SchemaMismatchError indicates a declared primary-key column is absent from
// the columns actually returned by a fetch. Fatal per-table.
type SchemaMismatchError struct {
	Schema, Table, Column string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: %s.%s: primary key column %q not present in projection", e.Schema, e.Table, e.Column)
}

// BatchError indicates a transient or SQL-level fault during one batch.
// It is recorded and survived: the orchestrator checkpoints it as ERROR,
// audits it, and continues with sibling batches.
type BatchError struct {
	BatchID int
	Cause   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d failed: %v", e.BatchID, e.Cause)
}
func (e *BatchError) Unwrap() error { return e.Cause }

// ReverifyError indicates a failure during post-aggregation reverification.
// Fatal per-table: no remediation SQL is emitted for the table.
type ReverifyError struct{ Cause error }

func (e *ReverifyError) Error() string { return fmt.Sprintf("reverify error: %v", e.Cause) }
func (e *ReverifyError) Unwrap() error { return e.Cause }

// EmitError indicates a file I/O failure while writing remediation SQL.
// Fatal per-table.
type EmitError struct{ Cause error }

func (e *EmitError) Error() string { return fmt.Sprintf("emit error: %v", e.Cause) }
func (e *EmitError) Unwrap() error { return e.Cause }
