// Package checkpoint persists batch progress and audit events to tables in
// the source database, giving a killed run something to resume from and an
// operator something to read after the fact.
package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/block/dbsentinel/pkg/dbconn"
)

// Status is the lifecycle state of one batch checkpoint.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusError     Status = "ERROR"
)

// BatchCheckpoint is keyed by (JobID, Schema, Table, BatchID); the store
// uses upsert semantics on this key (Invariant D1).
type BatchCheckpoint struct {
	JobID             string
	Schema            string
	Table             string
	BatchID           int
	LastOffset        int
	ProcessedRows     int
	TotalRows         int
	Status            Status
	ErrorMessage      string
	LastProcessedTime time.Time
}

// EventType distinguishes the two audit event shapes.
type EventType string

const (
	EventBatch EventType = "BATCH"
	EventError EventType = "ERROR"
)

// AuditEvent is an append-only record keyed by (JobID, EventTime).
type AuditEvent struct {
	JobID         string
	EventTime     time.Time
	EventType     EventType
	Schema        string
	Table         string
	BatchID       int
	RowCount      int
	MismatchCount int
	Status        Status
	Details       string
}

// Store persists BatchCheckpoints and AuditEvents to tables in the source
// database. Both tables are created by EnsureSchema if they do not exist.
// The store dispatches its SQL on conn.Dialect, since spec §4.7 allows the
// source side (and therefore this store) to be either MySQL or Oracle.
type Store struct {
	conn          *dbconn.Connector
	metadataTable string
	auditTable    string
}

// NewStore returns a Store backed by conn, writing to metadataTable and
// auditTable (schema-qualified by the caller if needed).
func NewStore(conn *dbconn.Connector, metadataTable, auditTable string) *Store {
	return &Store{conn: conn, metadataTable: metadataTable, auditTable: auditTable}
}

// isOracle reports whether the store's connector is talking to Oracle, the
// one place checkpoint SQL diverges from the MySQL shape.
func (s *Store) isOracle() bool {
	return s.conn.Dialect.Name() == "oracle"
}

// placeholder returns the bind marker for position n (1-indexed): "?" for
// MySQL, ":n" for Oracle — the same convention dialect.Oracle.SelectExists
// already uses.
func (s *Store) placeholder(n int) string {
	if s.isOracle() {
		return fmt.Sprintf(":%d", n)
	}
	return "?"
}

func (s *Store) placeholders(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = s.placeholder(i + 1)
	}
	return strings.Join(out, ", ")
}

// EnsureSchema creates the metadata and audit tables if they do not
// already exist. It is safe to call on every run.
func (s *Store) EnsureSchema(ctx context.Context) error {
	var stmts []string
	if s.isOracle() {
		stmts = []string{
			wrapIfNotExists(fmt.Sprintf(`CREATE TABLE %s (
				job_id VARCHAR2(64) NOT NULL,
				schema_name VARCHAR2(128) NOT NULL,
				table_name VARCHAR2(128) NOT NULL,
				batch_id NUMBER(10) NOT NULL,
				last_offset NUMBER(19) NOT NULL,
				processed_rows NUMBER(19) NOT NULL,
				total_rows NUMBER(19) NOT NULL,
				status VARCHAR2(16) NOT NULL,
				error_message CLOB,
				last_processed_time TIMESTAMP NOT NULL,
				PRIMARY KEY (job_id, schema_name, table_name, batch_id)
			)`, s.metadataTable)),
			wrapIfNotExists(fmt.Sprintf(`CREATE TABLE %s (
				job_id VARCHAR2(64) NOT NULL,
				event_time TIMESTAMP(6) NOT NULL,
				event_type VARCHAR2(16) NOT NULL,
				schema_name VARCHAR2(128) NOT NULL,
				table_name VARCHAR2(128) NOT NULL,
				batch_id NUMBER(10) NOT NULL,
				row_count NUMBER(19) NOT NULL,
				mismatch_count NUMBER(19) NOT NULL,
				status VARCHAR2(16) NOT NULL,
				details CLOB,
				PRIMARY KEY (job_id, event_time)
			)`, s.auditTable)),
		}
	} else {
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				job_id VARCHAR(64) NOT NULL,
				schema_name VARCHAR(128) NOT NULL,
				table_name VARCHAR(128) NOT NULL,
				batch_id INT NOT NULL,
				last_offset INT NOT NULL,
				processed_rows INT NOT NULL,
				total_rows INT NOT NULL,
				status VARCHAR(16) NOT NULL,
				error_message TEXT,
				last_processed_time DATETIME NOT NULL,
				PRIMARY KEY (job_id, schema_name, table_name, batch_id)
			)`, s.metadataTable),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				job_id VARCHAR(64) NOT NULL,
				event_time DATETIME(6) NOT NULL,
				event_type VARCHAR(16) NOT NULL,
				schema_name VARCHAR(128) NOT NULL,
				table_name VARCHAR(128) NOT NULL,
				batch_id INT NOT NULL,
				row_count INT NOT NULL,
				mismatch_count INT NOT NULL,
				status VARCHAR(16) NOT NULL,
				details TEXT,
				PRIMARY KEY (job_id, event_time)
			)`, s.auditTable),
		}
	}
	for _, stmt := range stmts {
		if _, err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("checkpoint: ensure schema: %w", err)
		}
	}
	return nil
}

// wrapIfNotExists guards an Oracle CREATE TABLE statement against
// ORA-00955 ("name is already used by an existing object"), since Oracle
// has no CREATE TABLE IF NOT EXISTS syntax of its own.
func wrapIfNotExists(createStmt string) string {
	return fmt.Sprintf(`BEGIN
		EXECUTE IMMEDIATE '%s';
	EXCEPTION
		WHEN OTHERS THEN
			IF SQLCODE != -955 THEN
				RAISE;
			END IF;
	END;`, strings.ReplaceAll(createStmt, "'", "''"))
}

// Save upserts cp on (job_id, schema, table, batch_id), committing a
// single transaction per call (no batching, per the specified tradeoff).
func (s *Store) Save(ctx context.Context, cp BatchCheckpoint) error {
	args := []any{
		cp.JobID, cp.Schema, cp.Table, cp.BatchID, cp.LastOffset, cp.ProcessedRows,
		cp.TotalRows, string(cp.Status), cp.ErrorMessage, cp.LastProcessedTime,
	}

	var stmt string
	if s.isOracle() {
		stmt = fmt.Sprintf(`MERGE INTO %s tgt
			USING (SELECT %s job_id, %s schema_name, %s table_name, %s batch_id,
				%s last_offset, %s processed_rows, %s total_rows, %s status,
				%s error_message, %s last_processed_time FROM dual) src
			ON (tgt.job_id = src.job_id AND tgt.schema_name = src.schema_name
				AND tgt.table_name = src.table_name AND tgt.batch_id = src.batch_id)
			WHEN MATCHED THEN UPDATE SET
				tgt.last_offset = src.last_offset,
				tgt.processed_rows = src.processed_rows,
				tgt.total_rows = src.total_rows,
				tgt.status = src.status,
				tgt.error_message = src.error_message,
				tgt.last_processed_time = src.last_processed_time
			WHEN NOT MATCHED THEN INSERT
				(job_id, schema_name, table_name, batch_id, last_offset, processed_rows,
				 total_rows, status, error_message, last_processed_time)
			VALUES
				(src.job_id, src.schema_name, src.table_name, src.batch_id, src.last_offset,
				 src.processed_rows, src.total_rows, src.status, src.error_message, src.last_processed_time)`,
			s.metadataTable,
			s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
			s.placeholder(5), s.placeholder(6), s.placeholder(7), s.placeholder(8),
			s.placeholder(9), s.placeholder(10))
	} else {
		stmt = fmt.Sprintf(`INSERT INTO %s
			(job_id, schema_name, table_name, batch_id, last_offset, processed_rows, total_rows, status, error_message, last_processed_time)
			VALUES (%s)
			ON DUPLICATE KEY UPDATE
			last_offset = VALUES(last_offset),
			processed_rows = VALUES(processed_rows),
			total_rows = VALUES(total_rows),
			status = VALUES(status),
			error_message = VALUES(error_message),
			last_processed_time = VALUES(last_processed_time)`, s.metadataTable, s.placeholders(10))
	}

	if _, err := s.conn.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("checkpoint: save batch %d for %s.%s: %w", cp.BatchID, cp.Schema, cp.Table, err)
	}
	return nil
}

// LoadCompleted returns the set of batch IDs whose checkpoint status is
// COMPLETED for (jobID, schema, table), used to compute the resume
// watermark via fetch.ResumeStartBatch.
func (s *Store) LoadCompleted(ctx context.Context, jobID, schema, table string) (map[int]bool, error) {
	q := fmt.Sprintf(`SELECT batch_id FROM %s WHERE job_id = %s AND schema_name = %s AND table_name = %s AND status = %s`,
		s.metadataTable, s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4))
	rows, err := s.conn.QueryContext(ctx, q, jobID, schema, table, string(StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: load completed for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	out := make(map[int]bool)
	for rows.Next() {
		var batchID int
		if err := rows.Scan(&batchID); err != nil {
			return nil, fmt.Errorf("checkpoint: scan completed for %s.%s: %w", schema, table, err)
		}
		out[batchID] = true
	}
	return out, rows.Err()
}

// LogEvent inserts an audit event, committing a single transaction per
// call.
func (s *Store) LogEvent(ctx context.Context, ev AuditEvent) error {
	stmt := fmt.Sprintf(`INSERT INTO %s
		(job_id, event_time, event_type, schema_name, table_name, batch_id, row_count, mismatch_count, status, details)
		VALUES (%s)`, s.auditTable, s.placeholders(10))
	_, err := s.conn.Exec(ctx, stmt,
		ev.JobID, ev.EventTime, string(ev.EventType), ev.Schema, ev.Table, ev.BatchID,
		ev.RowCount, ev.MismatchCount, string(ev.Status), ev.Details)
	if err != nil {
		return fmt.Errorf("checkpoint: log event for %s.%s: %w", ev.Schema, ev.Table, err)
	}
	return nil
}
