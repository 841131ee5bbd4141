// Package dbconn owns pooled database handles and the retry/transaction
// plumbing shared by every component that talks to source or target.
package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/sijms/go-ora/v2"

	"github.com/block/dbsentinel/pkg/dialect"
)

// DBConfig tunes pooling and retry behavior. Deliberately small: this
// engine reads and probes rather than mutates schema, so it does not need
// lock-wait or DDL-specific knobs.
type DBConfig struct {
	MaxOpenConns int
	MaxIdleConns int
	MaxRetries   int
}

// NewDBConfig returns the defaults used when a config file does not
// override them.
func NewDBConfig() *DBConfig {
	return &DBConfig{
		MaxOpenConns: 16,
		MaxIdleConns: 8,
		MaxRetries:   5,
	}
}

func driverName(d dialect.Dialect) string {
	switch d.Name() {
	case "mysql":
		return "mysql"
	case "oracle":
		return "oracle"
	default:
		return d.Name()
	}
}

// Connector owns one pooled handle to one database (source or target) and
// the Dialect used to build statements against it. It is threaded through
// fetch, reverify, checkpoint and audit calls instead of a bare *sql.DB so
// every caller shares the same retry and quoting behavior, and so a single
// connection is never handed to two goroutines at once (database/sql's
// pool already guarantees that per-connection isolation; Connector just
// keeps callers from reaching around it to a raw driver handle).
type Connector struct {
	DB      *sql.DB
	Dialect dialect.Dialect
	Role    string // "source" or "target"; used only for error context.
	cfg     *DBConfig
}

// New opens a pooled connection to dsn using the named dialect, verifies it
// is reachable, and applies standard pool sizing.
func New(ctx context.Context, role, dialectName, dsn string, cfg *DBConfig) (*Connector, error) {
	if cfg == nil {
		cfg = NewDBConfig()
	}
	d, err := dialect.ByName(dialectName)
	if err != nil {
		return nil, fmt.Errorf("dbconn: %s: %w", role, err)
	}
	db, err := sql.Open(driverName(d), dsn)
	if err != nil {
		return nil, fmt.Errorf("dbconn: open %s connection: %w", role, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(3 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("dbconn: ping %s connection: %w", role, err)
	}
	return &Connector{DB: db, Dialect: d, Role: role, cfg: cfg}, nil
}

// NewFromDB wraps an already-open *sql.DB in a Connector. Tests use this to
// inject a sqlmock database without dialing a real driver.
func NewFromDB(db *sql.DB, d dialect.Dialect, role string, cfg *DBConfig) *Connector {
	if cfg == nil {
		cfg = NewDBConfig()
	}
	return &Connector{DB: db, Dialect: d, Role: role, cfg: cfg}
}

// Close releases the pooled handle.
func (c *Connector) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// backoff sleeps a small, increasing, jittered delay before a retry attempt.
func backoff(attempt int) {
	if attempt == 0 {
		return
	}
	d := time.Duration(attempt) * time.Duration(rand.Intn(50)) * time.Millisecond
	time.Sleep(d)
}

// canRetry decides whether err is worth a fresh transaction attempt rather
// than a permanent failure. MySQL surfaces this as a numbered error; the
// Oracle driver does not expose an equivalent typed error in this stack, so
// for Oracle only the generic connection-level sentinels are treated as
// retryable.
func canRetry(err error) bool {
	if err == nil {
		return false
	}
	if mysqlErr, ok := err.(*mysql.MySQLError); ok {
		switch mysqlErr.Number {
		case 1205, 1213, 2003, 2013, 1290, 1836:
			return true
		default:
			return false
		}
	}
	return err == sql.ErrConnDone || err == sql.ErrTxDone
}

// Exec runs stmt in its own transaction and commits it, making up to
// cfg.MaxRetries attempts in total on a transient failure. Every checkpoint write and
// audit append in this engine goes through here: both are specified as
// issuing and committing exactly one statement per call, with no
// write-behind batching, which this implements directly.
func (c *Connector) Exec(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		backoff(attempt)
		trx, err := c.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			lastErr = err
			continue
		}
		res, err := trx.ExecContext(ctx, stmt, args...)
		if err != nil {
			_ = trx.Rollback()
			lastErr = err
			if !canRetry(err) {
				return nil, err
			}
			continue
		}
		if err := trx.Commit(); err != nil {
			lastErr = err
			continue
		}
		return res, nil
	}
	return nil, lastErr
}

// QueryContext is a thin passthrough kept so callers depend on Connector,
// not database/sql, for every statement shape they issue.
func (c *Connector) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.DB.QueryContext(ctx, query, args...)
}

// QueryRowContext is the single-row counterpart to QueryContext.
func (c *Connector) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.DB.QueryRowContext(ctx, query, args...)
}
