// Package orchestrator drives one table's comparison end to end:
// pre-flight, bounded-concurrency batch dispatch, aggregation, post
// aggregation reverification, and remediation SQL emission.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siddontang/loggers"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/block/dbsentinel/pkg/checkpoint"
	"github.com/block/dbsentinel/pkg/compare"
	"github.com/block/dbsentinel/pkg/dbconn"
	"github.com/block/dbsentinel/pkg/emit"
	"github.com/block/dbsentinel/pkg/fetch"
	"github.com/block/dbsentinel/pkg/metrics"
	"github.com/block/dbsentinel/pkg/reverify"
	"github.com/block/dbsentinel/pkg/rowhash"
	"github.com/block/dbsentinel/pkg/sentinelerr"
	"github.com/block/dbsentinel/pkg/utils"
)

const defaultMaxThreads = 4

// JobContext identifies one program invocation and carries its connectors.
type JobContext struct {
	JobID  string
	RunID  string
	Source *dbconn.Connector
	Target *dbconn.Connector
}

// NewJobContext mints a fresh JobID (UUID) and a wall-clock RunID, the same
// pairing the engine uses to name output files and tag checkpoint rows.
func NewJobContext(source, target *dbconn.Connector) JobContext {
	return JobContext{
		JobID:  uuid.NewString(),
		RunID:  utils.ConvertToTimestampString(time.Now()),
		Source: source,
		Target: target,
	}
}

// Status is the table-level outcome reported in TableSummary.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusMismatch  Status = "MISMATCH"
)

// TableSummary is the per-table result of a comparison run.
type TableSummary struct {
	JobID           string
	Schema          string
	Table           string
	RowCount        int
	MismatchCount   int
	MissingInSource int
	MissingInTarget int
	NoOpUpdateCount int
	ErrorBatchCount int
	Status          Status
	StartTime       time.Time
	EndTime         time.Time
	SourceSQLFile   string
	TargetSQLFile   string
}

// Options configures one Orchestrator instance.
type Options struct {
	EnableRestart        bool
	EnableAuditTable     bool
	EnableReverification bool
	MaxThreads           int
	SourceSQLDir         string
	TargetSQLDir         string
	Logger               loggers.Advanced
	Metrics              metrics.Sink
	Checkpoints          *checkpoint.Store
}

// Orchestrator runs the comparison for one table at a time; tables
// themselves are processed sequentially by the caller looping over
// TableConfig, but the batches within a table fan out concurrently.
type Orchestrator struct {
	job  JobContext
	opts Options
}

// New returns an Orchestrator for job, applying default logger/metrics/
// thread-count where the caller left them unset.
func New(job JobContext, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopSink{}
	}
	if opts.MaxThreads <= 0 {
		opts.MaxThreads = defaultMaxThreads
	}
	return &Orchestrator{job: job, opts: opts}
}

// batchResult is what one worker returns from the batch protocol.
type batchResult struct {
	batchID       int
	diff          compare.DiffSets
	processedRows int
	offset        int
	err           error
}

// RunTable executes the full pre-flight / dispatch / aggregation /
// post-aggregation sequence for spec and returns its TableSummary. A
// SchemaMismatchError, ReverifyError, or EmitError aborts the table; a
// per-batch error is recorded and the table continues (spec §4.4, §7).
func (o *Orchestrator) RunTable(ctx context.Context, spec fetch.TableSpec) (TableSummary, error) {
	start := time.Now()
	summary := TableSummary{JobID: o.job.JobID, Schema: spec.Schema, Table: spec.Table, StartTime: start}

	sourceFetcher := fetch.New(o.job.Source)
	targetFetcher := fetch.New(o.job.Target)

	totalRows, err := sourceFetcher.CountRows(ctx, spec)
	if err != nil {
		return summary, fmt.Errorf("orchestrator: pre-flight %s: %w", spec.QualifiedName(), err)
	}
	summary.RowCount = totalRows

	columns := spec.Columns
	if len(columns) == 0 {
		columns, err = sourceFetcher.DiscoverColumns(ctx, spec)
		if err != nil {
			return summary, fmt.Errorf("orchestrator: discover columns %s: %w", spec.QualifiedName(), err)
		}
	}

	startBatch := 0
	if o.opts.EnableRestart && o.opts.Checkpoints != nil {
		completed, err := o.opts.Checkpoints.LoadCompleted(ctx, o.job.JobID, spec.Schema, spec.Table)
		if err != nil {
			return summary, fmt.Errorf("orchestrator: load checkpoints %s: %w", spec.QualifiedName(), err)
		}
		startBatch = fetch.ResumeStartBatch(completed)
	}

	batchSize := spec.BatchSize
	plan := fetch.NewBatchPlan(spec, totalRows, batchSize, startBatch)

	maxThreads := spec.MaxThreads
	if maxThreads <= 0 {
		maxThreads = o.opts.MaxThreads
	}

	sourceCache := rowhash.NewRowCache()
	targetCache := rowhash.NewRowCache()

	var mu sync.Mutex
	var parts []compare.DiffSets
	errorBatches := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxThreads)

	for batchID := plan.StartBatch; batchID < plan.Batches; batchID++ {
		batchID := batchID
		g.Go(func() error {
			res := o.runBatch(gctx, spec, columns, sourceFetcher, targetFetcher, sourceCache, targetCache, plan, batchID)
			o.aggregate(ctx, spec, res)

			var schemaErr *sentinelerr.SchemaMismatchError
			if errors.As(res.err, &schemaErr) {
				// A schema mismatch is fatal per-table, not an
				// absorbable batch failure: abort the whole dispatch.
				return res.err
			}

			mu.Lock()
			defer mu.Unlock()
			if res.err != nil {
				errorBatches++
				o.opts.Metrics.BatchErrored(spec.Schema, spec.Table)
				o.opts.Logger.Warnf("batch %d/%d failed: %v", res.batchID+1, plan.Batches, res.err)
				// A batch failure does not abort the table: sibling
				// batches keep running.
				return nil
			}
			parts = append(parts, res.diff)
			o.opts.Metrics.BatchProcessed(spec.Schema, spec.Table)
			o.opts.Logger.Infof("batch %d/%d complete (mismatches=%d missing_in_target=%d missing_in_source=%d)",
				res.batchID+1, plan.Batches, len(res.diff.Mismatch), len(res.diff.MissingInTarget), len(res.diff.MissingInSource))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, fmt.Errorf("orchestrator: dispatch %s: %w", spec.QualifiedName(), err)
	}

	diff := compare.Merge(parts...)
	summary.MismatchCount = len(diff.Mismatch)
	summary.MissingInSource = len(diff.MissingInSource)
	summary.MissingInTarget = len(diff.MissingInTarget)
	summary.ErrorBatchCount = errorBatches

	safeToInsert := diff.MissingInTarget
	validUpdatePKs := diff.Mismatch
	if o.opts.EnableReverification {
		safeToInsert, validUpdatePKs, err = o.reverify(ctx, spec, diff, maxThreads)
		if err != nil {
			return summary, &sentinelerr.ReverifyError{Cause: err}
		}
	}
	noOpUpdates := setDifference(diff.Mismatch, validUpdatePKs)
	summary.NoOpUpdateCount = len(noOpUpdates)

	sourceSQLPath, targetSQLPath, err := o.sqlPaths(spec)
	if err != nil {
		return summary, err
	}
	summary.SourceSQLFile = sourceSQLPath
	summary.TargetSQLFile = targetSQLPath

	emitter := emit.New(o.job.Source.Dialect, spec.QualifiedName(), sourceSQLPath, targetSQLPath)
	if err := emitter.Emit(safeToInsert, validUpdatePKs, diff.MissingInSource, spec.PKColumns,
		rowCacheToMap(sourceCache), rowCacheToMap(targetCache)); err != nil {
		return summary, &sentinelerr.EmitError{Cause: err}
	}

	summary.EndTime = time.Now()
	if summary.MismatchCount > 0 || summary.MissingInSource > 0 || summary.MissingInTarget > 0 {
		summary.Status = StatusMismatch
	} else {
		summary.Status = StatusCompleted
	}

	o.opts.Logger.Infof("table %s complete: rows=%d mismatches=%d missing_in_target=%d missing_in_source=%d error_batches=%d status=%s",
		spec.QualifiedName(), summary.RowCount, summary.MismatchCount, summary.MissingInTarget,
		summary.MissingInSource, summary.ErrorBatchCount, summary.Status)

	return summary, nil
}

// runBatch executes the batch protocol for one batch: fetch both sides,
// hash both sides, capture rows into the shared caches, diff.
func (o *Orchestrator) runBatch(
	ctx context.Context,
	spec fetch.TableSpec,
	columns []string,
	sourceFetcher, targetFetcher *fetch.Fetcher,
	sourceCache, targetCache *rowhash.RowCache,
	plan fetch.BatchPlan,
	batchID int,
) batchResult {
	offset := plan.Offset(batchID)

	sourceRows, err := sourceFetcher.FetchPage(ctx, spec, columns, plan.BatchSize, offset)
	if err != nil {
		return batchResult{batchID: batchID, offset: offset, err: &sentinelerr.BatchError{BatchID: batchID, Cause: err}}
	}
	targetRows, err := targetFetcher.FetchPage(ctx, spec, columns, plan.BatchSize, offset)
	if err != nil {
		return batchResult{batchID: batchID, offset: offset, err: &sentinelerr.BatchError{BatchID: batchID, Cause: err}}
	}

	srcHashes, err := rowhash.Hash(spec.Schema, spec.Table, sourceRows, spec.PKColumns, spec.ExcludeColumns, sourceCache)
	if err != nil {
		return batchResult{batchID: batchID, offset: offset, err: wrapHashErr(batchID, err)}
	}
	tgtHashes, err := rowhash.Hash(spec.Schema, spec.Table, targetRows, spec.PKColumns, spec.ExcludeColumns, targetCache)
	if err != nil {
		return batchResult{batchID: batchID, offset: offset, err: wrapHashErr(batchID, err)}
	}

	diff := compare.Compare(srcHashes, tgtHashes)
	return batchResult{
		batchID:       batchID,
		diff:          diff,
		processedRows: len(sourceRows),
		offset:        offset,
	}
}

// wrapHashErr keeps a SchemaMismatchError unwrapped, since it is fatal per
// table (spec §7), and wraps everything else as an absorbable BatchError.
func wrapHashErr(batchID int, err error) error {
	var schemaErr *sentinelerr.SchemaMismatchError
	if errors.As(err, &schemaErr) {
		return err
	}
	return &sentinelerr.BatchError{BatchID: batchID, Cause: err}
}

// aggregate writes the checkpoint and audit event for one completed
// batch (successful or not). It is called from the worker goroutine that
// produced res, right after runBatch returns and before the shared result
// list is extended under the mutex, so checkpoint and audit writes of
// sibling batches run concurrently through the pooled source Connector.
func (o *Orchestrator) aggregate(ctx context.Context, spec fetch.TableSpec, res batchResult) {
	if o.opts.Checkpoints == nil {
		return
	}
	status := checkpoint.StatusCompleted
	errMsg := ""
	if res.err != nil {
		status = checkpoint.StatusError
		errMsg = res.err.Error()
	}

	if o.opts.EnableRestart {
		cp := checkpoint.BatchCheckpoint{
			JobID: o.job.JobID, Schema: spec.Schema, Table: spec.Table, BatchID: res.batchID,
			LastOffset: res.offset + spec.BatchSize, ProcessedRows: res.processedRows,
			Status: status, ErrorMessage: errMsg, LastProcessedTime: time.Now(),
		}
		if err := o.opts.Checkpoints.Save(ctx, cp); err != nil {
			o.opts.Logger.Errorf("checkpoint save failed for %s batch %d: %v", spec.QualifiedName(), res.batchID, err)
		}
	}

	if o.opts.EnableAuditTable {
		eventType := checkpoint.EventBatch
		if res.err != nil {
			eventType = checkpoint.EventError
		}
		ev := checkpoint.AuditEvent{
			JobID: o.job.JobID, EventTime: time.Now(), EventType: eventType,
			Schema: spec.Schema, Table: spec.Table, BatchID: res.batchID,
			RowCount: res.processedRows, MismatchCount: len(res.diff.Mismatch),
			Status: status, Details: errMsg,
		}
		if err := o.opts.Checkpoints.LogEvent(ctx, ev); err != nil {
			o.opts.Logger.Errorf("audit log failed for %s batch %d: %v", spec.QualifiedName(), res.batchID, err)
		}
	}
}

// reverify re-probes missing_in_target and mismatch PKs against the live
// target using the two explicitly named predicates, never the single
// reused one. maxThreads is the already-resolved per-table thread count
// (spec.MaxThreads falling back to the job default), reused here rather
// than left to reverify.New's own default so both phases of one table
// share a single configured concurrency budget.
func (o *Orchestrator) reverify(ctx context.Context, spec fetch.TableSpec, diff compare.DiffSets, maxThreads int) (safeToInsert, validUpdatePKs []string, err error) {
	v := reverify.New(o.job.Target, spec.Schema, spec.Table, spec.PKColumns, maxThreads)

	safeToInsert, err = v.AbsentFromTarget(ctx, diff.MissingInTarget)
	if err != nil {
		return nil, nil, err
	}
	validUpdatePKs, err = v.PresentInTarget(ctx, diff.Mismatch)
	if err != nil {
		return nil, nil, err
	}
	o.opts.Metrics.RowsReverified(spec.Schema, spec.Table, len(diff.MissingInTarget)+len(diff.Mismatch))
	return safeToInsert, validUpdatePKs, nil
}

// sqlPaths returns the source- and target-side remediation file paths for
// spec, creating their directories if needed. The filenames follow the
// documented contract literally: source_<table>_sync_<run_id>.sql and
// target_<table>_sync_<run_id>.sql, with no schema component.
func (o *Orchestrator) sqlPaths(spec fetch.TableSpec) (string, string, error) {
	sourceDir := o.opts.SourceSQLDir
	targetDir := o.opts.TargetSQLDir
	for _, dir := range []string{sourceDir, targetDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", fmt.Errorf("orchestrator: create output dir %s: %w", dir, err)
		}
	}
	sourceName := fmt.Sprintf("source_%s_sync_%s.sql", spec.Table, o.job.RunID)
	targetName := fmt.Sprintf("target_%s_sync_%s.sql", spec.Table, o.job.RunID)
	return joinPath(sourceDir, sourceName), joinPath(targetDir, targetName), nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// setDifference returns the elements of a not present in b.
func setDifference(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, v := range b {
		inB[v] = true
	}
	var out []string
	for _, v := range a {
		if !inB[v] {
			out = append(out, v)
		}
	}
	return out
}

func rowCacheToMap(c *rowhash.RowCache) map[string]fetch.Row {
	out := make(map[string]fetch.Row, c.Len())
	c.Range(func(key string, row fetch.Row) {
		out[key] = row
	})
	return out
}
