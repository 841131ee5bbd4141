// Package fetch implements deterministic, paged reads against one side of a
// comparison (source or target) and the batch-planning arithmetic used to
// drive and resume a table's worker pool.
package fetch

import (
	"context"
	"fmt"

	"github.com/block/dbsentinel/pkg/dbconn"
)

// TableSpec declaratively describes what to compare for one table.
type TableSpec struct {
	Schema          string
	Table           string
	PKColumns       []string // ordered, non-empty
	Columns         []string // nil means "all columns", discovered via a zero-row probe
	Filter          string   // optional WHERE predicate, no leading "WHERE"
	BatchSize       int      // positive
	ExcludeColumns  []string // columns never hashed
	MaxThreads      int      // worker pool size for this table, 0 means use the job default
	EnableReverify  bool
}

// QualifiedName returns "schema.table" for logging and error messages.
func (t TableSpec) QualifiedName() string {
	return fmt.Sprintf("%s.%s", t.Schema, t.Table)
}

// Row is an ordered tuple of column values with a sibling column-name
// vector of equal length.
type Row struct {
	Columns []string
	Values  []any
}

// PKTuple projects a Row onto pkColumns, in the declared order. Every
// column in pkColumns must be present in r.Columns; callers that need a
// SchemaMismatchError on a missing column should check with PKIndices first.
func (r Row) PKTuple(pkColumns []string) []any {
	idx := PKIndices(r.Columns, pkColumns)
	tuple := make([]any, len(pkColumns))
	for i, ci := range idx {
		tuple[i] = r.Values[ci]
	}
	return tuple
}

// PKIndices resolves each of pkColumns to its position in colNames. A
// missing column yields index -1; callers check for it to raise
// SchemaMismatchError rather than panicking on an out-of-range access.
func PKIndices(colNames, pkColumns []string) []int {
	pos := make(map[string]int, len(colNames))
	for i, c := range colNames {
		pos[c] = i
	}
	idx := make([]int, len(pkColumns))
	for i, pk := range pkColumns {
		if p, ok := pos[pk]; ok {
			idx[i] = p
		} else {
			idx[i] = -1
		}
	}
	return idx
}

// BatchPlan is the derived, resumable execution plan for one table.
type BatchPlan struct {
	Table      TableSpec
	TotalRows  int
	BatchSize  int
	Batches    int // ceil(TotalRows / BatchSize)
	StartBatch int // advances past the resume watermark; 0 if resume disabled
}

// NewBatchPlan computes Batches from totalRows and batchSize. startBatch is
// supplied by the caller, which has already consulted the checkpoint store
// per the documented "max{i+1 : batch i is COMPLETED}" resume semantics.
func NewBatchPlan(table TableSpec, totalRows, batchSize, startBatch int) BatchPlan {
	batches := totalRows / batchSize
	if totalRows%batchSize != 0 {
		batches++
	}
	if startBatch > batches {
		startBatch = batches
	}
	return BatchPlan{
		Table:      table,
		TotalRows:  totalRows,
		BatchSize:  batchSize,
		Batches:    batches,
		StartBatch: startBatch,
	}
}

// Offset returns the row offset for batchID under this plan.
func (p BatchPlan) Offset(batchID int) int {
	return batchID * p.BatchSize
}

// ResumeStartBatch computes the resume watermark from a set of completed
// batch IDs: one past the highest COMPLETED batch id, per the documented
// resolution of the source's prefix-scan ambiguity. The orchestrator
// dispatches only batches at or above the watermark, so a batch below it
// that is not COMPLETED (a gap left by an ERROR or a missing checkpoint)
// is not re-run.
func ResumeStartBatch(completedBatchIDs map[int]bool) int {
	highest := -1
	for id, ok := range completedBatchIDs {
		if ok && id > highest {
			highest = id
		}
	}
	return highest + 1
}

// Fetcher reads one page of rows from one side of a comparison.
type Fetcher struct {
	Conn *dbconn.Connector
}

// New returns a Fetcher bound to conn.
func New(conn *dbconn.Connector) *Fetcher {
	return &Fetcher{Conn: conn}
}

// CountRows executes the row-count probe for a table, honoring its filter.
func (f *Fetcher) CountRows(ctx context.Context, t TableSpec) (int, error) {
	q := f.Conn.Dialect.SelectCount(t.Schema, t.Table, t.Filter)
	var n int
	if err := f.Conn.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("fetch: count %s: %w", t.QualifiedName(), err)
	}
	return n, nil
}

// DiscoverColumns runs a zero-row probe to learn the table's column names
// when a TableSpec does not specify a projection.
func (f *Fetcher) DiscoverColumns(ctx context.Context, t TableSpec) ([]string, error) {
	q := f.Conn.Dialect.SelectZeroRows(t.Schema, t.Table)
	rows, err := f.Conn.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch: discover columns %s: %w", t.QualifiedName(), err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("fetch: discover columns %s: %w", t.QualifiedName(), err)
	}
	return cols, nil
}

// FetchPage returns at most size rows starting at offset, ordered
// deterministically by t.PKColumns and projected onto columns (which the
// caller fills from t.Columns or from DiscoverColumns). Each returned Row
// carries the column names the driver reports for that projection.
// No retries happen at this layer: I/O errors surface unchanged.
func (f *Fetcher) FetchPage(ctx context.Context, t TableSpec, columns []string, size, offset int) ([]Row, error) {
	q := f.Conn.Dialect.SelectPage(t.Schema, t.Table, columns, t.PKColumns, t.Filter, size, offset)
	rows, err := f.Conn.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch: page %s offset=%d: %w", t.QualifiedName(), offset, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("fetch: page %s columns: %w", t.QualifiedName(), err)
	}

	var out []Row
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("fetch: page %s scan: %w", t.QualifiedName(), err)
		}
		out = append(out, Row{Columns: cols, Values: raw})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch: page %s iteration: %w", t.QualifiedName(), err)
	}
	return out, nil
}
