// Package reverify re-checks candidate PKs against the live target
// immediately before remediation SQL is emitted, to filter out rows whose
// state has changed since the hash pass completed.
//
// The source implementation this engine supersedes answers one question —
// "is this PK currently absent from target?" — and reuses that single
// answer for two opposite purposes: filtering INSERT candidates (correct)
// and filtering UPDATE candidates (backwards: an UPDATE target must be
// present in target, not absent). This package names the two predicates
// separately so that mistake cannot happen again by construction.
package reverify

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/block/dbsentinel/pkg/dbconn"
	"github.com/block/dbsentinel/pkg/sentinelerr"
	"github.com/block/dbsentinel/pkg/utils"
)

// Verifier probes a single qualified table on one Connector for PK
// existence, bounded by MaxThreads concurrent probes.
type Verifier struct {
	Conn       *dbconn.Connector
	Schema     string
	Table      string
	PKColumns  []string
	MaxThreads int
}

// New returns a Verifier bound to conn.
func New(conn *dbconn.Connector, schema, table string, pkColumns []string, maxThreads int) *Verifier {
	if maxThreads <= 0 {
		maxThreads = 8
	}
	return &Verifier{Conn: conn, Schema: schema, Table: table, PKColumns: pkColumns, MaxThreads: maxThreads}
}

// exists reports whether one PK tuple is currently present in the target.
func (v *Verifier) exists(ctx context.Context, pkValues []string) (bool, error) {
	q := v.Conn.Dialect.SelectExists(v.Schema, v.Table, v.PKColumns)
	args := make([]any, len(pkValues))
	for i, s := range pkValues {
		args[i] = s
	}
	var count int
	if err := v.Conn.QueryRowContext(ctx, q, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// probe runs exists for every candidate key concurrently, bounded by
// MaxThreads, and returns the subset for which predicate(exists) is true.
// A failure on any single PK aborts the whole call: per §4.5, partial
// results are never returned.
func (v *Verifier) probe(ctx context.Context, candidateKeys []string, predicate func(exists bool) bool) ([]string, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.MaxThreads)

	results := make([]bool, len(candidateKeys))
	for i, key := range candidateKeys {
		i, key := i, key
		g.Go(func() error {
			exists, err := v.exists(gctx, utils.UnhashKey(key))
			if err != nil {
				return err
			}
			results[i] = predicate(exists)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &sentinelerr.ReverifyError{Cause: fmt.Errorf("reverify %s.%s: %w", v.Schema, v.Table, err)}
	}

	var out []string
	for i, keep := range results {
		if keep {
			out = append(out, candidateKeys[i])
		}
	}
	return out, nil
}

// AbsentFromTarget returns the subset of candidateKeys (missing_in_target
// PKs) that are still absent from the target — these are safe to insert.
func (v *Verifier) AbsentFromTarget(ctx context.Context, candidateKeys []string) ([]string, error) {
	return v.probe(ctx, candidateKeys, func(exists bool) bool { return !exists })
}

// PresentInTarget returns the subset of candidateKeys (mismatch PKs) that
// are still present in the target — these are valid UPDATE targets. This
// is the corrected counterpart to the source's reused, inverted predicate:
// an UPDATE only makes sense against a row that exists.
func (v *Verifier) PresentInTarget(ctx context.Context, candidateKeys []string) ([]string, error) {
	return v.probe(ctx, candidateKeys, func(exists bool) bool { return exists })
}
