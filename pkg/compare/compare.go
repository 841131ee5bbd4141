// Package compare implements the pure set-difference between two sides'
// row fingerprints. It performs no I/O and cannot fail.
package compare

import "github.com/block/dbsentinel/pkg/rowhash"

// DiffSets holds the three disjoint PK-key sets produced by comparing one
// batch (or a whole table's aggregated hashes) between source and target.
// Keys are hashed PK tuples, in the form produced by utils.HashKey.
type DiffSets struct {
	Mismatch        []string
	MissingInTarget []string
	MissingInSource []string
}

// Compare produces DiffSets from two HashMaps:
//
//	mismatch           = {pk : pk in src and pk in tgt and src[pk] != tgt[pk]}
//	missing_in_target  = {pk : pk in src and pk not in tgt}
//	missing_in_source  = {pk : pk in tgt and pk not in src}
//
// The three sets are pairwise disjoint by construction.
func Compare(src, tgt rowhash.HashMap) DiffSets {
	var d DiffSets
	for pk, srcFp := range src {
		tgtFp, ok := tgt[pk]
		switch {
		case !ok:
			d.MissingInTarget = append(d.MissingInTarget, pk)
		case srcFp != tgtFp:
			d.Mismatch = append(d.Mismatch, pk)
		}
	}
	for pk := range tgt {
		if _, ok := src[pk]; !ok {
			d.MissingInSource = append(d.MissingInSource, pk)
		}
	}
	return d
}

// Merge combines per-batch DiffSets into a table-level aggregate. Order is
// unspecified and the result is order-independent, matching the
// orchestrator's "aggregation is commutative" guarantee.
func Merge(parts ...DiffSets) DiffSets {
	var out DiffSets
	for _, p := range parts {
		out.Mismatch = append(out.Mismatch, p.Mismatch...)
		out.MissingInTarget = append(out.MissingInTarget, p.MissingInTarget...)
		out.MissingInSource = append(out.MissingInSource, p.MissingInSource...)
	}
	return out
}
