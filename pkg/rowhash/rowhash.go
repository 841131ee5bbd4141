// Package rowhash computes row fingerprints and keeps the per-batch maps
// used by the comparator and the row caches used for later SQL emission.
package rowhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/block/dbsentinel/pkg/fetch"
	"github.com/block/dbsentinel/pkg/sentinelerr"
	"github.com/block/dbsentinel/pkg/utils"
)

// separator joins canonicalized column values before hashing. It is not
// escaped: values that themselves contain "|" can join to the same
// canonical string (e.g. "a|b","c" and "a","b|c") and so hash alike.
const separator = "|"

// Fingerprint is the hex-encoded SHA-256 digest of a row's canonical,
// exclusion-filtered serialization.
type Fingerprint string

// HashMap maps a hashed PK tuple (see utils.HashKey) to its fingerprint.
// Keys are unique within one side of one batch.
type HashMap map[string]Fingerprint

// RowCache maps a hashed PK tuple to the full Row, used later by the
// SQLEmitter. It is written concurrently by every worker in a table's pool,
// so access is guarded by a mutex; PKs are unique per batch, making the
// single lock cheap enough not to need striping.
type RowCache struct {
	mu   sync.Mutex
	rows map[string]fetch.Row
}

// NewRowCache returns an empty, ready-to-use RowCache.
func NewRowCache() *RowCache {
	return &RowCache{rows: make(map[string]fetch.Row)}
}

// Put stores row under key, overwriting silently (PK uniqueness within a
// batch is a precondition, not something this type enforces).
func (c *RowCache) Put(key string, row fetch.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[key] = row
}

// Get returns the row stored under key, if any.
func (c *RowCache) Get(key string) (fetch.Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[key]
	return row, ok
}

// Len reports the number of distinct PKs currently cached.
func (c *RowCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows)
}

// Range calls fn for every cached row. fn must not call back into the
// RowCache: Range holds the lock for its entire iteration.
func (c *RowCache) Range(fn func(key string, row fetch.Row)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.rows {
		fn(k, v)
	}
}

// excludeSet builds a lookup set from an exclude-column list.
func excludeSet(exclude []string) map[string]bool {
	s := make(map[string]bool, len(exclude))
	for _, c := range exclude {
		s[c] = true
	}
	return s
}

// Hash computes the HashMap for rows and, as a side effect, populates
// cache with every row keyed by its hashed PK tuple. PK indices are
// derived strictly from pkColumns — never from the exclusion list, which
// is where the original implementation this engine supersedes placed a
// latent bug.
func Hash(schema, table string, rows []fetch.Row, pkColumns, excludeColumns []string, cache *RowCache) (HashMap, error) {
	excl := excludeSet(excludeColumns)
	out := make(HashMap, len(rows))
	for _, row := range rows {
		pkIdx := fetch.PKIndices(row.Columns, pkColumns)
		pkTuple := make([]any, len(pkColumns))
		for i, ci := range pkIdx {
			if ci < 0 {
				return nil, &sentinelerr.SchemaMismatchError{Schema: schema, Table: table, Column: pkColumns[i]}
			}
			pkTuple[i] = row.Values[ci]
		}
		key := utils.HashKey(pkTuple)
		out[key] = fingerprintRow(row, excl)
		if cache != nil {
			cache.Put(key, row)
		}
	}
	return out, nil
}

// fingerprintRow computes the SHA-256 fingerprint over every column not in
// excl, in declared order, per the canonical serialization: NULL -> "",
// everything else -> its textual representation, joined by separator.
func fingerprintRow(row fetch.Row, excl map[string]bool) Fingerprint {
	var sb strings.Builder
	first := true
	for i, col := range row.Columns {
		if excl[col] {
			continue
		}
		if !first {
			sb.WriteString(separator)
		}
		first = false
		sb.WriteString(canonicalValue(row.Values[i]))
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// canonicalValue renders v as it will be hashed: NULL becomes the empty
// string, everything else its default textual representation.
func canonicalValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
