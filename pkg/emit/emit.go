// Package emit writes remediation SQL: INSERT/UPDATE statements that would
// bring one side of a comparison in line with the other. It performs no
// type-aware quoting — every non-null value is rendered as a quoted
// string, which Oracle implicit-converts; portability across engines is
// explicitly not a goal here.
package emit

import (
	"fmt"
	"os"
	"strings"

	"github.com/block/dbsentinel/pkg/dialect"
	"github.com/block/dbsentinel/pkg/fetch"
	"github.com/block/dbsentinel/pkg/sentinelerr"
	"github.com/block/dbsentinel/pkg/utils"
)

// Emitter appends remediation SQL to a source-side and a target-side file.
// Both are opened in append mode; the caller is responsible for giving
// each run a unique filename (e.g. by embedding run_id).
type Emitter struct {
	Dialect        dialect.Dialect
	QualifiedTable string
	SourcePath     string
	TargetPath     string
}

// New returns an Emitter targeting the given files.
func New(d dialect.Dialect, qualifiedTable, sourcePath, targetPath string) *Emitter {
	return &Emitter{Dialect: d, QualifiedTable: qualifiedTable, SourcePath: sourcePath, TargetPath: targetPath}
}

// sqlValue renders v the way remediation SQL expects it: NULL for nil,
// else a single-quoted string with interior quotes doubled. No type-aware
// formatting — this is specified behavior, not an oversight.
func sqlValue(v any) string {
	if v == nil {
		return "NULL"
	}
	s := canonicalText(v)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func canonicalText(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Emit appends INSERT statements for insertPKs (from sourceRows) and
// UPDATE statements for updatePKs (from sourceRows, excluding PK columns
// from the SET clause) to the source file, and INSERT statements for
// missingInSourcePKs (from targetRows) to the target file.
func (e *Emitter) Emit(
	insertPKs, updatePKs, missingInSourcePKs []string,
	pkColumns []string,
	sourceRows, targetRows map[string]fetch.Row,
) error {
	sourceFile, err := os.OpenFile(e.SourcePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &sentinelerr.EmitError{Cause: err}
	}
	defer sourceFile.Close()

	targetFile, err := os.OpenFile(e.TargetPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &sentinelerr.EmitError{Cause: err}
	}
	defer targetFile.Close()

	for _, pk := range insertPKs {
		row, ok := sourceRows[pk]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintln(sourceFile, e.insertStatement(row)); err != nil {
			return &sentinelerr.EmitError{Cause: err}
		}
	}

	for _, pk := range updatePKs {
		row, ok := sourceRows[pk]
		if !ok {
			continue
		}
		stmt, err := e.updateStatement(row, pkColumns)
		if err != nil {
			return &sentinelerr.EmitError{Cause: err}
		}
		if _, err := fmt.Fprintln(sourceFile, stmt); err != nil {
			return &sentinelerr.EmitError{Cause: err}
		}
	}

	for _, pk := range missingInSourcePKs {
		row, ok := targetRows[pk]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintln(targetFile, e.insertStatement(row)); err != nil {
			return &sentinelerr.EmitError{Cause: err}
		}
	}

	return nil
}

func (e *Emitter) insertStatement(row fetch.Row) string {
	vals := make([]string, len(row.Values))
	for i, v := range row.Values {
		vals[i] = sqlValue(v)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
		e.QualifiedTable, strings.Join(row.Columns, ", "), strings.Join(vals, ", "))
}

func (e *Emitter) updateStatement(row fetch.Row, pkColumns []string) (string, error) {
	pkIdx := fetch.PKIndices(row.Columns, pkColumns)
	isPK := make(map[int]bool, len(pkIdx))
	for i, ci := range pkIdx {
		if ci < 0 {
			return "", fmt.Errorf("update statement: pk column %q not in projection", pkColumns[i])
		}
		isPK[ci] = true
	}

	var setClauses []string
	for i, col := range row.Columns {
		if isPK[i] {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", col, sqlValue(row.Values[i])))
	}

	var whereClauses []string
	for i, ci := range pkIdx {
		whereClauses = append(whereClauses, fmt.Sprintf("%s = %s", pkColumns[i], sqlValue(row.Values[ci])))
	}

	return fmt.Sprintf("UPDATE %s SET %s WHERE %s;",
		e.QualifiedTable, strings.Join(setClauses, ", "), strings.Join(whereClauses, " AND ")), nil
}

// HashKeyOf is a convenience wrapper so callers building sourceRows /
// targetRows maps use the same key form produced by rowhash.Hash.
func HashKeyOf(pkValues []any) string {
	return utils.HashKey(pkValues)
}
