// Package dialect abstracts the small surface of SQL that differs between
// the source and target database engines a comparison job might bridge:
// identifier quoting, deterministic paging, and zero-row column probes.
// Everything else about a row (its values, its NULL-ness) is engine-agnostic
// by the time it reaches the fingerprinting layer.
package dialect

import "fmt"

// Dialect knows how to build the handful of statement shapes the engine
// needs, in a form that is valid for one SQL engine.
type Dialect interface {
	// Name identifies the dialect, e.g. "mysql" or "oracle".
	Name() string

	// QuoteIdentifier quotes a single identifier (schema, table or column name).
	QuoteIdentifier(ident string) string

	// QualifiedTable returns a schema-qualified, quoted table reference.
	QualifiedTable(schema, table string) string

	// SelectPage builds a deterministic, ordered page query.
	// columns is assumed non-empty and already validated by the caller.
	SelectPage(schema, table string, columns, pkColumns []string, filter string, size, offset int) string

	// SelectCount builds a row-count query, honoring an optional filter.
	SelectCount(schema, table, filter string) string

	// SelectZeroRows builds a zero-row probe used to discover column names
	// when a TableSpec does not specify a projection.
	SelectZeroRows(schema, table string) string

	// SelectExists builds a COUNT(1) existence probe for a single candidate
	// row identified by pkColumns, parameterized in positional or named form
	// depending on the dialect's placeholder style.
	SelectExists(schema, table string, pkColumns []string) string
}

// ByName returns the Dialect registered under name, or an error if unknown.
func ByName(name string) (Dialect, error) {
	switch name {
	case "mysql":
		return MySQL{}, nil
	case "oracle":
		return Oracle{}, nil
	default:
		return nil, fmt.Errorf("dialect: unknown dialect %q", name)
	}
}
