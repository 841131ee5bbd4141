package dialect

import (
	"fmt"
	"strings"
)

// MySQL implements Dialect for the go-sql-driver/mysql backend.
// Paging uses ORDER BY ... LIMIT offset, size, the idiom the teacher's own
// row-copy queries rely on for deterministic chunking.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) QuoteIdentifier(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d MySQL) QualifiedTable(schema, table string) string {
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

func (d MySQL) SelectPage(schema, table string, columns, pkColumns []string, filter string, size, offset int) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(quoteList(d, columns))
	sb.WriteString(" FROM ")
	sb.WriteString(d.QualifiedTable(schema, table))
	if filter != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(filter)
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(quoteList(d, pkColumns))
	fmt.Fprintf(&sb, " LIMIT %d, %d", offset, size)
	return sb.String()
}

func (d MySQL) SelectCount(schema, table, filter string) string {
	q := fmt.Sprintf("SELECT COUNT(1) FROM %s", d.QualifiedTable(schema, table))
	if filter != "" {
		q += " WHERE " + filter
	}
	return q
}

func (d MySQL) SelectZeroRows(schema, table string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE 1=0", d.QualifiedTable(schema, table))
}

func (d MySQL) SelectExists(schema, table string, pkColumns []string) string {
	var clauses []string
	for _, col := range pkColumns {
		clauses = append(clauses, d.QuoteIdentifier(col)+" = ?")
	}
	return fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE %s", d.QualifiedTable(schema, table), strings.Join(clauses, " AND "))
}

func quoteList(d Dialect, idents []string) string {
	out := make([]string, len(idents))
	for i, ident := range idents {
		out[i] = d.QuoteIdentifier(ident)
	}
	return strings.Join(out, ", ")
}
