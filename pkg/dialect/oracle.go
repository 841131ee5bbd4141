package dialect

import (
	"fmt"
	"strings"
)

// Oracle implements Dialect for the github.com/sijms/go-ora/v2 backend.
// Paging uses the OFFSET ... ROWS FETCH NEXT ... ROWS ONLY idiom that
// original_source/modules/batch_fetcher.py relies on — the one piece of
// dialect-specific SQL the spec calls out by name (§4.1).
type Oracle struct{}

func (Oracle) Name() string { return "oracle" }

func (Oracle) QuoteIdentifier(ident string) string {
	return `"` + strings.ReplaceAll(strings.ToUpper(ident), `"`, `""`) + `"`
}

func (d Oracle) QualifiedTable(schema, table string) string {
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

func (d Oracle) SelectPage(schema, table string, columns, pkColumns []string, filter string, size, offset int) string {
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
	fmt.Fprintf(&sb, " OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, size)
	return sb.String()
}

func (d Oracle) SelectCount(schema, table, filter string) string {
	q := fmt.Sprintf("SELECT COUNT(1) FROM %s", d.QualifiedTable(schema, table))
	if filter != "" {
		q += " WHERE " + filter
	}
	return q
}

func (d Oracle) SelectZeroRows(schema, table string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE 1=0", d.QualifiedTable(schema, table))
}

func (d Oracle) SelectExists(schema, table string, pkColumns []string) string {
	var clauses []string
	for i, col := range pkColumns {
		clauses = append(clauses, fmt.Sprintf("%s = :%d", d.QuoteIdentifier(col), i+1))
	}
	return fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE %s", d.QualifiedTable(schema, table), strings.Join(clauses, " AND "))
}
