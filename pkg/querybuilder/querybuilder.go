// Package querybuilder renders the SQL a sinker needs (keyed select,
// batched select, upsert, keyed delete) for whichever engine.Capability
// it's given, so the sinker itself never branches on engine kind.
// Placeholder numbering always matches bind slice position: bind[i]
// is the value for the (i+1)-th placeholder the builder emitted.
package querybuilder

import (
	"fmt"
	"strings"

	"github.com/replibridge/replibridge/pkg/engine"
)

// Builder renders parameterized SQL text against one engine's
// escaping and placeholder conventions. It never executes anything;
// callers pass the returned query and binds to *sql.DB/*sql.Tx.
type Builder struct {
	cap engine.Capability
}

func New(cap engine.Capability) *Builder {
	return &Builder{cap: cap}
}

func (b *Builder) quoteIdent(name string) string { return b.cap.EscapeIdent(name) }

func (b *Builder) qualified(schema, table string) string {
	return b.quoteIdent(schema) + "." + b.quoteIdent(table)
}

func (b *Builder) placeholders(start, n int) []string {
	ph := make([]string, n)
	for i := 0; i < n; i++ {
		ph[i] = b.cap.Placeholder(start + i)
	}
	return ph
}

// KeyedSelect builds "SELECT <cols> FROM <schema.table> WHERE
// <keyCols> = (<placeholders>)", for fetching the current destination
// row during a check comparison.
func (b *Builder) KeyedSelect(schema, table string, cols, keyCols []string) (query string, bindCount int) {
	selectList := b.quoteColumns(cols)
	where := b.keyEquals(keyCols, 1)
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s", selectList, b.qualified(schema, table), where)
	return q, len(keyCols)
}

// SelectOrdered builds "SELECT <cols> FROM <schema.table> ORDER BY
// <orderCols>", the whole-table scan the comparison engine uses to
// walk both sides of a table in the same key order so row i on the
// source lines up with row i on the destination.
func (b *Builder) SelectOrdered(schema, table string, cols, orderCols []string) string {
	selectList := b.quoteColumns(cols)
	q := fmt.Sprintf("SELECT %s FROM %s", selectList, b.qualified(schema, table))
	if len(orderCols) > 0 {
		q += " ORDER BY " + b.quoteColumns(orderCols)
	}
	return q
}

// BatchedSelect builds a multi-row keyed select for a batch of n
// single-column keys: "IN (?, ?, ...)" for MySQL, "= ANY($1)" style
// for Postgres is NOT used here (array binds are a separate, opt-in
// path -- see BatchedSelectArray) since most call sites pass a small
// literal IN list regardless of engine.
func (b *Builder) BatchedSelect(schema, table string, cols []string, keyCol string, n int) (query string, bindCount int) {
	selectList := b.quoteColumns(cols)
	ph := strings.Join(b.placeholders(1, n), ", ")
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		selectList, b.qualified(schema, table), b.quoteIdent(keyCol), ph)
	return q, n
}

// BatchedSelectArray builds a single-bind array-membership select:
// "WHERE key = ANY($1)" on Postgres (the driver binds a pq.Array),
// falling back to an ordinary IN-list on MySQL since it has no array
// bind type.
func (b *Builder) BatchedSelectArray(schema, table string, cols []string, keyCol string, n int) (query string, bindCount int) {
	if b.cap.Kind().String() != "postgres" {
		return b.BatchedSelect(schema, table, cols, keyCol, n)
	}
	selectList := b.quoteColumns(cols)
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY(%s)",
		selectList, b.qualified(schema, table), b.quoteIdent(keyCol), b.cap.Placeholder(1))
	return q, 1
}

// Upsert builds an idempotent insert-or-update: MySQL/StarRocks's
// "INSERT ... ON DUPLICATE KEY UPDATE", Postgres's
// "INSERT ... ON CONFLICT (<keyCols>) DO UPDATE SET". cols must
// include the key columns; updateCols is cols minus keyCols, the set
// actually reassigned on conflict.
func (b *Builder) Upsert(schema, table string, cols, keyCols []string) (query string, bindCount int) {
	colList := b.quoteColumns(cols)
	ph := strings.Join(b.placeholders(1, len(cols)), ", ")
	updateCols := subtract(cols, keyCols)

	switch b.cap.Kind().String() {
	case "mysql", "starrocks":
		var sets []string
		for _, c := range updateCols {
			q := b.quoteIdent(c)
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", q, q))
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
			b.qualified(schema, table), colList, ph, strings.Join(sets, ", "))
		return q, len(cols)
	default: // postgres
		var sets []string
		for _, c := range updateCols {
			q := b.quoteIdent(c)
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
		}
		conflictCols := b.quoteColumns(keyCols)
		var setClause string
		if len(sets) == 0 {
			setClause = fmt.Sprintf("%s = %s", b.quoteIdent(keyCols[0]), b.quoteIdent(keyCols[0]))
		} else {
			setClause = strings.Join(sets, ", ")
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
			b.qualified(schema, table), colList, ph, conflictCols, setClause)
		return q, len(cols)
	}
}

// KeyedDelete builds "DELETE FROM <schema.table> WHERE <keyCols> =
// (<placeholders>)".
func (b *Builder) KeyedDelete(schema, table string, keyCols []string) (query string, bindCount int) {
	where := b.keyEquals(keyCols, 1)
	q := fmt.Sprintf("DELETE FROM %s WHERE %s", b.qualified(schema, table), where)
	return q, len(keyCols)
}

// BatchedDelete builds a multi-row keyed delete over a single-column
// key: an IN-list on MySQL, "= ANY($1)" on Postgres.
func (b *Builder) BatchedDelete(schema, table, keyCol string, n int) (query string, bindCount int) {
	if b.cap.Kind().String() == "postgres" {
		q := fmt.Sprintf("DELETE FROM %s WHERE %s = ANY(%s)",
			b.qualified(schema, table), b.quoteIdent(keyCol), b.cap.Placeholder(1))
		return q, 1
	}
	ph := strings.Join(b.placeholders(1, n), ", ")
	q := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
		b.qualified(schema, table), b.quoteIdent(keyCol), ph)
	return q, n
}

func (b *Builder) quoteColumns(cols []string) string {
	return engine.QuoteColumns(b.cap, cols)
}

// keyEquals renders "k1 = ?1 AND k2 = ?2 ..." starting placeholder
// numbering at start.
func (b *Builder) keyEquals(keyCols []string, start int) string {
	parts := make([]string, len(keyCols))
	for i, k := range keyCols {
		parts[i] = fmt.Sprintf("%s = %s", b.quoteIdent(k), b.cap.Placeholder(start+i))
	}
	return strings.Join(parts, " AND ")
}

func subtract(cols, exclude []string) []string {
	excl := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		excl[e] = true
	}
	var out []string
	for _, c := range cols {
		if !excl[c] {
			out = append(out, c)
		}
	}
	return out
}
