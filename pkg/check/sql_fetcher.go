package check

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/replibridge/replibridge/pkg/engine"
	"github.com/replibridge/replibridge/pkg/errs"
	"github.com/replibridge/replibridge/pkg/querybuilder"
	"github.com/replibridge/replibridge/pkg/row"
)

// SQLRowFetcher implements RowFetcher by issuing a whole-table
// ORDER BY scan through database/sql and converting each driver value
// generically -- it has no column-type catalog to consult, only
// whatever Go type the driver itself chose to hand back.
type SQLRowFetcher struct {
	db     *sql.DB
	schema string // not set by NewSQLRowFetcher nor read by FetchRows, which takes schema per call
	cap    engine.Capability
	qb     *querybuilder.Builder
}

func NewSQLRowFetcher(db *sql.DB, cap engine.Capability) *SQLRowFetcher {
	return &SQLRowFetcher{db: db, cap: cap, qb: querybuilder.New(cap)}
}

func (f *SQLRowFetcher) FetchRows(ctx context.Context, schema, table string, cols, keyCols []string) ([]row.RowData, error) {
	query := f.qb.SelectOrdered(schema, table, cols, keyCols)
	if len(cols) == 0 {
		// No column list (a filtered table's emptiness check): read
		// every column so any row present is still returned.
		query = "SELECT * FROM " + f.cap.EscapeIdent(schema) + "." + f.cap.EscapeIdent(table)
	}
	rows, err := f.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.New(errs.Query, fmt.Sprintf("check.SQLRowFetcher %s.%s", schema, table), err)
	}
	defer rows.Close()
	if len(cols) == 0 {
		if cols, err = rows.Columns(); err != nil {
			return nil, errs.New(errs.Decode, fmt.Sprintf("check.SQLRowFetcher %s.%s", schema, table), err)
		}
	}

	dest := make([]any, len(cols))
	scanBuf := make([]any, len(cols))
	for i := range dest {
		scanBuf[i] = &dest[i]
	}

	var out []row.RowData
	for rows.Next() {
		if err := rows.Scan(scanBuf...); err != nil {
			return nil, errs.New(errs.Decode, fmt.Sprintf("check.SQLRowFetcher %s.%s", schema, table), err)
		}
		img := make(map[string]row.ColValue, len(cols))
		for i, col := range cols {
			img[col] = row.FromDriverValue(dest[i])
		}
		out = append(out, row.RowData{Schema: schema, Table: table, Type: row.Insert, After: img})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.Decode, fmt.Sprintf("check.SQLRowFetcher %s.%s", schema, table), err)
	}
	return out, nil
}
