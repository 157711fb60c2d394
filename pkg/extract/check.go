package extract

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/replibridge/replibridge/pkg/buffer"
	"github.com/replibridge/replibridge/pkg/checklog"
	"github.com/replibridge/replibridge/pkg/engine"
	"github.com/replibridge/replibridge/pkg/errs"
	"github.com/replibridge/replibridge/pkg/meta"
	"github.com/replibridge/replibridge/pkg/querybuilder"
	"github.com/replibridge/replibridge/pkg/row"
	"github.com/replibridge/replibridge/pkg/router"
)

// CheckExtractor re-reads rows the comparison engine (pkg/check)
// logged as missing or differing, and pushes a fresh RowData for each
// one still present on this extractor's side -- the second pass a
// check-and-resync cycle makes, after pkg/check has already written
// out a CheckLog batch via pkg/checklog.
//
// Grounded on querybuilder.Builder.KeyedSelect, whose own doc comment
// already names this exact use ("fetching the current destination row
// during a check comparison"); logs are grouped the way
// pkg/checklog.Batch groups them (same schema/table/LogType run
// together) so one meta.TbMeta lookup serves a whole run.
type CheckExtractor struct {
	db      *sql.DB
	cap     engine.Capability
	metaMgr *meta.Manager
	buf     *buffer.Buffer
	router  *router.Router
	qb      *querybuilder.Builder
}

func NewCheckExtractor(db *sql.DB, cap engine.Capability, metaMgr *meta.Manager, buf *buffer.Buffer, rt *router.Router) *CheckExtractor {
	return &CheckExtractor{db: db, cap: cap, metaMgr: metaMgr, buf: buf, router: rt, qb: querybuilder.New(cap)}
}

// Run re-fetches and re-pushes every logged row, grouped into batches
// of at most batchSize by (schema, table, LogType).
func (e *CheckExtractor) Run(ctx context.Context, logs []checklog.CheckLog, batchSize int) error {
	for _, batch := range checklog.Batch(logs, batchSize) {
		if err := e.runBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (e *CheckExtractor) runBatch(ctx context.Context, batch []checklog.CheckLog) error {
	if len(batch) == 0 {
		return nil
	}
	schema, table := batch[0].Schema, batch[0].Table
	tm, err := e.metaMgr.Get(ctx, schema, table)
	if err != nil {
		return err
	}

	for _, cl := range batch {
		if err := e.refetchOne(ctx, tm, cl); err != nil {
			return err
		}
	}
	return nil
}

func (e *CheckExtractor) refetchOne(ctx context.Context, tm *meta.TbMeta, cl checklog.CheckLog) error {
	keyVals := make([]any, len(cl.Cols))
	for i, col := range cl.Cols {
		keyVals[i] = checkLogValueToColValue(tm, col, cl.ColValues[i]).Driver()
	}

	query, bindCount := e.qb.KeyedSelect(cl.Schema, cl.Table, tm.Columns, cl.Cols)
	if bindCount != len(keyVals) {
		return errs.Newf(errs.Query, "extract.CheckExtractor.refetchOne", "expected %d key binds, built %d", bindCount, len(keyVals))
	}

	rows, err := e.db.QueryContext(ctx, query, keyVals...)
	if err != nil {
		return errs.New(errs.Query, "extract.CheckExtractor.refetchOne", err)
	}
	defer rows.Close()

	if !rows.Next() {
		// Row no longer exists on this side; nothing left to resync,
		// whether it was logged as missing or differing.
		return errs.New(errs.Decode, "extract.CheckExtractor.refetchOne", rows.Err())
	}

	dest := make([]any, len(tm.Columns))
	scanBuf := make([]any, len(tm.Columns))
	for i := range dest {
		scanBuf[i] = &dest[i]
	}
	if err := rows.Scan(scanBuf...); err != nil {
		return errs.New(errs.Decode, "extract.CheckExtractor.refetchOne", err)
	}
	img := make(map[string]row.ColValue, len(tm.Columns))
	for i, col := range tm.Columns {
		img[col] = row.FromDriverValue(dest[i])
	}

	var r row.RowData
	switch cl.LogType {
	case checklog.Miss:
		r = row.RowData{Schema: cl.Schema, Table: cl.Table, Type: row.Insert, After: img}
	case checklog.Diff:
		// The log only records that the two sides disagreed, not
		// which side was right; re-reading this side's current value
		// and copying it into both Before and After turns it into an
		// unconditional upsert at the sinker rather than a
		// compare-then-patch.
		r = row.RowData{Schema: cl.Schema, Table: cl.Table, Type: row.Update, Before: img, After: img}
	default:
		return nil
	}
	if e.router != nil {
		r = e.router.Route(r)
	}
	return e.buf.PushRow(ctx, r)
}

// checkLogValueToColValue parses a CheckLog's string-encoded key
// value back into a typed ColValue using the column's catalog type,
// so the bind argument matches the column's native representation
// instead of always binding a bare string.
func checkLogValueToColValue(tm *meta.TbMeta, col string, raw *string) row.ColValue {
	if raw == nil {
		return row.None()
	}
	ct, ok := tm.ColType[col]
	if !ok {
		return row.NewString(*raw)
	}
	nt := strings.ToLower(ct.NativeType)
	switch {
	case strings.Contains(nt, "int"):
		if v, err := strconv.ParseInt(*raw, 10, 64); err == nil {
			return row.NewInt64(row.KindInt64, v)
		}
	case strings.Contains(nt, "decimal") || strings.Contains(nt, "numeric"):
		if d, err := decimal.NewFromString(*raw); err == nil {
			return row.NewDecimal(d)
		}
	case strings.Contains(nt, "double") || strings.Contains(nt, "float") || strings.Contains(nt, "real"):
		if v, err := strconv.ParseFloat(*raw, 64); err == nil {
			return row.NewFloat64(v)
		}
	case strings.Contains(nt, "datetime") || strings.Contains(nt, "timestamp"):
		if t, err := time.Parse("2006-01-02 15:04:05", *raw); err == nil {
			return row.NewDateTime(t)
		}
	}
	return row.NewString(*raw)
}
