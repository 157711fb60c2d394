package extract

import (
	"context"
	"database/sql"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/siddontang/loggers"
	pgquery "github.com/xataio/pg_query_go/v6"

	"github.com/replibridge/replibridge/pkg/buffer"
	"github.com/replibridge/replibridge/pkg/errs"
	"github.com/replibridge/replibridge/pkg/filter"
	"github.com/replibridge/replibridge/pkg/meta"
	"github.com/replibridge/replibridge/pkg/row"
	"github.com/replibridge/replibridge/pkg/router"
)

// PostgresCDCExtractor polls a logical replication slot's test_decoding
// output instead of driving the streaming replication protocol
// directly -- nothing in the retrieval pack demonstrates the latter
// (block/spirit only ever speaks to MySQL), and periodic polling of
// pg_logical_slot_get_changes over an ordinary lib/pq connection is
// the standard low-dependency way to consume logical decoding output.
// Unlike MySQL's numeric TableMapEvent.TableID, test_decoding's output
// embeds the schema-qualified table and column names directly, so the
// cache key here is just (schema, table) rather than a numeric id --
// a documented simplification relative to the MySQL extractor.
//
// test_decoding never emits DDL (PostgreSQL logical decoding has no
// built-in DDL event): this extractor instead polls a companion
// "_replibridge_ddl_log" table that callers are expected to populate
// with an event trigger, the conventional workaround CDC tools use
// for Postgres DDL capture. Entries are parsed with
// github.com/xataio/pg_query_go/v6, the Postgres analogue of the tidb
// parser the MySQL path uses.
type PostgresCDCExtractor struct {
	db      *sql.DB
	slot    string
	metaMgr *meta.Manager
	buf     *buffer.Buffer
	router  *router.Router
	filter  *filter.Filter
	logger  loggers.Advanced

	pollInterval time.Duration
	lastDDLID    int64
}

func NewPostgresCDCExtractor(db *sql.DB, slot string, metaMgr *meta.Manager, buf *buffer.Buffer, rt *router.Router, f *filter.Filter, logger loggers.Advanced) *PostgresCDCExtractor {
	return &PostgresCDCExtractor{db: db, slot: slot, metaMgr: metaMgr, buf: buf, router: rt, filter: f, logger: logger, pollInterval: time.Second}
}

// Run polls the slot and the DDL log until ctx is canceled.
func (e *PostgresCDCExtractor) Run(ctx context.Context) error {
	for {
		if err := e.pollDML(ctx); err != nil {
			return err
		}
		if err := e.pollDDL(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.pollInterval):
		}
	}
}

func (e *PostgresCDCExtractor) pollDML(ctx context.Context) error {
	rows, err := e.db.QueryContext(ctx, "SELECT lsn, data FROM pg_logical_slot_get_changes($1, NULL, NULL)", e.slot)
	if err != nil {
		return errs.New(errs.Connection, "extract.PostgresCDCExtractor.pollDML", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lsn, data string
		if err := rows.Scan(&lsn, &data); err != nil {
			return errs.New(errs.Decode, "extract.PostgresCDCExtractor.pollDML", err)
		}
		if err := e.handleLine(ctx, lsn, data); err != nil {
			return err
		}
	}
	return errs.New(errs.Decode, "extract.PostgresCDCExtractor.pollDML", rows.Err())
}

var changeLinePattern = regexp.MustCompile(`^table ([^.]+)\.([^:]+): (INSERT|UPDATE|DELETE): (.*)$`)
var colAssignPattern = regexp.MustCompile(`(\S+)\[([^\]]+)\]:((?:'(?:[^']|'')*')|\S+)`)

func (e *PostgresCDCExtractor) handleLine(ctx context.Context, lsn, data string) error {
	if strings.HasPrefix(data, "COMMIT") {
		return e.buf.PushCommit(ctx, row.Position{Engine: row.EnginePostgres, Token: lsn})
	}
	if strings.HasPrefix(data, "BEGIN") {
		return nil
	}
	m := changeLinePattern.FindStringSubmatch(data)
	if m == nil {
		return nil
	}
	schema, table, op, rest := m[1], m[2], m[3], m[4]
	if e.filter != nil && !e.filter.Matches(schema, table) {
		return nil
	}

	img := decodePgRowImage(rest)
	var r row.RowData
	switch op {
	case "INSERT":
		r = row.RowData{Schema: schema, Table: table, Type: row.Insert, After: img}
	case "DELETE":
		r = row.RowData{Schema: schema, Table: table, Type: row.Delete, Before: img}
	case "UPDATE":
		// test_decoding with REPLICA IDENTITY FULL repeats every column
		// in the new image; it does not separately report the old
		// values unless they changed, so Before mirrors After here --
		// the row comparison engine and sinker only consume the
		// resulting After image for an Update in practice (keyed
		// upsert), so this is not a loss for this module's Update
		// consumers.
		r = row.RowData{Schema: schema, Table: table, Type: row.Update, Before: img, After: img}
	}
	if e.router != nil {
		r = e.router.Route(r)
	}
	return e.buf.PushRow(ctx, r)
}

// decodePgRowImage parses test_decoding's "col[type]:value col2[type]:value"
// column list into a ColValue map, type-guiding the conversion since
// the plugin's output is plain text with no driver-level typing.
func decodePgRowImage(rest string) map[string]row.ColValue {
	matches := colAssignPattern.FindAllStringSubmatch(rest, -1)
	img := make(map[string]row.ColValue, len(matches))
	for _, m := range matches {
		name, typ, raw := m[1], m[2], m[3]
		img[name] = pgValueToColValue(typ, raw)
	}
	return img
}

func pgValueToColValue(typ, raw string) row.ColValue {
	if strings.EqualFold(raw, "null") {
		return row.None()
	}
	if strings.HasPrefix(raw, "'") && strings.HasSuffix(raw, "'") && len(raw) >= 2 {
		unquoted := strings.ReplaceAll(raw[1:len(raw)-1], "''", "'")
		return row.NewString(unquoted)
	}
	lt := strings.ToLower(typ)
	switch {
	case strings.Contains(lt, "bool"):
		return row.NewBool(raw == "t" || strings.EqualFold(raw, "true"))
	case strings.Contains(lt, "int"):
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return row.NewInt64(row.KindInt64, v)
		}
	case strings.Contains(lt, "numeric") || strings.Contains(lt, "decimal") || strings.Contains(lt, "money"):
		if d, err := decimal.NewFromString(raw); err == nil {
			return row.NewDecimal(d)
		}
	case strings.Contains(lt, "double") || strings.Contains(lt, "real") || strings.Contains(lt, "float"):
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return row.NewFloat64(v)
		}
	}
	return row.NewString(raw)
}

func (e *PostgresCDCExtractor) pollDDL(ctx context.Context) error {
	rows, err := e.db.QueryContext(ctx,
		"SELECT id, schema, query FROM _replibridge_ddl_log WHERE id > $1 ORDER BY id", e.lastDDLID)
	if err != nil {
		return errs.New(errs.Connection, "extract.PostgresCDCExtractor.pollDDL", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var schema, query string
		if err := rows.Scan(&id, &schema, &query); err != nil {
			return errs.New(errs.Decode, "extract.PostgresCDCExtractor.pollDDL", err)
		}
		ddlType, table := classifyPgDDL(query)
		if table != "" {
			e.metaMgr.Invalidate(schema, table)
		}
		if err := e.buf.PushDdl(ctx, row.DdlData{Schema: schema, Query: query, Type: ddlType}); err != nil {
			return err
		}
		e.lastDDLID = id
	}
	return errs.New(errs.Decode, "extract.PostgresCDCExtractor.pollDDL", rows.Err())
}

// classifyPgDDL parses query with pg_query_go and tags it with a
// row.DdlType plus the table name it affects, mirroring
// classifyDDL's role on the MySQL side.
func classifyPgDDL(query string) (row.DdlType, string) {
	result, err := pgquery.Parse(query)
	if err != nil || len(result.Stmts) == 0 {
		return row.DdlUnknown, ""
	}
	stmt := result.Stmts[0].Stmt
	switch {
	case stmt.GetCreateStmt() != nil:
		return row.DdlCreateTable, stmt.GetCreateStmt().GetRelation().GetRelname()
	case stmt.GetAlterTableStmt() != nil:
		return row.DdlAlterTable, stmt.GetAlterTableStmt().GetRelation().GetRelname()
	case stmt.GetDropStmt() != nil:
		return row.DdlDropTable, dropStmtTableName(stmt.GetDropStmt())
	case stmt.GetIndexStmt() != nil:
		return row.DdlCreateIndex, stmt.GetIndexStmt().GetRelation().GetRelname()
	case stmt.GetRenameStmt() != nil:
		return row.DdlRenameTable, stmt.GetRenameStmt().GetRelation().GetRelname()
	case stmt.GetTruncateStmt() != nil:
		return row.DdlTruncateTable, truncateStmtTableName(stmt.GetTruncateStmt())
	default:
		return row.DdlUnknown, ""
	}
}

func dropStmtTableName(d *pgquery.DropStmt) string {
	if len(d.Objects) == 0 {
		return ""
	}
	list := d.Objects[0].GetList()
	if list == nil || len(list.Items) == 0 {
		return ""
	}
	last := list.Items[len(list.Items)-1].GetString_()
	if last == nil {
		return ""
	}
	return last.Sval
}

func truncateStmtTableName(tr *pgquery.TruncateStmt) string {
	if len(tr.Relations) == 0 {
		return ""
	}
	rv := tr.Relations[0].GetRangeVar()
	if rv == nil {
		return ""
	}
	return rv.Relname
}
