package extract

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
	"github.com/siddontang/loggers"

	"github.com/replibridge/replibridge/pkg/buffer"
	"github.com/replibridge/replibridge/pkg/dbconn"
	"github.com/replibridge/replibridge/pkg/errs"
	"github.com/replibridge/replibridge/pkg/filter"
	"github.com/replibridge/replibridge/pkg/meta"
	"github.com/replibridge/replibridge/pkg/row"
	"github.com/replibridge/replibridge/pkg/router"
	"github.com/replibridge/replibridge/pkg/statement"
)

// MySQLCDCExtractor streams row and DDL events off the source's
// binlog via go-mysql-org/go-mysql/replication's BinlogSyncer, the
// same library block/spirit's pkg/repl.Client drives -- though that
// file (client.go) was never retrieved into this module's pack, only
// its tests and the downstream subscription flush logic were, so this
// extractor is built directly against BinlogSyncer's documented
// public API rather than adapted from a retrieved usage example; that
// gap is recorded in DESIGN.md. DDL text is classified with
// github.com/pingcap/tidb/pkg/parser, the same parser the teacher
// already depends on for ALTER-safety checks in pkg/utils and this
// module uses again in pkg/statement.
type MySQLCDCExtractor struct {
	conf    MySQLCDCConfig
	metaMgr *meta.Manager
	buf     *buffer.Buffer
	router  *router.Router
	filter  *filter.Filter
	logger  loggers.Advanced

	startPos row.Position
}

// MySQLCDCConfig is the subset of BinlogSyncerConfig this extractor
// exposes to callers: connection parameters plus a server ID that
// must be unique among everything replicating from this source.
// TLSMode/TLSCertificatePath mirror dbconn.DBConfig's fields so a
// single source URL can drive both the initial struct/snapshot
// connection (through dbconn.New) and the separate binlog connection
// BinlogSyncer opens, with the same certificate.
type MySQLCDCConfig struct {
	Host               string
	Port               uint16
	User               string
	Password           string
	ServerID           uint32
	TLSMode            string
	TLSCertificatePath string
}

func NewMySQLCDCExtractor(conf MySQLCDCConfig, metaMgr *meta.Manager, buf *buffer.Buffer, rt *router.Router, f *filter.Filter, logger loggers.Advanced, startPos row.Position) *MySQLCDCExtractor {
	return &MySQLCDCExtractor{conf: conf, metaMgr: metaMgr, buf: buf, router: rt, filter: f, logger: logger, startPos: startPos}
}

// binlogTLSConfig builds the *tls.Config the binlog connection needs,
// reusing dbconn's RDS/custom-certificate resolution rather than
// duplicating it -- BinlogSyncer opens its own TCP connection outside
// database/sql, so it can't inherit the main connection's registered
// go-sql-driver/mysql TLS name and needs the raw tls.Config instead.
func (e *MySQLCDCExtractor) binlogTLSConfig() (*tls.Config, error) {
	if e.conf.TLSMode == "" || strings.EqualFold(e.conf.TLSMode, "DISABLED") {
		return nil, nil
	}
	dbConfig := dbconn.NewDBConfig()
	dbConfig.TLSMode = e.conf.TLSMode
	dbConfig.TLSCertificatePath = e.conf.TLSCertificatePath
	return dbconn.GetTLSConfigForBinlog(dbConfig, e.conf.Host)
}

type tableMapEntry struct {
	schema string
	table  string
}

// Run streams the binlog from e.startPos (or the server's current
// position if e.startPos is zero) until ctx is canceled or the
// streamer returns an unrecoverable error.
func (e *MySQLCDCExtractor) Run(ctx context.Context) error {
	tlsConfig, err := e.binlogTLSConfig()
	if err != nil {
		return errs.New(errs.Config, "extract.MySQLCDCExtractor.Run", err)
	}
	syncer := replication.NewBinlogSyncer(replication.BinlogSyncerConfig{
		ServerID:  e.conf.ServerID,
		Flavor:    "mysql",
		Host:      e.conf.Host,
		Port:      e.conf.Port,
		User:      e.conf.User,
		Password:  e.conf.Password,
		Logger:    e.logger,
		TLSConfig: tlsConfig,
	})
	defer syncer.Close()

	startPos, err := mysqlPositionFromToken(e.startPos.Token)
	if err != nil {
		return errs.New(errs.Config, "extract.MySQLCDCExtractor.Run", err)
	}
	streamer, err := syncer.StartSync(startPos)
	if err != nil {
		return errs.New(errs.Connection, "extract.MySQLCDCExtractor.Run", err)
	}

	tableMap := make(map[uint64]tableMapEntry)
	currentFile := startPos.Name

	for {
		ev, err := streamer.GetEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errs.New(errs.Connection, "extract.MySQLCDCExtractor.Run", err)
		}

		switch ev.Header.EventType {
		case replication.ROTATE_EVENT:
			if re, ok := ev.Event.(*replication.RotateEvent); ok {
				currentFile = string(re.NextLogName)
			}

		case replication.TABLE_MAP_EVENT:
			tme, ok := ev.Event.(*replication.TableMapEvent)
			if !ok {
				continue
			}
			tableMap[tme.TableID] = tableMapEntry{schema: string(tme.Schema), table: string(tme.Table)}

		case replication.WRITE_ROWS_EVENTv1, replication.WRITE_ROWS_EVENTv2:
			if err := e.handleRows(ctx, ev, tableMap, row.Insert); err != nil {
				return err
			}

		case replication.UPDATE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv2:
			if err := e.handleRows(ctx, ev, tableMap, row.Update); err != nil {
				return err
			}

		case replication.DELETE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv2:
			if err := e.handleRows(ctx, ev, tableMap, row.Delete); err != nil {
				return err
			}

		case replication.QUERY_EVENT:
			qe, ok := ev.Event.(*replication.QueryEvent)
			if !ok {
				continue
			}
			if err := e.handleQuery(ctx, qe); err != nil {
				return err
			}

		case replication.XID_EVENT:
			pos := row.Position{Engine: row.EngineMySQL, Token: fmt.Sprintf("%s:%d", currentFile, ev.Header.LogPos)}
			if err := e.buf.PushCommit(ctx, pos); err != nil {
				return err
			}
		}
	}
}

func (e *MySQLCDCExtractor) handleRows(ctx context.Context, ev *replication.BinlogEvent, tableMap map[uint64]tableMapEntry, typ row.RowType) error {
	re, ok := ev.Event.(*replication.RowsEvent)
	if !ok {
		return nil
	}
	entry, ok := tableMap[re.TableID]
	if !ok {
		return errs.Newf(errs.Decode, "extract.MySQLCDCExtractor.handleRows", "rows event for unknown table id %d (no preceding table map event)", re.TableID)
	}
	if e.filter != nil && !e.filter.Matches(entry.schema, entry.table) {
		return nil
	}
	tm, err := e.metaMgr.Get(ctx, entry.schema, entry.table)
	if err != nil {
		return err
	}

	push := func(r row.RowData) error {
		if e.router != nil {
			r = e.router.Route(r)
		}
		return e.buf.PushRow(ctx, r)
	}

	if typ == row.Update {
		for i := 0; i+1 < len(re.Rows); i += 2 {
			r := row.RowData{
				Schema: entry.schema, Table: entry.table, Type: row.Update,
				Before: decodeRowImage(tm.Columns, re.Rows[i]),
				After:  decodeRowImage(tm.Columns, re.Rows[i+1]),
			}
			if err := push(r); err != nil {
				return err
			}
		}
		return nil
	}

	for _, rawRow := range re.Rows {
		img := decodeRowImage(tm.Columns, rawRow)
		var r row.RowData
		if typ == row.Insert {
			r = row.RowData{Schema: entry.schema, Table: entry.table, Type: row.Insert, After: img}
		} else {
			r = row.RowData{Schema: entry.schema, Table: entry.table, Type: row.Delete, Before: img}
		}
		if err := push(r); err != nil {
			return err
		}
	}
	return nil
}

// decodeRowImage pairs a RowsEvent's positional column values with
// the cached column names. go-mysql already decodes each value into
// the same small Go-native union database/sql hands back (nil,
// integer, float, []byte, string, time.Time), so this reuses
// row.FromDriverValue rather than a second bespoke decoder.
func decodeRowImage(cols []string, vals []interface{}) map[string]row.ColValue {
	img := make(map[string]row.ColValue, len(cols))
	for i, name := range cols {
		if i >= len(vals) {
			break
		}
		img[name] = row.FromDriverValue(vals[i])
	}
	return img
}

// handleQuery classifies a QUERY_EVENT's text and, for anything other
// than a transaction-control pseudo-statement (BEGIN), invalidates
// the meta cache for the affected table and pushes a DdlData event.
func (e *MySQLCDCExtractor) handleQuery(ctx context.Context, qe *replication.QueryEvent) error {
	query := strings.TrimSpace(string(qe.Query))
	if query == "" || strings.EqualFold(query, "BEGIN") || strings.EqualFold(query, "COMMIT") {
		return nil
	}
	schema := string(qe.Schema)
	ddlType, table := classifyDDL(query)
	if table != "" {
		e.metaMgr.Invalidate(schema, table)
	}
	d := row.DdlData{Schema: schema, Query: query, Type: ddlType}
	if ddlType == row.DdlCreateTable {
		if parsed, err := statement.ParseCreateTable(query); err == nil {
			sm := parsed.ToStructModel(schema)
			d.Meta = &sm
		}
	}
	return e.buf.PushDdl(ctx, d)
}

// classifyDDL parses query with the tidb parser far enough to tag it
// with a row.DdlType and recover the table name it affects. Anything
// the parser can't classify (or doesn't recognize) comes back as
// DdlUnknown with no table, which still replays fine -- struct replay
// only needs the query text to be idempotent, not classified.
func classifyDDL(query string) (row.DdlType, string) {
	p := parser.New()
	stmtNodes, _, err := p.Parse(query, "", "")
	if err != nil || len(stmtNodes) == 0 {
		return row.DdlUnknown, ""
	}
	switch n := stmtNodes[0].(type) {
	case *ast.CreateTableStmt:
		return row.DdlCreateTable, n.Table.Name.O
	case *ast.AlterTableStmt:
		return row.DdlAlterTable, n.Table.Name.O
	case *ast.DropTableStmt:
		if len(n.Tables) > 0 {
			return row.DdlDropTable, n.Tables[0].Name.O
		}
		return row.DdlDropTable, ""
	case *ast.CreateIndexStmt:
		return row.DdlCreateIndex, n.Table.Name.O
	case *ast.DropIndexStmt:
		return row.DdlDropIndex, n.Table.Name.O
	case *ast.TruncateTableStmt:
		return row.DdlTruncateTable, n.Table.Name.O
	case *ast.RenameTableStmt:
		if len(n.TableToTables) > 0 {
			return row.DdlRenameTable, n.TableToTables[0].OldTable.Name.O
		}
		return row.DdlRenameTable, ""
	default:
		return row.DdlUnknown, ""
	}
}

// mysqlPositionFromToken parses a row.Position.Token of the form
// "binlog.000123:4567" into a mysql.Position, or returns the zero
// Position (stream from the server's current position) for an empty
// token.
func mysqlPositionFromToken(token string) (mysql.Position, error) {
	if token == "" {
		return mysql.Position{}, nil
	}
	idx := strings.LastIndex(token, ":")
	if idx < 0 {
		return mysql.Position{}, fmt.Errorf("extract: malformed mysql position token %q", token)
	}
	name, posStr := token[:idx], token[idx+1:]
	pos, err := strconv.ParseUint(posStr, 10, 32)
	if err != nil {
		return mysql.Position{}, fmt.Errorf("extract: malformed mysql position token %q: %w", token, err)
	}
	return mysql.Position{Name: name, Pos: uint32(pos)}, nil
}
