package extract

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/siddontang/loggers"

	"github.com/replibridge/replibridge/pkg/buffer"
	"github.com/replibridge/replibridge/pkg/engine"
	"github.com/replibridge/replibridge/pkg/filter"
	"github.com/replibridge/replibridge/pkg/row"
	"github.com/replibridge/replibridge/pkg/structmeta"
)

// StructExtractor reads each configured table's column, index, and
// constraint definitions via a structmeta.Fetcher and pushes them as
// DdlData in tables -> indexes -> constraints order, so a struct
// migration replay never references an index or constraint before its
// table exists. The same type backs both engines; only the
// structmeta.Fetcher and engine.Capability passed to
// NewMySQLStructExtractor/NewPostgresStructExtractor differ.
type StructExtractor struct {
	db      *sql.DB
	cap     engine.Capability
	fetcher structmeta.Fetcher
	buf     *buffer.Buffer
	filter  *filter.Filter
	logger  loggers.Advanced
	tables  []TableRef
}

func (e *StructExtractor) Run(ctx context.Context) error {
	for _, t := range e.tables {
		if e.filter != nil && !e.filter.Matches(t.Schema, t.Table) {
			continue
		}
		if err := e.extractTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (e *StructExtractor) extractTable(ctx context.Context, t TableRef) error {
	model, err := e.fetcher.FetchStructModel(ctx, e.db, t.Schema, t.Table)
	if err != nil {
		return err
	}

	if err := e.buf.PushDdl(ctx, row.DdlData{
		Schema: t.Schema, Query: renderCreateTable(e.cap, model), Meta: model, Type: row.DdlCreateTable,
	}); err != nil {
		return err
	}

	for _, idx := range model.Indexes {
		if idx.Primary {
			continue // already expressed as the CREATE TABLE's PRIMARY KEY clause
		}
		idxModel := *model
		idxModel.Indexes = []row.IndexDef{idx}
		if err := e.buf.PushDdl(ctx, row.DdlData{
			Schema: t.Schema, Query: renderCreateIndex(e.cap, model.Schema, model.Table, idx), Meta: &idxModel, Type: row.DdlCreateIndex,
		}); err != nil {
			return err
		}
	}

	for _, c := range model.Constraints {
		consModel := *model
		consModel.Constraints = []row.ConstraintDef{c}
		if err := e.buf.PushDdl(ctx, row.DdlData{
			Schema: t.Schema, Query: renderAddConstraint(e.cap, model.Schema, model.Table, c), Meta: &consModel, Type: row.DdlAlterTable,
		}); err != nil {
			return err
		}
		if e.logger != nil {
			e.logger.Infof("extract: %s.%s constraint %s queued for replay", t.Schema, t.Table, c.Name)
		}
	}
	return nil
}

// renderCreateTable renders an idempotent CREATE TABLE IF NOT EXISTS
// from a fetched StructModel, translating only identifier quoting per
// cap -- column type strings pass through verbatim from the source
// catalog, a documented best-effort limitation when source and
// destination are different engine families (e.g. MySQL's
// "int(11) unsigned" has no literal Postgres equivalent).
func renderCreateTable(cap engine.Capability, m *row.StructModel) string {
	qualified := cap.EscapeIdent(m.Schema) + "." + cap.EscapeIdent(m.Table)
	var cols []string
	for _, c := range m.Columns {
		col := cap.EscapeIdent(c.Name) + " " + c.Type
		if !c.Nullable {
			col += " NOT NULL"
		}
		if c.Default != nil {
			col += " DEFAULT " + *c.Default
		}
		cols = append(cols, col)
	}
	for _, idx := range m.Indexes {
		if idx.Primary {
			cols = append(cols, "PRIMARY KEY ("+quoteColList(cap, idx.Columns)+")")
		}
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", qualified, strings.Join(cols, ", "))
}

func renderCreateIndex(cap engine.Capability, schema, table string, idx row.IndexDef) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	qualified := cap.EscapeIdent(schema) + "." + cap.EscapeIdent(table)
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, cap.EscapeIdent(idx.Name), qualified, quoteColList(cap, idx.Columns))
}

func renderAddConstraint(cap engine.Capability, schema, table string, c row.ConstraintDef) string {
	qualified := cap.EscapeIdent(schema) + "." + cap.EscapeIdent(table)
	def := c.Definition
	if def == "" {
		def = c.Type
	}
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s", qualified, cap.EscapeIdent(c.Name), def)
}

func quoteColList(cap engine.Capability, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = cap.EscapeIdent(c)
	}
	return strings.Join(quoted, ", ")
}
