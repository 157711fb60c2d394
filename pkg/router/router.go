// Package router implements the declarative (db, table[, column])
// rewrite: tb_map, col_map, and topic_map, each with identity fallback
// on miss. A Router is immutable after construction and therefore
// safe for concurrent use without locking.
package router

import (
	"fmt"

	"github.com/replibridge/replibridge/pkg/row"
)

// TbRoute is a single source -> destination table mapping.
type TbRoute struct {
	SrcDB, SrcTable string
	DstDB, DstTable string
}

// ColRoute renames one column within a given source table.
type ColRoute struct {
	SrcDB, SrcTable string
	SrcCol, DstCol  string
}

// TopicRoute maps a source table to a destination message-sink topic.
type TopicRoute struct {
	SrcDB, SrcTable string
	Topic           string
}

// Config is the declarative shape injected as task configuration:
// router { tb_map, col_map, topic_map }.
type Config struct {
	TbMap    []TbRoute
	ColMap   []ColRoute
	TopicMap []TopicRoute
}

type dbTb struct{ db, tb string }

// Router is the compiled, read-only form of Config.
type Router struct {
	tbMap    map[dbTb]dbTb
	colMap   map[dbTb]map[string]string
	topicMap map[dbTb]string
}

// New compiles a Config into a Router. Duplicate tb_map source
// entries are an error: a source table must have exactly one
// destination.
func New(cfg Config) (*Router, error) {
	r := &Router{
		tbMap:    make(map[dbTb]dbTb, len(cfg.TbMap)),
		colMap:   make(map[dbTb]map[string]string),
		topicMap: make(map[dbTb]string, len(cfg.TopicMap)),
	}
	for _, m := range cfg.TbMap {
		key := dbTb{m.SrcDB, m.SrcTable}
		if _, exists := r.tbMap[key]; exists {
			return nil, fmt.Errorf("router: duplicate tb_map entry for %s.%s", m.SrcDB, m.SrcTable)
		}
		r.tbMap[key] = dbTb{m.DstDB, m.DstTable}
	}
	for _, c := range cfg.ColMap {
		key := dbTb{c.SrcDB, c.SrcTable}
		if r.colMap[key] == nil {
			r.colMap[key] = make(map[string]string)
		}
		r.colMap[key][c.SrcCol] = c.DstCol
	}
	for _, t := range cfg.TopicMap {
		r.topicMap[dbTb{t.SrcDB, t.SrcTable}] = t.Topic
	}
	return r, nil
}

// GetTbMap resolves a source (db, tb) to its destination, falling
// back to the identity mapping when no rule applies.
func (r *Router) GetTbMap(db, tb string) (dstDB, dstTable string) {
	if d, ok := r.tbMap[dbTb{db, tb}]; ok {
		return d.db, d.tb
	}
	return db, tb
}

// GetColMap returns the column rename map for a source (db, tb), or
// nil if no column of that table is renamed.
func (r *Router) GetColMap(db, tb string) map[string]string {
	return r.colMap[dbTb{db, tb}]
}

// MapColumn renames a single column, falling back to identity.
func (r *Router) MapColumn(db, tb, col string) string {
	if m := r.GetColMap(db, tb); m != nil {
		if dst, ok := m[col]; ok {
			return dst
		}
	}
	return col
}

// GetTopic resolves the destination topic for a source (db, tb). The
// empty string with ok=false means no topic route was configured.
func (r *Router) GetTopic(db, tb string) (topic string, ok bool) {
	topic, ok = r.topicMap[dbTb{db, tb}]
	return
}

// Route rewrites a RowData's schema/table to their destination names
// and renames its Before/After column keys, returning a new RowData
// and leaving the input untouched. This is the single call site the
// extractors use before pushing onto the buffer.
func (r *Router) Route(rd row.RowData) row.RowData {
	dstDB, dstTable := r.GetTbMap(rd.Schema, rd.Table)
	out := row.RowData{Schema: dstDB, Table: dstTable, Type: rd.Type}
	out.Before = renameCols(r, rd.Schema, rd.Table, rd.Before)
	out.After = renameCols(r, rd.Schema, rd.Table, rd.After)
	return out
}

func renameCols(r *Router, db, tb string, cols map[string]row.ColValue) map[string]row.ColValue {
	if cols == nil {
		return nil
	}
	out := make(map[string]row.ColValue, len(cols))
	for k, v := range cols {
		out[r.MapColumn(db, tb, k)] = v
	}
	return out
}
