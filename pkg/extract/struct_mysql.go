package extract

import (
	"database/sql"

	"github.com/siddontang/loggers"

	"github.com/replibridge/replibridge/pkg/buffer"
	"github.com/replibridge/replibridge/pkg/engine"
	"github.com/replibridge/replibridge/pkg/filter"
	"github.com/replibridge/replibridge/pkg/structmeta"
)

// NewMySQLStructExtractor builds a StructExtractor reading MySQL's
// information_schema and rendering destination DDL in cap's dialect.
func NewMySQLStructExtractor(db *sql.DB, cap engine.Capability, buf *buffer.Buffer, f *filter.Filter, logger loggers.Advanced, tables []TableRef) *StructExtractor {
	return &StructExtractor{db: db, cap: cap, fetcher: structmeta.MySQLFetcher{}, buf: buf, filter: f, logger: logger, tables: tables}
}
