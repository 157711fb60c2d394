package extract

import (
	"database/sql"

	"github.com/siddontang/loggers"

	"github.com/replibridge/replibridge/pkg/buffer"
	"github.com/replibridge/replibridge/pkg/engine"
	"github.com/replibridge/replibridge/pkg/filter"
	"github.com/replibridge/replibridge/pkg/structmeta"
)

// NewPostgresStructExtractor is NewMySQLStructExtractor's Postgres
// counterpart, reading pg_indexes/information_schema instead.
func NewPostgresStructExtractor(db *sql.DB, cap engine.Capability, buf *buffer.Buffer, f *filter.Filter, logger loggers.Advanced, tables []TableRef) *StructExtractor {
	return &StructExtractor{db: db, cap: cap, fetcher: structmeta.PostgresFetcher{}, buf: buf, filter: f, logger: logger, tables: tables}
}
