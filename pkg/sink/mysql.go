package sink

import (
	"context"
	"database/sql"

	"github.com/replibridge/replibridge/pkg/dbconn"
)

// MySQLExecer adapts dbconn.RetryableTransaction/RetryableExecArgs to the Execer
// interface SQLSinker needs, keeping sink.go itself free of any
// direct go-sql-driver/mysql or lib/pq import.
type MySQLExecer struct {
	db     *sql.DB
	config *dbconn.DBConfig
}

func NewMySQLExecer(db *sql.DB, config *dbconn.DBConfig) *MySQLExecer {
	if config == nil {
		config = dbconn.NewDBConfig()
	}
	return &MySQLExecer{db: db, config: config}
}

func (e *MySQLExecer) Exec(ctx context.Context, stmts ...string) (int64, error) {
	return dbconn.RetryableTransaction(ctx, e.db, true, e.config, stmts...)
}

// ExecArgs runs a single parameterized statement under
// dbconn.RetryableExecArgs -- the upsert/delete hot path prepares its
// own placeholders and doesn't need RetryableTransaction's SHOW
// WARNINGS inspection.
func (e *MySQLExecer) ExecArgs(ctx context.Context, query string, args ...any) error {
	return dbconn.RetryableExecArgs(ctx, e.db, e.config, query, args...)
}
