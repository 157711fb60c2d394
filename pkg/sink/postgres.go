package sink

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/replibridge/replibridge/pkg/dbconn"
)

// PostgresExecer mirrors MySQLExecer for the Postgres connection and
// retry path, additionally wrapping any []any argument in pq.Array so
// a BatchedDelete's "= ANY($1)" bind works with lib/pq.
type PostgresExecer struct {
	db     *sql.DB
	config *dbconn.DBConfig
}

func NewPostgresExecer(db *sql.DB, config *dbconn.DBConfig) *PostgresExecer {
	if config == nil {
		config = dbconn.NewDBConfig()
	}
	return &PostgresExecer{db: db, config: config}
}

func (e *PostgresExecer) Exec(ctx context.Context, stmts ...string) (int64, error) {
	return dbconn.RetryablePgTransaction(ctx, e.db, e.config, stmts...)
}

func (e *PostgresExecer) ExecArgs(ctx context.Context, query string, args ...any) error {
	return dbconn.RetryablePgExecArgs(ctx, e.db, e.config, query, wrapArrays(args)...)
}

func wrapArrays(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if sl, ok := a.([]any); ok {
			out[i] = pq.Array(sl)
		} else {
			out[i] = a
		}
	}
	return out
}
