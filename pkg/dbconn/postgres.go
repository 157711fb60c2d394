package dbconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// NewPostgres opens a pooled *sql.DB for Postgres, mirroring New's
// pool-sizing and ping-on-connect behavior for MySQL.
func NewPostgres(dsn string, config *DBConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	maxOpen := config.MaxOpenConnections
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetConnMaxLifetime(maxConnLifetime)
	db.SetMaxIdleConns(maxIdleConns)
	//nolint: noctx
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("[POSTGRES-CONNECTION] ping failed: %w", err)
	}
	return db, nil
}

// postgresRetryableErrorCodes are SQLSTATE classes worth retrying: a
// serialization failure, deadlock detected, or connection-class
// error, per Postgres's error code table.
var postgresRetryableErrorCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"08000": true, // connection_exception
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
}

func postgresCanRetryError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return postgresRetryableErrorCodes[string(pqErr.Code)]
	}
	return false
}

// RetryablePgExecArgs is RetryableExecArgs's Postgres analogue: one
// parameterized statement, retried under the same bounded backoff,
// dispatching on SQLSTATE classes instead of MySQL error numbers.
func RetryablePgExecArgs(ctx context.Context, db *sql.DB, config *DBConfig, query string, args ...any) error {
	var err error
	bo := config.newBackoff()
RETRYLOOP:
	for i := 0; i < config.MaxRetries; i++ {
		var trx *sql.Tx
		if trx, err = db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}); err != nil {
			sleepBackoff(ctx, bo)
			continue RETRYLOOP
		}
		if _, err = trx.ExecContext(ctx, query, args...); err != nil {
			_ = trx.Rollback()
			if postgresCanRetryError(err) {
				sleepBackoff(ctx, bo)
				continue RETRYLOOP
			}
			return err
		}
		if err = trx.Commit(); err != nil {
			_ = trx.Rollback()
			sleepBackoff(ctx, bo)
			continue RETRYLOOP
		}
		return nil
	}
	return err
}

// RetryablePgTransaction is RetryableTransaction's Postgres analogue:
// SHOW WARNINGS has no equivalent here, so warnings are not inspected,
// but the retry-on-transient-error and bounded-backoff shape is the
// same.
func RetryablePgTransaction(ctx context.Context, db *sql.DB, config *DBConfig, stmts ...string) (int64, error) {
	var err error
	var trx *sql.Tx
	var rowsAffected int64
	bo := config.newBackoff()
RETRYLOOP:
	for i := 0; i < config.MaxRetries; i++ {
		if trx, err = db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}); err != nil {
			sleepBackoff(ctx, bo)
			continue RETRYLOOP
		}
		for _, stmt := range stmts {
			if stmt == "" {
				continue
			}
			var res sql.Result
			if res, err = trx.ExecContext(ctx, stmt); err != nil {
				if postgresCanRetryError(err) {
					_ = trx.Rollback()
					sleepBackoff(ctx, bo)
					continue RETRYLOOP
				}
				_ = trx.Rollback()
				return rowsAffected, err
			}
			if count, cerr := res.RowsAffected(); cerr == nil {
				rowsAffected += count
			}
		}
		if err != nil {
			_ = trx.Rollback()
			sleepBackoff(ctx, bo)
			continue RETRYLOOP
		}
		if err = trx.Commit(); err != nil {
			_ = trx.Rollback()
			sleepBackoff(ctx, bo)
			continue RETRYLOOP
		}
		return rowsAffected, nil
	}
	return rowsAffected, err
}
