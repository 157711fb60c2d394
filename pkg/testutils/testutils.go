// Package testutils provides the shared live-MySQL helpers
// pkg/dbconn's integration tests need: a DSN pointed at a reachable
// test instance and a way to run setup SQL against it. It deliberately
// does not try to start a container itself -- pkg/e2e already owns
// that with testcontainers-go for its broader scenarios -- this
// package is for the narrower dbconn tests that just need one already
// -running MySQL to connect to.
package testutils

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
)

const defaultDSN = "root:root@tcp(127.0.0.1:3306)/test"

// DSN returns the MySQL connection string integration tests should
// dial, read from REPLIBRIDGE_TEST_MYSQL_DSN so CI can point it at a
// throwaway instance; it falls back to a local default rather than
// skipping, since the callers here (pkg/dbconn's TestNewConn and
// friends) are unconditional integration tests, not gated behind
// t.Skip like pkg/preflight's live-server checks.
func DSN() string {
	if dsn := os.Getenv("REPLIBRIDGE_TEST_MYSQL_DSN"); dsn != "" {
		return dsn
	}
	return defaultDSN
}

// RunSQL executes one statement against DSN(), failing the test
// immediately if the connection or statement fails.
func RunSQL(t *testing.T, query string) {
	t.Helper()
	db, err := sql.Open("mysql", DSN())
	if err != nil {
		t.Fatalf("testutils.RunSQL: opening connection: %v", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(t.Context(), query); err != nil {
		t.Fatalf("testutils.RunSQL: %q: %v", query, err)
	}
}
