package e2e

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

// waitForCondition polls cond every 100ms until it returns true or
// timeout elapses, failing the test on timeout -- the scenarios in
// spec.md express their assertions as "after N seconds", which a
// single synchronous check would flake against real replication lag.
func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func rowCount(t *testing.T, db *sql.DB, schema, table string) int {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+schema+"."+table).Scan(&n)
	if err != nil {
		t.Fatalf("counting rows in %s.%s: %v", schema, table, err)
	}
	return n
}
