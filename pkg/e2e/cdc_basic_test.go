package e2e

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/replibridge/replibridge/pkg/buffer"
	"github.com/replibridge/replibridge/pkg/dbconn"
	"github.com/replibridge/replibridge/pkg/engine"
	"github.com/replibridge/replibridge/pkg/extract"
	"github.com/replibridge/replibridge/pkg/meta"
	"github.com/replibridge/replibridge/pkg/row"
	"github.com/replibridge/replibridge/pkg/sink"
	"github.com/replibridge/replibridge/pkg/task"
)

// S1 cdc_basic: create t(pk int primary key, v text) at src and dst;
// start CDC; insert (1,'a'), update to (1,'b'), delete 1; after 5s,
// rows(dst) is empty.
func TestCDCBasic(t *testing.T) {
	src := openMySQL(t)
	dst := openMySQL(t)
	ctx := context.Background()

	_, err := src.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS repltest.t (pk int primary key, v text)")
	require.NoError(t, err)
	_, err = dst.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS repltest.t (pk int primary key, v text)")
	require.NoError(t, err)
	t.Cleanup(func() {
		src.Exec("DROP TABLE IF EXISTS repltest.t")
		dst.Exec("DROP TABLE IF EXISTS repltest.t")
	})

	buf := buffer.New(64)
	metaMgr := meta.NewManager(src, meta.MySQLFetcher{})
	cdcConf := mysqlCDCConfigFromDSN(t, mysqlDSN, 101)
	ext := extract.NewMySQLCDCExtractor(cdcConf, metaMgr, buf, nil, nil, nil, row.Position{})

	execer := sink.NewMySQLExecer(dst, dbconn.NewDBConfig())
	sinker := sink.New(execer, engine.MySQL, meta.NewManager(dst, meta.MySQLFetcher{}), nil)

	tsk := task.New(task.Config{Name: "s1", StreamExt: ext, Sinker: sinker, Buf: buf, MetaMgr: metaMgr, ParallelSize: 2})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- tsk.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the binlog syncer a moment to connect and register before
	// the first write lands.
	time.Sleep(500 * time.Millisecond)

	_, err = src.ExecContext(ctx, "INSERT INTO repltest.t (pk, v) VALUES (1, 'a')")
	require.NoError(t, err)
	_, err = src.ExecContext(ctx, "UPDATE repltest.t SET v = 'b' WHERE pk = 1")
	require.NoError(t, err)
	_, err = src.ExecContext(ctx, "DELETE FROM repltest.t WHERE pk = 1")
	require.NoError(t, err)

	waitForCondition(t, 5*time.Second, func() bool {
		return rowCount(t, dst, "repltest", "t") == 0
	})
}

// mysqlCDCConfigFromDSN extracts host/port/user/password out of a
// go-sql-driver DSN so the binlog-level extractor (which speaks the
// replication protocol directly, not database/sql) can dial the same
// container the dbconn DSN points at.
func mysqlCDCConfigFromDSN(t *testing.T, dsn string, serverID uint32) extract.MySQLCDCConfig {
	t.Helper()
	// dsn shape: user:pass@tcp(host:port)/db?params
	userPass, rest, ok := strings.Cut(dsn, "@")
	require.True(t, ok)
	user, pass, _ := strings.Cut(userPass, ":")
	_, rest, ok = strings.Cut(rest, "(")
	require.True(t, ok)
	hostPort, _, ok := strings.Cut(rest, ")")
	require.True(t, ok)
	host, portStr, err := net.SplitHostPort(hostPort)
	require.NoError(t, err)
	port, err := strconv.ParseUint(portStr, 10, 16)
	require.NoError(t, err)
	return extract.MySQLCDCConfig{
		Host: host, Port: uint16(port),
		User: user, Password: pass,
		ServerID: serverID,
	}
}

