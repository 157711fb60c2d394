package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/replibridge/replibridge/pkg/buffer"
	"github.com/replibridge/replibridge/pkg/checklog"
	"github.com/replibridge/replibridge/pkg/engine"
	"github.com/replibridge/replibridge/pkg/extract"
	"github.com/replibridge/replibridge/pkg/meta"
	"github.com/replibridge/replibridge/pkg/row"
)

// S4 check_diff: a check-log line with log_type=Diff for (1,'a')
// yields at the buffer a RowData{row_type: Update, before=after=
// {pk:1,v:'a'}}.
func TestCheckDiffYieldsUpdateWithMatchingBeforeAfter(t *testing.T) {
	src := openMySQL(t)
	ctx := context.Background()

	_, err := src.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS repltest.t (pk int primary key, v text)")
	require.NoError(t, err)
	_, err = src.ExecContext(ctx, "INSERT INTO repltest.t (pk, v) VALUES (1, 'a')")
	require.NoError(t, err)
	t.Cleanup(func() { src.Exec("DROP TABLE IF EXISTS repltest.t") })

	buf := buffer.New(8)
	metaMgr := meta.NewManager(src, meta.MySQLFetcher{})
	ext := extract.NewCheckExtractor(src, engine.MySQL, metaMgr, buf, nil)

	pk := "1"
	v := "a"
	logs := []checklog.CheckLog{
		{Schema: "repltest", Table: "t", LogType: checklog.Diff, Cols: []string{"pk", "v"}, ColValues: []*string{&pk, &v}},
	}
	require.NoError(t, ext.Run(ctx, logs, 100))
	buf.Shutdown()

	item, ok := buf.Pop(ctx)
	require.True(t, ok)
	require.NotNil(t, item.Dml)
	require.Equal(t, row.Update, item.Dml.Type)
	require.Equal(t, item.Dml.Before, item.Dml.After)

	afterV, ok := item.Dml.After["v"].ToOptionString()
	require.True(t, ok)
	require.Equal(t, "a", afterV)
}
