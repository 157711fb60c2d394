package extract

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replibridge/replibridge/pkg/buffer"
	"github.com/replibridge/replibridge/pkg/engine"
	"github.com/replibridge/replibridge/pkg/filter"
	"github.com/replibridge/replibridge/pkg/meta"
)

func newTestFilter() (*filter.Filter, error) {
	return filter.New(filter.Config{IgnoreTbs: []string{"shop.secret"}})
}

type staticFetcher struct{ tm *meta.TbMeta }

func (f staticFetcher) FetchTbMeta(ctx context.Context, db *sql.DB, schema, table string) (*meta.TbMeta, error) {
	return f.tm, nil
}

func TestSnapshotExtractorKeyedTablePaginatesToCompletion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tm := &meta.TbMeta{Schema: "shop", Table: "orders", Columns: []string{"id", "total"}, KeyColumns: []string{"id"}}
	mgr := meta.NewManager(db, staticFetcher{tm: tm})

	first := sqlmock.NewRows([]string{"id", "total"}).AddRow(int64(1), "9.99").AddRow(int64(2), "4.50")
	mock.ExpectQuery("SELECT .* FROM .*orders.* ORDER BY .* LIMIT 2").WillReturnRows(first)
	second := sqlmock.NewRows([]string{"id", "total"}).AddRow(int64(3), "1.00")
	mock.ExpectQuery("SELECT .* FROM .*orders.* WHERE .*> .* ORDER BY .* LIMIT 2").WithArgs(int64(2)).WillReturnRows(second)

	buf := buffer.New(10)
	e := NewSnapshotExtractor(db, engine.MySQL, mgr, buf, nil, nil, nil, 2, []TableRef{{Schema: "shop", Table: "orders"}})
	require.NoError(t, e.Run(context.Background()))

	var got []int
	for {
		item, ok := buf.Pop(context.Background())
		if !ok {
			break
		}
		require.NotNil(t, item.Dml)
		got = append(got, int(item.Dml.After["id"].Int64()))
		if len(got) == 3 {
			buf.Shutdown()
		}
	}
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotExtractorKeylessTableUsesOffsetPagination(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tm := &meta.TbMeta{Schema: "shop", Table: "log", Columns: []string{"msg"}}
	mgr := meta.NewManager(db, staticFetcher{tm: tm})

	rows := sqlmock.NewRows([]string{"msg"}).AddRow("hello")
	mock.ExpectQuery("SELECT .* FROM .*log.* LIMIT 10 OFFSET 0").WillReturnRows(rows)

	buf := buffer.New(10)
	e := NewSnapshotExtractor(db, engine.MySQL, mgr, buf, nil, nil, nil, 10, []TableRef{{Schema: "shop", Table: "log"}})
	require.NoError(t, e.Run(context.Background()))

	item, ok := buf.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, "hello", item.Dml.After["msg"].String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotExtractorSkipsFilteredTables(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mgr := meta.NewManager(db, staticFetcher{})
	buf := buffer.New(10)
	f, err := newTestFilter()
	require.NoError(t, err)

	e := NewSnapshotExtractor(db, engine.MySQL, mgr, buf, nil, f, nil, 10, []TableRef{{Schema: "shop", Table: "secret"}})
	require.NoError(t, e.Run(context.Background()))
	assert.True(t, buf.IsEmpty())
}
