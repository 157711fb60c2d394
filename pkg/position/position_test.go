package position

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replibridge/replibridge/pkg/row"
)

func mysqlPlaceholder(int) string { return "?" }
func quoteBacktick(s string) string { return "`" + s + "`" }

func TestSQLStoreLoadReturnsNotOkWhenMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT engine, token FROM").
		WithArgs("task1").
		WillReturnError(sql.ErrNoRows)

	s := NewSQLStore(db, "repl", quoteBacktick, mysqlPlaceholder)
	_, ok, err := s.Load(context.Background(), "task1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLStoreLoadReturnsSavedPosition(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"engine", "token"}).AddRow("mysql", "binlog.000123:4567")
	mock.ExpectQuery("SELECT engine, token FROM").
		WithArgs("task1").
		WillReturnRows(rows)

	s := NewSQLStore(db, "repl", quoteBacktick, mysqlPlaceholder)
	pos, ok, err := s.Load(context.Background(), "task1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, row.EngineMySQL, pos.Engine)
	assert.Equal(t, "binlog.000123:4567", pos.Token)
}

func TestSQLStoreSaveMySQLUsesOnDuplicateKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO .* ON DUPLICATE KEY UPDATE").
		WithArgs("task1", "mysql", "binlog.1:1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewSQLStore(db, "repl", quoteBacktick, mysqlPlaceholder)
	err = s.Save(context.Background(), "task1", row.Position{Engine: row.EngineMySQL, Token: "binlog.1:1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreSavePostgresUsesOnConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	pgPlaceholder := func(i int) string {
		switch i {
		case 1:
			return "$1"
		case 2:
			return "$2"
		default:
			return "$3"
		}
	}
	quoteDouble := func(s string) string { return `"` + s + `"` }

	mock.ExpectExec("INSERT INTO .* ON CONFLICT").
		WithArgs("task1", "postgres", "0/1A2B3C").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewSQLStore(db, "repl", quoteDouble, pgPlaceholder)
	err = s.Save(context.Background(), "task1", row.Position{Engine: row.EnginePostgres, Token: "0/1A2B3C"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreEnsureTableCreatesIfNotExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))

	s := NewSQLStore(db, "repl", quoteBacktick, mysqlPlaceholder)
	require.NoError(t, s.EnsureTable(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
