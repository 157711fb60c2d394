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
)

func TestMySQLStructExtractorPushesTableThenIndexThenConstraint(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT column_name, column_type").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "column_type", "is_nullable", "extra", "column_default", "column_comment"}).
			AddRow("id", "int(11)", "NO", "auto_increment", sql.NullString{}, sql.NullString{}).
			AddRow("total", "decimal(10,2)", "YES", "", sql.NullString{}, sql.NullString{}))

	mock.ExpectQuery("SELECT index_name, column_name").
		WillReturnRows(sqlmock.NewRows([]string{"index_name", "column_name", "non_unique", "index_type"}).
			AddRow("PRIMARY", "id", 0, "BTREE").
			AddRow("idx_total", "total", 1, "BTREE"))

	mock.ExpectQuery("SELECT constraint_name, constraint_type").
		WillReturnRows(sqlmock.NewRows([]string{"constraint_name", "constraint_type"}).
			AddRow("fk_shop", "FOREIGN KEY"))

	buf := buffer.New(10)
	e := NewMySQLStructExtractor(db, engine.MySQL, buf, nil, nil, []TableRef{{Schema: "shop", Table: "orders"}})
	require.NoError(t, e.Run(context.Background()))

	first, ok := buf.Pop(context.Background())
	require.True(t, ok)
	require.NotNil(t, first.Ddl)
	assert.Contains(t, first.Ddl.Query, "CREATE TABLE IF NOT EXISTS")
	assert.Contains(t, first.Ddl.Query, "PRIMARY KEY (`id`)")

	second, ok := buf.Pop(context.Background())
	require.True(t, ok)
	assert.Contains(t, second.Ddl.Query, "CREATE INDEX IF NOT EXISTS `idx_total`")

	third, ok := buf.Pop(context.Background())
	require.True(t, ok)
	assert.Contains(t, third.Ddl.Query, "ADD CONSTRAINT `fk_shop`")

	assert.NoError(t, mock.ExpectationsWereMet())
}
