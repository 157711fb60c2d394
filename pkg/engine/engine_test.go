package engine

import (
	"testing"

	"github.com/replibridge/replibridge/pkg/row"
	"github.com/stretchr/testify/assert"
)

func TestEscapeIdent(t *testing.T) {
	assert.Equal(t, "`tbl`", MySQL.EscapeIdent("tbl"))
	assert.Equal(t, "`ta``ble`", MySQL.EscapeIdent("ta`ble"))
	assert.Equal(t, `"tbl"`, Postgres.EscapeIdent("tbl"))
	assert.Equal(t, `"ta""ble"`, Postgres.EscapeIdent(`ta"ble`))
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "?", MySQL.Placeholder(1))
	assert.Equal(t, "?", MySQL.Placeholder(5))
	assert.Equal(t, "$1", Postgres.Placeholder(1))
	assert.Equal(t, "$5", Postgres.Placeholder(5))
}

func TestFor(t *testing.T) {
	c, err := For(row.EngineMySQL)
	assert.NoError(t, err)
	assert.Equal(t, row.EngineMySQL, c.Kind())

	_, err = For(row.EngineUnknown)
	assert.Error(t, err)
}

func TestQuoteColumns(t *testing.T) {
	assert.Equal(t, "`a`, `b`", QuoteColumns(MySQL, []string{"a", "b"}))
	assert.Equal(t, `"a", "b"`, QuoteColumns(Postgres, []string{"a", "b"}))
}
