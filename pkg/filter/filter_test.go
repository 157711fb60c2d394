package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterDefaultIncludesEverything(t *testing.T) {
	f, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, f.Matches("any_db", "any_tb"))
}

func TestFilterWildcardExclude(t *testing.T) {
	// S3: filter src.tmp_%
	f, err := New(Config{IgnoreTbs: []string{"src.tmp_%"}})
	require.NoError(t, err)
	assert.False(t, f.Matches("src", "tmp_1"))
	assert.False(t, f.Matches("src", "tmp_"))
	assert.True(t, f.Matches("src", "keep"))
	assert.True(t, f.Matches("other", "tmp_1"), "pattern is scoped to db 'src'")
}

func TestFilterDoListRestrictsToMatches(t *testing.T) {
	f, err := New(Config{DoTbs: []string{"src.keep"}})
	require.NoError(t, err)
	assert.True(t, f.Matches("src", "keep"))
	assert.False(t, f.Matches("src", "other"))
}

func TestFilterIgnoreWinsOverDo(t *testing.T) {
	f, err := New(Config{DoDBs: []string{"src"}, IgnoreTbs: []string{"src.secret"}})
	require.NoError(t, err)
	assert.True(t, f.Matches("src", "public"))
	assert.False(t, f.Matches("src", "secret"))
}

func TestFilterEscapedWildcard(t *testing.T) {
	f, err := New(Config{IgnoreTbs: []string{`src.100\%_done`}})
	require.NoError(t, err)
	assert.False(t, f.Matches("src", "100%_done"))
	assert.True(t, f.Matches("src", "100Xdone"), "escaped %% must not behave as a wildcard")
}

func TestFilterUnderscoreWildcard(t *testing.T) {
	f, err := New(Config{IgnoreTbs: []string{"src.tmp_1"}})
	require.NoError(t, err)
	assert.False(t, f.Matches("src", "tmpX1"), "_ matches exactly one character")
	assert.True(t, f.Matches("src", "tmp1"), "_ requires a character to be present")
}

func TestSplitDbTb(t *testing.T) {
	db, tb, err := SplitDbTb("src.keep")
	require.NoError(t, err)
	assert.Equal(t, "src", db)
	assert.Equal(t, "keep", tb)

	_, _, err = SplitDbTb("nodot")
	assert.Error(t, err)
}

func TestLoadFilteredTables(t *testing.T) {
	r := strings.NewReader("# comment\nsrc.tmp_1\n\nsrc.tmp_2\n")
	tbs, err := LoadFilteredTables(r)
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"src", "tmp_1"}, {"src", "tmp_2"}}, tbs)
}
