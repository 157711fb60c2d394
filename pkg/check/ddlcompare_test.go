package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCreateTableNamesIgnoresNonCreateStatements(t *testing.T) {
	script := `
CREATE TABLE users (id int primary key);
INSERT INTO users VALUES (1);
CREATE TABLE orders (id int primary key, user_id int);
UPDATE users SET id = 2 WHERE id = 1;
`
	names, err := ExtractCreateTableNames(script)
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "orders"}, names)
}

func TestExtractCreateTableNamesEmptyScript(t *testing.T) {
	names, err := ExtractCreateTableNames("")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestReconcileTableSetUnionsAndDedupes(t *testing.T) {
	got := ReconcileTableSet("shop", []string{"users", "orders"}, []string{"orders", "carts"}, nil)
	assert.Equal(t, []string{"users", "orders", "carts"}, got)
}

func TestReconcileTableSetSubtractsFilteredTables(t *testing.T) {
	filtered := [][2]string{{"shop", "carts"}, {"other", "users"}}
	got := ReconcileTableSet("shop", []string{"users", "orders"}, []string{"orders", "carts"}, filtered)
	assert.Equal(t, []string{"users", "orders"}, got)
}

func TestReconcileTableSetOnlyFiltersMatchingDB(t *testing.T) {
	filtered := [][2]string{{"other", "users"}}
	got := ReconcileTableSet("shop", []string{"users"}, nil, filtered)
	assert.Equal(t, []string{"users"}, got)
}
