package utils

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func TestHashKey(t *testing.T) {
	key := []any{"1234", "ACDC", "12"}
	assert.Equal(t, "1234-#-ACDC-#-12", HashKey(key))

	key = []any{"1234"}
	assert.Equal(t, "1234", HashKey(key))
}

func TestAlgorithmInplaceConsideredSafeAllowsDropIndex(t *testing.T) {
	err := AlgorithmInplaceConsideredSafe("ALTER TABLE t1 DROP INDEX idx_a")
	assert.NoError(t, err)
}

func TestAlgorithmInplaceConsideredSafeFlagsAddColumn(t *testing.T) {
	err := AlgorithmInplaceConsideredSafe("ALTER TABLE t1 ADD COLUMN c int")
	assert.Error(t, err)
}

func TestAlgorithmInplaceConsideredSafeIgnoresNonAlter(t *testing.T) {
	err := AlgorithmInplaceConsideredSafe("CREATE TABLE t1 (id int)")
	assert.NoError(t, err)
}
