package e2e

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/replibridge/replibridge/pkg/row"
)

// S6 cross_engine_types: MySQL YEAR(2024) vs an analytic sink's plain
// INT 2024 compare equal via ToOptionString, the row comparison
// engine's type-erased equality hook -- no container needed, this is
// a pure value-representation question.
func TestCrossEngineTypesCompareEqual(t *testing.T) {
	mysqlYear := row.NewInt64(row.KindInt32, 2024)
	sinkInt := row.NewInt64(row.KindInt64, 2024)

	a, ok := mysqlYear.ToOptionString()
	assert.True(t, ok)
	b, ok := sinkInt.ToOptionString()
	assert.True(t, ok)
	assert.Equal(t, a, b)
}
