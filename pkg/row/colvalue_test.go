package row

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestColValueEqual(t *testing.T) {
	assert.True(t, NewInt64(KindInt32, 5).Equal(NewInt64(KindInt32, 5)))
	assert.False(t, NewInt64(KindInt32, 5).Equal(NewInt64(KindInt32, 6)))
	assert.False(t, NewInt64(KindInt32, 5).Equal(NewUint64(KindUint32, 5)), "different kinds never equal")
	assert.True(t, None().Equal(None()))
	assert.True(t, NewString("a").Equal(NewString("a")))
	assert.True(t, NewDecimal(decimal.RequireFromString("1.50")).Equal(NewDecimal(decimal.RequireFromString("1.500"))))
}

func TestColValueNaNLaw(t *testing.T) {
	nan1 := NewFloat64(math.NaN())
	nan2 := NewFloat64(math.NaN())
	assert.True(t, nan1.IsNaN())
	assert.True(t, nan1.Equal(nan2), "two NaNs must compare equal per the NaN law")
}

func TestColValueToOptionString(t *testing.T) {
	s, ok := None().ToOptionString()
	assert.False(t, ok)
	assert.Empty(t, s)

	s, ok = NewString("x").ToOptionString()
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	s, ok = NewInt64(KindInt64, 2024).ToOptionString()
	assert.True(t, ok)
	assert.Equal(t, "2024", s)
}

func TestColValueCrossEngineStringProjection(t *testing.T) {
	// S6: MySQL YEAR(2024) decoded as an int, StarRocks as INT 2024.
	// Both decode to KindInt32 here, and their to_option_string
	// projections line up -- the projection the cross-engine comparison
	// path in pkg/check uses, rather than ColValue.Equal.
	mysqlYear := NewInt64(KindInt32, 2024)
	starrocksInt := NewInt64(KindInt32, 2024)
	a, _ := mysqlYear.ToOptionString()
	b, _ := starrocksInt.ToOptionString()
	assert.Equal(t, a, b)
}

func TestColValueTimestampTimezone(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := NewTimestamp(now, "+00:00")
	b := NewTimestamp(now, "+00:00")
	c := NewTimestamp(now, "+05:00")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c), "same instant different tz token is not Equal (that's a lossy cross-engine concern)")
}

func TestColValueArray(t *testing.T) {
	arr := NewArray([]ColValue{NewInt64(KindInt32, 1), NewInt64(KindInt32, 2)})
	s, ok := arr.ToOptionString()
	assert.True(t, ok)
	assert.Equal(t, "[1,2]", s)
}
