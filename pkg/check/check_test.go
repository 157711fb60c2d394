package check

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replibridge/replibridge/pkg/filter"
	"github.com/replibridge/replibridge/pkg/meta"
	"github.com/replibridge/replibridge/pkg/row"
)

type staticFetcher struct {
	rows []row.RowData
	err  error
}

func (f staticFetcher) FetchRows(ctx context.Context, schema, table string, cols, keyCols []string) ([]row.RowData, error) {
	return f.rows, f.err
}

type staticMeta struct{ tm *meta.TbMeta }

func (m staticMeta) Get(ctx context.Context, schema, table string) (*meta.TbMeta, error) {
	return m.tm, nil
}

func ordersTbMeta() *meta.TbMeta {
	return &meta.TbMeta{Schema: "shop", Table: "orders", Columns: []string{"id", "total"}, KeyColumns: []string{"id"}}
}

func TestCompareColValueTaggedEqual(t *testing.T) {
	assert.True(t, compareColValue(row.NewInt64(row.KindInt64, 1), row.NewInt64(row.KindInt64, 1), row.EngineMySQL, row.EngineMySQL))
	assert.False(t, compareColValue(row.NewInt64(row.KindInt64, 1), row.NewInt64(row.KindInt64, 2), row.EngineMySQL, row.EngineMySQL))
}

func TestCompareColValueNaNLaw(t *testing.T) {
	nan := row.NewFloat64(nan())
	assert.True(t, compareColValue(nan, nan, row.EngineMySQL, row.EngineMySQL))
}

func TestCompareColValueCrossEngineStringProjection(t *testing.T) {
	src := row.NewInt64(row.KindInt64, 42)
	dst := row.NewString("42")
	assert.True(t, compareColValue(src, dst, row.EngineMySQL, row.EnginePostgres))
}

func TestCompareColValueCrossEngineMismatchStillFails(t *testing.T) {
	src := row.NewInt64(row.KindInt64, 42)
	dst := row.NewString("43")
	assert.False(t, compareColValue(src, dst, row.EngineMySQL, row.EnginePostgres))
}

func TestCompareColValueSameEngineNoFallback(t *testing.T) {
	// Same engine, different tagged kind: no cross-engine fallback
	// applies, so this must compare unequal even though the string
	// projections would match.
	src := row.NewInt64(row.KindInt64, 42)
	dst := row.NewString("42")
	assert.False(t, compareColValue(src, dst, row.EngineMySQL, row.EngineMySQL))
}

func TestCompareColValueBothNoneAcrossEngines(t *testing.T) {
	assert.True(t, compareColValue(row.None(), row.None(), row.EngineMySQL, row.EnginePostgres))
}

func TestCompareRowDataMatches(t *testing.T) {
	c := &Comparator{}
	src := []row.RowData{{Schema: "shop", Table: "orders", Type: row.Insert, After: map[string]row.ColValue{
		"id": row.NewInt64(row.KindInt64, 1), "total": row.NewString("9.99"),
	}}}
	dst := []row.RowData{{Schema: "shop", Table: "orders", Type: row.Insert, After: map[string]row.ColValue{
		"id": row.NewInt64(row.KindInt64, 1), "total": row.NewString("9.99"),
	}}}
	ok, err := c.compareRowData(src, dst, TableRef{Schema: "shop", Table: "orders", Engine: row.EngineMySQL}, TableRef{Schema: "shop", Table: "orders", Engine: row.EngineMySQL})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompareRowDataMismatchReturnsFalseNotError(t *testing.T) {
	c := &Comparator{}
	src := []row.RowData{{Schema: "shop", Table: "orders", Type: row.Insert, After: map[string]row.ColValue{
		"id": row.NewInt64(row.KindInt64, 1), "total": row.NewString("9.99"),
	}}}
	dst := []row.RowData{{Schema: "shop", Table: "orders", Type: row.Insert, After: map[string]row.ColValue{
		"id": row.NewInt64(row.KindInt64, 1), "total": row.NewString("1.23"),
	}}}
	ok, err := c.compareRowData(src, dst, TableRef{Schema: "shop", Table: "orders", Engine: row.EngineMySQL}, TableRef{Schema: "shop", Table: "orders", Engine: row.EngineMySQL})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompareRowDataRowCountMismatchIsFatal(t *testing.T) {
	c := &Comparator{}
	src := []row.RowData{{Schema: "shop", Table: "orders", After: map[string]row.ColValue{"id": row.NewInt64(row.KindInt64, 1)}}}
	var dst []row.RowData
	_, err := c.compareRowData(src, dst, TableRef{Schema: "shop", Table: "orders"}, TableRef{Schema: "shop", Table: "orders"})
	assert.Error(t, err)
}

func TestCompareRowDataMissingDestinationColumnIsFatal(t *testing.T) {
	c := &Comparator{}
	src := []row.RowData{{Schema: "shop", Table: "orders", After: map[string]row.ColValue{
		"id": row.NewInt64(row.KindInt64, 1), "extra": row.NewString("x"),
	}}}
	dst := []row.RowData{{Schema: "shop", Table: "orders", After: map[string]row.ColValue{
		"id": row.NewInt64(row.KindInt64, 1),
	}}}
	_, err := c.compareRowData(src, dst, TableRef{Schema: "shop", Table: "orders"}, TableRef{Schema: "shop", Table: "orders"})
	assert.Error(t, err)
}

func TestCompareDataForTbsPropagatesFalse(t *testing.T) {
	mismatched := []row.RowData{{Schema: "shop", Table: "orders", After: map[string]row.ColValue{
		"id": row.NewInt64(row.KindInt64, 1), "total": row.NewString("wrong"),
	}}}
	good := []row.RowData{{Schema: "shop", Table: "orders", After: map[string]row.ColValue{
		"id": row.NewInt64(row.KindInt64, 1), "total": row.NewString("right"),
	}}}
	c := &Comparator{
		SrcFetcher: staticFetcher{rows: mismatched},
		DstFetcher: staticFetcher{rows: good},
		SrcMeta:    staticMeta{tm: ordersTbMeta()},
		DstMeta:    staticMeta{tm: ordersTbMeta()},
	}
	src := []TableRef{{Schema: "shop", Table: "orders"}}
	dst := []TableRef{{Schema: "shop", Table: "orders"}}
	ok, err := c.CompareDataForTbs(context.Background(), src, dst, nil)
	require.NoError(t, err)
	assert.False(t, ok, "a false compareTbData must propagate, not be swallowed")
}

func TestCompareDataForTbsRequiresEqualLength(t *testing.T) {
	c := &Comparator{}
	_, err := c.CompareDataForTbs(context.Background(), []TableRef{{Schema: "a", Table: "b"}}, nil, nil)
	assert.Error(t, err)
}

func TestCompareDataForTbsFilteredTableMustBeEmptyOnDestination(t *testing.T) {
	f, err := filter.New(filter.Config{IgnoreTbs: []string{"shop.tmp\\_%"}})
	require.NoError(t, err)

	c := &Comparator{DstFetcher: staticFetcher{rows: nil}}
	src := []TableRef{{Schema: "shop", Table: "tmp_1"}}
	dst := []TableRef{{Schema: "shop", Table: "tmp_1"}}
	ok, err := c.CompareDataForTbs(context.Background(), src, dst, f)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompareDataForTbsFilteredTableNonEmptyDestinationIsError(t *testing.T) {
	f, err := filter.New(filter.Config{IgnoreTbs: []string{"shop.tmp\\_%"}})
	require.NoError(t, err)

	leftover := []row.RowData{{Schema: "shop", Table: "tmp_1", After: map[string]row.ColValue{"id": row.NewInt64(row.KindInt64, 1)}}}
	c := &Comparator{DstFetcher: staticFetcher{rows: leftover}}
	src := []TableRef{{Schema: "shop", Table: "tmp_1"}}
	dst := []TableRef{{Schema: "shop", Table: "tmp_1"}}
	_, err = c.CompareDataForTbs(context.Background(), src, dst, f)
	assert.Error(t, err)
}

func nan() float64 {
	var zero float64
	return zero / zero
}
