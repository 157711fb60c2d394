// Package check implements the row- and table-level comparison engine
// that answers "did replication actually converge": fetch the same
// logical rows from source and destination, and compare them under
// the equality rules the two engines' differing type systems demand.
//
// Grounded on block/spirit's pkg/checksum, which already does
// source-vs-destination row comparison for an online schema change --
// just via a rolling checksum over a chunk instead of per-column
// equality. The chunk-by-chunk, fetch-both-sides shape carries over;
// the per-column comparator replacing the checksum is built fresh,
// since cross-engine comparison (MySQL source, Postgres or an
// analytic-sink destination) has no checksum to roll: column types
// don't line up bit-for-bit across engines, so comparison falls back
// to each value's string projection whenever the two sides' engines
// differ.
package check

import (
	"context"
	"fmt"

	"github.com/siddontang/loggers"

	"github.com/replibridge/replibridge/pkg/errs"
	"github.com/replibridge/replibridge/pkg/filter"
	"github.com/replibridge/replibridge/pkg/meta"
	"github.com/replibridge/replibridge/pkg/router"
	"github.com/replibridge/replibridge/pkg/row"
)

// TableRef names one table on one side of a comparison.
type TableRef struct {
	Schema, Table string
	Engine        row.EngineKind
}

// RowFetcher fetches every row of (schema, table) ordered by
// keyCols, projecting only cols. Implementations decide how to page
// or chunk; the comparator only needs the rows back in key order.
type RowFetcher interface {
	FetchRows(ctx context.Context, schema, table string, cols, keyCols []string) ([]row.RowData, error)
}

// MetaSource resolves table metadata (columns, key) for one side of
// a comparison. *meta.Manager satisfies this directly.
type MetaSource interface {
	Get(ctx context.Context, schema, table string) (*meta.TbMeta, error)
}

// Comparator runs compare_data_for_tbs/compare_tb_data/
// compare_row_data/compare_col_value (section 4.8) across a source
// and destination pair, applying router.Router's column renames so a
// routed column is compared against its mapped destination name.
type Comparator struct {
	SrcFetcher RowFetcher
	DstFetcher RowFetcher
	SrcMeta    MetaSource
	DstMeta    MetaSource
	Router     *router.Router // may be nil: identity mapping
	Logger     loggers.Advanced
}

// Mismatch describes one row/column disagreement, for a caller to
// turn into a checklog.CheckLog diff entry. compareRowData does not
// build Mismatch values; it logs each disagreement and returns false.
type Mismatch struct {
	Schema, Table string
	RowIndex      int
	Column        string
	Src, Dst      row.ColValue
}

func (c *Comparator) logf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger.Warnf(format, args...)
	}
}

func (c *Comparator) mapColumn(schema, table, col string) string {
	if c.Router == nil {
		return col
	}
	return c.Router.MapColumn(schema, table, col)
}

// CompareDataForTbs walks src and dst positionally, exactly as
// specified: the two slices must have equal length and already be
// aligned index-for-index. A filtered source table is expected to
// have an empty destination; anything else is compared via
// compareTbData. Unlike the surveyed teacher behavior -- which always
// returned true even when an intermediate compareTbData returned
// false -- this propagates the first false it sees.
func (c *Comparator) CompareDataForTbs(ctx context.Context, src, dst []TableRef, f *filter.Filter) (bool, error) {
	if len(src) != len(dst) {
		return false, errs.Newf(errs.Consistency, "check.CompareDataForTbs", "src/dst table lists have unequal length: %d vs %d", len(src), len(dst))
	}
	ok := true
	for i := range src {
		s, d := src[i], dst[i]
		included := f == nil || f.Matches(s.Schema, s.Table)
		if !included {
			rows, err := c.DstFetcher.FetchRows(ctx, d.Schema, d.Table, nil, nil)
			if err != nil {
				return false, err
			}
			if len(rows) != 0 {
				return false, errs.Newf(errs.Consistency, "check.CompareDataForTbs", "%s.%s is filtered but destination %s.%s has %d rows", s.Schema, s.Table, d.Schema, d.Table, len(rows))
			}
			continue
		}
		tbOk, err := c.compareTbData(ctx, s, d)
		if err != nil {
			return false, err
		}
		if !tbOk {
			ok = false
		}
	}
	return ok, nil
}

// compareTbData fetches both sides' metadata and rows, then delegates
// to compareRowData.
func (c *Comparator) compareTbData(ctx context.Context, src, dst TableRef) (bool, error) {
	srcMeta, err := c.SrcMeta.Get(ctx, src.Schema, src.Table)
	if err != nil {
		return false, err
	}
	dstMeta, err := c.DstMeta.Get(ctx, dst.Schema, dst.Table)
	if err != nil {
		return false, err
	}
	srcRows, err := c.SrcFetcher.FetchRows(ctx, src.Schema, src.Table, srcMeta.Columns, srcMeta.KeyColumns)
	if err != nil {
		return false, err
	}
	dstRows, err := c.DstFetcher.FetchRows(ctx, dst.Schema, dst.Table, dstMeta.Columns, dstMeta.KeyColumns)
	if err != nil {
		return false, err
	}
	return c.compareRowData(srcRows, dstRows, src, dst)
}

// compareRowData requires equal row counts -- a mismatch here is
// fatal, not a soft false, since the two sides can't even be lined up
// positionally. For each aligned row pair, every source column maps
// through the router to a destination column name; absence on the
// destination side is likewise fatal (a schema drift, not a value
// mismatch).
func (c *Comparator) compareRowData(srcRows, dstRows []row.RowData, src, dst TableRef) (bool, error) {
	if len(srcRows) != len(dstRows) {
		return false, errs.Newf(errs.Consistency, "check.compareRowData", "%s.%s: row count mismatch: src=%d dst=%d", src.Schema, src.Table, len(srcRows), len(dstRows))
	}
	ok := true
	for i := range srcRows {
		srcImg := srcRows[i].Image()
		dstImg := dstRows[i].Image()
		for col, srcVal := range srcImg {
			dstCol := c.mapColumn(src.Schema, src.Table, col)
			dstVal, present := dstImg[dstCol]
			if !present {
				return false, errs.Newf(errs.Consistency, "check.compareRowData", "%s.%s row %d: destination column %q (mapped from %q) missing", src.Schema, src.Table, i, dstCol, col)
			}
			if !compareColValue(srcVal, dstVal, src.Engine, dst.Engine) {
				c.logf("check: %s.%s row %d col %s mismatch: src=%v dst=%v", src.Schema, src.Table, i, col, srcVal, dstVal)
				ok = false
			}
		}
	}
	return ok, nil
}

// compareColValue implements the equality rules in order: tagged
// values already equal, then the NaN law, then (only when the two
// sides' engines differ) each value's to_option_string() projection.
func compareColValue(src, dst row.ColValue, srcEngine, dstEngine row.EngineKind) bool {
	if src.Equal(dst) {
		return true
	}
	if src.IsNaN() && dst.IsNaN() {
		return true
	}
	if srcEngine == dstEngine {
		return false
	}
	srcStr, srcOk := src.ToOptionString()
	dstStr, dstOk := dst.ToOptionString()
	if srcOk != dstOk {
		return false
	}
	if !srcOk {
		return true // both None
	}
	return srcStr == dstStr
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s.%s row %d col %s: src=%v dst=%v", m.Schema, m.Table, m.RowIndex, m.Column, m.Src, m.Dst)
}
