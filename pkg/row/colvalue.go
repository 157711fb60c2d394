// Package row holds the engine-neutral row representation that every
// extractor decodes into and every sinker/query builder reads back
// out of: ColValue, RowData, DdlData, and the buffer's DtItem.
package row

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags the scalar (or composite) variant a ColValue holds. It is
// a closed set mirroring the union of types the supported engines can
// express.
type Kind int

const (
	KindNone Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindDecimal
	KindBool
	KindString
	KindBinary
	KindDate
	KindTime
	KindDateTime
	KindTimestamp
	KindJSON
	KindGeometry
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return "int"
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return "uint"
	case KindFloat32, KindFloat64:
		return "float"
	case KindDecimal:
		return "decimal"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindDateTime:
		return "datetime"
	case KindTimestamp:
		return "timestamp"
	case KindJSON:
		return "json"
	case KindGeometry:
		return "geometry"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// ColValue is a tagged variant over every scalar type expressible by a
// supported engine, plus JSON, geometry (PostGIS WKB), arrays, and a
// None marker for SQL NULL. Its own equality (Equal) is a true
// equivalence relation within a single engine; cross-engine
// comparison is deliberately a separate function (see
// pkg/check.compareColValue) so this type's Equal never has to lie.
type ColValue struct {
	Kind Kind

	i   int64
	u   uint64
	f   float64
	dec decimal.Decimal
	b   bool
	s   string
	raw []byte
	t   time.Time
	// tz holds the zone offset as seen on the wire for Timestamp values
	// that carry one; empty means "no explicit timezone".
	tz  string
	arr []ColValue
}

// None is the SQL NULL marker.
func None() ColValue { return ColValue{Kind: KindNone} }

func NewInt64(k Kind, v int64) ColValue  { return ColValue{Kind: k, i: v} }
func NewUint64(k Kind, v uint64) ColValue { return ColValue{Kind: k, u: v} }

func NewFloat32(v float32) ColValue { return ColValue{Kind: KindFloat32, f: float64(v)} }
func NewFloat64(v float64) ColValue { return ColValue{Kind: KindFloat64, f: v} }

func NewDecimal(v decimal.Decimal) ColValue { return ColValue{Kind: KindDecimal, dec: v} }

func NewBool(v bool) ColValue { return ColValue{Kind: KindBool, b: v} }

func NewString(v string) ColValue { return ColValue{Kind: KindString, s: v} }

func NewBinary(v []byte) ColValue { return ColValue{Kind: KindBinary, raw: v} }

func NewDate(v time.Time) ColValue { return ColValue{Kind: KindDate, t: v} }

func NewTime(v time.Time) ColValue { return ColValue{Kind: KindTime, t: v} }

func NewDateTime(v time.Time) ColValue { return ColValue{Kind: KindDateTime, t: v} }

// NewTimestamp carries an optional timezone token ("" if the source
// engine has no concept of one, e.g. MySQL TIMESTAMP is normalized to
// UTC upstream of here by the converter).
func NewTimestamp(v time.Time, tz string) ColValue {
	return ColValue{Kind: KindTimestamp, t: v, tz: tz}
}

func NewJSON(raw []byte) ColValue { return ColValue{Kind: KindJSON, raw: raw} }

// NewGeometry stores raw WKB (well-known binary) bytes as produced by
// MySQL spatial types or PostGIS geometry/geography columns.
func NewGeometry(wkb []byte) ColValue { return ColValue{Kind: KindGeometry, raw: wkb} }

func NewArray(elems []ColValue) ColValue { return ColValue{Kind: KindArray, arr: elems} }

func (v ColValue) IsNone() bool { return v.Kind == KindNone }

// Int64 returns the value as an int64 for any integer Kind. Panics if
// called on a non-integer Kind; callers are expected to switch on Kind
// first (this mirrors how the generated MySQL/Postgres decoders in
// pkg/extract are structured).
func (v ColValue) Int64() int64 {
	switch v.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return v.i
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return int64(v.u)
	default:
		panic(fmt.Sprintf("row: Int64 called on non-integer ColValue kind %s", v.Kind))
	}
}

func (v ColValue) Uint64() uint64 {
	if v.Kind >= KindUint8 && v.Kind <= KindUint64 {
		return v.u
	}
	panic(fmt.Sprintf("row: Uint64 called on non-unsigned ColValue kind %s", v.Kind))
}

func (v ColValue) Float64() float64 {
	switch v.Kind {
	case KindFloat32, KindFloat64:
		return v.f
	default:
		panic(fmt.Sprintf("row: Float64 called on non-float ColValue kind %s", v.Kind))
	}
}

func (v ColValue) Decimal() decimal.Decimal { return v.dec }

func (v ColValue) Bool() bool { return v.b }

func (v ColValue) String() string { return v.s }

func (v ColValue) Bytes() []byte { return v.raw }

func (v ColValue) Time() time.Time { return v.t }

func (v ColValue) Timezone() string { return v.tz }

func (v ColValue) Array() []ColValue { return v.arr }

// IsNaN reports whether v is a float Kind holding NaN. Per the
// comparison engine's NaN law, two NaNs always compare equal even
// though IEEE 754 NaN != NaN.
func (v ColValue) IsNaN() bool {
	return (v.Kind == KindFloat32 || v.Kind == KindFloat64) && math.IsNaN(v.f)
}

// Equal is ColValue's own equality: reflexive, symmetric, transitive,
// and only ever compares values that already share an engine's type
// system. It never does cross-engine normalization -- that is
// compareColValue's job in pkg/check, kept deliberately separate so
// this Equal stays a true equivalence relation.
func (v ColValue) Equal(o ColValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNone:
		return true
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return v.i == o.i
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return v.u == o.u
	case KindFloat32, KindFloat64:
		if v.IsNaN() && o.IsNaN() {
			return true
		}
		return v.f == o.f
	case KindDecimal:
		return v.dec.Equal(o.dec)
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindBinary, KindJSON, KindGeometry:
		return string(v.raw) == string(o.raw)
	case KindDate, KindTime, KindDateTime:
		return v.t.Equal(o.t)
	case KindTimestamp:
		return v.t.Equal(o.t) && v.tz == o.tz
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Driver projects a ColValue to a database/sql driver-bindable value:
// nil for None, the engine-native Go type for everything else
// (string for Decimal, since both go-sql-driver/mysql and lib/pq
// accept a decimal's string form for NUMERIC/DECIMAL columns without
// requiring either driver to understand shopspring/decimal).
func (v ColValue) Driver() any {
	switch v.Kind {
	case KindNone:
		return nil
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return v.i
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return v.u
	case KindFloat32, KindFloat64:
		return v.f
	case KindDecimal:
		return v.dec.String()
	case KindBool:
		return v.b
	case KindString:
		return v.s
	case KindBinary, KindJSON, KindGeometry:
		return v.raw
	case KindDate, KindTime, KindDateTime, KindTimestamp:
		return v.t
	case KindArray:
		elems := make([]any, len(v.arr))
		for i, e := range v.arr {
			elems[i] = e.Driver()
		}
		return elems
	default:
		return nil
	}
}

// ToOptionString projects a ColValue to an optional string
// representation used only for cross-engine comparison, the
// "compare to_option_string() projections"). Returns ok=false for
// None, matching Option<str> semantics (distinct from the
// empty string).
func (v ColValue) ToOptionString() (string, bool) {
	switch v.Kind {
	case KindNone:
		return "", false
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return strconv.FormatInt(v.i, 10), true
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return strconv.FormatUint(v.u, 10), true
	case KindFloat32, KindFloat64:
		if v.IsNaN() {
			return "NaN", true
		}
		return strconv.FormatFloat(v.f, 'g', -1, 64), true
	case KindDecimal:
		return v.dec.String(), true
	case KindBool:
		return strconv.FormatBool(v.b), true
	case KindString:
		return v.s, true
	case KindBinary, KindJSON, KindGeometry:
		return string(v.raw), true
	case KindDate:
		return v.t.Format("2006-01-02"), true
	case KindTime:
		return v.t.Format("15:04:05"), true
	case KindDateTime:
		return v.t.Format("2006-01-02 15:04:05"), true
	case KindTimestamp:
		return v.t.UTC().Format("2006-01-02 15:04:05"), true
	case KindArray:
		s := "["
		for i, e := range v.arr {
			if i > 0 {
				s += ","
			}
			es, ok := e.ToOptionString()
			if !ok {
				es = "null"
			}
			s += es
		}
		return s + "]", true
	default:
		return "", false
	}
}
