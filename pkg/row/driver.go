package row

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FromDriverValue wraps a database/sql-returned value (nil, int64,
// float64, bool, []byte, string, or time.Time -- the driver.Value
// union) into a ColValue. It can't recover the original engine column
// type (DECIMAL vs DOUBLE, DATE vs DATETIME) since a generic scan has
// no column-type catalog to consult; both the comparison engine's
// cross-engine fallback and the snapshot extractor's re-encoding
// tolerate that loss (the former via its ToOptionString projection,
// the latter because it only needs a round-trippable Driver() value).
// The one exception is geometry: decodeWKBBytes sniffs the []byte
// case for a valid WKB/EWKB payload before falling through to the
// decimal/string guesses, since a misread geometry column silently
// becoming a string would otherwise be unrecoverable downstream.
func FromDriverValue(v any) ColValue {
	switch t := v.(type) {
	case nil:
		return None()
	case int64:
		return NewInt64(KindInt64, t)
	case float64:
		return NewFloat64(t)
	case bool:
		return NewBool(t)
	case []byte:
		if wkb, ok := decodeWKBBytes(t); ok {
			return NewGeometry(wkb)
		}
		if dec, err := decimal.NewFromString(string(t)); err == nil {
			return NewDecimal(dec)
		}
		return NewString(string(t))
	case string:
		return NewString(t)
	case time.Time:
		return NewDateTime(t)
	default:
		return NewString(fmt.Sprintf("%v", t))
	}
}
