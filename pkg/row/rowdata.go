package row

import "fmt"

// RowType is the DML kind a RowData carries.
type RowType int

const (
	Insert RowType = iota
	Update
	Delete
)

func (t RowType) String() string {
	switch t {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// RowData is the engine-neutral record every extractor produces and
// every sinker/query builder consumes. Column maps are keyed by raw
// source column name with case preserved.
//
// Invariants (validated by Validate, not by the zero value):
//   - Insert:  After != nil,  Before == nil
//   - Delete:  Before != nil, After == nil
//   - Update:  Before != nil, After != nil
type RowData struct {
	Schema string
	Table  string
	Type   RowType
	Before map[string]ColValue
	After  map[string]ColValue
}

// Validate checks the Insert/Update/Delete before/after invariant.
func (r RowData) Validate() error {
	switch r.Type {
	case Insert:
		if r.After == nil || r.Before != nil {
			return fmt.Errorf("row: insert row for %s.%s must have After only", r.Schema, r.Table)
		}
	case Update:
		if r.After == nil || r.Before == nil {
			return fmt.Errorf("row: update row for %s.%s must have both Before and After", r.Schema, r.Table)
		}
	case Delete:
		if r.Before == nil || r.After != nil {
			return fmt.Errorf("row: delete row for %s.%s must have Before only", r.Schema, r.Table)
		}
	default:
		return fmt.Errorf("row: unknown row type %d for %s.%s", r.Type, r.Schema, r.Table)
	}
	return nil
}

// Image returns the column map that represents the row's current
// state: After for Insert/Update, Before for Delete. This is the map
// the comparison engine and sinkers iterate when they don't care
// which side of a change they're looking at.
func (r RowData) Image() map[string]ColValue {
	if r.Type == Delete {
		return r.Before
	}
	return r.After
}

// KeyValues extracts the values of keyCols (in order) from the row's
// Image, for building a composite key used in hashing/bucketing and
// in keyed DML.
func (r RowData) KeyValues(keyCols []string) []ColValue {
	img := r.Image()
	vals := make([]ColValue, len(keyCols))
	for i, c := range keyCols {
		vals[i] = img[c]
	}
	return vals
}

// Clone returns a copy whose Before and After maps can be mutated
// independently of r's; the ColValues in them are shared.
func (r RowData) Clone() RowData {
	c := RowData{Schema: r.Schema, Table: r.Table, Type: r.Type}
	if r.Before != nil {
		c.Before = make(map[string]ColValue, len(r.Before))
		for k, v := range r.Before {
			c.Before[k] = v
		}
	}
	if r.After != nil {
		c.After = make(map[string]ColValue, len(r.After))
		for k, v := range r.After {
			c.After[k] = v
		}
	}
	return c
}
