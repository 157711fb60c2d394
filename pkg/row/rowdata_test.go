package row

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowDataValidate(t *testing.T) {
	insert := RowData{Schema: "s", Table: "t", Type: Insert, After: map[string]ColValue{"a": NewInt64(KindInt32, 1)}}
	assert.NoError(t, insert.Validate())

	badInsert := insert
	badInsert.Before = map[string]ColValue{"a": NewInt64(KindInt32, 1)}
	assert.Error(t, badInsert.Validate())

	del := RowData{Schema: "s", Table: "t", Type: Delete, Before: map[string]ColValue{"a": NewInt64(KindInt32, 1)}}
	assert.NoError(t, del.Validate())
	assert.Error(t, RowData{Schema: "s", Table: "t", Type: Delete}.Validate())

	upd := RowData{
		Schema: "s", Table: "t", Type: Update,
		Before: map[string]ColValue{"a": NewInt64(KindInt32, 1)},
		After:  map[string]ColValue{"a": NewInt64(KindInt32, 2)},
	}
	assert.NoError(t, upd.Validate())
	assert.Error(t, RowData{Schema: "s", Table: "t", Type: Update, Before: upd.Before}.Validate())
}

func TestRowDataImageAndKeyValues(t *testing.T) {
	upd := RowData{
		Type:   Update,
		Before: map[string]ColValue{"pk": NewInt64(KindInt32, 1), "v": NewString("old")},
		After:  map[string]ColValue{"pk": NewInt64(KindInt32, 1), "v": NewString("new")},
	}
	assert.Equal(t, upd.After, upd.Image())
	vals := upd.KeyValues([]string{"pk"})
	assert.Len(t, vals, 1)
	assert.True(t, vals[0].Equal(NewInt64(KindInt32, 1)))

	del := RowData{Type: Delete, Before: map[string]ColValue{"pk": NewInt64(KindInt32, 7)}}
	assert.Equal(t, del.Before, del.Image())
}

func TestRowDataCloneIsIndependent(t *testing.T) {
	orig := RowData{
		Type:  Insert,
		After: map[string]ColValue{"a": NewInt64(KindInt32, 1)},
	}
	clone := orig.Clone()
	clone.After["a"] = NewInt64(KindInt32, 2)
	assert.True(t, orig.After["a"].Equal(NewInt64(KindInt32, 1)), "mutating the clone must not affect the original")
}

// TestCheckDiffBecomesAuthoritativeUpdate exercises the check extractor's Diff-to-Update rule: a Diff
// check-log row is emitted as an Update with After copied into Before,
// so the sinker treats it as an authoritative overwrite.
func TestCheckDiffBecomesAuthoritativeUpdate(t *testing.T) {
	after := map[string]ColValue{"pk": NewInt64(KindInt32, 1), "v": NewString("a")}
	r := RowData{Type: Insert, After: after}
	// Simulate what pkg/extract.CheckExtractor does for log_type == Diff.
	r.Type = Update
	before := make(map[string]ColValue, len(after))
	for k, v := range after {
		before[k] = v
	}
	r.Before = before
	assert.NoError(t, r.Validate())
	assert.Equal(t, r.Before, r.After)
}
