package checklog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cl := CheckLog{
		Schema:    "shop",
		Table:     "orders",
		LogType:   Diff,
		Cols:      []string{"id", "status"},
		ColValues: []*string{strPtr("42"), strPtr("shipped")},
	}
	line := cl.Encode()
	got, err := Decode(line)
	require.NoError(t, err)
	assert.Equal(t, cl, got)
}

func TestEncodeDecodeDistinguishesNullFromEmptyString(t *testing.T) {
	cl := CheckLog{
		Schema:    "shop",
		Table:     "orders",
		LogType:   Miss,
		Cols:      []string{"id", "note"},
		ColValues: []*string{strPtr("1"), nil},
	}
	line := cl.Encode()
	assert.Contains(t, line, `\N`)
	got, err := Decode(line)
	require.NoError(t, err)
	require.Len(t, got.ColValues, 2)
	assert.Nil(t, got.ColValues[1])

	empty := CheckLog{
		Schema:    "shop",
		Table:     "orders",
		LogType:   Miss,
		Cols:      []string{"id", "note"},
		ColValues: []*string{strPtr("1"), strPtr("")},
	}
	line2 := empty.Encode()
	got2, err := Decode(line2)
	require.NoError(t, err)
	require.NotNil(t, got2.ColValues[1])
	assert.Equal(t, "", *got2.ColValues[1])
}

func TestEncodeDecodeEscapesCommasAndTabsInValues(t *testing.T) {
	cl := CheckLog{
		Schema:    "shop",
		Table:     "orders",
		LogType:   Diff,
		Cols:      []string{"note"},
		ColValues: []*string{strPtr("a,b\tc\\d")},
	}
	got, err := Decode(cl.Encode())
	require.NoError(t, err)
	assert.Equal(t, "a,b\tc\\d", *got.ColValues[0])
}

func TestDecodeRejectsMalformedLine(t *testing.T) {
	_, err := Decode("not\tenough\tfields")
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownLogType(t *testing.T) {
	_, err := Decode("db\ttb\tbogus\tid\t1")
	assert.Error(t, err)
}

func TestWriteAndReadAll(t *testing.T) {
	logs := []CheckLog{
		{Schema: "s", Table: "t1", LogType: Miss, Cols: []string{"id"}, ColValues: []*string{strPtr("1")}},
		{Schema: "s", Table: "t1", LogType: Miss, Cols: []string{"id"}, ColValues: []*string{strPtr("2")}},
	}
	var buf strings.Builder
	require.NoError(t, Write(&buf, logs...))

	got, err := ReadAll(strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, logs, got)
}

func TestReadAllSkipsBlankLines(t *testing.T) {
	cl := CheckLog{Schema: "s", Table: "t", LogType: Diff, Cols: []string{"id"}, ColValues: []*string{strPtr("1")}}
	input := cl.Encode() + "\n\n" + cl.Encode() + "\n"
	got, err := ReadAll(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestBatchGroupsByTableAndLogType(t *testing.T) {
	a := CheckLog{Schema: "s", Table: "t1", LogType: Miss, Cols: []string{"id"}, ColValues: []*string{strPtr("1")}}
	b := CheckLog{Schema: "s", Table: "t1", LogType: Miss, Cols: []string{"id"}, ColValues: []*string{strPtr("2")}}
	c := CheckLog{Schema: "s", Table: "t2", LogType: Miss, Cols: []string{"id"}, ColValues: []*string{strPtr("3")}}
	d := CheckLog{Schema: "s", Table: "t2", LogType: Diff, Cols: []string{"id"}, ColValues: []*string{strPtr("4")}}

	batches := Batch([]CheckLog{a, b, c, d}, 10)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)
	assert.Len(t, batches[2], 1)
}

func TestBatchRespectsMaxSize(t *testing.T) {
	var logs []CheckLog
	for i := 0; i < 5; i++ {
		logs = append(logs, CheckLog{Schema: "s", Table: "t", LogType: Miss, Cols: []string{"id"}, ColValues: []*string{strPtr("x")}})
	}
	batches := Batch(logs, 2)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 2)
	assert.Len(t, batches[2], 1)
}

func TestLogTypeString(t *testing.T) {
	assert.Equal(t, "miss", Miss.String())
	assert.Equal(t, "diff", Diff.String())
}
