// Package checklog implements the line-delimited CheckLog format: one
// log entry per line, read sequentially and grouped into batches by
// the check extractor, and written by the row comparison engine when
// it finds a missing or differing row worth re-querying later.
//
// The on-disk encoding follows MySQL's own SELECT ... INTO OUTFILE /
// LOAD DATA convention: fields are tab-separated, list fields
// (columns, values) are comma-separated within a field, '\N' is the
// literal for SQL NULL (distinct from an empty string), and a
// backslash escapes a following backslash, comma, or tab so list
// separators can appear in column names or values.
package checklog

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// LogType names why a row was logged for re-check.
type LogType int

const (
	// Miss means the row was present on one side and absent on the
	// other.
	Miss LogType = iota
	// Diff means the row exists on both sides but a column differs.
	Diff
)

func (t LogType) String() string {
	switch t {
	case Miss:
		return "miss"
	case Diff:
		return "diff"
	default:
		return fmt.Sprintf("LogType(%d)", int(t))
	}
}

func parseLogType(s string) (LogType, error) {
	switch s {
	case "miss":
		return Miss, nil
	case "diff":
		return Diff, nil
	default:
		return 0, fmt.Errorf("checklog: unknown log_type %q", s)
	}
}

// CheckLog is one entry: a row identified for re-check, with its key
// columns and their values as they stood at check time. ColValues[i]
// is nil when Cols[i] was SQL NULL at that time, distinct from a
// present-but-empty string.
type CheckLog struct {
	Schema    string
	Table     string
	LogType   LogType
	Cols      []string
	ColValues []*string
}

// Encode renders one line (without the trailing newline).
func (c CheckLog) Encode() string {
	var b strings.Builder
	b.WriteString(escapeField(c.Schema))
	b.WriteByte('\t')
	b.WriteString(escapeField(c.Table))
	b.WriteByte('\t')
	b.WriteString(c.LogType.String())
	b.WriteByte('\t')
	b.WriteString(joinList(c.Cols))
	b.WriteByte('\t')
	b.WriteString(joinValues(c.ColValues))
	return b.String()
}

// Decode parses one line as produced by Encode.
func Decode(line string) (CheckLog, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 5 {
		return CheckLog{}, fmt.Errorf("checklog: expected 5 tab-separated fields, got %d", len(fields))
	}
	lt, err := parseLogType(fields[2])
	if err != nil {
		return CheckLog{}, err
	}
	cols := splitList(fields[3])
	vals := splitValues(fields[4])
	if len(vals) != len(cols) {
		return CheckLog{}, fmt.Errorf("checklog: %d columns but %d values", len(cols), len(vals))
	}
	return CheckLog{
		Schema:    unescapeField(fields[0]),
		Table:     unescapeField(fields[1]),
		LogType:   lt,
		Cols:      cols,
		ColValues: vals,
	}, nil
}

// Write appends log lines to w, one per CheckLog, each terminated by
// '\n'.
func Write(w io.Writer, logs ...CheckLog) error {
	bw := bufio.NewWriter(w)
	for _, l := range logs {
		if _, err := bw.WriteString(l.Encode()); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadAll parses every line from r. Blank lines are skipped.
func ReadAll(r io.Reader) ([]CheckLog, error) {
	var out []CheckLog
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		cl, err := Decode(line)
		if err != nil {
			return nil, err
		}
		out = append(out, cl)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Batch groups contiguous logs sharing (Schema, Table, LogType) into
// batches of at most size, preserving input order. A batch never
// mixes tables or log types, matching the check extractor's grouping
// rule.
func Batch(logs []CheckLog, size int) [][]CheckLog {
	if size <= 0 {
		size = 1
	}
	var batches [][]CheckLog
	var cur []CheckLog
	sameGroup := func(a, b CheckLog) bool {
		return a.Schema == b.Schema && a.Table == b.Table && a.LogType == b.LogType
	}
	for _, l := range logs {
		if len(cur) > 0 && (!sameGroup(cur[0], l) || len(cur) >= size) {
			batches = append(batches, cur)
			cur = nil
		}
		cur = append(cur, l)
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

func joinList(items []string) string {
	escaped := make([]string, len(items))
	for i, it := range items {
		escaped[i] = escapeListItem(it)
	}
	return strings.Join(escaped, ",")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return splitEscaped(s)
}

func joinValues(vals []*string) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		if v == nil {
			parts[i] = `\N`
		} else {
			parts[i] = escapeListItem(*v)
		}
	}
	return strings.Join(parts, ",")
}

func splitValues(s string) []*string {
	if s == "" {
		return nil
	}
	raw := splitEscaped(s)
	out := make([]*string, len(raw))
	for i, r := range raw {
		if r == `\N` {
			out[i] = nil
		} else {
			v := r
			out[i] = &v
		}
	}
	return out
}

// splitEscaped splits on unescaped commas, honoring '\' as an escape
// character for ',', '\t', '\n', and '\\' itself.
func splitEscaped(s string) []string {
	var out []string
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(unescapeRune(r))
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if r == ',' {
			out = append(out, b.String())
			b.Reset()
			continue
		}
		b.WriteRune(r)
	}
	out = append(out, b.String())
	return out
}

func escapeListItem(s string) string {
	return escapeRunes(s, ',')
}

func escapeField(s string) string {
	return escapeRunes(s, '\t')
}

func unescapeField(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(unescapeRune(r))
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func escapeRunes(s string, extra rune) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', extra, '\t', '\n':
			b.WriteByte('\\')
			b.WriteRune(escapedForm(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func escapedForm(r rune) rune {
	switch r {
	case '\t':
		return 't'
	case '\n':
		return 'n'
	default:
		return r
	}
}

func unescapeRune(r rune) rune {
	switch r {
	case 't':
		return '\t'
	case 'n':
		return '\n'
	default:
		return r
	}
}
