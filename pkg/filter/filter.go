// Package filter implements the declarative (db, table) inclusion/
// exclusion predicate: ordered include/exclude rules with wildcards
// and escape handling, pure and total.
package filter

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Config is the declarative shape injected as task configuration:
// filter { do_dbs, do_tbs, ignore_dbs, ignore_tbs }. do_tbs/ignore_tbs
// entries are "db_pattern.tb_pattern".
type Config struct {
	DoDBs     []string
	DoTbs     []string
	IgnoreDBs []string
	IgnoreTbs []string
}

// Filter is the compiled, immutable form of Config. It is safe for
// concurrent use by multiple extractor goroutines once constructed.
type Filter struct {
	doDBs     []*regexp.Regexp
	doTbs     []dbTbPattern
	ignoreDBs []*regexp.Regexp
	ignoreTbs []dbTbPattern
}

type dbTbPattern struct {
	db *regexp.Regexp
	tb *regexp.Regexp
}

// New compiles a Config into a Filter. Wildcards follow SQL LIKE
// conventions: '%' matches any run of characters, '_' matches exactly
// one, and '\' escapes a following '%', '_', or '\' to match it
// literally.
func New(cfg Config) (*Filter, error) {
	f := &Filter{}
	var err error
	if f.doDBs, err = compileAll(cfg.DoDBs); err != nil {
		return nil, fmt.Errorf("filter: do_dbs: %w", err)
	}
	if f.ignoreDBs, err = compileAll(cfg.IgnoreDBs); err != nil {
		return nil, fmt.Errorf("filter: ignore_dbs: %w", err)
	}
	if f.doTbs, err = compileDbTbAll(cfg.DoTbs); err != nil {
		return nil, fmt.Errorf("filter: do_tbs: %w", err)
	}
	if f.ignoreTbs, err = compileDbTbAll(cfg.IgnoreTbs); err != nil {
		return nil, fmt.Errorf("filter: ignore_tbs: %w", err)
	}
	return f, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func compileDbTbAll(patterns []string) ([]dbTbPattern, error) {
	out := make([]dbTbPattern, 0, len(patterns))
	for _, p := range patterns {
		db, tb, err := SplitDbTb(p)
		if err != nil {
			return nil, err
		}
		dbRe, err := compilePattern(db)
		if err != nil {
			return nil, err
		}
		tbRe, err := compilePattern(tb)
		if err != nil {
			return nil, err
		}
		out = append(out, dbTbPattern{db: dbRe, tb: tbRe})
	}
	return out, nil
}

// SplitDbTb splits a "db.tb" spec on the first unescaped '.'.
func SplitDbTb(spec string) (db, tb string, err error) {
	var b strings.Builder
	escaped := false
	for i, r := range spec {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			b.WriteRune(r)
			continue
		}
		if r == '.' {
			return b.String(), spec[i+len(string(r)):], nil
		}
		b.WriteRune(r)
	}
	return "", "", fmt.Errorf("filter: %q has no unescaped '.' separating db and table", spec)
}

// compilePattern turns a LIKE-style wildcard pattern into an anchored
// regexp, honoring '\' escapes.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	escaped := false
	for _, r := range pattern {
		if escaped {
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		return nil, fmt.Errorf("filter: %q ends in a dangling escape", pattern)
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// Matches reports whether (db, tb) participates in replication: it is
// pure and total.
//
// Precedence: an explicit ignore match (by db or by db.tb) always
// wins. Otherwise, if any do_dbs/do_tbs rules were configured, (db,
// tb) must match at least one of them. With no do_* rules configured
// at all, everything not excluded is included.
func (f *Filter) Matches(db, tb string) bool {
	for _, re := range f.ignoreDBs {
		if re.MatchString(db) {
			return false
		}
	}
	for _, p := range f.ignoreTbs {
		if p.db.MatchString(db) && p.tb.MatchString(tb) {
			return false
		}
	}
	if len(f.doDBs) == 0 && len(f.doTbs) == 0 {
		return true
	}
	for _, re := range f.doDBs {
		if re.MatchString(db) {
			return true
		}
	}
	for _, p := range f.doTbs {
		if p.db.MatchString(db) && p.tb.MatchString(tb) {
			return true
		}
	}
	return false
}

// LoadFilteredTables parses a filtered_tbs.txt stream: one "db.tb"
// per line, blank lines and '#'-prefixed comments ignored, with the
// same escape-pair handling as filter patterns.
func LoadFilteredTables(r io.Reader) ([][2]string, error) {
	var out [][2]string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		db, tb, err := SplitDbTb(line)
		if err != nil {
			return nil, err
		}
		out = append(out, [2]string{unescape(db), unescape(tb)})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func unescape(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
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
