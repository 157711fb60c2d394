package check

import (
	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"github.com/replibridge/replibridge/pkg/errs"
)

// ExtractCreateTableNames scans a SQL script (possibly many
// semicolon-separated statements -- a DDL test script or a DML test
// script that happens to also create its own fixture tables) and
// returns every table name named by a CREATE TABLE statement within
// it, in source order. Statements that aren't CREATE TABLE are
// ignored, not rejected, since a DML script mixes INSERT/UPDATE/DELETE
// with the occasional fixture CREATE TABLE.
func ExtractCreateTableNames(script string) ([]string, error) {
	p := parser.New()
	stmtNodes, _, err := p.Parse(script, "", "")
	if err != nil {
		return nil, errs.New(errs.Decode, "check.ExtractCreateTableNames", err)
	}
	var names []string
	for _, n := range stmtNodes {
		if ct, ok := n.(*ast.CreateTableStmt); ok {
			names = append(names, ct.Table.Name.O)
		}
	}
	return names, nil
}

// ReconcileTableSet implements get_compare_db_tbs (4.9): union the
// table names discovered in the DDL script and the DML script, then
// drop anything named in filtered, the already-loaded contents of
// filtered_tbs.txt qualified as "db.tb" pairs. db is the schema both
// scripts ran against -- the teacher's DDL test harness runs a single
// schema per test, so table names alone disambiguate within it.
func ReconcileTableSet(db string, ddlTables, dmlTables []string, filtered [][2]string) []string {
	seen := make(map[string]bool)
	var union []string
	for _, group := range [][]string{ddlTables, dmlTables} {
		for _, tb := range group {
			if !seen[tb] {
				seen[tb] = true
				union = append(union, tb)
			}
		}
	}
	excluded := make(map[string]bool, len(filtered))
	for _, pair := range filtered {
		if pair[0] == db {
			excluded[pair[1]] = true
		}
	}
	out := union[:0]
	for _, tb := range union {
		if !excluded[tb] {
			out = append(out, tb)
		}
	}
	return out
}
