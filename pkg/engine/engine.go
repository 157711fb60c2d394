// Package engine provides the per-engine Capability values that let
// the rest of the pipeline stay engine-polymorphic without an
// inheritance hierarchy. A Capability covers identifier escaping and
// placeholder style only; opening connections, fetching table
// metadata, building queries and decoding rows are not part of it and
// live in pkg/dbconn, pkg/meta, pkg/querybuilder and pkg/extract.
package engine

import (
	"fmt"
	"strings"

	"github.com/replibridge/replibridge/pkg/row"
)

// Capability is the engine-specific escaping and placeholder behavior
// querybuilder, extract and sink take instead of switching on
// row.EngineKind for those two concerns.
type Capability interface {
	Kind() row.EngineKind

	// EscapeIdent quotes a single identifier per the engine's rules:
	// backticks for MySQL/StarRocks, double quotes for Postgres.
	EscapeIdent(name string) string

	// Placeholder returns the positional bind placeholder for the
	// i-th (1-indexed) parameter: "?" for MySQL, "$1", "$2", ... for
	// Postgres.
	Placeholder(i int) string
}

type mysqlCapability struct{}

func (mysqlCapability) Kind() row.EngineKind { return row.EngineMySQL }

func (mysqlCapability) EscapeIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysqlCapability) Placeholder(int) string { return "?" }

type postgresCapability struct{}

func (postgresCapability) Kind() row.EngineKind { return row.EnginePostgres }

func (postgresCapability) EscapeIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (postgresCapability) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

// StarRocks shares the MySQL capability: it quotes identifiers with
// backticks like MySQL, and this module treats it as an analytic sink
// reached only through MySQL wire protocol compatibility.
var (
	MySQL     Capability = mysqlCapability{}
	Postgres  Capability = postgresCapability{}
	StarRocks Capability = mysqlCapability{} // StarRocks speaks the MySQL protocol/quoting.
)

// For looks up the Capability for an EngineKind.
func For(kind row.EngineKind) (Capability, error) {
	switch kind {
	case row.EngineMySQL:
		return MySQL, nil
	case row.EnginePostgres:
		return Postgres, nil
	case row.EngineStarRocks:
		return StarRocks, nil
	default:
		return nil, fmt.Errorf("engine: no capability registered for %s", kind)
	}
}

// QuoteColumns escapes and joins a list of column names, e.g. for a
// composite key tuple: "`a`, `b`".
func QuoteColumns(cap Capability, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = cap.EscapeIdent(c)
	}
	return strings.Join(quoted, ", ")
}
