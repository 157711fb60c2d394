package row

import (
	"fmt"
	"strings"
)

// EngineKind names a supported source/destination database engine.
type EngineKind int

const (
	EngineUnknown EngineKind = iota
	EngineMySQL
	EnginePostgres
	EngineStarRocks
)

func (k EngineKind) String() string {
	switch k {
	case EngineMySQL:
		return "mysql"
	case EnginePostgres:
		return "postgres"
	case EngineStarRocks:
		return "starrocks"
	default:
		return "unknown"
	}
}

// ParseEngineKind determines an engine kind from a connection URL
// scheme or driver name, e.g. "mysql://..." or "postgres://...". It
// only needs to peek at the scheme -- full DSN parsing is the
// engine-specific connector's job (pkg/dbconn).
func ParseEngineKind(url string) (EngineKind, error) {
	scheme, _, ok := strings.Cut(url, "://")
	if !ok {
		return EngineUnknown, fmt.Errorf("row: %q has no scheme", url)
	}
	switch strings.ToLower(scheme) {
	case "mysql":
		return EngineMySQL, nil
	case "postgres", "postgresql":
		return EnginePostgres, nil
	case "starrocks":
		return EngineStarRocks, nil
	default:
		return EngineUnknown, fmt.Errorf("row: unsupported engine scheme %q", scheme)
	}
}

// Position is an engine-opaque cursor marking replication progress:
// a binlog file+offset or GTID set for MySQL, an LSN for Postgres.
// It round-trips through String/ParsePosition so it can be persisted
// by pkg/position between runs.
type Position struct {
	Engine EngineKind
	Token  string
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%s", p.Engine, p.Token)
}

func (p Position) IsZero() bool {
	return p.Engine == EngineUnknown && p.Token == ""
}

// ParsePosition reverses Position.String.
func ParsePosition(s string) (Position, error) {
	enginePart, token, ok := strings.Cut(s, ":")
	if !ok {
		return Position{}, fmt.Errorf("row: malformed position %q", s)
	}
	var engine EngineKind
	switch enginePart {
	case "mysql":
		engine = EngineMySQL
	case "postgres":
		engine = EnginePostgres
	case "starrocks":
		engine = EngineStarRocks
	default:
		return Position{}, fmt.Errorf("row: unknown engine %q in position", enginePart)
	}
	return Position{Engine: engine, Token: token}, nil
}
