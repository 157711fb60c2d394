// Package config defines the injected task configuration (extractor,
// sinker, router, filter, runtime) as typed Go structs and validates
// their shape with jsonschema/v6, following xataio-pgroll's
// internal/jsonschema approach of compiling a schema once and
// validating a JSON-roundtripped value against it.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/oapi-codegen/nullable"
	"github.com/replibridge/replibridge/pkg/errs"
	"github.com/replibridge/replibridge/pkg/filter"
	"github.com/replibridge/replibridge/pkg/router"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ExtractorConfig configures the source side of a task: which engine
// to read from and how.
type ExtractorConfig struct {
	Kind string `json:"kind"` // "snapshot", "cdc", "check"
	URL  string `json:"url"`
}

// SinkerConfig configures the destination side of a task.
type SinkerConfig struct {
	Kind string `json:"kind"` // "mysql", "postgres", "starrocks"
	URL  string `json:"url"`
}

// RouterConfig is the declarative routing table (pkg/router.Config
// embedded directly, since the wire shape and the in-memory shape are
// the same struct).
type RouterConfig = router.Config

// FilterConfig is the declarative allow/deny table (pkg/filter.Config
// embedded directly).
type FilterConfig = filter.Config

// RuntimeConfig tunes the buffer, batching and parallelism of a task.
type RuntimeConfig struct {
	BatchSize    int `json:"batch_size"`
	BufferSize   int `json:"buffer_size"`
	ParallelSize int `json:"parallel_size"`

	// ReplicaServerID overrides the MySQL replication server id a CDC
	// extractor registers with the source. Left unspecified, a task
	// gets a fixed default; it must be set explicitly -- and distinctly
	// per task -- when more than one task streams off the same source,
	// since MySQL drops an existing binlog dump connection when a new
	// one registers with the same id. Nullable rather than *uint32 so
	// an explicit JSON null is distinguishable from the field being
	// absent, matching xataio/pgroll's wire-optional convention.
	ReplicaServerID nullable.Nullable[uint32] `json:"replica_server_id,omitempty"`
}

// TableConfig names one source table a snapshot or struct-replay
// stage reads from; CDC and check extractors instead discover tables
// from the binlog/check log as they stream.
type TableConfig struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

// TaskConfig is the complete injected configuration for one
// replication task.
type TaskConfig struct {
	Extractor ExtractorConfig `json:"extractor"`
	Sinker    SinkerConfig    `json:"sinker"`
	Router    RouterConfig    `json:"router"`
	Filter    FilterConfig    `json:"filter"`
	Runtime   RuntimeConfig   `json:"runtime"`
	Tables    []TableConfig   `json:"tables,omitempty"`
}

// schema is the JSON Schema for TaskConfig's wire shape: enough to
// catch a malformed injected config before anything tries to open a
// connection.
const schema = `{
	"$id": "https://replibridge/task-config.json",
	"type": "object",
	"required": ["extractor", "sinker", "runtime"],
	"properties": {
		"extractor": {
			"type": "object",
			"required": ["kind", "url"],
			"properties": {
				"kind": {"type": "string", "enum": ["snapshot", "cdc", "check"]},
				"url": {"type": "string", "minLength": 1}
			}
		},
		"sinker": {
			"type": "object",
			"required": ["kind", "url"],
			"properties": {
				"kind": {"type": "string", "enum": ["mysql", "postgres", "starrocks"]},
				"url": {"type": "string", "minLength": 1}
			}
		},
		"runtime": {
			"type": "object",
			"required": ["batch_size", "buffer_size", "parallel_size"],
			"properties": {
				"batch_size": {"type": "integer", "minimum": 1},
				"buffer_size": {"type": "integer", "minimum": 1},
				"parallel_size": {"type": "integer", "minimum": 1},
				"replica_server_id": {"type": ["integer", "null"], "minimum": 1}
			}
		}
	}
}`

var compiledSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("task-config.json", bytes.NewReader([]byte(schema))); err != nil {
		panic(fmt.Sprintf("config: invalid embedded schema: %v", err))
	}
	sch, err := c.Compile("task-config.json")
	if err != nil {
		panic(fmt.Sprintf("config: compiling embedded schema: %v", err))
	}
	compiledSchema = sch
}

// Validate checks tc's shape against the embedded JSON Schema,
// returning an errs.Config error on mismatch. A malformed injected
// config is treated as an in-scope Config error, not a panic.
func (tc TaskConfig) Validate() error {
	raw, err := json.Marshal(tc)
	if err != nil {
		return errs.New(errs.Config, "config.Validate: marshaling", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return errs.New(errs.Config, "config.Validate: unmarshaling", err)
	}
	if err := compiledSchema.Validate(instance); err != nil {
		return errs.New(errs.Config, "config.Validate: schema mismatch", err)
	}
	return nil
}
