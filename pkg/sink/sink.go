// Package sink implements the pipeline's write side: pkg/task pops
// DtItems from the buffer and hands them to a Sinker, which applies
// them to the destination as upserts and keyed deletes built by
// pkg/querybuilder and executed through pkg/dbconn's retryable helpers.
//
// Grounded on pkg/repl/subscription.go and subscription_buffered.go's
// flush logic: accumulate changes keyed by their primary key, then
// flush deletes and upserts/replaces in a batch. This package
// generalizes that single-table, MySQL-to-MySQL flush into a
// multi-table, multi-engine one driven by RowData rather than a raw
// MySQL row image.
package sink

import (
	"context"
	"fmt"

	"github.com/siddontang/loggers"

	"github.com/replibridge/replibridge/pkg/dbconn"
	"github.com/replibridge/replibridge/pkg/engine"
	"github.com/replibridge/replibridge/pkg/errs"
	"github.com/replibridge/replibridge/pkg/meta"
	"github.com/replibridge/replibridge/pkg/querybuilder"
	"github.com/replibridge/replibridge/pkg/row"
	"github.com/replibridge/replibridge/pkg/utils"
)

// Sinker applies rows and DDL to a destination. One Sinker instance
// is shared by parallel_size worker goroutines; Apply/ApplyDDL must
// be safe for concurrent use across different (schema, table, key)
// buckets -- the task orchestrator guarantees the same key is never
// handed to two workers concurrently.
type Sinker interface {
	// Apply writes a single RowData: Insert/Update become an upsert,
	// Delete a keyed delete.
	Apply(ctx context.Context, r row.RowData) error
	// ApplyBatch writes same-(schema, table, type) rows together, the
	// batched form the check extractor's multi-row push favors: deletes
	// on a single-column key as one statement, other rows one by one.
	ApplyBatch(ctx context.Context, rows []row.RowData) error
	// ApplyDDL replays a StructModel DDL event idempotently.
	ApplyDDL(ctx context.Context, d row.DdlData) error
}

// SQLSinker implements Sinker over any database/sql.DB via a
// querybuilder.Builder for the destination's Capability.
type SQLSinker struct {
	execer Execer
	cap    engine.Capability
	qb     *querybuilder.Builder
	meta   *meta.Manager
	logger loggers.Advanced
}

// Execer is the subset of *sql.DB / dbconn's retryable-transaction
// helpers a SQLSinker needs: execute one or more statements as a
// single retryable transaction and report rows affected.
type Execer interface {
	Exec(ctx context.Context, stmts ...string) (rowsAffected int64, err error)
	ExecArgs(ctx context.Context, query string, args ...any) error
}

func New(execer Execer, cap engine.Capability, metaManager *meta.Manager, logger loggers.Advanced) *SQLSinker {
	return &SQLSinker{execer: execer, cap: cap, qb: querybuilder.New(cap), meta: metaManager, logger: logger}
}

func (s *SQLSinker) Apply(ctx context.Context, r row.RowData) error {
	if err := r.Validate(); err != nil {
		return errs.New(errs.Query, "sink.Apply", err)
	}
	tm, err := s.meta.Get(ctx, r.Schema, r.Table)
	if err != nil {
		return err
	}
	if !tm.HasKey() {
		return errs.Newf(errs.Schema, "sink.Apply", "%s.%s has no primary or unique key to apply changes against", r.Schema, r.Table)
	}
	if r.Type == row.Delete {
		return s.applyDelete(ctx, r, tm)
	}
	return s.applyUpsert(ctx, r, tm)
}

func (s *SQLSinker) applyUpsert(ctx context.Context, r row.RowData, tm *meta.TbMeta) error {
	img := r.Image()
	cols := make([]string, 0, len(img))
	args := make([]any, 0, len(img))
	for _, c := range tm.Columns {
		v, ok := img[c]
		if !ok {
			continue
		}
		cols = append(cols, c)
		args = append(args, v.Driver())
	}
	query, _ := s.qb.Upsert(r.Schema, r.Table, cols, tm.KeyColumns)
	if err := s.execer.ExecArgs(ctx, query, args...); err != nil {
		return errs.New(errs.Query, fmt.Sprintf("sink.applyUpsert %s.%s", r.Schema, r.Table), err)
	}
	return nil
}

func (s *SQLSinker) applyDelete(ctx context.Context, r row.RowData, tm *meta.TbMeta) error {
	keyVals := r.KeyValues(tm.KeyColumns)
	args := make([]any, len(keyVals))
	for i, v := range keyVals {
		args[i] = v.Driver()
	}
	query, _ := s.qb.KeyedDelete(r.Schema, r.Table, tm.KeyColumns)
	if err := s.execer.ExecArgs(ctx, query, args...); err != nil {
		return errs.New(errs.Query, fmt.Sprintf("sink.applyDelete %s.%s", r.Schema, r.Table), err)
	}
	return nil
}

// ApplyBatch requires every row to share (Schema, Table, Type);
// deletes on a single-column key go out as one statement (an IN-list
// on MySQL, = ANY($1) on Postgres), other deletes one per row;
// inserts/updates are applied one
// upsert per row since MySQL's multi-row ON DUPLICATE KEY UPDATE
// cannot express per-row VALUES(col) semantics safely once rows
// differ in which columns are present.
func (s *SQLSinker) ApplyBatch(ctx context.Context, rows []row.RowData) error {
	if len(rows) == 0 {
		return nil
	}
	first := rows[0]
	for _, r := range rows[1:] {
		if r.Schema != first.Schema || r.Table != first.Table || r.Type != first.Type {
			return errs.New(errs.Query, "sink.ApplyBatch", fmt.Errorf("requires uniform (schema, table, type)"))
		}
	}
	if first.Type != row.Delete {
		for _, r := range rows {
			if err := s.Apply(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}
	tm, err := s.meta.Get(ctx, first.Schema, first.Table)
	if err != nil {
		return err
	}
	if !tm.HasKey() {
		return errs.Newf(errs.Schema, "sink.ApplyBatch", "%s.%s has no primary or unique key to apply changes against", first.Schema, first.Table)
	}
	if len(tm.KeyColumns) == 1 {
		args := make([]any, len(rows))
		for i, r := range rows {
			args[i] = r.KeyValues(tm.KeyColumns)[0].Driver()
		}
		query, bindCount := s.qb.BatchedDelete(first.Schema, first.Table, tm.KeyColumns[0], len(rows))
		// bindCount == 1 with len(rows) > 1 means the builder chose
		// Postgres's "= ANY($1)" array-bind form: pass the whole slice
		// as a single bind argument rather than one per row.
		if bindCount == 1 && len(args) > 1 {
			args = []any{args}
		}
		if err := s.execer.ExecArgs(ctx, query, args...); err != nil {
			return errs.New(errs.Query, fmt.Sprintf("sink.ApplyBatch delete %s.%s", first.Schema, first.Table), err)
		}
		return nil
	}
	for _, r := range rows {
		if err := s.applyDelete(ctx, r, tm); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLSinker) ApplyDDL(ctx context.Context, d row.DdlData) error {
	if d.Query == "" {
		return nil
	}
	table := ""
	if d.Meta != nil {
		table = d.Meta.Table
	}
	// A replayed ALTER that isn't in-place/metadata-only can hold a
	// long lock on the destination table while the source keeps
	// streaming changes behind it. Not fatal -- the event still
	// replays verbatim -- but worth a warning in the task log.
	if s.cap.Kind() == row.EngineMySQL && s.logger != nil {
		if err := utils.AlgorithmInplaceConsideredSafe(d.Query); err != nil {
			s.logger.Warnf("sink.ApplyDDL %s.%s: replaying a non-inplace ALTER, destination may lock: %v", d.Schema, table, err)
		}
	}
	if _, err := s.execer.Exec(ctx, d.Query); err != nil {
		return errs.New(errs.Schema, fmt.Sprintf("sink.ApplyDDL %s.%s", d.Schema, table), err)
	}
	if d.Schema != "" && table != "" {
		s.meta.Invalidate(d.Schema, table)
	}
	return nil
}
