// Package task implements the orchestrator that wires its extractor
// stages (optional struct replay and snapshot, then one streaming
// extractor), the shared buffer, and one sinker into a running
// pipeline, persisting commit-marker positions as it goes.
//
// Grounded on block/spirit's pkg/migration.Runner: a typed state enum
// (migrationState there, taskState here) set via setCurrentState at
// each phase transition, and a linear Run that walks the states in
// order rather than a dispatch loop -- this module's states
// (struct replay -> snapshot -> streaming) replace the
// teacher's online-DDL states (copyRows -> applyChangeset ->
// checksum -> cutOver) since there is no "new table" to cut over to
// here, only a continuously-streamed destination.
package task

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
	"github.com/siddontang/loggers"
	"golang.org/x/sync/errgroup"

	"github.com/replibridge/replibridge/pkg/buffer"
	"github.com/replibridge/replibridge/pkg/extract"
	"github.com/replibridge/replibridge/pkg/meta"
	"github.com/replibridge/replibridge/pkg/position"
	"github.com/replibridge/replibridge/pkg/row"
	"github.com/replibridge/replibridge/pkg/sink"
	"github.com/replibridge/replibridge/pkg/utils"
)

type taskState int32

const (
	stateInitial taskState = iota
	stateStructReplay
	stateSnapshot
	stateStreaming
	stateClose
	stateErrCleanup
)

func (s taskState) String() string {
	switch s {
	case stateStructReplay:
		return "structReplay"
	case stateSnapshot:
		return "snapshot"
	case stateStreaming:
		return "streaming"
	case stateClose:
		return "close"
	case stateErrCleanup:
		return "errCleanup"
	default:
		return "initial"
	}
}

// Task ties its extractor stages to one Sinker through a shared Buffer,
// saving the extractor's commit-marker Position to a Store as the
// stream advances.
type Task struct {
	name         string
	runID        string // distinguishes this process's Run from a prior one against the same named task, for log correlation
	structExt    extract.Extractor // optional: nil skips struct replay
	snapshotExt  extract.Extractor // optional: nil skips the initial snapshot
	streamExt    extract.Extractor // required: CDC extractor, or the snapshot extractor of a snapshot-only task
	sinker       sink.Sinker
	buf          *buffer.Buffer
	posStore     position.Store
	metaMgr      *meta.Manager
	parallelSize int
	logger       loggers.Advanced

	state taskState
}

type Config struct {
	Name         string
	StructExt    extract.Extractor
	SnapshotExt  extract.Extractor
	StreamExt    extract.Extractor
	Sinker       sink.Sinker
	Buf          *buffer.Buffer
	PosStore     position.Store
	MetaMgr      *meta.Manager
	ParallelSize int
	Logger       loggers.Advanced
}

func New(c Config) *Task {
	return &Task{
		name: c.Name, runID: uuid.NewString(), structExt: c.StructExt, snapshotExt: c.SnapshotExt, streamExt: c.StreamExt,
		sinker: c.Sinker, buf: c.Buf, posStore: c.PosStore, metaMgr: c.MetaMgr,
		parallelSize: c.ParallelSize, logger: c.Logger,
	}
}

// RunID identifies this particular Task instance, generated fresh each
// time New is called, so log lines from two overlapping or successive
// runs of the same named task can still be told apart.
func (t *Task) RunID() string { return t.runID }

// Run drives the task to completion: optional struct replay, optional
// snapshot, then continuous streaming, consuming the buffer
// concurrently with whichever extractor is producing into it. It
// returns when ctx is canceled or an unrecoverable error surfaces.
func (t *Task) Run(ctx context.Context) error {
	if t.posStore != nil {
		if err := t.posStore.EnsureTable(ctx); err != nil {
			return err
		}
	}

	if t.structExt != nil {
		t.setState(stateStructReplay)
		if err := t.runStage(ctx, t.structExt); err != nil {
			t.setState(stateErrCleanup)
			return err
		}
	}

	if t.snapshotExt != nil {
		t.setState(stateSnapshot)
		if err := t.runStage(ctx, t.snapshotExt); err != nil {
			t.setState(stateErrCleanup)
			return err
		}
	}

	t.setState(stateStreaming)
	if err := t.runStage(ctx, t.streamExt); err != nil {
		t.setState(stateErrCleanup)
		return err
	}

	t.setState(stateClose)
	return nil
}

func (t *Task) setState(s taskState) {
	t.state = s
	if t.logger != nil {
		t.logger.Infof("task %s (run %s): entering state %s", t.name, t.runID, s)
	}
}

// runStage runs one extractor concurrently with the buffer drain,
// stopping the drain once the extractor finishes (or either side
// errors first), mirroring the teacher's errgroup-based parallel
// flush in pkg/repl/subscription.go.
func (t *Task) runStage(ctx context.Context, ext extract.Extractor) error {
	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(stageCtx)
	g.Go(func() error {
		defer cancel() // extractor finished (or failed): let the drain catch up and stop
		return ext.Run(gctx)
	})
	g.Go(func() error {
		return t.drain(gctx)
	})
	return g.Wait()
}

// drain pops DtItems off the buffer until it is shut down or ctx ends,
// fanning RowData out to parallelSize workers bucketed by primary-key
// hash so per-key order is preserved (section 5's "serializing per
// primary-key hash bucket"), and barrier-draining those workers before
// applying a Ddl event or saving a commit Position so neither crosses
// in-flight row applies.
func (t *Task) drain(ctx context.Context) error {
	n := t.parallelSize
	if n <= 0 {
		n = 1
	}
	buckets := make([]chan row.RowData, n)
	for i := range buckets {
		buckets[i] = make(chan row.RowData, 64)
	}
	errCh := make(chan error, n)
	var workers sync.WaitGroup
	var inFlight sync.WaitGroup

	for i := 0; i < n; i++ {
		workers.Add(1)
		go func(ch <-chan row.RowData) {
			defer workers.Done()
			for r := range ch {
				if err := t.sinker.Apply(ctx, r); err != nil {
					select {
					case errCh <- err:
					default:
					}
				}
				inFlight.Done()
			}
		}(buckets[i])
	}
	defer func() {
		for _, ch := range buckets {
			close(ch)
		}
		workers.Wait()
	}()

	for {
		select {
		case err := <-errCh:
			return err
		default:
		}

		item, ok := t.buf.Pop(ctx)
		if !ok {
			return nil
		}
		switch item.Kind {
		case row.ItemDml:
			idx := t.bucketFor(ctx, *item.Dml, n)
			inFlight.Add(1)
			buckets[idx] <- *item.Dml
		case row.ItemDdl:
			inFlight.Wait()
			if err := t.sinker.ApplyDDL(ctx, *item.Ddl); err != nil {
				return err
			}
		case row.ItemCommit:
			inFlight.Wait()
			if t.posStore != nil {
				if err := t.posStore.Save(ctx, t.name, item.Pos); err != nil {
					return err
				}
			}
		case row.ItemHeartbeat:
			// nothing to apply; heartbeats only keep the stream alive.
		}
	}
}

// bucketFor hashes a row's primary-key values (or, for a keyless
// table, its schema.table name alone -- every row of that table then
// serializes through the same bucket, which is the safest fallback)
// into [0, n). The composite key is joined with utils.HashKey, the
// same separator-joined form the teacher uses to turn a primary key
// into a map key; fnv then turns that string into a bucket index,
// since no hashing library appears anywhere in the retrieval pack.
func (t *Task) bucketFor(ctx context.Context, r row.RowData, n int) int {
	parts := []interface{}{r.Schema, r.Table}

	if t.metaMgr != nil {
		if tm, err := t.metaMgr.Get(ctx, r.Schema, r.Table); err == nil && tm.HasKey() {
			for _, kv := range r.KeyValues(tm.KeyColumns) {
				if s, ok := kv.ToOptionString(); ok {
					parts = append(parts, s)
				}
			}
		}
	}

	h := fnv.New32a()
	h.Write([]byte(utils.HashKey(parts)))
	return int(h.Sum32()) % n
}
