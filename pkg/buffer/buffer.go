// Package buffer implements the bounded MPMC queue of row.DtItem that
// sits between exactly one extractor and one sinker: push is
// spin-then-yield on Full, draining is cooperative against a shared
// shutdown flag, and WaitTaskFinish never returns until the queue is
// empty and shutdown has been observed.
package buffer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/replibridge/replibridge/pkg/errs"
	"github.com/replibridge/replibridge/pkg/row"
)

// pollInterval is the cadence WaitTaskFinish and the push spin-loop
// use; capped well under a second for prompt drains.
const pollInterval = 50 * time.Millisecond

// Buffer is the shared handle an orchestrator creates once and hands
// to both the extractor (writer) and the sinker (reader). It has no
// back-pointer to either.
type Buffer struct {
	ch       chan row.DtItem
	shutdown atomic.Bool
}

// New creates a Buffer with the given capacity (runtime.buffer_size
// in the task's runtime configuration).
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{ch: make(chan row.DtItem, capacity)}
}

// Shutdown raises the shared shutdown flag. It is idempotent and may
// be called from any goroutine (single-writer in practice: the
// orchestrator).
func (b *Buffer) Shutdown() {
	b.shutdown.Store(true)
}

// IsShutdown reports whether Shutdown has been called.
func (b *Buffer) IsShutdown() bool {
	return b.shutdown.Load()
}

// Len returns the number of items currently queued.
func (b *Buffer) Len() int {
	return len(b.ch)
}

// IsEmpty reports whether the buffer currently holds no items.
func (b *Buffer) IsEmpty() bool {
	return len(b.ch) == 0
}

// Push enqueues item, spinning (with a short sleep, i.e.
// spin-then-yield) while the buffer is full. It returns errs.ErrShutdown
// if shutdown is raised before the item is accepted, and ctx.Err() if
// ctx is canceled first. Push never silently discards its error:
// callers must check it.
func (b *Buffer) Push(ctx context.Context, item row.DtItem) error {
	for {
		if b.shutdown.Load() {
			return errs.ErrShutdown
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b.ch <- item:
			return nil
		default:
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// PushRow is a convenience wrapper for pushing a DML row.
func (b *Buffer) PushRow(ctx context.Context, r row.RowData) error {
	return b.Push(ctx, row.NewDmlItem(r))
}

// PushDdl is a convenience wrapper for pushing a DDL event.
func (b *Buffer) PushDdl(ctx context.Context, d row.DdlData) error {
	return b.Push(ctx, row.NewDdlItem(d))
}

// PushCommit is a convenience wrapper for pushing a commit marker.
func (b *Buffer) PushCommit(ctx context.Context, pos row.Position) error {
	return b.Push(ctx, row.NewCommitItem(pos))
}

// Pop dequeues the next item, blocking until one is available, the
// buffer is shut down and drained (returns ok=false), or ctx is
// canceled.
func (b *Buffer) Pop(ctx context.Context) (item row.DtItem, ok bool) {
	for {
		select {
		case item := <-b.ch:
			return item, true
		default:
		}
		if b.shutdown.Load() && b.IsEmpty() {
			return row.DtItem{}, false
		}
		select {
		case <-ctx.Done():
			return row.DtItem{}, false
		case item := <-b.ch:
			return item, true
		case <-time.After(pollInterval):
		}
	}
}

// WaitTaskFinish blocks until the buffer is empty AND shutdown has
// been raised, polling at pollInterval. It never drops queued
// events: items already in the buffer keep it non-empty until the
// sinker pops them. A Push still waiting for a free slot when shutdown
// is raised returns errs.ErrShutdown instead of enqueuing its item.
func (b *Buffer) WaitTaskFinish(ctx context.Context) error {
	for {
		if b.shutdown.Load() && b.IsEmpty() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
