package bridge

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/alx-home/webview/internal/logging"
)

// handle tracks one in-flight call. It owns the underlying asynchronous
// computation (done closes when the work has finished), an optional rejection
// capability for the native-side future, and a settled flag deciding, exactly
// once, who delivers the outcome: the normal completion path or the shutdown
// drain.
type handle struct {
	id      string
	done    chan struct{}
	once    sync.Once
	settled atomic.Bool

	// cancel is set for inbound calls; it cancels the handler's context so
	// cooperative handlers can stop early. It never interrupts running code.
	cancel context.CancelFunc

	// reject is set for outbound calls; it settles the caller's future.
	reject func(err error)
}

func newHandle(id string) *handle {
	return &handle{id: id, done: make(chan struct{})}
}

// trySettle claims the right to deliver this call's outcome. Exactly one
// caller wins; the loser must leave tables and replies alone.
func (h *handle) trySettle() bool {
	return h.settled.CompareAndSwap(false, true)
}

// finish marks the underlying computation complete, releasing drain joins.
func (h *handle) finish() {
	h.once.Do(func() { close(h.done) })
}

// table is the pending-call table. Confined to the dispatch loop; the
// shutdown drain reads it only through a snapshot taken on the loop.
type table struct {
	log     *logging.Logger
	handles map[string]*handle
}

func newTable(log *logging.Logger) *table {
	return &table{log: log, handles: make(map[string]*handle)}
}

// put stores a handle and reports whether the id was free. A duplicate id
// from the page is a protocol violation the caller turns into a rejection
// reply, not a crash.
func (t *table) put(h *handle) bool {
	if _, exists := t.handles[h.id]; exists {
		return false
	}
	t.handles[h.id] = h
	return true
}

// remove deletes a handle exactly once. A second removal for the same id is
// an invariant violation: DPanic panics under a development logger and logs
// in release.
func (t *table) remove(id string) bool {
	if _, exists := t.handles[id]; !exists {
		t.log.DPanic("pending call removed twice", zap.String("id", id))
		return false
	}
	delete(t.handles, id)
	return true
}

func (t *table) snapshot() []*handle {
	out := make([]*handle, 0, len(t.handles))
	for _, h := range t.handles {
		out = append(out, h)
	}
	return out
}

func (t *table) size() int { return len(t.handles) }
