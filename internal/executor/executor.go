// Package executor implements the submit / enqueue / flushAfter
// contract of spec.md §6 on top of a work-stealing worker pool
// grounded on the retrieved fast-server package's pools.WorkerPool
// (core/pools/worker_pool.go): round-robin submission across a fixed
// set of worker queues, falling back to inline execution when the
// chosen worker's queue is full rather than blocking the caller.
//
// A Request always belongs to exactly one connection, and a
// connection is pinned to one executor affinity slot for its whole
// life (spec.md §3's "executor affinity handle, chosen at accept
// time"). Dispatch work itself is farmed out across the pool without
// regard to affinity — GETATTR for connection A can run next to WRITE
// for connection B on any worker — but completions are handed back
// through a per-affinity serial queue so two CMD_DONEs for the same
// connection are never delivered concurrently. They arrive in the
// order dispatch finishes them, which need not be submission order.
package executor

import (
	"sync"

	"github.com/cubbit/metafsd/internal/contentstore"
	"github.com/cubbit/metafsd/internal/metastore"
	"github.com/cubbit/metafsd/internal/netio"
	"github.com/cubbit/metafsd/internal/protocol"
)

// Deliver is the completion callback a connection registers for its
// affinity slot. It runs on the affinity's dedicated delivery
// goroutine, never concurrently with another delivery for the same
// affinity.
type Deliver func(req *protocol.Request)

// Executor is the concrete collaborator behind spec.md §6's Executor
// role.
type Executor struct {
	pool  *workerPool
	meta  metastore.Store
	blobs contentstore.Store

	mu     sync.Mutex
	queues map[int]*affinityQueue
}

// New builds an Executor with workers execution goroutines and the
// given metadata/content backends to dispatch requests against.
func New(meta metastore.Store, blobs contentstore.Store, workers int) *Executor {
	return &Executor{
		pool:   newWorkerPool(workers),
		meta:   meta,
		blobs:  blobs,
		queues: make(map[int]*affinityQueue),
	}
}

// RegisterAffinity attaches deliver as the completion sink for
// affinity, starting its dedicated delivery goroutine. Called once
// per connection at accept time. maxPendingOps sizes the completion
// channel to the connection's own in-flight cap (see affinityQueue's
// doc comment for why that bound is safe).
func (e *Executor) RegisterAffinity(affinity int, maxPendingOps int, deliver func(req *protocol.Request)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queues[affinity] = newAffinityQueue(deliver, maxPendingOps)
}

// UnregisterAffinity stops and discards affinity's delivery queue.
// Called at connection teardown.
func (e *Executor) UnregisterAffinity(affinity int) {
	e.mu.Lock()
	q, ok := e.queues[affinity]
	delete(e.queues, affinity)
	e.mu.Unlock()
	if ok {
		q.close()
	}
}

func (e *Executor) queueFor(affinity int) *affinityQueue {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queues[affinity]
}

// Submit hands req to the pool for dispatch against the metadata and
// content stores; its CMD_DONE delivery is posted to affinity's queue
// once dispatch completes.
func (e *Executor) Submit(affinity int, req *protocol.Request) {
	e.pool.schedule(func() {
		e.dispatch(req)
		e.postCompletion(affinity, req)
	})
}

// Enqueue implements the pre-dispatch re-routing check of spec.md
// §4.3: currentAffinity is the affinity the caller is currently
// executing under. If req's own connection is pinned to a different
// affinity, the completion is reposted there and Enqueue returns
// true — the caller must return immediately without processing req.
// If the affinities already match, Enqueue returns false and the
// caller proceeds to handle CMD_DONE itself.
func (e *Executor) Enqueue(currentAffinity int, req *protocol.Request) bool {
	if req.Conn == nil || !req.Conn.Present() {
		return false
	}
	want := req.Conn.Affinity()
	if want == currentAffinity {
		return false
	}
	e.postCompletion(want, req)
	return true
}

func (e *Executor) postCompletion(affinity int, req *protocol.Request) {
	if q := e.queueFor(affinity); q != nil {
		q.post(req)
	}
}

// FlushAfter implements spec.md §6's flushAfter(affinity, conn): the
// executor arranges an asynchronous flush of conn's output buffer on
// affinity's own serial queue, so it never races the connection's own
// event handling. Returns true once accepted; the caller (session)
// must not also flush locally.
func (e *Executor) FlushAfter(affinity int, conn netio.Conn) bool {
	q := e.queueFor(affinity)
	if q == nil {
		return false
	}
	q.requestFlush(conn)
	return true
}

// Close stops the pool and every registered affinity queue.
func (e *Executor) Close() {
	e.mu.Lock()
	queues := e.queues
	e.queues = make(map[int]*affinityQueue)
	e.mu.Unlock()
	for _, q := range queues {
		q.close()
	}
	e.pool.close()
}
