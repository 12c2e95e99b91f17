package executor

import (
	"sync/atomic"

	"github.com/cubbit/metafsd/internal/netio"
	"github.com/cubbit/metafsd/internal/protocol"
)

// affinityQueue serializes completion delivery for one connection. Its
// single goroutine is the only thing allowed to call deliver, so two
// CMD_DONEs for the same connection can never overlap even though the
// work that produced them ran on arbitrary pool workers.
//
// tasks is sized to the connection's own maxPendingOps at
// RegisterAffinity time rather than a constant: that tunable already
// bounds how many completions for one connection can be outstanding
// at once (a new Submit can't happen until overPending() sees an
// earlier one's CMD_DONE decrement inFlight, and that decrement only
// happens once this queue delivers it), so a channel sized to it can
// never be full when post is called — removing the deadlock risk of
// post blocking while called from a goroutine that already holds the
// connection's mutex (workerPool.schedule's inline-execution
// fallback).
//
// Flush requests bypass tasks entirely: they are coalesced into a
// single pending flag plus a 1-slot wake signal rather than posted as
// ordinary closures, so FlushAfter (called from inside onCmdDone,
// i.e. from this queue's own consumer goroutine) can never block on
// its own channel.
type affinityQueue struct {
	tasks   chan func()
	wake    chan struct{}
	deliver Deliver

	flushPending atomic.Bool
	flushConn    atomic.Value // netio.Conn
}

func newAffinityQueue(deliver Deliver, capacity int) *affinityQueue {
	if capacity < 1 {
		capacity = 1
	}
	q := &affinityQueue{
		tasks:   make(chan func(), capacity),
		wake:    make(chan struct{}, 1),
		deliver: deliver,
	}
	go q.run()
	return q
}

func (q *affinityQueue) run() {
	for {
		select {
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			task()
			q.drainFlush()
		case <-q.wake:
			q.drainFlush()
		}
	}
}

func (q *affinityQueue) drainFlush() {
	if !q.flushPending.CompareAndSwap(true, false) {
		return
	}
	conn, ok := q.flushConn.Load().(netio.Conn)
	if !ok || conn == nil {
		return
	}
	if conn.CanStartFlush() {
		conn.StartFlush()
	}
}

func (q *affinityQueue) post(req *protocol.Request) {
	q.tasks <- func() { q.deliver(req) }
}

// requestFlush marks conn as wanting a flush and wakes the consumer
// goroutine if it is idle, without ever blocking the caller.
func (q *affinityQueue) requestFlush(conn netio.Conn) {
	q.flushConn.Store(conn)
	q.flushPending.Store(true)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *affinityQueue) close() {
	close(q.tasks)
}
