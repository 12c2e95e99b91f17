// Package session implements the per-connection client protocol state
// machine — the heart of the server. One Conn exists per accepted
// socket; it is driven entirely by events delivered through
// HandleEvent, never blocks, and owns exactly the lifecycle spec.md §3
// describes: accept, register with the roster, run until its socket
// is bad and no work is outstanding, then destroy itself.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/cubbit/metafsd/internal/audit"
	"github.com/cubbit/metafsd/internal/metrics"
	"github.com/cubbit/metafsd/internal/netio"
	"github.com/cubbit/metafsd/internal/protocol"
	"github.com/cubbit/metafsd/internal/ratelimiter"
	"github.com/cubbit/metafsd/internal/roster"
	"github.com/cubbit/metafsd/internal/tunables"
)

// Executor is the narrow view of internal/executor.Executor this
// package depends on, matching spec.md §6's submit/enqueue/flushAfter
// contract plus the affinity registration internal/executor exposes
// for CMD_DONE delivery.
type Executor interface {
	Submit(affinity int, req *protocol.Request)
	Enqueue(affinity int, req *protocol.Request) bool
	FlushAfter(affinity int, conn netio.Conn) bool
	RegisterAffinity(affinity int, maxPendingOps int, deliver func(req *protocol.Request))
	UnregisterAffinity(affinity int)
}

var seqCounter atomic.Uint64

// Conn is one accepted connection's state machine — spec.md §3's
// Connection and §4.3's "per-connection state machine" combined. All
// mutable state is guarded by mu, entered once per HandleEvent call
// and held across any re-entrant self-invocation, since those happen
// as direct recursive calls on the same goroutine rather than through
// a second lock acquisition — the Go equivalent of the source's
// same-stack recursive tail call.
type Conn struct {
	link roster.Link

	netConn  netio.Conn
	parser   *protocol.Parser
	exec     Executor
	tunables *tunables.Registry
	rosterOf *roster.Roster
	auditLog *audit.Log
	metrics  metrics.ConnMetrics
	limiter  *ratelimiter.RateLimiter

	clientIP string
	affinity int

	mu                    sync.Mutex
	depth                 int
	inFlight              int
	minClientProtoVersion uint32
	disconnectPending     bool
	bytesLeftMark         int
	present               bool
	destroyed             bool
}

// New constructs a Conn for a freshly accepted connection, registers
// it with the roster, and arms its affinity's completion delivery.
// internal/reactor keeps using netConn afterward only to read from the
// socket, record activity, and check IsGood/IsTimedOut; every other
// use goes through the Conn.
func New(
	netConn netio.Conn,
	affinity int,
	exec Executor,
	t *tunables.Registry,
	r *roster.Roster,
	auditLog *audit.Log,
	m metrics.ConnMetrics,
	limiter *ratelimiter.RateLimiter,
) *Conn {
	c := &Conn{
		netConn:               netConn,
		parser:                protocol.NewParser(),
		exec:                  exec,
		tunables:              t,
		rosterOf:              r,
		auditLog:              auditLog,
		metrics:               m,
		limiter:               limiter,
		clientIP:              netConn.PeerIP(),
		affinity:              affinity,
		present:               true,
		minClientProtoVersion: ^uint32(0),
	}

	netConn.SetMaxReadAhead(t.MaxReadAhead())
	netConn.SetInactivityTimeout(t.InactivityTimeoutSeconds())

	r.Register(&c.link, c)
	exec.RegisterAffinity(affinity, int(t.MaxPendingOps()), func(req *protocol.Request) {
		c.HandleEvent(EventCmdDone, req)
	})
	m.ConnectionAccepted()

	return c
}

// Affinity implements protocol.ConnRef.
func (c *Conn) Affinity() int { return c.affinity }

// Present implements protocol.ConnRef. Safe to call without mu: it is
// only ever read from within this Conn's own single-flight dispatch
// (see executor.Enqueue's use from the pre-dispatch step), which
// already holds mu on the same goroutine.
func (c *Conn) Present() bool { return c.present }

// HandleEvent is the one entry point spec.md §4.3 describes: every
// event, from the reactor or synthesized internally, funnels through
// here.
func (c *Conn) HandleEvent(event Event, req *protocol.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatch(event, req)
}

// dispatch assumes mu is held. It implements pre-dispatch, the
// re-entrance discipline, and routes to the per-event handler.
func (c *Conn) dispatch(event Event, req *protocol.Request) {
	if event == EventCmdDone {
		if c.exec.Enqueue(c.affinity, req) {
			return
		}
	}

	if c.depth < 0 {
		panic("session: re-entrance depth went negative")
	}
	c.depth++
	defer func() {
		c.depth--
		if c.depth < 0 {
			panic("session: re-entrance depth went negative on exit")
		}
		if c.depth == 0 {
			c.postDispatch()
		}
	}()

	switch event {
	case EventNetRead:
		c.onNetRead()
	case EventNetWrote:
		c.onNetWrote(false)
	case EventNetError:
		c.onNetError()
	case EventInactivityTimeout:
		c.onInactivityTimeout()
	case EventCmdDone:
		c.onCmdDone(req)
	}
}

// --- reactor.Handler ---

func (c *Conn) OnReadable()          { c.HandleEvent(EventNetRead, nil) }
func (c *Conn) OnWritable()          { c.HandleEvent(EventNetWrote, nil) }
func (c *Conn) OnError()             { c.HandleEvent(EventNetError, nil) }
func (c *Conn) OnInactivityTimeout() { c.HandleEvent(EventInactivityTimeout, nil) }

func (c *Conn) WantsWrite() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.netConn.GetNumBytesToWrite() > 0
}

// --- shared predicates ---

func (c *Conn) overPending() bool {
	return c.inFlight >= int(c.tunables.MaxPendingOps())
}

func (c *Conn) overWriteBehind() bool {
	return int64(c.netConn.GetNumBytesToWrite()) >= int64(c.tunables.MaxWriteBehind())
}

func (c *Conn) overPendingBytes() bool {
	return int64(c.netConn.Input().BytesConsumable()) >= c.tunables.MaxPendingBytes()
}

func (c *Conn) forceFlush() {
	if c.netConn.CanStartFlush() {
		c.netConn.StartFlush()
	}
}

// flushAfterOrNow implements the "force a flush" steps that first
// offer the work to the executor (spec.md §6's flushAfter) before
// falling back to a synchronous flush.
func (c *Conn) flushAfterOrNow() {
	if !c.netConn.IsGood() {
		return
	}
	accepted := c.exec.FlushAfter(c.affinity, c.netConn)
	if c.inFlight == 0 || !accepted {
		c.forceFlush()
	}
}

func nextSeq() uint64 {
	return seqCounter.Add(1)
}
