package session

import (
	"bytes"
	"sync"
	"testing"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/cubbit/metafsd/internal/audit"
	"github.com/cubbit/metafsd/internal/config"
	"github.com/cubbit/metafsd/internal/metrics"
	"github.com/cubbit/metafsd/internal/netio"
	"github.com/cubbit/metafsd/internal/protocol"
	"github.com/cubbit/metafsd/internal/roster"
	"github.com/cubbit/metafsd/internal/tunables"
)

// encodeHeaderOnly marshals a bare Header with no argument payload,
// matching what a NULL request looks like on the wire.
func encodeHeaderOnly(t *testing.T, h protocol.Header) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &h); err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	return buf.Bytes()
}

// fakeConn is a test double for netio.Conn, good enough to drive the
// state machine's bookkeeping without a real socket.
type fakeConn struct {
	mu sync.Mutex

	in, out *netio.IOBuffer

	good          bool
	readReady     bool
	writeReady    bool
	maxReadAhead  int32
	flushCount    int
	closed        bool
	timedOut      bool
	inactivitySec int32
	peerIP        string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:        netio.NewIOBuffer(64),
		out:       netio.NewIOBuffer(64),
		good:      true,
		readReady: true,
		peerIP:    "127.0.0.1",
	}
}

func (f *fakeConn) Input() *netio.IOBuffer  { return f.in }
func (f *fakeConn) Output() *netio.IOBuffer { return f.out }
func (f *fakeConn) PeerIP() string          { return f.peerIP }

func (f *fakeConn) IsGood() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.good
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.good = false
	f.closed = true
}

func (f *fakeConn) IsReadReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readReady
}

func (f *fakeConn) IsWriteReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeReady
}

func (f *fakeConn) CanStartFlush() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.good && f.out.BytesConsumable() > 0
}

func (f *fakeConn) StartFlush() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.good || f.out.BytesConsumable() == 0 {
		return false
	}
	f.flushCount++
	f.out.Consume(f.out.BytesConsumable())
	return true
}

func (f *fakeConn) GetNumBytesToWrite() int { return f.out.BytesConsumable() }

func (f *fakeConn) SetInactivityTimeout(seconds int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inactivitySec = seconds
}

func (f *fakeConn) SetMaxReadAhead(n int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxReadAhead = n
}

func (f *fakeConn) Touch() {}

func (f *fakeConn) IsTimedOut() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timedOut
}

// fakeExecutor is a test double for session.Executor. Like the real
// executor, completion delivery always happens on a goroutine distinct
// from the caller's, since Conn.HandleEvent's mutex is not reentrant —
// delivering inline would deadlock against the very call that
// triggered Submit.
type fakeExecutor struct {
	mu       sync.Mutex
	delivers map[int]func(req *protocol.Request)
	handler  func(req *protocol.Request)
	wg       sync.WaitGroup
}

func newFakeExecutor(handler func(req *protocol.Request)) *fakeExecutor {
	return &fakeExecutor{
		delivers: make(map[int]func(req *protocol.Request)),
		handler:  handler,
	}
}

// Wait blocks until every Submit/Enqueue-triggered delivery so far has
// run to completion.
func (e *fakeExecutor) Wait() { e.wg.Wait() }

func (e *fakeExecutor) Submit(affinity int, req *protocol.Request) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if e.handler != nil {
			e.handler(req)
		} else {
			req.Status = protocol.StatusOK
		}
		e.mu.Lock()
		deliver := e.delivers[affinity]
		e.mu.Unlock()
		if deliver != nil {
			deliver(req)
		}
	}()
}

func (e *fakeExecutor) Enqueue(affinity int, req *protocol.Request) bool {
	if req.Conn == nil || req.Conn.Affinity() == affinity {
		return false
	}
	e.mu.Lock()
	deliver := e.delivers[req.Conn.Affinity()]
	e.mu.Unlock()
	if deliver != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			deliver(req)
		}()
	}
	return true
}

func (e *fakeExecutor) FlushAfter(affinity int, conn netio.Conn) bool {
	return false
}

func (e *fakeExecutor) RegisterAffinity(affinity int, maxPendingOps int, deliver func(req *protocol.Request)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delivers[affinity] = deliver
}

func (e *fakeExecutor) UnregisterAffinity(affinity int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.delivers, affinity)
}

func newTestConn(t *testing.T, fc *fakeConn, exec Executor) *Conn {
	t.Helper()
	reg := tunables.New(false)
	reg.Update(config.TunablesConfig{
		MaxPendingOps:             16,
		MaxPendingBytes:           1 << 20,
		MaxReadAhead:              256,
		InactivityTimeoutSeconds:  0,
		MaxWriteBehind:            1 << 20,
		InputCompactionThreshold:  4096,
		OutputCompactionThreshold: 4096,
		AuditLogging:              false,
	})
	r := &roster.Roster{}
	log := audit.New(&bytes.Buffer{})
	m := metrics.NoopConnMetrics{}
	return New(fc, 0, exec, reg, r, log, m, nil)
}

func putFrame(t *testing.T, fc *fakeConn, body []byte) {
	t.Helper()
	frame := make([]byte, 4+len(body))
	protocol.PutFragmentHeader(frame, len(body))
	copy(frame[4:], body)
	fc.in.Append(frame)
}

func TestHandleEventNetReadSubmitsCompleteFrame(t *testing.T) {
	fc := newFakeConn()
	var submitted *protocol.Request
	exec := newFakeExecutor(func(req *protocol.Request) {
		submitted = req
		req.Status = protocol.StatusOK
	})

	c := newTestConn(t, fc, exec)

	h := protocol.Header{XID: 42, Opcode: uint32(protocol.OpNull)}
	putFrame(t, fc, encodeHeaderOnly(t, h))

	c.HandleEvent(EventNetRead, nil)
	exec.Wait()

	if submitted == nil {
		t.Fatal("expected a request to be submitted")
	}
	if submitted.Header.XID != 42 {
		t.Fatalf("xid = %d, want 42", submitted.Header.XID)
	}
	if fc.in.BytesConsumable() != 0 {
		t.Fatalf("input buffer left with %d unconsumed bytes", fc.in.BytesConsumable())
	}
}

func TestOversizedHeaderTriggersNetError(t *testing.T) {
	fc := newFakeConn()
	exec := newFakeExecutor(nil)
	c := newTestConn(t, fc, exec)

	// A fragment header claiming a body far larger than anything
	// buffered: IsMessageAvailable never finds a complete frame, so
	// the unconsumed byte count just keeps growing past
	// MaxRPCHeaderLen without ever reaching a parseable boundary.
	buf := make([]byte, protocol.MaxRPCHeaderLen+100)
	protocol.PutFragmentHeader(buf, 1_000_000)
	fc.in.Append(buf)

	c.HandleEvent(EventNetRead, nil)

	if fc.IsGood() {
		t.Fatal("expected connection to be marked not-good after oversized header")
	}
}

func TestDisconnectPendingClosesOnceDrained(t *testing.T) {
	fc := newFakeConn()
	exec := newFakeExecutor(func(req *protocol.Request) {
		req.Status = protocol.StatusOK
	})
	c := newTestConn(t, fc, exec)

	c.mu.Lock()
	c.disconnectPending = true
	c.mu.Unlock()

	c.HandleEvent(EventNetWrote, nil)

	if !fc.closed {
		t.Fatal("expected connection to close once drained with disconnect pending")
	}
}

func TestInactivityTimeoutAlwaysClosesImmediately(t *testing.T) {
	fc := newFakeConn()
	exec := newFakeExecutor(nil)
	c := newTestConn(t, fc, exec)

	c.mu.Lock()
	c.inFlight = 1
	c.mu.Unlock()

	c.HandleEvent(EventInactivityTimeout, nil)

	if !fc.closed {
		t.Fatal("expected inactivity timeout to close the socket even with work in flight")
	}
}

func TestNetErrorWithInFlightWorkDefersClose(t *testing.T) {
	fc := newFakeConn()
	exec := newFakeExecutor(nil)
	c := newTestConn(t, fc, exec)

	c.mu.Lock()
	c.inFlight = 1
	c.mu.Unlock()

	c.HandleEvent(EventNetError, nil)

	if fc.closed {
		t.Fatal("expected socket to stay open while work remains in flight")
	}
	c.mu.Lock()
	pending := c.disconnectPending
	c.mu.Unlock()
	if !pending {
		t.Fatal("expected disconnectPending to be set")
	}
}

func TestRequestSubmittedWhenNoLimiterInstalled(t *testing.T) {
	fc := newFakeConn()
	submitCount := 0
	exec := newFakeExecutor(func(req *protocol.Request) {
		submitCount++
		req.Status = protocol.StatusOK
	})
	c := newTestConn(t, fc, exec)

	c.mu.Lock()
	c.limiter = nil
	c.mu.Unlock()

	h := protocol.Header{XID: 1, Opcode: uint32(protocol.OpNull)}
	putFrame(t, fc, encodeHeaderOnly(t, h))
	c.HandleEvent(EventNetRead, nil)
	exec.Wait()

	if submitCount != 1 {
		t.Fatalf("submitCount = %d, want 1 (no limiter installed)", submitCount)
	}
}
