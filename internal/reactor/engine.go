package reactor

import (
	"net"
	"sync"
	"time"

	"github.com/cubbit/metafsd/internal/logger"
	"github.com/cubbit/metafsd/internal/netio"
)

// Handler is the event-driven state machine spec.md §4.3 describes —
// internal/session.Conn implements it. The engine never inspects a
// connection's buffers or protocol state itself; it only delivers
// readiness and routes the one fd-management side effect
// (write-interest) the handler asks for.
type Handler interface {
	OnReadable()
	OnWritable()
	OnError()
	OnInactivityTimeout()
	// WantsWrite reports whether the handler currently has output
	// buffered, so the engine knows whether to keep epoll subscribed
	// to EPOLLOUT for this fd.
	WantsWrite() bool
}

// NewHandlerFunc constructs the per-connection state machine for a
// freshly accepted connection. Supplied by the caller (cmd/metafsd)
// so this package never imports internal/session, avoiding a cycle
// and keeping the engine reusable against any Handler.
type NewHandlerFunc func(conn *netio.TCPConn, affinity int) Handler

// Engine runs the accept loop and the epoll/kqueue event loop.
type Engine struct {
	poller     Poller
	newHandler NewHandlerFunc
	idlePoll   time.Duration

	mu      sync.Mutex
	conns   map[int]*trackedConn
	nextAff int
	workers int
}

type trackedConn struct {
	fd       int
	conn     *netio.TCPConn
	handler  Handler
	affinity int
}

// New builds an Engine. workers bounds the round-robin affinity slots
// handed to newHandler, matching internal/executor's affinity model.
func New(newHandler NewHandlerFunc, workers int) (*Engine, error) {
	p, err := newPlatformPoller()
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		poller:     p,
		newHandler: newHandler,
		idlePoll:   time.Second,
		conns:      make(map[int]*trackedConn),
		workers:    workers,
	}, nil
}

// Serve accepts connections off ln until it's closed, running the
// event loop on the calling goroutine. It returns when both the
// accept loop and event loop have stopped.
func (e *Engine) Serve(ln net.Listener) error {
	acceptErrs := make(chan error, 1)
	go func() { acceptErrs <- e.acceptLoop(ln) }()

	loopErr := e.eventLoop()
	_ = ln.Close()
	<-acceptErrs
	return loopErr
}

func (e *Engine) acceptLoop(ln net.Listener) error {
	for {
		raw, err := ln.Accept()
		if err != nil {
			return err
		}
		if err := e.register(raw); err != nil {
			logger.Warn("reactor: failed to register accepted connection: %v", err)
			_ = raw.Close()
		}
	}
}

func (e *Engine) register(raw net.Conn) error {
	conn := netio.NewTCPConn(raw)
	fd, err := fdOf(conn)
	if err != nil {
		return err
	}

	e.mu.Lock()
	affinity := e.nextAff % e.workers
	e.nextAff++
	e.mu.Unlock()

	handler := e.newHandler(conn, affinity)

	if err := e.poller.Add(fd, false); err != nil {
		return err
	}

	e.mu.Lock()
	e.conns[fd] = &trackedConn{fd: fd, conn: conn, handler: handler, affinity: affinity}
	e.mu.Unlock()
	return nil
}

func (e *Engine) eventLoop() error {
	for {
		events, err := e.poller.Wait(int(e.idlePoll / time.Millisecond))
		if err != nil {
			return err
		}
		if len(events) == 0 {
			e.sweepIdle()
			continue
		}
		for _, ev := range events {
			e.dispatch(ev)
		}
	}
}

func (e *Engine) dispatch(ev Event) {
	e.mu.Lock()
	tc, ok := e.conns[ev.Fd]
	e.mu.Unlock()
	if !ok {
		return
	}

	switch {
	case ev.Error:
		tc.handler.OnError()
	default:
		if ev.Readable {
			tc.conn.Touch()
			if _, err := tc.conn.Read(); err != nil {
				tc.handler.OnError()
				break
			}
			tc.handler.OnReadable()
		}
		if ev.Writable {
			tc.conn.Touch()
			tc.handler.OnWritable()
		}
	}

	e.syncWriteInterest(tc)
	if !tc.conn.IsGood() {
		e.forget(tc.fd)
	}
}

// syncWriteInterest reconciles the poller's EPOLLOUT registration with
// whether the handler currently has anything buffered to write.
func (e *Engine) syncWriteInterest(tc *trackedConn) {
	_ = e.poller.Modify(tc.fd, tc.handler.WantsWrite())
}

func (e *Engine) sweepIdle() {
	e.mu.Lock()
	tcs := make([]*trackedConn, 0, len(e.conns))
	for _, tc := range e.conns {
		tcs = append(tcs, tc)
	}
	e.mu.Unlock()

	for _, tc := range tcs {
		if tc.conn.IsTimedOut() {
			tc.handler.OnInactivityTimeout()
			if !tc.conn.IsGood() {
				e.forget(tc.fd)
			}
		}
	}
}

func (e *Engine) forget(fd int) {
	e.mu.Lock()
	delete(e.conns, fd)
	e.mu.Unlock()
	_ = e.poller.Remove(fd)
}

// Close tears down the poller; in-flight connections are left to their
// own handlers to close.
func (e *Engine) Close() error {
	return e.poller.Close()
}
