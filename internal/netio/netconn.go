package netio

import (
	"errors"
	"net"
	"sync"
	"syscall"
	"time"
)

var errNotSyscallConn = errors.New("netio: underlying conn does not expose a file descriptor")

// Conn is the network-connection collaborator spec.md §6 describes:
// input/output IOBuffers, socket-state queries, and the flow-control
// knobs (inactivity timer, read-ahead) the state machine tunes.
// internal/session depends only on this interface so tests can supply
// a fake; internal/reactor constructs the real *TCPConn.
type Conn interface {
	Input() *IOBuffer
	Output() *IOBuffer
	IsGood() bool
	Close()
	IsReadReady() bool
	IsWriteReady() bool
	CanStartFlush() bool
	StartFlush() bool
	GetNumBytesToWrite() int
	SetInactivityTimeout(seconds int32)
	SetMaxReadAhead(n int32)
	PeerIP() string

	// Touch and IsTimedOut back spec.md's INACTIVITY_TIMEOUT event:
	// internal/reactor calls Touch whenever it drives a NET_READ or
	// NET_WROTE event on this connection, and polls IsTimedOut on its
	// idle sweep to decide whether to raise INACTIVITY_TIMEOUT instead
	// of waiting for the socket to do something.
	Touch()
	IsTimedOut() bool
}

// TCPConn is the real Conn implementation, driven by internal/reactor
// from epoll readiness events. It is not itself safe against concurrent
// use from two goroutines at once — like the teacher's connection
// objects, it's pinned to one reactor worker.
type TCPConn struct {
	conn net.Conn
	in   *IOBuffer
	out  *IOBuffer

	mu                sync.Mutex
	good              bool
	readReady         bool
	writeReady        bool
	maxReadAhead      int32
	flushing          bool
	peerIP            string
	inactivitySeconds int32
	lastActivity      time.Time
}

// NewTCPConn wraps an accepted net.Conn.
func NewTCPConn(conn net.Conn) *TCPConn {
	peerIP := ""
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		peerIP = addr.IP.String()
	}
	return &TCPConn{
		conn:         conn,
		in:           NewIOBuffer(4096),
		out:          NewIOBuffer(4096),
		good:         true,
		readReady:    true,
		peerIP:       peerIP,
		lastActivity: time.Now(),
	}
}

func (c *TCPConn) Input() *IOBuffer  { return c.in }
func (c *TCPConn) Output() *IOBuffer { return c.out }
func (c *TCPConn) PeerIP() string    { return c.peerIP }

func (c *TCPConn) IsGood() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.good
}

func (c *TCPConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.good {
		return
	}
	c.good = false
	_ = c.conn.Close()
}

func (c *TCPConn) IsReadReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readReady
}

func (c *TCPConn) IsWriteReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeReady
}

// SetReadReady and SetWriteReady are called by internal/reactor's
// poller when epoll reports readiness, never by internal/session.
func (c *TCPConn) SetReadReady(ready bool) {
	c.mu.Lock()
	c.readReady = ready
	c.mu.Unlock()
}

func (c *TCPConn) SetWriteReady(ready bool) {
	c.mu.Lock()
	c.writeReady = ready
	c.mu.Unlock()
}

func (c *TCPConn) CanStartFlush() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.good && !c.flushing && c.out.BytesConsumable() > 0
}

// StartFlush performs a best-effort nonblocking write of the output
// buffer. Real nonblocking semantics are the reactor's job; here we do
// a direct blocking write sized to what's buffered, which is the
// simplification internal/reactor's single-threaded-per-connection
// model allows since the handler never overlaps calls on one Conn.
func (c *TCPConn) StartFlush() bool {
	c.mu.Lock()
	if !c.good || c.out.BytesConsumable() == 0 {
		c.mu.Unlock()
		return false
	}
	data := append([]byte(nil), c.out.Bytes()...)
	c.mu.Unlock()

	n, err := c.conn.Write(data)
	if n > 0 {
		c.out.Consume(n)
	}
	if err != nil {
		c.mu.Lock()
		c.good = false
		c.mu.Unlock()
		return false
	}
	return true
}

func (c *TCPConn) GetNumBytesToWrite() int {
	return c.out.BytesConsumable()
}

func (c *TCPConn) SetInactivityTimeout(seconds int32) {
	c.mu.Lock()
	c.inactivitySeconds = seconds
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// Touch records activity, rearming the inactivity window.
func (c *TCPConn) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// IsTimedOut reports whether more than the configured inactivity
// timeout has elapsed since the last Touch. A timeout of zero or less
// disables the check, per spec.md's "non-positive timeout disables
// the timer" rule.
func (c *TCPConn) IsTimedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inactivitySeconds <= 0 {
		return false
	}
	return time.Since(c.lastActivity) >= time.Duration(c.inactivitySeconds)*time.Second
}

func (c *TCPConn) SetMaxReadAhead(n int32) {
	c.mu.Lock()
	c.maxReadAhead = n
	c.mu.Unlock()
}

func (c *TCPConn) MaxReadAhead() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxReadAhead
}

// Read performs a nonblocking-equivalent read up to MaxReadAhead bytes,
// appending to the input buffer. Called by internal/reactor when epoll
// reports read-readiness.
func (c *TCPConn) Read() (int, error) {
	ahead := c.MaxReadAhead()
	if ahead <= 0 {
		return 0, nil
	}
	tmp := make([]byte, ahead)
	n, err := c.conn.Read(tmp)
	if n > 0 {
		c.in.Append(tmp[:n])
	}
	return n, err
}

// SyscallConn exposes the underlying file descriptor for
// internal/reactor's epoll registration, delegating to the wrapped
// net.Conn when it implements syscall.Conn (true for *net.TCPConn).
func (c *TCPConn) SyscallConn() (syscall.RawConn, error) {
	sc, ok := c.conn.(syscall.Conn)
	if !ok {
		return nil, errNotSyscallConn
	}
	return sc.SyscallConn()
}
