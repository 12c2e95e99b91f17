//go:build linux

package reactor

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cubbit/metafsd/internal/netio"
)

type countingHandler struct {
	mu        sync.Mutex
	reads     int32
	conn      *netio.TCPConn
	wantWrite atomic.Bool
	readCh    chan struct{}
}

func (h *countingHandler) OnReadable() {
	h.mu.Lock()
	h.reads++
	h.mu.Unlock()
	select {
	case h.readCh <- struct{}{}:
	default:
	}
}

func (h *countingHandler) OnWritable()          {}
func (h *countingHandler) OnError()             {}
func (h *countingHandler) OnInactivityTimeout() {}
func (h *countingHandler) WantsWrite() bool     { return h.wantWrite.Load() }

func TestEngineDeliversReadableEvents(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	var handler *countingHandler
	ready := make(chan struct{})

	engine, err := New(func(conn *netio.TCPConn, affinity int) Handler {
		conn.SetMaxReadAhead(4096)
		h := &countingHandler{conn: conn, readCh: make(chan struct{}, 1)}
		handler = h
		close(ready)
		return h
	}, 2)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer engine.Close()

	go engine.Serve(ln)

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	<-ready
	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-handler.readCh:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never observed a readable event")
	}

	handler.mu.Lock()
	got := handler.reads
	handler.mu.Unlock()
	if got == 0 {
		t.Fatalf("reads = %d, want at least 1", got)
	}
}
