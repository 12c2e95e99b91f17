package executor

import (
	"sync"
	"testing"
	"time"

	"github.com/cubbit/metafsd/internal/contentstore/memory"
	metamemory "github.com/cubbit/metafsd/internal/metastore/memory"
	"github.com/cubbit/metafsd/internal/protocol"
)

type fakeConnRef struct {
	present  bool
	affinity int
}

func (f *fakeConnRef) Present() bool { return f.present }
func (f *fakeConnRef) Affinity() int { return f.affinity }

func newTestExecutor(t *testing.T) (*Executor, func()) {
	t.Helper()
	meta := metamemory.New()
	blobs := memory.New()
	e := New(meta, blobs, 4)
	return e, e.Close
}

func TestDispatchGetAttrOnRoot(t *testing.T) {
	e, closeFn := newTestExecutor(t)
	defer closeFn()

	root := e.meta.Root()
	req := &protocol.Request{
		Header: protocol.Header{Opcode: uint32(protocol.OpGetAttr)},
		Args:   &protocol.GetAttrArgs{Handle: string(root)},
	}
	e.dispatch(req)

	if req.Status != protocol.StatusOK {
		t.Fatalf("status = %d, want StatusOK", req.Status)
	}
	reply, ok := req.Reply.(*protocol.AttrReply)
	if !ok {
		t.Fatalf("reply type = %T, want *AttrReply", req.Reply)
	}
	if reply.Handle != string(root) {
		t.Fatalf("reply handle = %q, want %q", reply.Handle, root)
	}
}

func TestDispatchCreateThenReadDirSeesEntry(t *testing.T) {
	e, closeFn := newTestExecutor(t)
	defer closeFn()

	root := e.meta.Root()
	create := &protocol.Request{
		Header: protocol.Header{Opcode: uint32(protocol.OpCreate)},
		Args:   &protocol.CreateArgs{Dir: string(root), Name: "a.txt", Mode: 0o644},
	}
	e.dispatch(create)
	if create.Status != protocol.StatusOK {
		t.Fatalf("create status = %d, want StatusOK", create.Status)
	}

	readdir := &protocol.Request{
		Header: protocol.Header{Opcode: uint32(protocol.OpReadDir)},
		Args:   &protocol.ReadDirArgs{Dir: string(root)},
	}
	e.dispatch(readdir)
	reply := readdir.Reply.(*protocol.ReadDirReply)
	if len(reply.Entries) != 1 || reply.Entries[0].Name != "a.txt" {
		t.Fatalf("readdir entries = %+v, want one entry named a.txt", reply.Entries)
	}
}

func TestDispatchLookupMissingReturnsNoEnt(t *testing.T) {
	e, closeFn := newTestExecutor(t)
	defer closeFn()

	root := e.meta.Root()
	req := &protocol.Request{
		Header: protocol.Header{Opcode: uint32(protocol.OpLookup)},
		Args:   &protocol.LookupArgs{Dir: string(root), Name: "missing"},
	}
	e.dispatch(req)
	if req.Status != protocol.StatusNoEnt {
		t.Fatalf("status = %d, want StatusNoEnt", req.Status)
	}
}

func TestSubmitDeliversCompletionOnRegisteredAffinity(t *testing.T) {
	e, closeFn := newTestExecutor(t)
	defer closeFn()

	var mu sync.Mutex
	var delivered *protocol.Request
	done := make(chan struct{})

	e.RegisterAffinity(3, 16, func(req *protocol.Request) {
		mu.Lock()
		delivered = req
		mu.Unlock()
		close(done)
	})
	defer e.UnregisterAffinity(3)

	root := e.meta.Root()
	req := &protocol.Request{
		Header: protocol.Header{Opcode: uint32(protocol.OpGetAttr)},
		Args:   &protocol.GetAttrArgs{Handle: string(root)},
		Conn:   &fakeConnRef{present: true, affinity: 3},
	}
	e.Submit(3, req)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion was not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if delivered != req {
		t.Fatal("delivered request does not match submitted request")
	}
}

func TestEnqueueReroutesToOwningAffinity(t *testing.T) {
	e, closeFn := newTestExecutor(t)
	defer closeFn()

	done := make(chan struct{})
	e.RegisterAffinity(1, 16, func(req *protocol.Request) { close(done) })
	e.RegisterAffinity(2, 16, func(req *protocol.Request) { t.Error("wrong affinity got the completion") })
	defer e.UnregisterAffinity(1)
	defer e.UnregisterAffinity(2)

	req := &protocol.Request{Conn: &fakeConnRef{present: true, affinity: 1}}

	rerouted := e.Enqueue(2, req)
	if !rerouted {
		t.Fatal("Enqueue should report true when affinities mismatch")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion was not redelivered to the owning affinity")
	}
}

func TestEnqueueAcceptsLocallyWhenAffinityMatches(t *testing.T) {
	e, closeFn := newTestExecutor(t)
	defer closeFn()

	req := &protocol.Request{Conn: &fakeConnRef{present: true, affinity: 5}}
	if e.Enqueue(5, req) {
		t.Fatal("Enqueue should report false when affinities already match")
	}
}
