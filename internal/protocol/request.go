package protocol

import (
	"fmt"
	"time"

	"github.com/cubbit/metafsd/internal/netio"
)

// ConnRef is the narrow view of the owning connection a Request needs
// across its lifecycle: whether the connection handle is still present
// at response-egress time (spec.md §4.5 step 2), and which executor
// affinity it's pinned to, so a misrouted CMD_DONE can be redirected
// (spec.md §4.3 pre-dispatch). internal/session.Conn implements this.
type ConnRef interface {
	Present() bool
	Affinity() int
}

// Request is "the object" spec.md's data flow describes: produced by
// the Parser, handed to the Executor, returned on CMD_DONE, and
// destroyed after response serialization. Fields below are filled in
// across that lifecycle by internal/session (ingest bookkeeping),
// internal/executor (dispatch outcome), and this package (decode).
type Request struct {
	Header Header
	Args   any

	// Ingest bookkeeping (spec.md §4.4 step 4).
	ClientIP   string
	FromClient bool
	Conn       ConnRef

	// RawHeader retains the original frame bytes when audit logging is
	// on (spec.md §4.4 step 3); nil otherwise.
	RawHeader []byte

	// Seq is a per-process monotonically increasing sequence number,
	// used only for the log line spec.md §4.5 step 1 requires.
	Seq uint64

	// SubmittedAt marks when ingest handed this request to the
	// executor, so CMD_DONE can report handling latency.
	SubmittedAt time.Time

	// Dispatch outcome. internal/executor fills in Status and Reply
	// before CMD_DONE; no current code path sets DispErr.
	Status  uint32
	Reply   any
	DispErr error
}

// MustLogUnconditionally reports whether this request's completion
// must be logged regardless of status or debug level — spec.md §4.5
// step 1's "type that must be logged unconditionally". Write,
// Remove, Rmdir and Rename completions are always logged.
func (r *Request) MustLogUnconditionally() bool {
	switch Opcode(r.Header.Opcode) {
	case OpWrite, OpRemove, OpRmdir, OpRename:
		return true
	default:
		return false
	}
}

// Describe renders a short self-description for logging, per
// spec.md §4.5 step 1 and §6's "per-connection debug lines".
func (r *Request) Describe() string {
	return fmt.Sprintf("%s xid=%d", Opcode(r.Header.Opcode), r.Header.XID)
}

// Serialize encodes the reply header, status, and opcode-specific
// payload into out, matching the Response-egress contract of
// spec.md §4.5 step 4 ("ask the request to serialize its response
// into the output buffer").
func (r *Request) Serialize(out *netio.IOBuffer) error {
	frame, err := encodeReply(r.Header, r.Status, r.Reply)
	if err != nil {
		return err
	}
	out.Append(frame)
	return nil
}
