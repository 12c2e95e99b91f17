package session

import (
	"github.com/cubbit/metafsd/internal/logger"
	"github.com/cubbit/metafsd/internal/protocol"
)

func statusMessage(status uint32) string {
	switch status {
	case protocol.StatusOK:
		return "OK"
	case protocol.StatusNoEnt:
		return "no such entry"
	case protocol.StatusExist:
		return "already exists"
	case protocol.StatusNotDir:
		return "not a directory"
	case protocol.StatusIsDir:
		return "is a directory"
	case protocol.StatusNotEmpty:
		return "directory not empty"
	case protocol.StatusInval:
		return "invalid argument"
	case protocol.StatusIO:
		return "I/O error"
	case protocol.StatusThrottled:
		return "throttled"
	default:
		return "unknown status"
	}
}

// egress implements spec.md §4.5: render a completed request's
// response into the output buffer, or drop it if the connection's
// handle has already been released. Assumes mu is held.
func (c *Conn) egress(req *protocol.Request) {
	if req.MustLogUnconditionally() || req.Status != protocol.StatusOK {
		logger.Info("session: seq=%d status=%d (%s) %s", req.Seq, req.Status, statusMessage(req.Status), req.Describe())
	} else {
		logger.Debug("session: seq=%d status=%d (%s) %s", req.Seq, req.Status, statusMessage(req.Status), req.Describe())
	}

	if !c.present {
		return
	}

	if err := req.Serialize(c.netConn.Output()); err != nil {
		logger.Error("session: failed to serialize response for %s: %v", req.Describe(), err)
		return
	}

	if c.depth == 1 {
		c.forceFlush()
	}
}
