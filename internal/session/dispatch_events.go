package session

import (
	"time"

	"github.com/cubbit/metafsd/internal/audit"
	"github.com/cubbit/metafsd/internal/logger"
	"github.com/cubbit/metafsd/internal/protocol"
)

// onNetRead implements spec.md §4.3's NET_READ algorithm. Assumes mu
// held and depth already incremented by dispatch.
func (c *Conn) onNetRead() {
	c.bytesLeftMark = 0

	if c.disconnectPending {
		c.netConn.Input().Clear()
	}

	exitedOverWriteBehind := false
	for {
		for c.depth == 1 && c.overWriteBehind() && c.netConn.CanStartFlush() {
			c.forceFlush()
		}
		if c.overWriteBehind() {
			exitedOverWriteBehind = true
			break
		}
		if c.overPending() {
			break
		}
		ok, frameLen := protocol.IsMessageAvailable(c.netConn.Input().Bytes())
		if !ok {
			break
		}
		c.ingest(frameLen)
	}

	if exitedOverWriteBehind {
		return
	}

	if c.overPending() || c.disconnectPending {
		return
	}

	left := c.netConn.Input().BytesConsumable()
	c.bytesLeftMark = left
	if left > protocol.MaxRPCHeaderLen {
		logger.Error("session: client %s sent an oversized header (%d bytes)", c.clientIP, left)
		c.dispatch(EventNetError, nil)
		return
	}
	c.netConn.SetMaxReadAhead(c.tunables.MaxReadAhead())
}

// onCmdDone implements spec.md §4.3's CMD_DONE algorithm.
func (c *Conn) onCmdDone(req *protocol.Request) {
	if c.tunables.AuditLogging() && len(req.RawHeader) > 0 {
		c.auditLog.Write(audit.Record{
			Time:     time.Now(),
			ClientIP: req.ClientIP,
			Opcode:   req.Header.Opcode,
			XID:      req.Header.XID,
			Status:   req.Status,
			RawLen:   len(req.RawHeader),
		})
	}

	c.egress(req)

	c.inFlight--
	var elapsed time.Duration
	if !req.SubmittedAt.IsZero() {
		elapsed = time.Since(req.SubmittedAt)
	}
	c.metrics.RequestCompleted(req.Header.Opcode, req.Status, elapsed)

	if c.present && c.depth == 1 {
		c.flushAfterOrNow()
	}

	c.onNetWrote(true)
}

// onNetWrote implements spec.md §4.3's NET_WROTE algorithm, shared
// with CMD_DONE's fall-through. fromCmdDone is true when invoked as
// that fall-through rather than from a real NET_WROTE event.
func (c *Conn) onNetWrote(fromCmdDone bool) {
	if c.overPending() {
		return
	}
	if c.depth != 1 {
		return
	}
	if c.overWriteBehind() {
		return
	}
	if !fromCmdDone && c.netConn.IsReadReady() {
		return
	}

	if c.netConn.Input().BytesConsumable() > c.bytesLeftMark || c.disconnectPending {
		c.dispatch(EventNetRead, nil)
		return
	}
	if !c.netConn.IsReadReady() {
		c.netConn.SetMaxReadAhead(c.tunables.MaxReadAhead())
	}
}

// onNetError implements spec.md §4.3's NET_ERROR algorithm. Scenario
// S5 and §7's "converted to graceful shutdown" take precedence over
// the terser "fall through to INACTIVITY_TIMEOUT" phrasing: when work
// is still pending, the socket must stay open and draining, not close
// immediately as INACTIVITY_TIMEOUT always does (see DESIGN.md).
func (c *Conn) onNetError() {
	if c.netConn.IsGood() && (c.inFlight > 0 || c.netConn.GetNumBytesToWrite() > 0) {
		c.disconnectPending = true
		return
	}
	c.metrics.ConnectionForceClosed()
	c.netConn.Close()
	c.netConn.Input().Clear()
}

// onInactivityTimeout implements spec.md §4.3's INACTIVITY_TIMEOUT
// algorithm: always closes immediately, even with in-flight work
// outstanding (scenario S6).
func (c *Conn) onInactivityTimeout() {
	c.metrics.ConnectionForceClosed()
	c.netConn.Close()
	c.netConn.Input().Clear()
}

// postDispatch runs only when the re-entrance depth is about to
// return to 0 — spec.md §4.3's post-dispatch block.
func (c *Conn) postDispatch() {
	if c.netConn.IsGood() {
		c.flushAfterOrNow()
	}

	if c.netConn.IsGood() && c.disconnectPending {
		if c.inFlight == 0 && c.netConn.GetNumBytesToWrite() == 0 {
			c.metrics.ConnectionClosed()
			c.netConn.Close()
		} else {
			c.netConn.SetMaxReadAhead(0)
		}
	}

	if c.netConn.IsGood() {
		c.netConn.Input().CompactIfBelow(int(c.tunables.InputCompactionThreshold()))
		c.netConn.Output().CompactIfBelow(int(c.tunables.OutputCompactionThreshold()))
	}

	if c.netConn.IsGood() && (c.overPending() || c.overWriteBehind() || c.overPendingBytes()) {
		c.netConn.SetMaxReadAhead(0)
	}

	if !c.netConn.IsGood() {
		if c.inFlight > 0 {
			c.present = false
		} else {
			c.destroy()
		}
	}
}

// destroy implements spec.md §3's "destroyed from inside its own
// event handler" lifecycle end: unregister from the roster. Permitted
// only at outermost depth, which postDispatch's caller guarantees.
func (c *Conn) destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.present = false
	c.rosterOf.Unregister(&c.link)
	c.exec.UnregisterAffinity(c.affinity)
}
