package session

import (
	"time"

	"github.com/cubbit/metafsd/internal/logger"
	"github.com/cubbit/metafsd/internal/protocol"
)

const maxMalformedLinesLogged = 16

// ingest implements spec.md §4.4: given a complete frame sitting at
// the head of the input buffer, parse it, annotate it, and hand it to
// the executor. Assumes mu is held (called from within dispatch).
func (c *Conn) ingest(frameLen int) {
	in := c.netConn.Input()
	frame := in.Bytes()[:frameLen]

	req, err := c.parser.Parse(frame)
	if err != nil {
		c.rejectMalformed(frame)
		return
	}

	// step 2: protocol-version downgrade tracking.
	if req.Header.ClientProtoVersion < c.minClientProtoVersion {
		c.minClientProtoVersion = req.Header.ClientProtoVersion
		logger.Warn("session: client %s downgraded protocol version to %d", c.clientIP, req.Header.ClientProtoVersion)
	}

	// step 3: retain a copy of the raw frame for audit when enabled;
	// the frame is consumed from the input buffer either way.
	if c.tunables.AuditLogging() {
		req.RawHeader = append([]byte(nil), frame...)
	}
	in.Consume(frameLen)

	// step 4: annotate.
	req.ClientIP = c.clientIP
	req.FromClient = true
	req.Conn = c
	req.Seq = nextSeq()
	req.SubmittedAt = time.Now()

	// Rate limiting answers the request immediately instead of
	// submitting it, per the throttling behavior layered onto ingest.
	if c.limiter != nil && !c.limiter.Allow() {
		req.Status = protocol.StatusThrottled
		c.egress(req)
		return
	}

	// step 5: submit.
	c.inFlight++
	c.metrics.RequestStarted(req.Header.Opcode)
	c.exec.Submit(c.affinity, req)
}

// rejectMalformed implements §4.4 step 1's failure path: extract up to
// 16 lines from the frame, log each as an invalid-request error, clear
// the buffer, close the socket, and synthesize NET_ERROR.
func (c *Conn) rejectMalformed(frame []byte) {
	lines := splitLines(frame, maxMalformedLinesLogged)
	for _, line := range lines {
		logger.Error("session: invalid request from %s: %q", c.clientIP, line)
	}

	c.netConn.Input().Clear()
	c.netConn.Close()
	c.dispatch(EventNetError, nil)
}

func splitLines(data []byte, limit int) []string {
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, string(data[start:i]))
			start = i + 1
			if len(lines) >= limit {
				return lines
			}
		}
	}
	if start < len(data) && len(lines) < limit {
		lines = append(lines, string(data[start:]))
	}
	return lines
}
