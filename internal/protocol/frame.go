package protocol

import "encoding/binary"

// fragmentHeaderLen is the 4-byte big-endian length prefix, grounded on
// the teacher's ONC-RPC fragment header (internal/server/conn.go,
// pkg/adapter/nfs/nfs_connection.go): top bit reserved as a
// last-fragment marker, low 31 bits the fragment byte count. This
// core only ever emits single-fragment messages, so the marker is
// always set on write and ignored on read.
const fragmentHeaderLen = 4

const lastFragmentBit = 1 << 31

// IsMessageAvailable implements the Framer collaborator of spec.md §6:
// it detects whether a complete request (header + body) is buffered
// at the front of data, without consuming anything. frameLen is the
// total byte count of the frame, header prefix included.
func IsMessageAvailable(data []byte) (ok bool, frameLen int) {
	if len(data) < fragmentHeaderLen {
		return false, 0
	}
	raw := binary.BigEndian.Uint32(data[:fragmentHeaderLen])
	bodyLen := int(raw &^ lastFragmentBit)
	total := fragmentHeaderLen + bodyLen
	if len(data) < total {
		return false, 0
	}
	return true, total
}

// PutFragmentHeader writes a single-fragment length prefix for a body
// of bodyLen bytes.
func PutFragmentHeader(dst []byte, bodyLen int) {
	binary.BigEndian.PutUint32(dst, lastFragmentBit|uint32(bodyLen))
}
