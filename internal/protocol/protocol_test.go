package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/cubbit/metafsd/internal/netio"
)

func buildFrame(t *testing.T, h Header, args any) []byte {
	t.Helper()

	var body bytes.Buffer
	_, err := xdr.Marshal(&body, &h)
	require.NoError(t, err)
	_, err = xdr.Marshal(&body, args)
	require.NoError(t, err)

	buf := make([]byte, fragmentHeaderLen+body.Len())
	PutFragmentHeader(buf, body.Len())
	copy(buf[fragmentHeaderLen:], body.Bytes())
	return buf
}

func TestIsMessageAvailableWaitsForFullFrame(t *testing.T) {
	h := Header{XID: 1, Opcode: uint32(OpGetAttr)}
	frame := buildFrame(t, h, &GetAttrArgs{Handle: "root"})

	ok, _ := IsMessageAvailable(frame[:2])
	require.False(t, ok)

	ok, _ = IsMessageAvailable(frame[:len(frame)-1])
	require.False(t, ok)

	ok, n := IsMessageAvailable(frame)
	require.True(t, ok)
	require.Equal(t, len(frame), n)
}

func TestParseRoundTripsGetAttrArgs(t *testing.T) {
	h := Header{XID: 42, Opcode: uint32(OpGetAttr), ClientProtoVersion: 3}
	frame := buildFrame(t, h, &GetAttrArgs{Handle: "abc"})

	p := NewParser()
	req, err := p.Parse(frame)
	require.NoError(t, err)
	require.Equal(t, uint32(42), req.Header.XID)

	args, ok := req.Args.(*GetAttrArgs)
	require.True(t, ok)
	require.Equal(t, "abc", args.Handle)
}

func TestSerializeWritesReplyFrame(t *testing.T) {
	req := &Request{
		Header: Header{XID: 7, Opcode: uint32(OpGetAttr)},
		Status: StatusOK,
		Reply:  &AttrReply{Handle: "root", Type: 1, Size: 0, Mode: 0o755},
	}

	out := netio.NewIOBuffer(64)
	require.NoError(t, req.Serialize(out))
	require.Greater(t, out.BytesConsumable(), fragmentHeaderLen)

	ok, n := IsMessageAvailable(out.Bytes())
	require.True(t, ok)
	require.Equal(t, out.BytesConsumable(), n)
}
