package protocol

import (
	"bytes"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// decodeHeader reads the fixed Header off the front of body, returning
// the remaining bytes (the opcode-specific argument payload).
func decodeHeader(body []byte) (Header, []byte, error) {
	var h Header
	r := bytes.NewReader(body)
	n, err := xdr.Unmarshal(r, &h)
	if err != nil {
		return Header{}, nil, fmt.Errorf("protocol: decode header: %w", err)
	}
	return h, body[n:], nil
}

// newArgs returns a pointer to the zero value of the argument struct
// for opcode, or nil for opcodes that carry no arguments (NULL).
func newArgs(op Opcode) any {
	switch op {
	case OpGetAttr:
		return &GetAttrArgs{}
	case OpLookup:
		return &LookupArgs{}
	case OpCreate:
		return &CreateArgs{}
	case OpRemove:
		return &RemoveArgs{}
	case OpMkdir:
		return &MkdirArgs{}
	case OpRmdir:
		return &RmdirArgs{}
	case OpRename:
		return &RenameArgs{}
	case OpReadDir:
		return &ReadDirArgs{}
	case OpRead:
		return &ReadArgs{}
	case OpWrite:
		return &WriteArgs{}
	default:
		return nil
	}
}

func decodeArgs(op Opcode, body []byte) (any, error) {
	args := newArgs(op)
	if args == nil {
		return nil, nil
	}
	_, err := xdr.Unmarshal(bytes.NewReader(body), args)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode %s args: %w", op, err)
	}
	return args, nil
}

// encodeReply marshals a reply header plus payload into a single
// fragment, matching the teacher's MakeSuccessReply: length-prefix
// fragment header followed by the XDR-encoded header and body.
func encodeReply(h Header, status uint32, payload any) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &h); err != nil {
		return nil, fmt.Errorf("protocol: marshal header: %w", err)
	}
	if _, err := xdr.Marshal(&buf, &status); err != nil {
		return nil, fmt.Errorf("protocol: marshal status: %w", err)
	}
	if payload != nil {
		if _, err := xdr.Marshal(&buf, payload); err != nil {
			return nil, fmt.Errorf("protocol: marshal reply payload: %w", err)
		}
	}

	body := buf.Bytes()
	out := make([]byte, fragmentHeaderLen+len(body))
	PutFragmentHeader(out, len(body))
	copy(out[fragmentHeaderLen:], body)
	return out, nil
}
