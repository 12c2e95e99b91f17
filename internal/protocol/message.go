package protocol

// Header is the fixed request/reply header carried in every frame,
// mirroring the XID/Program/Version/Procedure shape of the teacher's
// legacy rpc.RPCCallMessage, trimmed to this core's own opcode set.
type Header struct {
	XID                uint32
	Opcode             uint32
	ClientProtoVersion uint32
}

// Opcode-specific argument structs, marshalled with
// github.com/rasky/go-xdr following the teacher's OpaqueAuth
// convention (`xdr:"opaque"` for variable-length byte data; strings
// and fixed-width fields need no tag).

type GetAttrArgs struct {
	Handle string
}

type LookupArgs struct {
	Dir  string
	Name string
}

type CreateArgs struct {
	Dir  string
	Name string
	Mode uint32
}

type RemoveArgs struct {
	Dir  string
	Name string
}

type MkdirArgs struct {
	Dir  string
	Name string
	Mode uint32
}

type RmdirArgs struct {
	Dir  string
	Name string
}

type RenameArgs struct {
	FromDir  string
	FromName string
	ToDir    string
	ToName   string
}

type ReadDirArgs struct {
	Dir string
}

type ReadArgs struct {
	Handle string
	Offset int64
	Length uint32
}

type WriteArgs struct {
	Handle string
	Offset int64
	Data   []byte `xdr:"opaque"`
}

// Reply payloads.

type AttrReply struct {
	Handle  string
	Type    uint32
	Size    uint64
	Mode    uint32
}

type ReadReply struct {
	Data []byte `xdr:"opaque"`
}

type DirEntryWire struct {
	Name   string
	Handle string
	Type   uint32
}

type ReadDirReply struct {
	Entries []DirEntryWire
}
