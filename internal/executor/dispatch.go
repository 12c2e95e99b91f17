package executor

import (
	"context"
	"errors"

	"github.com/cubbit/metafsd/internal/contentstore"
	"github.com/cubbit/metafsd/internal/metastore"
	"github.com/cubbit/metafsd/internal/protocol"
)

// dispatch fills in req.Status/req.Reply by running the
// opcode-specific operation against the metadata and content stores.
// It never returns an error itself: backend failures are translated
// into a wire Status instead, since a Request is always carried to
// completion through the normal response path (spec.md §4.5) even
// when the operation it asked for failed.
func (e *Executor) dispatch(req *protocol.Request) {
	ctx := context.Background()
	op := protocol.Opcode(req.Header.Opcode)

	switch op {
	case protocol.OpNull:
		req.Status = protocol.StatusOK

	case protocol.OpGetAttr:
		args, _ := req.Args.(*protocol.GetAttrArgs)
		attr, err := e.meta.GetAttr(ctx, metastore.Handle(args.Handle))
		req.Status, req.Reply = attrReply(attr, err)

	case protocol.OpLookup:
		args, _ := req.Args.(*protocol.LookupArgs)
		attr, err := e.meta.Lookup(ctx, metastore.Handle(args.Dir), args.Name)
		req.Status, req.Reply = attrReply(attr, err)

	case protocol.OpCreate:
		args, _ := req.Args.(*protocol.CreateArgs)
		attr, err := e.meta.Create(ctx, metastore.Handle(args.Dir), args.Name, args.Mode)
		req.Status, req.Reply = attrReply(attr, err)

	case protocol.OpRemove:
		args, _ := req.Args.(*protocol.RemoveArgs)
		h, err := e.meta.Lookup(ctx, metastore.Handle(args.Dir), args.Name)
		if err == nil {
			err = e.meta.Remove(ctx, metastore.Handle(args.Dir), args.Name)
			if err == nil {
				err = e.blobs.Delete(ctx, h.Handle)
			}
		}
		req.Status = statusFor(err)

	case protocol.OpMkdir:
		args, _ := req.Args.(*protocol.MkdirArgs)
		attr, err := e.meta.Mkdir(ctx, metastore.Handle(args.Dir), args.Name, args.Mode)
		req.Status, req.Reply = attrReply(attr, err)

	case protocol.OpRmdir:
		args, _ := req.Args.(*protocol.RmdirArgs)
		err := e.meta.Rmdir(ctx, metastore.Handle(args.Dir), args.Name)
		req.Status = statusFor(err)

	case protocol.OpRename:
		args, _ := req.Args.(*protocol.RenameArgs)
		err := e.meta.Rename(ctx, metastore.Handle(args.FromDir), args.FromName, metastore.Handle(args.ToDir), args.ToName)
		req.Status = statusFor(err)

	case protocol.OpReadDir:
		args, _ := req.Args.(*protocol.ReadDirArgs)
		entries, err := e.meta.ReadDir(ctx, metastore.Handle(args.Dir))
		if err != nil {
			req.Status = statusFor(err)
			break
		}
		wire := make([]protocol.DirEntryWire, len(entries))
		for i, ent := range entries {
			wire[i] = protocol.DirEntryWire{
				Name:   ent.Name,
				Handle: string(ent.Handle),
				Type:   uint32(ent.Type),
			}
		}
		req.Status = protocol.StatusOK
		req.Reply = &protocol.ReadDirReply{Entries: wire}

	case protocol.OpRead:
		args, _ := req.Args.(*protocol.ReadArgs)
		data, err := e.blobs.Read(ctx, metastore.Handle(args.Handle), args.Offset, int(args.Length))
		if err != nil {
			req.Status = statusFor(err)
			break
		}
		req.Status = protocol.StatusOK
		req.Reply = &protocol.ReadReply{Data: data}

	case protocol.OpWrite:
		args, _ := req.Args.(*protocol.WriteArgs)
		err := e.blobs.Write(ctx, metastore.Handle(args.Handle), args.Offset, args.Data)
		req.Status = statusFor(err)

	default:
		req.Status = protocol.StatusInval
	}
}

func attrReply(attr metastore.Attr, err error) (uint32, any) {
	if err != nil {
		return statusFor(err), nil
	}
	return protocol.StatusOK, &protocol.AttrReply{
		Handle: string(attr.Handle),
		Type:   uint32(attr.Type),
		Size:   attr.Size,
		Mode:   attr.Mode,
	}
}

// statusFor maps a backend error to the wire status closest in
// meaning, defaulting to StatusIO for anything the backends didn't
// classify themselves.
func statusFor(err error) uint32 {
	switch {
	case err == nil:
		return protocol.StatusOK
	case errors.Is(err, metastore.ErrNotFound), errors.Is(err, contentstore.ErrNotFound):
		return protocol.StatusNoEnt
	case errors.Is(err, metastore.ErrExists):
		return protocol.StatusExist
	case errors.Is(err, metastore.ErrNotDir):
		return protocol.StatusNotDir
	case errors.Is(err, metastore.ErrIsDir):
		return protocol.StatusIsDir
	case errors.Is(err, metastore.ErrNotEmpty):
		return protocol.StatusNotEmpty
	case errors.Is(err, metastore.ErrInvalidName):
		return protocol.StatusInval
	default:
		return protocol.StatusIO
	}
}
