package reactor

import (
	"fmt"

	"github.com/cubbit/metafsd/internal/netio"
)

// fdOf extracts the raw file descriptor backing conn, for poller
// registration. The control func's fd argument is only valid for the
// duration of the call, but that's all Add needs — epoll/kqueue copy
// it into kernel state immediately.
func fdOf(conn *netio.TCPConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}

	var fd int
	if err := raw.Control(func(sysfd uintptr) { fd = int(sysfd) }); err != nil {
		return 0, err
	}
	if fd == 0 {
		return 0, fmt.Errorf("reactor: could not determine file descriptor")
	}
	return fd, nil
}
