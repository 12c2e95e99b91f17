//go:build linux
// +build linux

package reactor

import "golang.org/x/sys/unix"

// epollPoller is the Linux Poller backend, extending the retrieved
// fast-server package's EpollPoller with EPOLLOUT write-interest
// tracking and level-triggered EPOLLRDHUP peer-shutdown detection.
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

func newPlatformPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, 1024),
	}, nil
}

func eventMask(writeInterest bool) uint32 {
	mask := uint32(unix.EPOLLIN) | uint32(unix.EPOLLRDHUP)
	if writeInterest {
		mask |= uint32(unix.EPOLLOUT)
	}
	return mask
}

func (p *epollPoller) Add(fd int, writeInterest bool) error {
	ev := unix.EpollEvent{Events: eventMask(writeInterest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Modify(fd int, writeInterest bool) error {
	ev := unix.EpollEvent{Events: eventMask(writeInterest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(timeoutMs int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil && err != unix.EINTR {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		raw := p.events[i]
		out = append(out, Event{
			Fd:       int(raw.Fd),
			Readable: raw.Events&uint32(unix.EPOLLIN) != 0,
			Writable: raw.Events&uint32(unix.EPOLLOUT) != 0,
			Error:    raw.Events&(uint32(unix.EPOLLERR)|uint32(unix.EPOLLRDHUP)|uint32(unix.EPOLLHUP)) != 0,
		})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
