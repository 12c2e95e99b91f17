//go:build darwin
// +build darwin

package reactor

import "golang.org/x/sys/unix"

// kqueuePoller is the BSD/Darwin Poller backend, adapted from the
// retrieved fast-server package's KqueuePoller with a second
// EVFILT_WRITE registration when write-interest is requested.
type kqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
}

func newPlatformPoller() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{
		kqfd:   kqfd,
		events: make([]unix.Kevent_t, 1024),
	}, nil
}

func (p *kqueuePoller) change(fd int, writeInterest bool) error {
	evs := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}
	writeFlags := uint16(unix.EV_DELETE)
	if writeInterest {
		writeFlags = unix.EV_ADD | unix.EV_ENABLE
	}
	evs = append(evs, unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_WRITE,
		Flags:  writeFlags,
	})
	_, err := unix.Kevent(p.kqfd, evs, nil, nil)
	return err
}

func (p *kqueuePoller) Add(fd int, writeInterest bool) error {
	return p.change(fd, writeInterest)
}

func (p *kqueuePoller) Modify(fd int, writeInterest bool) error {
	return p.change(fd, writeInterest)
}

func (p *kqueuePoller) Remove(fd int) error {
	evs := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(p.kqfd, evs, nil, nil)
	return err
}

func (p *kqueuePoller) Wait(timeoutMs int) ([]Event, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}

	n, err := unix.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil && err != unix.EINTR {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	byFd := make(map[int]*Event, n)
	for i := 0; i < n; i++ {
		raw := p.events[i]
		fd := int(raw.Ident)
		ev := byFd[fd]
		if ev == nil {
			ev = &Event{Fd: fd}
			byFd[fd] = ev
		}
		switch raw.Filter {
		case unix.EVFILT_READ:
			ev.Readable = true
		case unix.EVFILT_WRITE:
			ev.Writable = true
		}
		if raw.Flags&unix.EV_EOF != 0 {
			ev.Error = true
		}
	}

	out := make([]Event, 0, len(byFd))
	for _, ev := range byFd {
		out = append(out, *ev)
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}
