// Package reactor implements the readiness multiplexer, the listening
// socket, and the connection manager / event dispatch table that together
// form the event loop's core.
package reactor

import (
	"golang.org/x/sys/unix"
)

// Event reports readiness for one registered fd. Edge-triggered: the owner
// must drain the fd to exhaustion (WouldBlock) before expecting another
// Readable event for it.
type Event struct {
	FD       int
	Readable bool
	Writable bool
	Error    bool
	Hangup   bool
}

// Multiplexer wraps the OS edge-triggered readiness interface (epoll on
// Linux).
type Multiplexer struct {
	epfd int
}

// NewMultiplexer creates a fresh epoll instance.
func NewMultiplexer() (*Multiplexer, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &Multiplexer{epfd: fd}, nil
}

func interestMask(readable, writable bool) uint32 {
	var mask uint32 = unix.EPOLLET // edge-triggered
	if readable {
		mask |= unix.EPOLLIN
	}
	if writable {
		mask |= unix.EPOLLOUT
	}
	return mask
}

// Register adds fd with the given interest. Registering an fd that is
// already present fails.
func (m *Multiplexer) Register(fd int, readable, writable bool) error {
	ev := unix.EpollEvent{Events: interestMask(readable, writable), Fd: int32(fd)}
	return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Modify replaces fd's registered interest set.
func (m *Multiplexer) Modify(fd int, readable, writable bool) error {
	ev := unix.EpollEvent{Events: interestMask(readable, writable), Fd: int32(fd)}
	return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Unregister removes fd. Idempotent on already-closed fds: any error from
// the underlying EpollCtl is swallowed.
func (m *Multiplexer) Unregister(fd int) {
	_ = unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks up to timeoutMS (or forever, if negative) and returns the
// batch of ready events. A signal interruption yields zero events, not an
// error.
func (m *Multiplexer) Wait(timeoutMS int, buf []unix.EpollEvent) ([]Event, error) {
	n, err := unix.EpollWait(m.epfd, buf, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		e := buf[i]
		events = append(events, Event{
			FD:       int(e.Fd),
			Readable: e.Events&unix.EPOLLIN != 0,
			Writable: e.Events&unix.EPOLLOUT != 0,
			Error:    e.Events&unix.EPOLLERR != 0,
			Hangup:   e.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
		})
	}
	return events, nil
}

// Close releases the epoll instance.
func (m *Multiplexer) Close() error {
	return unix.Close(m.epfd)
}
