//go:build linux

// File: transport/epoll_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll implementation of api.Multiplexer. Level-triggered, so a
// handle keeps reporting ready until the socket layer drains it, which
// matches the reactor's attempt-await-retry contract.

package transport

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-srt/api"
)

// EpollMux multiplexes readiness over an epoll instance.
type EpollMux struct {
	epfd   int
	events []unix.EpollEvent
}

// NewEpollMux creates an epoll instance sized for maxEvents per wait.
func NewEpollMux(maxEvents int) (*EpollMux, error) {
	if maxEvents <= 0 {
		maxEvents = 128
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &EpollMux{
		epfd:   epfd,
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

// Add registers a handle with the given interest mask.
func (m *EpollMux) Add(h api.Handle, interest api.Events) error {
	ev := unix.EpollEvent{Events: toEpoll(interest), Fd: int32(h)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, int(h), &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// Update replaces the interest mask of a registered handle.
func (m *EpollMux) Update(h api.Handle, interest api.Events) error {
	ev := unix.EpollEvent{Events: toEpoll(interest), Fd: int32(h)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, int(h), &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// Remove deregisters a handle.
func (m *EpollMux) Remove(h api.Handle) error {
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, int(h), nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Wait blocks up to timeout and maps triggered epoll events back into
// ReadyEvents. EPOLLERR and EPOLLHUP both surface as EventErr, with the
// socket-level cause recovered through SO_ERROR where available.
func (m *EpollMux) Wait(out []api.ReadyEvent, timeout time.Duration) (int, error) {
	ms := int(timeout / time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	n, err := unix.EpollWait(m.epfd, m.events, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil // interrupted by signal, not an error
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		ev := m.events[i]
		re := api.ReadyEvent{Handle: api.Handle(ev.Fd)}
		if ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
			re.Events |= api.EventRead
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			re.Events |= api.EventWrite
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			re.Events |= api.EventErr
			re.Err = sockError(int(ev.Fd))
		}
		out[i] = re
	}
	return n, nil
}

// Close releases the epoll file descriptor.
func (m *EpollMux) Close() error {
	return unix.Close(m.epfd)
}

func toEpoll(interest api.Events) uint32 {
	var ev uint32
	if interest&api.EventRead != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&api.EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// sockError recovers the pending socket error, if any. Falls back to a
// generic description for non-socket descriptors.
func sockError(fd int) error {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil || v == 0 {
		return fmt.Errorf("peer hung up or descriptor errored")
	}
	return unix.Errno(v)
}
