//go:build linux

// File: socket/acceptor.go
// Author: momentics <momentics@gmail.com>
//
// Listening socket driven through the reactor: accept attempts retry on
// would-block after a wait-readable suspension.

package socket

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-srt/api"
	"github.com/momentics/hioload-srt/control"
	"github.com/momentics/hioload-srt/reactor"
)

const listenBacklog = 128

// Acceptor owns a listening descriptor.
type Acceptor struct {
	fd   int
	r    *reactor.Reactor
	opts Options
}

// Listen binds and listens on a TCP address ("host:port", IPv4).
// Pre-bind options apply to the listener; post options apply to each
// accepted socket.
func Listen(r *reactor.Reactor, addr string, opts Options) (*Acceptor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	sa, err := resolveInet4(addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := opts.apply(fd, stagePreBind); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	control.Logf(control.LogNotice, logArea, "listening on %s (fd %d)", addr, fd)
	return &Acceptor{fd: fd, r: r, opts: opts}, nil
}

// Handle returns the reactor handle of the listener.
func (a *Acceptor) Handle() api.Handle { return api.Handle(a.fd) }

// Addr formats the bound address, useful after listening on port 0.
func (a *Acceptor) Addr() (string, error) {
	sa, err := unix.Getsockname(a.fd)
	if err != nil {
		return "", fmt.Errorf("getsockname fd %d: %w", a.fd, err)
	}
	return formatSockaddr(sa)
}

// Accept returns the next inbound connection, suspending on the reactor
// while none is pending.
func (a *Acceptor) Accept(ctx context.Context) (*Socket, error) {
	return a.accept(ctx, 0)
}

// AcceptFor is Accept with a per-wait timeout.
func (a *Acceptor) AcceptFor(ctx context.Context, timeout time.Duration) (*Socket, error) {
	return a.accept(ctx, timeout)
}

func (a *Acceptor) accept(ctx context.Context, timeout time.Duration) (*Socket, error) {
	for {
		nfd, _, err := unix.Accept4(a.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == nil:
			if oerr := a.opts.apply(nfd, stagePost); oerr != nil {
				unix.Close(nfd)
				return nil, oerr
			}
			control.Logf(control.LogDebug, logArea, "accepted fd %d", nfd)
			return FromFD(a.r, nfd), nil
		case err == unix.EINTR || err == unix.ECONNABORTED:
			continue
		case err != unix.EAGAIN:
			return nil, fmt.Errorf("accept fd %d: %w", a.fd, err)
		}

		if timeout > 0 {
			_, err = a.r.WaitReadableFor(ctx, a.Handle(), timeout)
		} else {
			_, err = a.r.WaitReadable(ctx, a.Handle())
		}
		if err != nil {
			return nil, err
		}
	}
}

// Close releases the listening descriptor.
func (a *Acceptor) Close() error {
	if a.fd < 0 {
		return nil
	}
	fd := a.fd
	a.fd = -1
	return unix.Close(fd)
}
