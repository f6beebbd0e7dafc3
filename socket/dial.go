//go:build linux

// File: socket/dial.go
// Author: momentics <momentics@gmail.com>
//
// Non-blocking connect: issue the connect syscall, suspend on the
// reactor until the descriptor turns writable, then read the verdict
// from SO_ERROR.

package socket

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-srt/api"
	"github.com/momentics/hioload-srt/control"
	"github.com/momentics/hioload-srt/reactor"
)

// Dial connects to a TCP address ("host:port", IPv4) through the
// reactor without a connect timeout.
func Dial(ctx context.Context, r *reactor.Reactor, addr string, opts Options) (*Socket, error) {
	return dial(ctx, r, addr, opts, 0)
}

// DialFor is Dial with a connect timeout enforced by the reactor wheel.
func DialFor(ctx context.Context, r *reactor.Reactor, addr string, opts Options, timeout time.Duration) (*Socket, error) {
	return dial(ctx, r, addr, opts, timeout)
}

func dial(ctx context.Context, r *reactor.Reactor, addr string, opts Options, timeout time.Duration) (*Socket, error) {
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

	err = unix.Connect(fd, sa)
	switch err {
	case nil:
		// Connected immediately (loopback fast path).
	case unix.EINPROGRESS, unix.EINTR:
		control.Logf(control.LogDebug, logArea, "connect to %s in progress on fd %d", addr, fd)
		if timeout > 0 {
			_, err = r.WaitWritableFor(ctx, api.Handle(fd), timeout)
		} else {
			_, err = r.WaitWritable(ctx, api.Handle(fd))
		}
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("connect %s: %w", addr, err)
		}
		v, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if gerr != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("connect %s: %w", addr, gerr)
		}
		if v != 0 {
			unix.Close(fd)
			return nil, fmt.Errorf("connect %s: %w", addr, unix.Errno(v))
		}
	default:
		unix.Close(fd)
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	if err := opts.apply(fd, stagePost); err != nil {
		unix.Close(fd)
		return nil, err
	}
	control.Logf(control.LogDebug, logArea, "connected to %s on fd %d", addr, fd)
	return FromFD(r, fd), nil
}

func resolveInet4(addr string) (unix.Sockaddr, error) {
	tcp, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	sa := &unix.SockaddrInet4{Port: tcp.Port}
	if ip4 := tcp.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	return sa, nil
}
