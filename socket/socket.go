//go:build linux

// File: socket/socket.go
// Author: momentics <momentics@gmail.com>
//
// Packet socket over a non-blocking descriptor. Reads and writes retry
// through the reactor: attempt, await readiness on would-block, attempt
// again.

package socket

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-srt/api"
	"github.com/momentics/hioload-srt/control"
	"github.com/momentics/hioload-srt/reactor"
)

const logArea = "socket"

// maxDatagramSize bounds pooled receive staging buffers.
const maxDatagramSize = 1500

// Socket owns one non-blocking descriptor driven through a reactor.
type Socket struct {
	fd int
	r  *reactor.Reactor
}

// FromFD wraps an existing descriptor. The descriptor must already be in
// non-blocking mode; ownership transfers to the Socket.
func FromFD(r *reactor.Reactor, fd int) *Socket {
	return &Socket{fd: fd, r: r}
}

// Handle returns the reactor handle for this socket.
func (s *Socket) Handle() api.Handle { return api.Handle(s.fd) }

// Close releases the descriptor.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	fd := s.fd
	s.fd = -1
	control.Logf(control.LogDebug, logArea, "closing fd %d", fd)
	return unix.Close(fd)
}

// ReadPacket reads one packet, suspending on the reactor while the
// descriptor has no data. A zero-length read maps to io.EOF.
func (s *Socket) ReadPacket(ctx context.Context, buf []byte) (int, error) {
	return s.readPacket(ctx, buf, 0)
}

// ReadPacketFor is ReadPacket with a per-wait timeout. api.ErrTimeout is
// terminal for the attempt.
func (s *Socket) ReadPacketFor(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	return s.readPacket(ctx, buf, timeout)
}

func (s *Socket) readPacket(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	for {
		n, err := unix.Read(s.fd, buf)
		switch {
		case err == nil && n == 0:
			return 0, io.EOF
		case err == nil:
			return n, nil
		case err == unix.EINTR:
			continue
		case err != unix.EAGAIN:
			return 0, fmt.Errorf("read fd %d: %w", s.fd, err)
		}

		if timeout > 0 {
			_, err = s.r.WaitReadableFor(ctx, s.Handle(), timeout)
		} else {
			_, err = s.r.WaitReadable(ctx, s.Handle())
		}
		if err != nil {
			return 0, err
		}
	}
}

// ReadPacketBuffer reads one packet into a pooled buffer. The caller
// owns the returned buffer and must hand it back with PutBuffer.
func (s *Socket) ReadPacketBuffer(ctx context.Context) (*bytebufferpool.ByteBuffer, error) {
	bb := bytebufferpool.Get()
	if cap(bb.B) < maxDatagramSize {
		bb.B = make([]byte, maxDatagramSize)
	}
	bb.B = bb.B[:maxDatagramSize]
	n, err := s.ReadPacket(ctx, bb.B)
	if err != nil {
		bytebufferpool.Put(bb)
		return nil, err
	}
	bb.B = bb.B[:n]
	return bb, nil
}

// PutBuffer returns a buffer obtained from ReadPacketBuffer to the pool.
func PutBuffer(bb *bytebufferpool.ByteBuffer) {
	bytebufferpool.Put(bb)
}

// WritePacket writes one whole packet, suspending on the reactor while
// the send buffer is full.
func (s *Socket) WritePacket(ctx context.Context, data []byte) (int, error) {
	return s.writePacket(ctx, data, 0)
}

// WritePacketFor is WritePacket with a per-wait timeout.
func (s *Socket) WritePacketFor(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	return s.writePacket(ctx, data, timeout)
}

func (s *Socket) writePacket(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	written := 0
	for written < len(data) {
		n, err := unix.Write(s.fd, data[written:])
		if n > 0 {
			written += n
			continue
		}
		switch {
		case err == unix.EINTR:
			continue
		case err != unix.EAGAIN && err != nil:
			return written, fmt.Errorf("write fd %d: %w", s.fd, err)
		}

		if timeout > 0 {
			_, err = s.r.WaitWritableFor(ctx, s.Handle(), timeout)
		} else {
			_, err = s.r.WaitWritable(ctx, s.Handle())
		}
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// LocalAddr formats the bound address of the descriptor.
func (s *Socket) LocalAddr() (string, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return "", fmt.Errorf("getsockname fd %d: %w", s.fd, err)
	}
	return formatSockaddr(sa)
}

// RemoteAddr formats the peer address of a connected descriptor.
func (s *Socket) RemoteAddr() (string, error) {
	sa, err := unix.Getpeername(s.fd)
	if err != nil {
		return "", fmt.Errorf("getpeername fd %d: %w", s.fd, err)
	}
	return formatSockaddr(sa)
}

func formatSockaddr(sa unix.Sockaddr) (string, error) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port), nil
	default:
		return "", fmt.Errorf("unsupported address family %T", sa)
	}
}
