//go:build !linux

// File: transport/mux_stub.go
// Author: momentics <momentics@gmail.com>
//
// Non-Linux stub. The epoll backend is Linux only; other platforms can
// still run the reactor against a custom api.Multiplexer.

package transport

import (
	"time"

	"github.com/momentics/hioload-srt/api"
)

// EpollMux is unavailable on this platform.
type EpollMux struct{}

// NewEpollMux reports the backend as unsupported.
func NewEpollMux(maxEvents int) (*EpollMux, error) {
	return nil, api.ErrNotSupported
}

func (m *EpollMux) Add(h api.Handle, interest api.Events) error    { return api.ErrNotSupported }
func (m *EpollMux) Update(h api.Handle, interest api.Events) error { return api.ErrNotSupported }
func (m *EpollMux) Remove(h api.Handle) error                      { return api.ErrNotSupported }
func (m *EpollMux) Wait(out []api.ReadyEvent, timeout time.Duration) (int, error) {
	return 0, api.ErrNotSupported
}
func (m *EpollMux) Close() error { return nil }
