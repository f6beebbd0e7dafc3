// File: api/events.go
// Author: momentics <momentics@gmail.com>
//
// Readiness event types shared by the reactor, the multiplexer backends
// and the socket layer.

package api

import "strings"

// Handle identifies a transport socket registered with a multiplexer.
// On the epoll backend this is a plain file descriptor.
type Handle int

// InvalidHandle is the zero-value-adjacent sentinel for "no socket".
const InvalidHandle Handle = -1

// Events is a bitmask of readiness conditions for a single handle.
type Events uint32

const (
	// EventRead indicates the handle has data to read (or a pending accept).
	EventRead Events = 0x1
	// EventWrite indicates the handle can accept writes without blocking.
	EventWrite Events = 0x2
	// EventErr indicates the transport flagged the handle as errored.
	// Error delivery is unconditional: backends report it regardless of
	// the registered interest mask.
	EventErr Events = 0x4
)

// String renders the mask as "read|write|err" for diagnostics.
func (e Events) String() string {
	if e == 0 {
		return "none"
	}
	parts := make([]string, 0, 3)
	if e&EventRead != 0 {
		parts = append(parts, "read")
	}
	if e&EventWrite != 0 {
		parts = append(parts, "write")
	}
	if e&EventErr != 0 {
		parts = append(parts, "err")
	}
	return strings.Join(parts, "|")
}

// ReadyEvent is one (handle, triggered-bitmask) pair reported by a
// multiplexer Wait call. Err carries the transport-specific fault when
// EventErr is set; it may be nil if the backend cannot recover a cause.
type ReadyEvent struct {
	Handle Handle
	Events Events
	Err    error
}
