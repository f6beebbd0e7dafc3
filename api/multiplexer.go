// File: api/multiplexer.go
// Author: momentics <momentics@gmail.com>
//
// Abstract interface for batched readiness-query multiplexer backends
// (epoll on Linux, in-memory fake for tests). The reactor is the only
// intended caller and serializes all Add/Update/Remove invocations.

package api

import "time"

// Multiplexer is the transport library's batched "which of these handles
// are ready" facility. Implementations must support concurrent Wait from
// one goroutine while Add/Update/Remove run on another; they need not
// support concurrent mutation.
type Multiplexer interface {
	// Add registers a handle with the given interest mask.
	// Error conditions on the handle are always reported, whether or not
	// they appear in the mask.
	Add(h Handle, interest Events) error

	// Update replaces the interest mask of an already-registered handle.
	Update(h Handle, interest Events) error

	// Remove deregisters a handle entirely.
	Remove(h Handle) error

	// Wait blocks up to timeout and fills out with ready events,
	// returning the number written. A zero count with nil error means
	// the timeout elapsed quietly.
	Wait(out []ReadyEvent, timeout time.Duration) (int, error)

	// Close releases the backend resources.
	Close() error
}
