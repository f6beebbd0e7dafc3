// File: api/errors.go
// Author: momentics <momentics@gmail.com>
//
// Common error taxonomy for the library. Every waiter resolves with
// exactly one of: success, registration failure, transport error,
// timeout, cancellation, or reactor shutdown.

package api

import "fmt"

// Sentinel errors used across the library.
var (
	ErrTimeout        = fmt.Errorf("operation timed out")
	ErrCanceled       = fmt.Errorf("operation canceled")
	ErrReactorClosed  = fmt.Errorf("reactor is closed")
	ErrMuxClosed      = fmt.Errorf("multiplexer is closed")
	ErrNotSupported   = fmt.Errorf("operation not supported on this platform")
	ErrAlreadyWaiting = fmt.Errorf("another waiter is already pending for this direction")
)

// RegistrationError reports a rejected multiplexer add or update. It is
// delivered synchronously to the single waiter whose registration failed.
type RegistrationError struct {
	Handle Handle
	Op     string // "add" or "update"
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("multiplexer %s failed for handle %d: %v", e.Op, e.Handle, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// TransportError reports a handle the multiplexer flagged as errored.
// It fans out to every waiter on the affected handle with the same
// underlying cause.
type TransportError struct {
	Handle Handle
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport error on handle %d", e.Handle)
	}
	return fmt.Sprintf("transport error on handle %d: %v", e.Handle, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
