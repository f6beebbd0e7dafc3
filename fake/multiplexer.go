// File: fake/multiplexer.go
// Author: momentics <momentics@gmail.com>
//
// Scriptable in-memory multiplexer for testing the reactor without a
// real transport. Tests inject readiness and error events and script
// registration failures; the fake delivers injected events verbatim and
// leaves interest-mask filtering decisions to the reactor under test.

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-srt/api"
)

// Multiplexer implements api.Multiplexer over an injected event queue.
type Multiplexer struct {
	mu         sync.Mutex
	registered map[api.Handle]api.Events
	queue      []api.ReadyEvent
	notify     chan struct{}
	closed     bool

	addErr    error
	updateErr error

	addCalls    int
	updateCalls int
	removeCalls int
}

// NewMultiplexer creates an empty fake.
func NewMultiplexer() *Multiplexer {
	return &Multiplexer{
		registered: make(map[api.Handle]api.Events),
		notify:     make(chan struct{}, 1),
	}
}

// Add registers a handle, or fails with the scripted error.
func (m *Multiplexer) Add(h api.Handle, interest api.Events) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls++
	if m.addErr != nil {
		return m.addErr
	}
	m.registered[h] = interest
	return nil
}

// Update replaces a handle's interest mask, or fails as scripted.
func (m *Multiplexer) Update(h api.Handle, interest api.Events) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	m.registered[h] = interest
	return nil
}

// Remove deregisters a handle.
func (m *Multiplexer) Remove(h api.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeCalls++
	delete(m.registered, h)
	return nil
}

// Wait blocks up to timeout for injected events.
func (m *Multiplexer) Wait(out []api.ReadyEvent, timeout time.Duration) (int, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return 0, api.ErrMuxClosed
		}
		if len(m.queue) > 0 {
			n := copy(out, m.queue)
			m.queue = m.queue[n:]
			m.mu.Unlock()
			return n, nil
		}
		m.mu.Unlock()

		select {
		case <-m.notify:
		case <-deadline.C:
			return 0, nil
		}
	}
}

// Close marks the fake closed; subsequent Wait calls fail.
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wake()
	return nil
}

// Ready injects a readiness event for a handle.
func (m *Multiplexer) Ready(h api.Handle, events api.Events) {
	m.mu.Lock()
	m.queue = append(m.queue, api.ReadyEvent{Handle: h, Events: events})
	m.mu.Unlock()
	m.wake()
}

// Fail injects an error event carrying the given transport fault.
func (m *Multiplexer) Fail(h api.Handle, cause error) {
	m.mu.Lock()
	m.queue = append(m.queue, api.ReadyEvent{Handle: h, Events: api.EventErr, Err: cause})
	m.mu.Unlock()
	m.wake()
}

// FailAdd scripts all subsequent Add calls to fail with err (nil clears).
func (m *Multiplexer) FailAdd(err error) {
	m.mu.Lock()
	m.addErr = err
	m.mu.Unlock()
}

// FailUpdate scripts all subsequent Update calls to fail with err.
func (m *Multiplexer) FailUpdate(err error) {
	m.mu.Lock()
	m.updateErr = err
	m.mu.Unlock()
}

// Registered reports the interest mask currently held for a handle.
func (m *Multiplexer) Registered(h api.Handle) (api.Events, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.registered[h]
	return ev, ok
}

// Calls reports how many add/update/remove invocations were made.
func (m *Multiplexer) Calls() (add, update, remove int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addCalls, m.updateCalls, m.removeCalls
}

func (m *Multiplexer) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}
