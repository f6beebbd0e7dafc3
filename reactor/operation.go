// File: reactor/operation.go
// Author: momentics <momentics@gmail.com>
//
// Per-handle bookkeeping: at most one pending read waiter and one
// pending write waiter, plus the combined interest mask currently
// registered with the multiplexer. Mutated only on the strand.

package reactor

import "github.com/momentics/hioload-srt/api"

// completionHandler is a waiter's single-shot continuation. It is moved
// out of its slot at the instant it is invoked, so double invocation is
// structurally impossible.
type completionHandler func(err error, triggered api.Events)

type eventOperation struct {
	readHandler  completionHandler
	writeHandler completionHandler
	events       api.Events // union of interests implied by present handlers
}

func (op *eventOperation) empty() bool {
	return op.readHandler == nil && op.writeHandler == nil
}

// set stores a handler for one direction and folds the direction into
// the interest mask.
func (op *eventOperation) set(dir api.Events, h completionHandler) {
	if dir&api.EventRead != 0 {
		op.readHandler = h
		op.events |= api.EventRead
	}
	if dir&api.EventWrite != 0 {
		op.writeHandler = h
		op.events |= api.EventWrite
	}
}

// has reports whether a handler is present for the direction.
func (op *eventOperation) has(dir api.Events) bool {
	if dir&api.EventRead != 0 {
		return op.readHandler != nil
	}
	return op.writeHandler != nil
}

// take moves the direction's handler out of its slot, clearing the
// interest bit. Returns nil if no handler was present.
func (op *eventOperation) take(dir api.Events) completionHandler {
	var h completionHandler
	if dir&api.EventRead != 0 && op.readHandler != nil {
		h = op.readHandler
		op.readHandler = nil
		op.events &^= api.EventRead
	}
	if dir&api.EventWrite != 0 && op.writeHandler != nil {
		h = op.writeHandler
		op.writeHandler = nil
		op.events &^= api.EventWrite
	}
	return h
}

// timerID keys a timing wheel entry: the handle shifted left one bit,
// with the low bit distinguishing write timeouts from read timeouts.
// A handle may therefore carry two independently cancellable timeouts.
type timerID uint64

func makeTimerID(h api.Handle, dir api.Events) timerID {
	id := timerID(uint64(h) << 1)
	if dir&api.EventWrite != 0 {
		id |= 1
	}
	return id
}

func (id timerID) handle() api.Handle { return api.Handle(id >> 1) }

func (id timerID) direction() api.Events {
	if id&1 != 0 {
		return api.EventWrite
	}
	return api.EventRead
}
