// File: reactor/poll.go
// Author: momentics <momentics@gmail.com>
//
// Dedicated poll goroutine. It only ever calls the multiplexer's bounded
// wait and posts the results (plus a wheel tick) to the strand; it never
// mutates shared state itself. The pending counter is read here without
// the strand purely as a poll-versus-sleep hint.

package reactor

import (
	"time"

	"github.com/momentics/hioload-srt/api"
	"github.com/momentics/hioload-srt/control"
)

func (r *Reactor) pollLoop() {
	defer close(r.pollDone)

	events := make([]api.ReadyEvent, r.cfg.MaxEvents)
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		// Nothing registered: nap instead of hammering the multiplexer.
		// The hint may be stale; at worst one registration waits a poll
		// bound before its first chance to resolve. The wheel still ticks
		// every cycle, so its clock never accumulates a stale backlog
		// that a later catch-up would sweep into fresh entries.
		if r.pendingCount.Load() == 0 {
			time.Sleep(r.cfg.PollBound)
			r.strand.Post(r.expireTimers)
			continue
		}

		n, err := r.mux.Wait(events[:], r.cfg.PollBound)
		if err != nil {
			control.Logf(control.LogWarning, logArea, "multiplexer wait: %v", err)
			r.strand.Post(r.expireTimers)
			time.Sleep(r.cfg.PollBound)
			continue
		}

		batch := make([]api.ReadyEvent, n)
		copy(batch, events[:n])

		r.strand.Post(func() {
			// Readiness first: a handle that became ready inside this
			// cycle must win over its own expiring timeout.
			r.handleReady(batch)
			r.expireTimers()
		})
	}
}
