// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Reactor core: registration, resolution and cancellation of readiness
// waiters. All bookkeeping mutations run on a single strand; the poll
// goroutine (poll.go) posts work into it and never touches the map or
// the wheel directly.

package reactor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-srt/api"
	"github.com/momentics/hioload-srt/control"
	"github.com/momentics/hioload-srt/core/timing"
	"github.com/momentics/hioload-srt/internal/concurrency"
)

const logArea = "reactor"

// Config carries reactor tuning knobs.
type Config struct {
	// WheelSize is the slot count of the timeout wheel.
	WheelSize int
	// TickInterval is the wheel granularity. Timeouts round up to it.
	TickInterval time.Duration
	// PollBound caps each multiplexer wait, and doubles as the idle
	// sleep when nothing is registered.
	PollBound time.Duration
	// MaxEvents sizes the batch collected per multiplexer wait.
	MaxEvents int
}

// DefaultConfig returns the standard tuning: a 256-slot wheel at 100ms
// granularity and a 100ms poll bound.
func DefaultConfig() *Config {
	return &Config{
		WheelSize:    256,
		TickInterval: 100 * time.Millisecond,
		PollBound:    100 * time.Millisecond,
		MaxEvents:    128,
	}
}

func (c *Config) sanitize() {
	if c.WheelSize <= 0 {
		c.WheelSize = 256
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.PollBound <= 0 {
		c.PollBound = c.TickInterval
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = 128
	}
}

// Reactor owns one multiplexer, the pending-operations map and the
// timing wheel. Construct it once at process start and share it by
// reference among sockets and acceptors.
type Reactor struct {
	cfg    Config
	mux    api.Multiplexer
	strand *concurrency.Strand
	wheel  *timing.Wheel[timerID]

	// pending and wheel are touched only on the strand.
	pending map[api.Handle]*eventOperation

	// pendingCount mirrors len(pending) for the poll goroutine's
	// poll-versus-sleep decision. Advisory only.
	pendingCount atomic.Int64

	closed   atomic.Bool
	stop     chan struct{}
	pollDone chan struct{}

	probeName string
}

// reactorSeq distinguishes the debug probes of coexisting reactors.
var reactorSeq atomic.Uint64

type outcome struct {
	events api.Events
	err    error
}

// New starts a reactor over the given multiplexer. A nil cfg selects
// DefaultConfig.
func New(mux api.Multiplexer, cfg *Config) *Reactor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.sanitize()

	r := &Reactor{
		cfg:      c,
		mux:      mux,
		strand:   concurrency.NewStrand(),
		wheel:    timing.NewWheel[timerID](c.WheelSize, c.TickInterval),
		pending:  make(map[api.Handle]*eventOperation),
		stop:     make(chan struct{}),
		pollDone: make(chan struct{}),
	}
	r.probeName = fmt.Sprintf("reactor.%d.pending", reactorSeq.Add(1))
	control.DefaultProbes().RegisterProbe(r.probeName, func() any {
		return r.PendingOps()
	})
	go r.pollLoop()
	control.Logf(control.LogNotice, logArea, "reactor started (wheel=%d slots, tick=%s, poll bound=%s)",
		c.WheelSize, c.TickInterval, c.PollBound)
	return r
}

// PendingOps returns the number of handles with at least one waiter.
// The value is a snapshot and may be stale by the time it is read.
func (r *Reactor) PendingOps() int {
	return int(r.pendingCount.Load())
}

// WaitReadable suspends until the handle is readable, errored, or ctx is
// canceled. Returns the triggered event mask on success.
func (r *Reactor) WaitReadable(ctx context.Context, h api.Handle) (api.Events, error) {
	return r.wait(ctx, h, api.EventRead, 0)
}

// WaitWritable suspends until the handle is writable, errored, or ctx is
// canceled.
func (r *Reactor) WaitWritable(ctx context.Context, h api.Handle) (api.Events, error) {
	return r.wait(ctx, h, api.EventWrite, 0)
}

// WaitReadableFor is WaitReadable with a timeout. Whichever of readiness,
// transport error, timeout or cancellation occurs first wins; the losing
// paths are guaranteed not to fire afterward.
func (r *Reactor) WaitReadableFor(ctx context.Context, h api.Handle, timeout time.Duration) (api.Events, error) {
	return r.wait(ctx, h, api.EventRead, timeout)
}

// WaitWritableFor is WaitWritable with a timeout.
func (r *Reactor) WaitWritableFor(ctx context.Context, h api.Handle, timeout time.Duration) (api.Events, error) {
	return r.wait(ctx, h, api.EventWrite, timeout)
}

func (r *Reactor) wait(ctx context.Context, h api.Handle, dir api.Events, timeout time.Duration) (api.Events, error) {
	if r.closed.Load() {
		return 0, api.ErrReactorClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, api.ErrCanceled
	}

	// Buffered so the resolving side never blocks on the strand.
	ch := make(chan outcome, 1)
	handler := func(err error, triggered api.Events) {
		ch <- outcome{events: triggered, err: err}
	}

	posted := r.strand.Post(func() {
		if timeout > 0 {
			r.wheel.Add(makeTimerID(h, dir), timeout)
		}
		r.addOp(h, dir, timeout > 0, handler)
	})
	if !posted {
		return 0, api.ErrReactorClosed
	}

	select {
	case out := <-ch:
		return out.events, out.err
	case <-ctx.Done():
		// Fire the idempotent cleanup and then collect whichever outcome
		// won the race: either the cleanup resolves us with ErrCanceled,
		// or a readiness/error/timeout resolution already queued one.
		// Either way exactly one outcome arrives; shutdown fan-out covers
		// the case where the strand refused the post.
		r.strand.Post(func() {
			r.cancelOp(h, dir)
		})
		out := <-ch
		return out.events, out.err
	}
}

// addOp runs on the strand. timed tells it whether a wheel entry was
// inserted for this waiter, so failure paths can roll it back.
func (r *Reactor) addOp(h api.Handle, dir api.Events, timed bool, handler completionHandler) {
	fail := func(err error) {
		if timed {
			r.wheel.Remove(makeTimerID(h, dir))
		}
		handler(err, 0)
	}

	if r.closed.Load() {
		fail(api.ErrReactorClosed)
		return
	}

	op, ok := r.pending[h]
	if !ok {
		if err := r.mux.Add(h, dir); err != nil {
			control.Logf(control.LogError, logArea, "failed to add handle %d to multiplexer: %v", h, err)
			fail(&api.RegistrationError{Handle: h, Op: "add", Err: err})
			return
		}
		op = &eventOperation{}
		op.set(dir, handler)
		r.pending[h] = op
		r.pendingCount.Add(1)
		control.Logf(control.LogDebug, logArea, "handle %d added (interest=%s)", h, op.events)
		return
	}

	if op.has(dir) {
		// One waiter per direction. Rejecting the newcomer keeps the
		// established waiter's outcome unambiguous.
		fail(api.ErrAlreadyWaiting)
		return
	}

	if err := r.mux.Update(h, op.events|dir); err != nil {
		control.Logf(control.LogError, logArea, "failed to update handle %d in multiplexer: %v", h, err)
		fail(&api.RegistrationError{Handle: h, Op: "update", Err: err})
		return
	}
	op.set(dir, handler)
	control.Logf(control.LogDebug, logArea, "handle %d updated (interest=%s)", h, op.events)
}

// handleReady runs on the strand for each batch the poll loop collects.
func (r *Reactor) handleReady(events []api.ReadyEvent) {
	for _, ev := range events {
		op, ok := r.pending[ev.Handle]
		if !ok {
			// Waiter resolved or canceled before this batch was processed.
			continue
		}

		// Error resolution dominates any simultaneously-set readiness
		// bits: both directions fan out the same transport error and the
		// handle's bookkeeping is torn down.
		if ev.Events&api.EventErr != 0 {
			terr := &api.TransportError{Handle: ev.Handle, Err: ev.Err}
			control.Logf(control.LogError, logArea, "handle %d errored: %v (events=%s)", ev.Handle, terr.Err, ev.Events)

			rh := op.take(api.EventRead)
			wh := op.take(api.EventWrite)
			r.dropOp(ev.Handle)
			if rh != nil {
				rh(terr, ev.Events)
			}
			if wh != nil {
				wh(terr, ev.Events)
			}
			continue
		}

		var rh, wh completionHandler
		if ev.Events&api.EventRead != 0 {
			if rh = op.take(api.EventRead); rh != nil {
				r.wheel.Remove(makeTimerID(ev.Handle, api.EventRead))
			}
		}
		if ev.Events&api.EventWrite != 0 {
			if wh = op.take(api.EventWrite); wh != nil {
				r.wheel.Remove(makeTimerID(ev.Handle, api.EventWrite))
			}
		}

		if op.empty() {
			r.dropOp(ev.Handle)
		} else if rh != nil || wh != nil {
			if err := r.mux.Update(ev.Handle, op.events); err != nil {
				control.Logf(control.LogWarning, logArea, "interest downgrade failed for handle %d: %v", ev.Handle, err)
			}
		}

		if rh != nil {
			control.Logf(control.LogDebug, logArea, "handle %d readable", ev.Handle)
			rh(nil, ev.Events)
		}
		if wh != nil {
			control.Logf(control.LogDebug, logArea, "handle %d writable", ev.Handle)
			wh(nil, ev.Events)
		}
	}
}

// expireTimers runs on the strand once per poll cycle, whether or not a
// readiness batch preceded it.
func (r *Reactor) expireTimers() {
	for _, id := range r.wheel.Tick() {
		control.Logf(control.LogDebug, logArea, "handle %d %s wait timed out", id.handle(), id.direction())
		r.cleanupOp(id.handle(), id.direction(), api.ErrTimeout)
	}
}

// cancelOp runs on the strand when a waiter's context fires.
func (r *Reactor) cancelOp(h api.Handle, dir api.Events) {
	r.cleanupOp(h, dir, api.ErrCanceled)
}

// cleanupOp resolves one direction's waiter with cause, then updates or
// erases the handle's bookkeeping. If the slot is already empty the
// waiter won its race through another path and this is a silent no-op.
func (r *Reactor) cleanupOp(h api.Handle, dir api.Events, cause error) {
	op, ok := r.pending[h]
	if !ok {
		return
	}
	handler := op.take(dir)
	if handler == nil {
		return
	}
	r.wheel.Remove(makeTimerID(h, dir))

	if op.empty() {
		r.dropOp(h)
	} else {
		if err := r.mux.Update(h, op.events); err != nil {
			control.Logf(control.LogWarning, logArea, "interest downgrade failed for handle %d: %v", h, err)
		}
	}
	handler(cause, 0)
}

// dropOp erases a handle's bookkeeping: both wheel entries, the
// multiplexer registration and the map entry. Strand only.
func (r *Reactor) dropOp(h api.Handle) {
	r.wheel.Remove(makeTimerID(h, api.EventRead))
	r.wheel.Remove(makeTimerID(h, api.EventWrite))
	if err := r.mux.Remove(h); err != nil {
		control.Logf(control.LogWarning, logArea, "multiplexer remove failed for handle %d: %v", h, err)
	}
	delete(r.pending, h)
	r.pendingCount.Add(-1)
	control.Logf(control.LogDebug, logArea, "handle %d deregistered", h)
}

// Shutdown stops the poll loop, fails every still-pending waiter with
// ErrReactorClosed, closes the multiplexer and joins the strand. Safe to
// call more than once.
func (r *Reactor) Shutdown() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	control.Logf(control.LogNotice, logArea, "reactor shutting down")

	close(r.stop)
	<-r.pollDone

	r.strand.Post(func() {
		for h, op := range r.pending {
			rh := op.take(api.EventRead)
			wh := op.take(api.EventWrite)
			r.wheel.Remove(makeTimerID(h, api.EventRead))
			r.wheel.Remove(makeTimerID(h, api.EventWrite))
			if err := r.mux.Remove(h); err != nil {
				control.Logf(control.LogDebug, logArea, "multiplexer remove failed for handle %d: %v", h, err)
			}
			delete(r.pending, h)
			r.pendingCount.Add(-1)
			if rh != nil {
				rh(api.ErrReactorClosed, 0)
			}
			if wh != nil {
				wh(api.ErrReactorClosed, 0)
			}
		}
	})
	r.strand.Close()

	if err := r.mux.Close(); err != nil {
		control.Logf(control.LogWarning, logArea, "multiplexer close: %v", err)
	}
	control.DefaultProbes().UnregisterProbe(r.probeName)
	control.Logf(control.LogNotice, logArea, "reactor shut down")
}

// snapshot collects strand-owned state for tests and probes.
func (r *Reactor) snapshot() (pendingHandles, wheelEntries int, err error) {
	type state struct {
		pending int
		wheel   int
	}
	ch := make(chan state, 1)
	if !r.strand.Post(func() {
		ch <- state{pending: len(r.pending), wheel: r.wheel.Len()}
	}) {
		return 0, 0, fmt.Errorf("snapshot: %w", api.ErrReactorClosed)
	}
	st := <-ch
	return st.pending, st.wheel, nil
}
