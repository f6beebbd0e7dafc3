// File: reactor/reactor_test.go
// Author: momentics <momentics@gmail.com>

package reactor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/momentics/hioload-srt/api"
	"github.com/momentics/hioload-srt/control"
	"github.com/momentics/hioload-srt/fake"
)

// leakCheck registers a goroutine leak check that runs after the
// reactor's own cleanup has shut everything down.
func leakCheck(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { goleak.VerifyNone(t) })
}

func newTestReactor(t *testing.T) (*Reactor, *fake.Multiplexer) {
	t.Helper()
	leakCheck(t)
	mux := fake.NewMultiplexer()
	r := New(mux, &Config{
		WheelSize:    8,
		TickInterval: 10 * time.Millisecond,
		PollBound:    5 * time.Millisecond,
		MaxEvents:    16,
	})
	t.Cleanup(r.Shutdown)
	return r, mux
}

type waitResult struct {
	events api.Events
	err    error
}

func waitAsync(wait func() (api.Events, error)) <-chan waitResult {
	ch := make(chan waitResult, 1)
	go func() {
		ev, err := wait()
		ch <- waitResult{events: ev, err: err}
	}()
	return ch
}

func requireNoResult(t *testing.T, ch <-chan waitResult, d time.Duration) {
	t.Helper()
	select {
	case res := <-ch:
		t.Fatalf("waiter resolved unexpectedly: events=%s err=%v", res.events, res.err)
	case <-time.After(d):
	}
}

func requireResult(t *testing.T, ch <-chan waitResult) waitResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not resolve")
		return waitResult{}
	}
}

func requireEmptyBookkeeping(t *testing.T, r *Reactor) {
	t.Helper()
	pending, wheel, err := r.snapshot()
	require.NoError(t, err)
	require.Zero(t, pending, "pending map must be empty")
	require.Zero(t, wheel, "wheel must be empty")
	require.Zero(t, r.PendingOps())
}

func TestWaitReadableResolvesOnReadiness(t *testing.T) {
	r, mux := newTestReactor(t)

	const h = api.Handle(5)
	ch := waitAsync(func() (api.Events, error) { return r.WaitReadable(context.Background(), h) })

	// Give the registration a moment to land before injecting readiness.
	require.Eventually(t, func() bool { return r.PendingOps() == 1 }, time.Second, time.Millisecond)
	mux.Ready(h, api.EventRead)

	res := requireResult(t, ch)
	require.NoError(t, res.err)
	require.Equal(t, api.EventRead, res.events&api.EventRead)

	_, registered := mux.Registered(h)
	require.False(t, registered, "handle must be deregistered once no waiters remain")
	requireEmptyBookkeeping(t, r)
}

func TestReadWaiterIgnoresWriteOnlyEvent(t *testing.T) {
	r, mux := newTestReactor(t)

	const h = api.Handle(6)
	ch := waitAsync(func() (api.Events, error) { return r.WaitReadable(context.Background(), h) })
	require.Eventually(t, func() bool { return r.PendingOps() == 1 }, time.Second, time.Millisecond)

	mux.Ready(h, api.EventWrite)
	requireNoResult(t, ch, 50*time.Millisecond)

	mux.Ready(h, api.EventRead)
	res := requireResult(t, ch)
	require.NoError(t, res.err)
}

func TestErrorFansOutToBothWaiters(t *testing.T) {
	r, mux := newTestReactor(t)

	const h = api.Handle(7)
	cause := errors.New("connection lost")

	readCh := waitAsync(func() (api.Events, error) { return r.WaitReadable(context.Background(), h) })
	writeCh := waitAsync(func() (api.Events, error) { return r.WaitWritable(context.Background(), h) })
	require.Eventually(t, func() bool {
		ev, ok := mux.Registered(h)
		return ok && ev == api.EventRead|api.EventWrite
	}, time.Second, time.Millisecond)

	mux.Fail(h, cause)

	for _, ch := range []<-chan waitResult{readCh, writeCh} {
		res := requireResult(t, ch)
		var terr *api.TransportError
		require.ErrorAs(t, res.err, &terr)
		require.Equal(t, h, terr.Handle)
		require.ErrorIs(t, res.err, cause)
	}

	_, registered := mux.Registered(h)
	require.False(t, registered)
	requireEmptyBookkeeping(t, r)
}

func TestTimeoutFires(t *testing.T) {
	r, mux := newTestReactor(t)

	const h = api.Handle(8)
	start := time.Now()
	_, err := r.WaitReadableFor(context.Background(), h, 30*time.Millisecond)
	require.ErrorIs(t, err, api.ErrTimeout)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	_, registered := mux.Registered(h)
	require.False(t, registered)
	requireEmptyBookkeeping(t, r)
}

func TestTimeoutAfterIdleRespectsDeadline(t *testing.T) {
	r, mux := newTestReactor(t)

	// Let the reactor sit idle well past several tick intervals before
	// the first timed wait registers. A stale wheel clock would catch up
	// all the idle intervals at once and sweep the fresh entry, firing
	// the timeout almost immediately.
	time.Sleep(100 * time.Millisecond)

	const h = api.Handle(20)
	start := time.Now()
	_, err := r.WaitReadableFor(context.Background(), h, 100*time.Millisecond)
	elapsed := time.Since(start)
	require.ErrorIs(t, err, api.ErrTimeout)

	// Expiry may land up to one tick interval (plus one poll bound of
	// scheduling slack) short of the requested timeout; anything below
	// that means the wheel swept the entry early.
	require.GreaterOrEqual(t, elapsed, 80*time.Millisecond)

	_, registered := mux.Registered(h)
	require.False(t, registered)
	requireEmptyBookkeeping(t, r)
}

func TestReadinessBeatsTimeout(t *testing.T) {
	r, mux := newTestReactor(t)

	const h = api.Handle(9)
	ch := waitAsync(func() (api.Events, error) {
		return r.WaitReadableFor(context.Background(), h, 200*time.Millisecond)
	})
	require.Eventually(t, func() bool { return r.PendingOps() == 1 }, time.Second, time.Millisecond)
	mux.Ready(h, api.EventRead)

	res := requireResult(t, ch)
	require.NoError(t, res.err, "readiness at 10ms must win over the 200ms timeout")
	requireEmptyBookkeeping(t, r)

	// The wheel entry is gone: nothing fires once the timeout would have
	// elapsed, and the handle is immediately reusable.
	time.Sleep(250 * time.Millisecond)
	ch = waitAsync(func() (api.Events, error) { return r.WaitReadable(context.Background(), h) })
	require.Eventually(t, func() bool { return r.PendingOps() == 1 }, time.Second, time.Millisecond)
	mux.Ready(h, api.EventRead)
	require.NoError(t, requireResult(t, ch).err)
}

func TestCancellationDropsWaiter(t *testing.T) {
	r, mux := newTestReactor(t)

	const h = api.Handle(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := waitAsync(func() (api.Events, error) {
		return r.WaitReadableFor(ctx, h, 5*time.Second)
	})
	require.Eventually(t, func() bool { return r.PendingOps() == 1 }, time.Second, time.Millisecond)

	cancel()
	res := requireResult(t, ch)
	require.ErrorIs(t, res.err, api.ErrCanceled)

	_, registered := mux.Registered(h)
	require.False(t, registered)
	requireEmptyBookkeeping(t, r)
}

func TestCancelAfterResolutionIsNoop(t *testing.T) {
	r, mux := newTestReactor(t)

	const h = api.Handle(11)
	ctx, cancel := context.WithCancel(context.Background())

	ch := waitAsync(func() (api.Events, error) { return r.WaitReadable(ctx, h) })
	require.Eventually(t, func() bool { return r.PendingOps() == 1 }, time.Second, time.Millisecond)
	mux.Ready(h, api.EventRead)
	require.NoError(t, requireResult(t, ch).err)

	// Late cancellation races a waiter that already resolved; both sides
	// tolerate losing.
	cancel()
	time.Sleep(20 * time.Millisecond)
	requireEmptyBookkeeping(t, r)
}

func TestRegistrationFailureIsSynchronous(t *testing.T) {
	r, mux := newTestReactor(t)

	boom := errors.New("epoll table full")
	mux.FailAdd(boom)

	_, err := r.WaitReadableFor(context.Background(), api.Handle(12), time.Second)
	var rerr *api.RegistrationError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "add", rerr.Op)
	require.ErrorIs(t, err, boom)

	// Rollback: no map entry, no wheel entry.
	requireEmptyBookkeeping(t, r)
}

func TestUpdateFailureLeavesExistingWaiter(t *testing.T) {
	r, mux := newTestReactor(t)

	const h = api.Handle(13)
	readCh := waitAsync(func() (api.Events, error) { return r.WaitReadable(context.Background(), h) })
	require.Eventually(t, func() bool { return r.PendingOps() == 1 }, time.Second, time.Millisecond)

	mux.FailUpdate(errors.New("update rejected"))
	_, err := r.WaitWritableFor(context.Background(), h, time.Second)
	var rerr *api.RegistrationError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "update", rerr.Op)

	// The pre-existing read waiter is untouched and still resolvable.
	mux.FailUpdate(nil)
	mux.Ready(h, api.EventRead)
	require.NoError(t, requireResult(t, readCh).err)
	requireEmptyBookkeeping(t, r)
}

func TestPartialResolutionDowngradesInterest(t *testing.T) {
	r, mux := newTestReactor(t)

	const h = api.Handle(14)
	readCh := waitAsync(func() (api.Events, error) { return r.WaitReadable(context.Background(), h) })
	require.Eventually(t, func() bool { return r.PendingOps() == 1 }, time.Second, time.Millisecond)
	writeCh := waitAsync(func() (api.Events, error) { return r.WaitWritable(context.Background(), h) })
	require.Eventually(t, func() bool {
		ev, ok := mux.Registered(h)
		return ok && ev == api.EventRead|api.EventWrite
	}, time.Second, time.Millisecond)

	mux.Ready(h, api.EventWrite)
	require.NoError(t, requireResult(t, writeCh).err)

	// Write bit dropped, read bit kept, read waiter still pending.
	require.Eventually(t, func() bool {
		ev, ok := mux.Registered(h)
		return ok && ev == api.EventRead
	}, time.Second, time.Millisecond)
	requireNoResult(t, readCh, 30*time.Millisecond)

	mux.Ready(h, api.EventRead)
	require.NoError(t, requireResult(t, readCh).err)
	requireEmptyBookkeeping(t, r)
}

func TestDuplicateDirectionIsRejected(t *testing.T) {
	r, mux := newTestReactor(t)

	const h = api.Handle(15)
	firstCh := waitAsync(func() (api.Events, error) { return r.WaitReadable(context.Background(), h) })
	require.Eventually(t, func() bool { return r.PendingOps() == 1 }, time.Second, time.Millisecond)

	_, err := r.WaitReadable(context.Background(), h)
	require.ErrorIs(t, err, api.ErrAlreadyWaiting)

	mux.Ready(h, api.EventRead)
	require.NoError(t, requireResult(t, firstCh).err)
	requireEmptyBookkeeping(t, r)
}

func TestCoexistingReactorsKeepSeparateProbes(t *testing.T) {
	defer goleak.VerifyNone(t)

	r1 := New(fake.NewMultiplexer(), nil)
	r2 := New(fake.NewMultiplexer(), nil)
	require.NotEqual(t, r1.probeName, r2.probeName)

	state := control.DefaultProbes().DumpState()
	require.Contains(t, state, r1.probeName)
	require.Contains(t, state, r2.probeName)

	r1.Shutdown()
	state = control.DefaultProbes().DumpState()
	require.NotContains(t, state, r1.probeName)
	require.Contains(t, state, r2.probeName, "shutting one reactor down must not remove the other's probe")

	r2.Shutdown()
	require.NotContains(t, control.DefaultProbes().DumpState(), r2.probeName)
}

func TestShutdownFailsPendingWaiters(t *testing.T) {
	defer goleak.VerifyNone(t)
	mux := fake.NewMultiplexer()
	r := New(mux, &Config{
		WheelSize:    8,
		TickInterval: 10 * time.Millisecond,
		PollBound:    5 * time.Millisecond,
	})

	ch := waitAsync(func() (api.Events, error) { return r.WaitReadable(context.Background(), api.Handle(16)) })
	require.Eventually(t, func() bool { return r.PendingOps() == 1 }, time.Second, time.Millisecond)

	r.Shutdown()
	res := requireResult(t, ch)
	require.ErrorIs(t, res.err, api.ErrReactorClosed)

	_, err := r.WaitReadable(context.Background(), api.Handle(17))
	require.ErrorIs(t, err, api.ErrReactorClosed)
	require.Zero(t, r.PendingOps())

	r.Shutdown() // idempotent
}
