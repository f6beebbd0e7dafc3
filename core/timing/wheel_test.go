// File: core/timing/wheel_test.go
// Author: momentics <momentics@gmail.com>

package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClock drives a wheel deterministically.
type testClock struct {
	now time.Time
}

func newTestWheel(size int, interval time.Duration) (*Wheel[uint64], *testClock) {
	w := NewWheel[uint64](size, interval)
	c := &testClock{now: time.Unix(0, 0)}
	w.now = func() time.Time { return c.now }
	w.lastTick = c.now
	return w, c
}

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestWheelExpiresOnCeilTick(t *testing.T) {
	w, clk := newTestWheel(8, 100*time.Millisecond)

	// ceil(250ms / 100ms) = 3 ticks: nothing at t=100ms or t=200ms.
	w.Add(1, 250*time.Millisecond)

	clk.advance(100 * time.Millisecond)
	require.Empty(t, w.Tick(), "no expiry at t=100ms")

	clk.advance(100 * time.Millisecond)
	require.Empty(t, w.Tick(), "no expiry at t=200ms")

	clk.advance(100 * time.Millisecond)
	require.Equal(t, []uint64{1}, w.Tick(), "expiry at t=300ms")
	require.Zero(t, w.Len())
}

func TestWheelRemoveBeforeExpiry(t *testing.T) {
	w, clk := newTestWheel(8, 100*time.Millisecond)

	w.Add(7, 150*time.Millisecond)
	w.Remove(7)
	w.Remove(7) // idempotent

	for i := 0; i < 32; i++ {
		clk.advance(100 * time.Millisecond)
		require.Empty(t, w.Tick())
	}
	require.Zero(t, w.Len())
}

func TestWheelReAddReplaces(t *testing.T) {
	w, clk := newTestWheel(8, 100*time.Millisecond)

	w.Add(3, 100*time.Millisecond)
	w.Add(3, 500*time.Millisecond)
	require.Equal(t, 1, w.Len())

	var fired int
	for i := 1; i <= 8; i++ {
		clk.advance(100 * time.Millisecond)
		ids := w.Tick()
		fired += len(ids)
		if len(ids) > 0 {
			require.Equal(t, 5, i, "replacement entry fires on its own schedule")
		}
	}
	require.Equal(t, 1, fired, "only one expiry between adds")
}

func TestWheelMinimumOneTickDelay(t *testing.T) {
	w, clk := newTestWheel(8, 100*time.Millisecond)

	w.Add(1, 0)
	w.Add(2, time.Nanosecond)

	require.Empty(t, w.Tick(), "nothing fires before a full interval elapses")

	clk.advance(100 * time.Millisecond)
	require.ElementsMatch(t, []uint64{1, 2}, w.Tick())
}

func TestWheelRoundsSpanMultipleRevolutions(t *testing.T) {
	w, clk := newTestWheel(8, 100*time.Millisecond)

	// 2.5s = 25 ticks on an 8-slot wheel: 3 full revolutions plus one.
	w.Add(9, 2500*time.Millisecond)

	for i := 1; i < 25; i++ {
		clk.advance(100 * time.Millisecond)
		require.Empty(t, w.Tick(), "tick %d", i)
	}
	clk.advance(100 * time.Millisecond)
	require.Equal(t, []uint64{9}, w.Tick())
}

func TestWheelCatchUpPreservesIntervalOrder(t *testing.T) {
	w, clk := newTestWheel(8, 100*time.Millisecond)

	w.Add(1, 100*time.Millisecond)
	w.Add(2, 200*time.Millisecond)
	w.Add(3, 300*time.Millisecond)

	// A single late tick processes three whole intervals at once.
	clk.advance(350 * time.Millisecond)
	require.Equal(t, []uint64{1, 2, 3}, w.Tick())
	require.Zero(t, w.Len())
}

func TestWheelNoClockDrift(t *testing.T) {
	w, clk := newTestWheel(8, 100*time.Millisecond)

	// 250ms elapsed advances exactly two intervals; the 50ms remainder
	// carries over instead of being discarded.
	w.Add(1, 300*time.Millisecond)
	clk.advance(250 * time.Millisecond)
	require.Empty(t, w.Tick())
	require.Equal(t, clk.now.Add(-50*time.Millisecond), w.lastTick)

	// The carried remainder means only 50ms more is needed for tick #3.
	clk.advance(50 * time.Millisecond)
	require.Equal(t, []uint64{1}, w.Tick())
}

func TestWheelSubIntervalCallsAreFree(t *testing.T) {
	w, clk := newTestWheel(8, 100*time.Millisecond)

	w.Add(4, 100*time.Millisecond)
	for i := 0; i < 9; i++ {
		clk.advance(10 * time.Millisecond)
		require.Empty(t, w.Tick())
	}
	clk.advance(10 * time.Millisecond)
	require.Equal(t, []uint64{4}, w.Tick())
}
