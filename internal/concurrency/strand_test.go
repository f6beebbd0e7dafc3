// File: internal/concurrency/strand_test.go
// Author: momentics <momentics@gmail.com>

package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestStrandRunsTasksInPostingOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewStrand()

	var got []int
	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, s.Post(func() {
			got = append(got, i)
			wg.Done()
		}))
	}
	wg.Wait()
	s.Close()

	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestStrandSerializesConcurrentPosters(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewStrand()

	var inTask int32
	var ran int32
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s.Post(func() {
					require.EqualValues(t, 1, atomic.AddInt32(&inTask, 1), "two tasks ran at once")
					atomic.AddInt32(&ran, 1)
					atomic.AddInt32(&inTask, -1)
				})
			}
		}()
	}
	wg.Wait()
	s.Close()

	require.EqualValues(t, 8*500, atomic.LoadInt32(&ran))
}

func TestStrandCloseDrainsPendingTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewStrand()

	var ran int32
	for i := 0; i < 64; i++ {
		require.True(t, s.Post(func() { atomic.AddInt32(&ran, 1) }))
	}
	s.Close()
	require.EqualValues(t, 64, atomic.LoadInt32(&ran))

	require.False(t, s.Post(func() {}), "post after close must be rejected")
	s.Close() // idempotent
}
