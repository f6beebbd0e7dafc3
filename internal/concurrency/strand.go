// File: internal/concurrency/strand.go
// Author: momentics <momentics@gmail.com>
//
// Strand is a serialization context: a FIFO of posted tasks drained by a
// single dedicated goroutine, so at most one task executes at a time.
// The reactor funnels every mutation of its pending-operations map and
// timing wheel through one strand instead of taking locks.

package concurrency

import (
	"sync"

	"github.com/eapache/queue"
)

// Strand executes posted tasks one at a time, in posting order.
type Strand struct {
	mu     sync.Mutex
	tasks  *queue.Queue
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

// NewStrand creates a strand and starts its worker goroutine.
func NewStrand() *Strand {
	s := &Strand{
		tasks: queue.New(),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Post enqueues a task. It reports false if the strand is already
// closed, in which case the task will never run. Tasks posted before
// Close are guaranteed to execute.
func (s *Strand) Post(task func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.tasks.Add(task)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Close drains all previously posted tasks, stops the worker and waits
// for it to exit. Safe to call more than once.
func (s *Strand) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	<-s.done
}

func (s *Strand) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		if s.tasks.Length() > 0 {
			task := s.tasks.Remove().(func())
			s.mu.Unlock()
			task()
			continue
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		<-s.wake
	}
}
