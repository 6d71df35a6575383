// Package executor provides a single-goroutine serialized task executor:
// the concrete realization of the "file executor" that every file writer
// method must run on, never a caller's own goroutine.
package executor

import "sync"

// Serial runs posted tasks one at a time, in FIFO order, on a single
// dedicated goroutine started by New. Modeled on a conceptual single
// thread with a FIFO task queue: tasks never run concurrently with each
// other, and always run in post order.
type Serial struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

// New starts a Serial executor with the given task queue depth. A depth of
// 0 makes Post block until the previously posted task has at least been
// dequeued by the executor goroutine.
func New(queueDepth int) *Serial {
	s := &Serial{
		tasks: make(chan func(), queueDepth),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Serial) run() {
	defer close(s.done)
	for task := range s.tasks {
		task()
	}
}

// Post enqueues fn to run on the executor goroutine and returns without
// waiting for it to run. Posting after Close panics, matching a send on a
// closed channel.
func (s *Serial) Post(fn func()) {
	s.tasks <- fn
}

// PostWait enqueues fn and blocks the caller until it has finished running
// on the executor goroutine. Used where the caller's own linearizability
// depends on the task having completed, e.g. StopObserving's contract that
// on_done runs only after the stop task completes.
func (s *Serial) PostWait(fn func()) {
	doneCh := make(chan struct{})
	s.tasks <- func() {
		defer close(doneCh)
		fn()
	}
	<-doneCh
}

// Close stops accepting new tasks, then blocks until every task already
// posted has run to completion in order. There is
// no cancellation and no timeout: the executor is expected to block
// process shutdown so buffered work reaches disk. Safe to call more than
// once; only the first call closes the task channel.
func (s *Serial) Close() {
	s.once.Do(func() {
		close(s.tasks)
	})
	<-s.done
}
