package executor_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/netlog/executor"
)

func TestSerial_RunsTasksInFIFOOrder(t *testing.T) {
	s := executor.New(16)
	defer s.Close()

	var order []int
	done := make(chan struct{})

	for i := 0; i < 20; i++ {
		i := i
		s.Post(func() {
			order = append(order, i)
			if i == 19 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for posted tasks to run")
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order, got %v at index %d in %v", v, i, order)
		}
	}
}

func TestSerial_PostWaitBlocksUntilDone(t *testing.T) {
	s := executor.New(0)
	defer s.Close()

	var ran atomic.Bool
	s.PostWait(func() {
		time.Sleep(10 * time.Millisecond)
		ran.Store(true)
	})

	if !ran.Load() {
		t.Error("PostWait returned before the task ran")
	}
}

func TestSerial_TasksNeverRunConcurrently(t *testing.T) {
	s := executor.New(8)
	defer s.Close()

	var inFlight atomic.Int32
	var maxInFlight atomic.Int32
	var wg int32
	done := make(chan struct{})

	const n = 50
	for i := 0; i < n; i++ {
		s.Post(func() {
			cur := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if cur <= m || maxInFlight.CompareAndSwap(m, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			if int(atomic.AddInt32(&wg, 1)) == n {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}

	if maxInFlight.Load() > 1 {
		t.Errorf("expected at most 1 task in flight at a time, saw %d", maxInFlight.Load())
	}
}

func TestSerial_CloseDrainsPendingTasksBeforeReturning(t *testing.T) {
	s := executor.New(16)

	var completed atomic.Int32
	for i := 0; i < 10; i++ {
		s.Post(func() { completed.Add(1) })
	}

	s.Close()

	if completed.Load() != 10 {
		t.Errorf("expected all 10 pending tasks to complete before Close returns, got %d", completed.Load())
	}
}

func TestSerial_CloseIsIdempotent(t *testing.T) {
	s := executor.New(1)
	s.Close()
	s.Close() // must not panic
}

func TestSerial_PostAfterClosePanics(t *testing.T) {
	s := executor.New(1)
	s.Close()

	defer func() {
		if recover() == nil {
			t.Error("expected Post after Close to panic")
		}
	}()
	s.Post(func() {})
}
