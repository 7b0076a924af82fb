package sync

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestSpinlock(t *testing.T) {
	defer func(origYieldFn func()) { yieldFn = origYieldFn }(yieldFn)
	yieldFn = runtime.Gosched

	var (
		sl         Spinlock
		wg         sync.WaitGroup
		counter    int
		numWorkers = 10
	)

	sl.Acquire()

	if sl.TryToAcquire() != false {
		t.Error("expected TryToAcquire to return false when lock is held")
	}

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func(worker int) {
			sl.Acquire()
			counter++
			sl.Release()
			wg.Done()
		}(i)
	}

	<-time.After(100 * time.Millisecond)
	sl.Release()
	wg.Wait()

	if counter != numWorkers {
		t.Fatalf("expected counter to be %d; got %d", numWorkers, counter)
	}
}

func TestSpinlockReleaseWhenFree(t *testing.T) {
	var sl Spinlock
	sl.Release()

	if !sl.TryToAcquire() {
		t.Fatal("expected TryToAcquire to succeed on a free lock")
	}
}
