package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestAcquireRelease(t *testing.T) {
	q := New(Config{MaxConcurrent: 2})

	if err := q.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := q.Acquire(context.Background()); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if got := q.InFlight(); got != 2 {
		t.Errorf("in flight = %d, want 2", got)
	}

	q.Release()
	q.Release()
	if got := q.InFlight(); got != 0 {
		t.Errorf("in flight after release = %d, want 0", got)
	}
}

func TestThirdAcquireBlocks(t *testing.T) {
	q := New(Config{MaxConcurrent: 2})
	q.Acquire(context.Background())
	q.Acquire(context.Background())

	done := make(chan struct{})
	go func() {
		q.Acquire(context.Background())
		close(done)
	}()

	waitFor(t, func() bool { return q.Waiting() == 1 }, "third acquire never blocked")
	select {
	case <-done:
		t.Fatal("third acquire returned while queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	q.Release()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("third acquire not granted after release")
	}
	if got := q.InFlight(); got != 2 {
		t.Errorf("in flight = %d, want 2", got)
	}
}

func TestFIFOGrantOrder(t *testing.T) {
	q := New(Config{MaxConcurrent: 1})
	q.Acquire(context.Background())

	grants := make(chan int, 3)
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Acquire(context.Background())
			grants <- i
		}()
		// Enqueue waiters one at a time so arrival order is known.
		waitFor(t, func() bool { return q.Waiting() == i }, "waiter never enqueued")
	}

	for want := 1; want <= 3; want++ {
		q.Release()
		select {
		case got := <-grants:
			if got != want {
				t.Errorf("grant %d went to waiter %d", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("grant %d never arrived", want)
		}
	}
	wg.Wait()
}

func TestTryAcquire(t *testing.T) {
	q := New(Config{MaxConcurrent: 1})

	if !q.TryAcquire() {
		t.Fatal("TryAcquire on empty queue should succeed")
	}
	if q.TryAcquire() {
		t.Fatal("TryAcquire on saturated queue should fail")
	}
	q.Release()
	if !q.TryAcquire() {
		t.Fatal("TryAcquire after release should succeed")
	}
}

func TestAcquireCancellation(t *testing.T) {
	q := New(Config{MaxConcurrent: 1})
	q.Acquire(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Acquire(ctx)
	}()
	waitFor(t, func() bool { return q.Waiting() == 1 }, "waiter never enqueued")

	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled acquire never returned")
	}
	if got := q.Waiting(); got != 0 {
		t.Errorf("waiting after cancel = %d, want 0", got)
	}

	// The slot must still be transferable to a fresh acquirer.
	q.Release()
	if err := q.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after cancel: %v", err)
	}
}
