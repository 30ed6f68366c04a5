package queue

import (
	"context"
	"sync"
)

// Config holds admission queue configuration
type Config struct {
	// MaxConcurrent is the number of admission slots.
	MaxConcurrent int
}

// WithDefaults fills in default values for optional fields
func (c *Config) WithDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
}

// Queue is a bounded-concurrency admission gate with FIFO waiters.
// Release hands a freed slot directly to the longest-waiting blocked caller,
// so new arrivals can never race ahead of older waiters.
type Queue struct {
	mu       sync.Mutex
	max      int
	inFlight int
	waiters  []chan struct{}
}

// New creates an admission queue.
func New(cfg Config) *Queue {
	cfg.WithDefaults()
	return &Queue{max: cfg.MaxConcurrent}
}

// Acquire blocks until a slot is available or ctx is done.
func (q *Queue) Acquire(ctx context.Context) error {
	q.mu.Lock()
	if q.inFlight < q.max && len(q.waiters) == 0 {
		q.inFlight++
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		for i, w := range q.waiters {
			if w == ch {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				q.mu.Unlock()
				return ctx.Err()
			}
		}
		// The grant raced the cancellation: we already own a slot,
		// give it back before reporting the cancellation.
		q.releaseLocked()
		q.mu.Unlock()
		return ctx.Err()
	}
}

// TryAcquire takes a slot without blocking, reporting false when the queue
// is saturated or older waiters are pending.
func (q *Queue) TryAcquire() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight < q.max && len(q.waiters) == 0 {
		q.inFlight++
		return true
	}
	return false
}

// Release frees a slot. If waiters exist the slot transfers directly to the
// head of the FIFO without ever becoming free.
func (q *Queue) Release() {
	q.mu.Lock()
	q.releaseLocked()
	q.mu.Unlock()
}

func (q *Queue) releaseLocked() {
	if len(q.waiters) > 0 {
		ch := q.waiters[0]
		q.waiters = q.waiters[1:]
		close(ch)
		return
	}
	if q.inFlight > 0 {
		q.inFlight--
	}
}

// InFlight returns the number of currently held slots.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// Waiting returns the number of blocked callers.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}
