package store

import (
	"context"
	"sync"
)

// keyQueue is the FIFO of operations waiting for one key. The head of the
// queue owns the key; release hands ownership to the next waiter.
type keyQueue struct {
	waiters []chan struct{}
}

// keyLocks serializes operations per resolved key. Entries exist only while
// an operation holds or waits for the key.
type keyLocks struct {
	mu    sync.Mutex
	queue map[string]*keyQueue
}

func newKeyLocks() *keyLocks {
	return &keyLocks{queue: make(map[string]*keyQueue)}
}

// acquire blocks until the caller owns key. On ctx cancellation the caller
// leaves the queue; if ownership was handed over concurrently it is passed on.
func (l *keyLocks) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	q, busy := l.queue[key]
	if !busy {
		l.queue[key] = &keyQueue{}
		l.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range q.waiters {
			if w == ch {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// Already handed the key; pass it on.
		l.release(key)
		return ctx.Err()
	}
}

func (l *keyLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	q, ok := l.queue[key]
	if !ok {
		return
	}
	if len(q.waiters) == 0 {
		delete(l.queue, key)
		return
	}
	next := q.waiters[0]
	q.waiters = q.waiters[1:]
	close(next)
}

// active reports how many keys currently have an owner.
func (l *keyLocks) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}
