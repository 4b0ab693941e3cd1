package thread

import (
	"runtime"
	"sync"
)

// Cond is a condition variable paired with a Mutex at each Wait.
//
// Waiters queue up in arrival order. Signal wakes the oldest one, Broadcast
// wakes all of them. Stub conds (BackendNoCond) never block: Wait only
// yields with the mutex released, so callers must loop on their predicate.
type Cond struct {
	stub      bool
	mu        sync.Mutex
	waiters   []chan struct{}
	destroyed bool
}

// Wait atomically releases m, blocks until signalled, then reacquires m at
// the recursion depth the caller held it at. The caller must hold m and
// must recheck its predicate on return.
func (c *Cond) Wait(m *Mutex) {
	if !m.HeldBySelf() {
		panic("thread: wait on cond without holding its mutex")
	}
	if c.stub {
		depth := m.release()
		runtime.Gosched()
		m.reacquire(depth)
		return
	}

	// Enqueue before releasing m: a Signal issued under m after the release
	// finds this waiter.
	wake := make(chan struct{})
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		panic("thread: wait on destroyed cond")
	}
	c.waiters = append(c.waiters, wake)
	c.mu.Unlock()

	depth := m.release()
	<-wake
	m.reacquire(depth)
}

// Signal wakes at least one waiter, if any.
func (c *Cond) Signal() {
	if c.stub {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waiters) == 0 {
		return
	}
	close(c.waiters[0])
	c.waiters[0] = nil
	c.waiters = c.waiters[1:]
}

// Broadcast wakes every waiter.
func (c *Cond) Broadcast() {
	if c.stub {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.waiters {
		close(w)
	}
	c.waiters = nil
}

// Waiting returns the number of blocked waiters.
func (c *Cond) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Stub reports whether this is a no-op condition variable.
func (c *Cond) Stub() bool { return c.stub }

// Destroy marks the cond unusable. Destroying a cond with waiters panics.
func (c *Cond) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waiters) > 0 {
		panic("thread: destroy of cond with waiters")
	}
	c.destroyed = true
}
