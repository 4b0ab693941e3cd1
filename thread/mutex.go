package thread

import (
	"fmt"
	"sync"
)

// Mutex is a recursive lock: the thread holding it may Lock it again and
// must Unlock it as many times. Misuse panics; there is no recovery from a
// lock in an unknown state.
type Mutex struct {
	mu        sync.Mutex
	free      *sync.Cond
	owner     ID
	depth     int
	destroyed bool
}

func NewMutex() *Mutex {
	m := &Mutex{}
	m.free = sync.NewCond(&m.mu)
	return m
}

func (m *Mutex) Lock() {
	self := Self()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkAlive()

	if m.depth > 0 && m.owner == self {
		m.depth++
		return
	}
	for m.depth > 0 {
		m.free.Wait()
	}
	m.owner, m.depth = self, 1
}

func (m *Mutex) Unlock() {
	self := Self()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkOwner(self, "unlock")

	m.depth--
	if m.depth == 0 {
		m.owner = 0
		m.free.Signal()
	}
}

// HeldBySelf reports whether the calling thread holds the lock.
func (m *Mutex) HeldBySelf() bool {
	self := Self()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depth > 0 && m.owner == self
}

// Destroy marks the mutex unusable. Destroying a held mutex panics.
func (m *Mutex) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.depth > 0 {
		panic(fmt.Sprintf("thread: destroy of mutex held by thread %d", uint64(m.owner)))
	}
	m.destroyed = true
}

// release drops every recursion level held by the caller and returns the
// depth so reacquire can restore it.
func (m *Mutex) release() int {
	self := Self()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkOwner(self, "wait")

	depth := m.depth
	m.owner, m.depth = 0, 0
	m.free.Signal()
	return depth
}

func (m *Mutex) reacquire(depth int) {
	self := Self()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkAlive()

	for m.depth > 0 {
		m.free.Wait()
	}
	m.owner, m.depth = self, depth
}

func (m *Mutex) checkAlive() {
	if m.destroyed {
		panic("thread: use of destroyed mutex")
	}
}

func (m *Mutex) checkOwner(self ID, op string) {
	m.checkAlive()
	if m.depth == 0 || m.owner != self {
		panic(fmt.Sprintf("thread: %s of mutex not held by thread %d", op, uint64(self)))
	}
}
