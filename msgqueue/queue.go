// Package msgqueue is an unbounded blocking queue for one consumer thread
// and any number of producers.
//
// Send never blocks beyond a short critical section. Receive blocks on a
// condition variable until something is queued. The check for "empty" and
// the wait happen under one lock and are retried after every wakeup, so a
// Send that races with a consumer about to sleep is never lost.
//
// The queue has no closed state. Shutdown is a protocol of the layer above:
// it sends a sentinel item the consumer recognises.
package msgqueue

import (
	"fmt"
	"sync/atomic"

	"github.com/brensch/threadai/genlist"
	"github.com/brensch/threadai/thread"
)

// Queue is a FIFO of T. Its list storage is private so no list-wide
// operation (sort, shuffle, unique) can run on a live queue.
type Queue[T comparable] struct {
	items *genlist.List[T]
	cond  *thread.Cond

	sent      atomic.Uint64
	received  atomic.Uint64
	highWater atomic.Int64
	destroyed atomic.Bool
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Sent      uint64
	Received  uint64
	Queued    int
	HighWater int
}

// New creates a queue on rt. release runs on every item still queued when
// the queue is destroyed. New fails when rt has no real condition variables,
// since Receive would then spin instead of sleeping.
func New[T comparable](rt *thread.Runtime, release func(T)) (*Queue[T], error) {
	if !rt.HasCondSupport() {
		return nil, fmt.Errorf("new queue on %s backend: %w", rt.Backend(), thread.ErrNoCondSupport)
	}
	return &Queue[T]{
		items: genlist.New[T](release),
		cond:  rt.NewCond(),
	}, nil
}

// Send appends item and wakes the consumer.
func (q *Queue[T]) Send(item T) {
	q.checkAlive("send")

	q.items.AllocateMutex()
	q.items.Append(item)
	if n := int64(q.items.Size()); n > q.highWater.Load() {
		q.highWater.Store(n)
	}
	q.sent.Add(1)
	q.cond.Signal()
	q.items.ReleaseMutex()
}

// Receive blocks until an item is queued and returns the oldest one.
// Only one thread may receive from a queue.
func (q *Queue[T]) Receive() T {
	q.checkAlive("receive")

	q.items.AllocateMutex()
	defer q.items.ReleaseMutex()

	for q.items.Size() == 0 {
		q.cond.Wait(q.items.Mutex())
	}
	item, _ := q.items.PopFront()
	q.received.Add(1)
	return item
}

// Drain removes and returns everything queued without blocking.
func (q *Queue[T]) Drain() []T {
	q.checkAlive("drain")

	q.items.AllocateMutex()
	defer q.items.ReleaseMutex()

	if q.items.Size() == 0 {
		return nil
	}
	out := make([]T, 0, q.items.Size())
	for {
		item, ok := q.items.PopFront()
		if !ok {
			break
		}
		out = append(out, item)
	}
	q.received.Add(uint64(len(out)))
	return out
}

func (q *Queue[T]) Len() int {
	q.items.AllocateMutex()
	defer q.items.ReleaseMutex()
	return q.items.Size()
}

func (q *Queue[T]) Stats() Stats {
	return Stats{
		Sent:      q.sent.Load(),
		Received:  q.received.Load(),
		Queued:    q.Len(),
		HighWater: int(q.highWater.Load()),
	}
}

// Destroy releases every item still queued and returns how many there were.
// Nobody may be blocked in Receive; any later use panics.
func (q *Queue[T]) Destroy() int {
	if !q.destroyed.CompareAndSwap(false, true) {
		panic("msgqueue: queue destroyed twice")
	}

	q.items.AllocateMutex()
	n := q.items.Size()
	q.items.Clear()
	q.items.ReleaseMutex()

	q.cond.Destroy()
	q.items.Destroy()
	return n
}

func (q *Queue[T]) checkAlive(op string) {
	if q.destroyed.Load() {
		panic(fmt.Sprintf("msgqueue: %s on destroyed queue", op))
	}
}
