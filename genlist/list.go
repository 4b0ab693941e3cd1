// Package genlist is a generic doubly linked list with an attached mutex.
//
// The mutex is never taken by list operations. Code that shares a list
// between threads builds its own critical sections with AllocateMutex and
// ReleaseMutex; unguarded concurrent use is a data race.
package genlist

import (
	"iter"
	"math/rand"
	"slices"

	"github.com/brensch/threadai/thread"
)

type node[T comparable] struct {
	data       T
	prev, next *node[T]
}

// List holds payloads of type T. The optional destructor runs on a payload
// whenever its node is removed by Remove*, Clear or Destroy.
type List[T comparable] struct {
	head, tail *node[T]
	size       int
	destructor func(T)
	mutex      *thread.Mutex
}

func New[T comparable](destructor func(T)) *List[T] {
	return &List[T]{
		destructor: destructor,
		mutex:      thread.NewMutex(),
	}
}

// Destroy clears the list and retires its mutex.
func (l *List[T]) Destroy() {
	l.Clear()
	l.mutex.Destroy()
}

// Clear removes every node, running the destructor on each payload.
func (l *List[T]) Clear() {
	n := l.head
	l.head, l.tail, l.size = nil, nil, 0
	for n != nil {
		next := n.next
		l.free(n)
		n = next
	}
}

func (l *List[T]) Size() int { return l.size }

// AllocateMutex locks the attached recursive mutex.
func (l *List[T]) AllocateMutex() { l.mutex.Lock() }

// ReleaseMutex unlocks the attached recursive mutex.
func (l *List[T]) ReleaseMutex() { l.mutex.Unlock() }

// Mutex exposes the attached mutex, e.g. to wait on a condition with it.
func (l *List[T]) Mutex() *thread.Mutex { return l.mutex }

// Insert adds data at pos: 0 prepends, -1 or any out-of-range pos appends,
// otherwise data goes before the node currently at pos.
func (l *List[T]) Insert(data T, pos int) {
	n := &node[T]{data: data}

	if l.size == 0 {
		l.head, l.tail = n, n
	} else if pos == 0 {
		n.next = l.head
		l.head.prev = n
		l.head = n
	} else if pos < 0 || pos >= l.size {
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	} else {
		at := l.nodeAt(pos)
		n.prev, n.next = at.prev, at
		at.prev.next = n
		at.prev = n
	}
	l.size++
}

func (l *List[T]) Prepend(data T) { l.Insert(data, 0) }
func (l *List[T]) Append(data T)  { l.Insert(data, -1) }

// Get returns the payload at idx; -1 means the last one.
func (l *List[T]) Get(idx int) (T, bool) {
	if idx == -1 {
		return l.Back()
	}
	n := l.nodeAt(idx)
	if n == nil {
		var zero T
		return zero, false
	}
	return n.data, true
}

func (l *List[T]) Front() (T, bool) {
	if l.head == nil {
		var zero T
		return zero, false
	}
	return l.head.data, true
}

func (l *List[T]) Back() (T, bool) {
	if l.tail == nil {
		var zero T
		return zero, false
	}
	return l.tail.data, true
}

// PopFront unlinks the first node and hands its payload to the caller. The
// destructor does not run.
func (l *List[T]) PopFront() (T, bool) {
	n := l.head
	if n == nil {
		var zero T
		return zero, false
	}
	l.unlink(n)
	return n.data, true
}

// Remove removes the first node holding data.
func (l *List[T]) Remove(data T) bool {
	return l.RemoveIf(func(v T) bool { return v == data })
}

// RemoveAll removes every node holding data and returns how many went.
func (l *List[T]) RemoveAll(data T) int {
	return l.RemoveAllIf(func(v T) bool { return v == data })
}

// RemoveIf removes the first node whose payload matches pred.
func (l *List[T]) RemoveIf(pred func(T) bool) bool {
	for n := l.head; n != nil; n = n.next {
		if pred(n.data) {
			l.unlink(n)
			l.free(n)
			return true
		}
	}
	return false
}

// RemoveAllIf removes every node whose payload matches pred.
func (l *List[T]) RemoveAllIf(pred func(T) bool) int {
	removed := 0
	for n := l.head; n != nil; {
		next := n.next
		if pred(n.data) {
			l.unlink(n)
			l.free(n)
			removed++
		}
		n = next
	}
	return removed
}

// Search reports whether some node holds data.
func (l *List[T]) Search(data T) bool {
	return l.Index(data) >= 0
}

// SearchIf returns the first payload matching pred.
func (l *List[T]) SearchIf(pred func(T) bool) (T, bool) {
	for n := l.head; n != nil; n = n.next {
		if pred(n.data) {
			return n.data, true
		}
	}
	var zero T
	return zero, false
}

// Index returns the position of the first node holding data, or -1.
func (l *List[T]) Index(data T) int {
	i := 0
	for n := l.head; n != nil; n = n.next {
		if n.data == data {
			return i
		}
		i++
	}
	return -1
}

// Sort orders the payloads by cmp. Payloads move between nodes; nodes stay.
func (l *List[T]) Sort(cmp func(a, b T) int) {
	if l.size < 2 {
		return
	}
	buf := l.payloads()
	slices.SortStableFunc(buf, cmp)
	l.writeBack(buf)
}

func (l *List[T]) Reverse() {
	for n := l.head; n != nil; n = n.prev {
		n.prev, n.next = n.next, n.prev
	}
	l.head, l.tail = l.tail, l.head
}

// Shuffle applies a uniform random permutation (Fisher-Yates). A nil rng
// uses the math/rand package source.
func (l *List[T]) Shuffle(rng *rand.Rand) {
	if l.size < 2 {
		return
	}
	intn := rand.Intn
	if rng != nil {
		intn = rng.Intn
	}
	buf := l.payloads()
	for i := len(buf) - 1; i > 0; i-- {
		j := intn(i + 1)
		buf[i], buf[j] = buf[j], buf[i]
	}
	l.writeBack(buf)
}

// Unique collapses runs of adjacent equal payloads into their first node.
// Equal payloads that are not adjacent all survive.
func (l *List[T]) Unique() int {
	return l.UniqueFull(func(a, b T) bool { return a == b })
}

// UniqueFull is Unique with a caller supplied equality.
func (l *List[T]) UniqueFull(eq func(a, b T) bool) int {
	removed := 0
	for n := l.head; n != nil && n.next != nil; {
		if eq(n.data, n.next.data) {
			dup := n.next
			l.unlink(dup)
			l.free(dup)
			removed++
			continue
		}
		n = n.next
	}
	return removed
}

// Copy returns a new list with the same payloads and destructor.
func (l *List[T]) Copy() *List[T] {
	return l.CopyFull(nil)
}

// CopyFull is Copy with each payload passed through fn. A nil fn copies
// payloads as they are.
func (l *List[T]) CopyFull(fn func(T) T) *List[T] {
	out := New[T](l.destructor)
	for n := l.head; n != nil; n = n.next {
		if fn != nil {
			out.Append(fn(n.data))
		} else {
			out.Append(n.data)
		}
	}
	return out
}

// All iterates from head to tail.
func (l *List[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		i := 0
		for n := l.head; n != nil; n = n.next {
			if !yield(i, n.data) {
				return
			}
			i++
		}
	}
}

// Backward iterates from tail to head.
func (l *List[T]) Backward() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		i := l.size - 1
		for n := l.tail; n != nil; n = n.prev {
			if !yield(i, n.data) {
				return
			}
			i--
		}
	}
}

// nodeAt walks from whichever end is closer to idx.
func (l *List[T]) nodeAt(idx int) *node[T] {
	if idx < 0 || idx >= l.size {
		return nil
	}
	if idx < l.size/2 {
		n := l.head
		for i := 0; i < idx; i++ {
			n = n.next
		}
		return n
	}
	n := l.tail
	for i := l.size - 1; i > idx; i-- {
		n = n.prev
	}
	return n
}

func (l *List[T]) unlink(n *node[T]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.size--
}

func (l *List[T]) free(n *node[T]) {
	if l.destructor != nil {
		l.destructor(n.data)
	}
}

func (l *List[T]) payloads() []T {
	buf := make([]T, 0, l.size)
	for n := l.head; n != nil; n = n.next {
		buf = append(buf, n.data)
	}
	return buf
}

func (l *List[T]) writeBack(buf []T) {
	i := 0
	for n := l.head; n != nil; n = n.next {
		n.data = buf[i]
		i++
	}
}
