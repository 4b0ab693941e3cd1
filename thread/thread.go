// Package thread provides the thread, mutex and condition variable layer the
// AI workers run on.
//
// Three backends sit behind one API (see Backend). The thread exit callback
// and the thread limit live on a Runtime that is created once by the
// application and passed to whoever spawns threads.
package thread

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrResourceExhausted is returned by Start when no thread slot is free.
	ErrResourceExhausted = errors.New("thread: resources exhausted")
	// ErrAtExitRegistered is returned when an exit callback is already set.
	ErrAtExitRegistered = errors.New("thread: exit callback already registered")
	// ErrNoCondSupport means the backend only has stub condition variables.
	ErrNoCondSupport = errors.New("thread: condition variables not supported by backend")
	// ErrNilEntry is returned by Start for a nil entry function.
	ErrNilEntry = errors.New("thread: nil entry function")
)

// Config configures a Runtime.
type Config struct {
	Backend Backend
	// MaxThreads caps the number of live threads. Zero means no cap.
	MaxThreads int
}

// Runtime owns the backend choice, the thread limit and the exit callback.
type Runtime struct {
	backend Backend
	slots   *semaphore.Weighted
	atExit  atomic.Pointer[func(ID)]
	live    atomic.Int64
	started atomic.Uint64
	log     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{
		backend: cfg.Backend,
		log:     logger.With("component", "thread", "backend", cfg.Backend.String()),
	}
	if cfg.MaxThreads > 0 {
		rt.slots = semaphore.NewWeighted(int64(cfg.MaxThreads))
	}
	return rt
}

func (rt *Runtime) Backend() Backend { return rt.backend }

// HasCondSupport reports whether NewCond returns real condition variables.
// Callers that need a blocking dequeue must check it and refuse to start.
func (rt *Runtime) HasCondSupport() bool { return rt.backend.HasCondSupport() }

// Live returns the number of threads that have started and not yet exited.
func (rt *Runtime) Live() int { return int(rt.live.Load()) }

// Started returns the number of threads ever started on this runtime.
func (rt *Runtime) Started() uint64 { return rt.started.Load() }

// RegisterAtExit sets the callback every thread runs just before it
// terminates. Only the first registration takes effect; later ones are
// logged and reported with ErrAtExitRegistered.
func (rt *Runtime) RegisterAtExit(cb func(ID)) error {
	if cb == nil {
		return fmt.Errorf("register exit callback: %w", ErrNilEntry)
	}
	if !rt.atExit.CompareAndSwap(nil, &cb) {
		rt.log.Warn("thread exit callback already registered, ignoring new one")
		return ErrAtExitRegistered
	}
	return nil
}

// NewCond returns a condition variable for this runtime's backend.
func (rt *Runtime) NewCond() *Cond {
	return &Cond{stub: !rt.backend.HasCondSupport()}
}

// Start spawns a thread running entry(arg). It returns once the thread is
// running and its ID is known.
func (rt *Runtime) Start(name string, entry func(arg any), arg any) (*Handle, error) {
	if entry == nil {
		return nil, fmt.Errorf("start %q: %w", name, ErrNilEntry)
	}
	if rt.slots != nil && !rt.slots.TryAcquire(1) {
		return nil, fmt.Errorf("start %q: %w", name, ErrResourceExhausted)
	}

	h := &Handle{name: name, done: make(chan struct{})}
	ready := make(chan struct{})

	rt.live.Add(1)
	rt.started.Add(1)
	rt.backend.spawn(func() {
		h.id = Self()
		close(ready)
		defer rt.exit(h)
		entry(arg)
	})
	<-ready

	rt.log.Debug("thread started", "thread", name, "id", uint64(h.id))
	return h, nil
}

// exit runs on the exiting thread, also while a panic unwinds it.
func (rt *Runtime) exit(h *Handle) {
	defer func() {
		rt.live.Add(-1)
		if rt.slots != nil {
			rt.slots.Release(1)
		}
		close(h.done)
	}()
	if cb := rt.atExit.Load(); cb != nil {
		(*cb)(h.id)
	}
	rt.log.Debug("thread exiting", "thread", h.name, "id", uint64(h.id))
}

// Handle names a thread started by Runtime.Start.
type Handle struct {
	id   ID
	name string
	done chan struct{}
}

func (h *Handle) ID() ID         { return h.id }
func (h *Handle) Name() string   { return h.name }
func (h *Handle) String() string { return fmt.Sprintf("%s#%d", h.name, uint64(h.id)) }

// Wait blocks until the thread has terminated, exit callback included.
// A thread waiting on itself would never return, so that panics.
func (h *Handle) Wait() {
	if Equal(Self(), h.id) {
		panic(fmt.Sprintf("thread: %s cannot wait on itself", h))
	}
	<-h.done
}

// Done reports whether the thread has terminated.
func (h *Handle) Done() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
