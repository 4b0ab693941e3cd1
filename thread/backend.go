package thread

import (
	"fmt"
	"runtime"
	"strings"
)

// Backend selects how threads and condition variables are provided.
type Backend int

const (
	// BackendGoroutine runs each thread as a plain goroutine.
	BackendGoroutine Backend = iota
	// BackendPinned locks each thread's goroutine to its own OS thread for
	// its whole life. The OS thread is discarded when the goroutine exits.
	BackendPinned
	// BackendNoCond runs goroutines but only has stub condition variables.
	// Blocking consumers cannot be built on it.
	BackendNoCond
)

var backendNames = map[Backend]string{
	BackendGoroutine: "goroutine",
	BackendPinned:    "pinned",
	BackendNoCond:    "nocond",
}

// Backends lists every backend in declaration order.
func Backends() []Backend {
	return []Backend{BackendGoroutine, BackendPinned, BackendNoCond}
}

func (b Backend) String() string {
	if name, ok := backendNames[b]; ok {
		return name
	}
	return fmt.Sprintf("backend(%d)", int(b))
}

// ParseBackend maps a config/flag value to a Backend.
func ParseBackend(s string) (Backend, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	if want == "" {
		return BackendGoroutine, nil
	}
	for b, name := range backendNames {
		if name == want {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown thread backend %q (want goroutine, pinned or nocond)", s)
}

// HasCondSupport reports whether the backend provides real condition variables.
func (b Backend) HasCondSupport() bool {
	return b != BackendNoCond
}

func (b Backend) spawn(fn func()) {
	switch b {
	case BackendPinned:
		go func() {
			// No UnlockOSThread: exiting while locked terminates the OS thread.
			runtime.LockOSThread()
			fn()
		}()
	default:
		go fn()
	}
}
