package thread

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
)

// ID identifies a running thread. The zero ID never names a thread.
type ID uint64

var goroutinePrefix = []byte("goroutine ")

// Self returns the ID of the calling thread.
func Self() ID {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		panic(fmt.Sprintf("thread: cannot parse goroutine id from %q: %v", buf[:n], err))
	}
	return ID(id)
}

// Equal reports whether a and b name the same thread.
func Equal(a, b ID) bool {
	return a != 0 && a == b
}
