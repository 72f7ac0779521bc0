//go:build !linux

package shm

import (
	"sync/atomic"
	"time"
)

// pollInterval bounds how long a waiter sleeps between predicate checks
// where no cross-process futex is available.
const pollInterval = 2 * time.Millisecond

// futexWait sleeps briefly instead of blocking in the kernel.
func futexWait(addr *uint32, val uint32, timeout time.Duration) error {
	if atomic.LoadUint32(addr) != val {
		return nil
	}
	d := pollInterval
	if timeout > 0 && timeout < d {
		d = timeout
	}
	time.Sleep(d)
	return nil
}

// futexWake is a no-op; sleeping waiters notice the changed word on their own.
func futexWake(addr *uint32, n int) (int, error) {
	return 0, nil
}
