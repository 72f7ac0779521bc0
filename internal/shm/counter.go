package shm

import "sync/atomic"

// Counter is a lock-free 64-bit integer in shared memory.
type Counter struct {
	v atomic.Int64
}

// Load returns the current value.
func (c *Counter) Load() int64 {
	return c.v.Load()
}

// Store sets the value.
func (c *Counter) Store(v int64) {
	c.v.Store(v)
}

// Add adds delta and returns the new value.
func (c *Counter) Add(delta int64) int64 {
	return c.v.Add(delta)
}

// CompareAndSwap sets the value to new if it is old.
func (c *Counter) CompareAndSwap(old, new int64) bool {
	return c.v.CompareAndSwap(old, new)
}
