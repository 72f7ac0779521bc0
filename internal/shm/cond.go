package shm

import (
	"sync/atomic"

	"github.com/Iron-Ham/shmchat/internal/errors"
)

// Cond is a condition variable in shared memory, paired with a [Mutex].
// It is a single futex sequence word: waiters sleep on the value they saw
// while holding the mutex, and Broadcast bumps it. Any state change made
// under the mutex before Broadcast therefore cannot be missed by a waiter.
type Cond struct {
	seq uint32
	_   uint32
}

// Wait atomically releases m, suspends until a Broadcast, and reacquires m.
// It may return without a Broadcast; use WaitFor with a predicate. On
// error m is not held.
func (c *Cond) Wait(m *Mutex) error {
	seq := atomic.LoadUint32(&c.seq)
	m.Unlock()

	waitErr := futexWait(&c.seq, seq, 0)
	if err := m.Lock(); err != nil {
		return err
	}
	if waitErr != nil {
		m.Unlock()
		return errors.NewSyncError("condition wait failed", errors.Join(errors.ErrPrimitiveFailed, waitErr)).
			WithPrimitive("condition")
	}
	return nil
}

// WaitFor waits until pred returns true. pred is evaluated with m held and
// must be a side-effect-free comparison against shared state. On error m
// is not held.
func (c *Cond) WaitFor(m *Mutex, pred func() bool) error {
	for !pred() {
		if err := c.Wait(m); err != nil {
			return err
		}
	}
	return nil
}

// Broadcast wakes every waiter in every process. It may be called with or
// without the mutex held, but only after the state change it announces.
func (c *Cond) Broadcast() error {
	atomic.AddUint32(&c.seq, 1)
	if _, err := futexWake(&c.seq, wakeAll); err != nil {
		return errors.NewSyncError("condition broadcast failed", errors.Join(errors.ErrPrimitiveFailed, err)).
			WithPrimitive("condition")
	}
	return nil
}
