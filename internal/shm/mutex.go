package shm

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/shmchat/internal/errors"
)

// Mutex states
const (
	unlocked  = 0
	locked    = 1
	contended = 2
)

// DefaultLockProbeInterval is how often a blocked Lock checks whether the
// holder is still alive.
const DefaultLockProbeInterval = time.Second

var (
	selfPID       = uint32(os.Getpid())
	probeInterval atomic.Int64
)

func init() {
	probeInterval.Store(int64(DefaultLockProbeInterval))
}

// SetLockProbeInterval changes the liveness probe interval for every Mutex
// in this process. Non-positive values restore the default.
func SetLockProbeInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultLockProbeInterval
	}
	probeInterval.Store(int64(d))
}

// Mutex is a futex-based mutual exclusion lock that lives in shared memory
// and excludes goroutines in every process mapping the segment. The zero
// value is unlocked. A Mutex must not be copied.
//
// The holder's PID is recorded so a waiter can tell a long critical section
// apart from a lock abandoned by a crashed process.
type Mutex struct {
	state uint32
	owner uint32
}

// Lock acquires the mutex. It fails only when the OS primitive fails or
// the recorded holder no longer exists; in both cases the mutex is not
// held and nothing is retried.
func (m *Mutex) Lock() error {
	if atomic.CompareAndSwapUint32(&m.state, unlocked, locked) {
		atomic.StoreUint32(&m.owner, selfPID)
		return nil
	}

	probe := time.Duration(probeInterval.Load())
	lastProbe := time.Now()
	for {
		if atomic.SwapUint32(&m.state, contended) == unlocked {
			atomic.StoreUint32(&m.owner, selfPID)
			return nil
		}
		if err := futexWait(&m.state, contended, probe); err != nil {
			return errors.NewSyncError("mutex wait failed", errors.Join(errors.ErrPrimitiveFailed, err)).
				WithPrimitive("mutex")
		}
		if time.Since(lastProbe) < probe {
			continue
		}
		lastProbe = time.Now()
		if owner := atomic.LoadUint32(&m.owner); owner != 0 && !ProcessAlive(int(owner)) {
			return errors.NewSyncError("mutex holder exited without unlocking", errors.ErrLockAbandoned).
				WithPrimitive("mutex").WithOwnerPID(int(owner))
		}
	}
}

// Unlock releases the mutex and wakes one waiter if any are queued.
// Unlocking an unlocked Mutex panics.
func (m *Mutex) Unlock() {
	atomic.StoreUint32(&m.owner, 0)
	switch atomic.SwapUint32(&m.state, unlocked) {
	case unlocked:
		panic("shm: unlock of unlocked mutex")
	case contended:
		_, _ = futexWake(&m.state, 1)
	}
}

// Owner returns the PID recorded by the current holder, or 0.
func (m *Mutex) Owner() int {
	return int(atomic.LoadUint32(&m.owner))
}
