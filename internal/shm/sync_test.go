package shm

import (
	"os"
	"os/exec"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/shmchat/internal/errors"
)

// lockedCounter is a plain integer guarded by a shared Mutex. The increment
// is deliberately non-atomic so lost updates show up if exclusion fails.
type lockedCounter struct {
	mu    Mutex
	cond  Cond
	value int64
}

const (
	helperEnvDir   = "SHMCHAT_TEST_HELPER_DIR"
	helperEnvCount = "SHMCHAT_TEST_HELPER_COUNT"
)

// TestHelperProcess is not a real test. Cross-process tests re-exec the test
// binary with -test.run=TestHelperProcess and the helper environment set.
func TestHelperProcess(t *testing.T) {
	dir := os.Getenv(helperEnvDir)
	if dir == "" {
		t.Skip("helper process only")
	}
	n, _ := strconv.Atoi(os.Getenv(helperEnvCount))

	seg, err := OpenOrCreate("xproc", 8192, WithDir(dir))
	if err != nil {
		os.Exit(2)
	}
	c, _, err := Construct[lockedCounter](seg, "counter", nil)
	if err != nil {
		os.Exit(3)
	}
	for range n {
		if err := c.mu.Lock(); err != nil {
			os.Exit(4)
		}
		c.value++
		c.mu.Unlock()
	}
	_ = c.cond.Broadcast()
	_ = seg.Close()
	os.Exit(0)
}

func startHelper(t *testing.T, dir string, n int) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
	cmd.Env = append(os.Environ(), helperEnvDir+"="+dir, helperEnvCount+"="+strconv.Itoa(n))
	require.NoError(t, cmd.Start())
	return cmd
}

func TestMutex_ExcludesAcrossMappings(t *testing.T) {
	dir := t.TempDir()
	const (
		mappings   = 4
		increments = 500
	)

	var wg sync.WaitGroup
	for range mappings {
		seg := openTestSegment(t, dir, "mutex", 8192)
		c, _, err := Construct[lockedCounter](seg, "counter", nil)
		require.NoError(t, err)
		wg.Go(func() {
			for range increments {
				if err := c.mu.Lock(); err != nil {
					t.Errorf("Lock: %v", err)
					return
				}
				c.value++
				c.mu.Unlock()
			}
		})
	}
	wg.Wait()

	seg := openTestSegment(t, dir, "mutex", 8192)
	c, _, err := Construct[lockedCounter](seg, "counter", nil)
	require.NoError(t, err)
	require.Equal(t, int64(mappings*increments), c.value)
	require.Zero(t, c.mu.Owner())
}

func TestMutex_ExcludesAcrossProcesses(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns child processes")
	}
	dir := t.TempDir()
	const (
		children   = 3
		increments = 2000
	)

	seg := openTestSegment(t, dir, "xproc", 8192)
	c, _, err := Construct[lockedCounter](seg, "counter", nil)
	require.NoError(t, err)

	cmds := make([]*exec.Cmd, 0, children)
	for range children {
		cmds = append(cmds, startHelper(t, dir, increments))
	}
	for range increments {
		require.NoError(t, c.mu.Lock())
		c.value++
		c.mu.Unlock()
	}
	for _, cmd := range cmds {
		require.NoError(t, cmd.Wait())
	}

	require.NoError(t, c.mu.Lock())
	defer c.mu.Unlock()
	require.Equal(t, int64((children+1)*increments), c.value)
}

func TestMutex_RecordsOwner(t *testing.T) {
	var m Mutex
	require.NoError(t, m.Lock())
	require.Equal(t, os.Getpid(), m.Owner())
	m.Unlock()
	require.Zero(t, m.Owner())
}

func TestMutex_UnlockOfUnlockedPanics(t *testing.T) {
	var m Mutex
	require.Panics(t, func() { m.Unlock() })
}

func TestMutex_AbandonedLock(t *testing.T) {
	// A finished child gives us a PID that is very unlikely to be live.
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	require.NoError(t, cmd.Run())
	dead := uint32(cmd.Process.Pid)

	SetLockProbeInterval(10 * time.Millisecond)
	t.Cleanup(func() { SetLockProbeInterval(0) })

	m := &Mutex{state: locked, owner: dead}
	err := m.Lock()
	require.ErrorIs(t, err, errors.ErrLockAbandoned)
	require.True(t, errors.IsFatal(err))

	var syncErr *errors.SyncError
	require.ErrorAs(t, err, &syncErr)
	require.Equal(t, int(dead), syncErr.OwnerPID)
	require.Equal(t, "mutex", syncErr.Primitive)
}

func TestMutex_LiveHolderIsWaitedFor(t *testing.T) {
	SetLockProbeInterval(5 * time.Millisecond)
	t.Cleanup(func() { SetLockProbeInterval(0) })

	var m Mutex
	require.NoError(t, m.Lock())

	acquired := make(chan error, 1)
	go func() {
		err := m.Lock()
		if err == nil {
			m.Unlock()
		}
		acquired <- err
	}()

	// Several probe intervals pass; the holder is this process, so the
	// waiter must keep waiting.
	select {
	case err := <-acquired:
		t.Fatalf("Lock returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	m.Unlock()
	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never acquired the mutex")
	}
}

func TestCond_WaitForSeesBroadcast(t *testing.T) {
	seg := openTestSegment(t, t.TempDir(), "cond", 8192)
	c, _, err := Construct[lockedCounter](seg, "counter", nil)
	require.NoError(t, err)

	const waiters = 4
	done := make(chan int64, waiters)
	for range waiters {
		go func() {
			if err := c.mu.Lock(); err != nil {
				t.Errorf("Lock: %v", err)
				done <- -1
				return
			}
			err := c.cond.WaitFor(&c.mu, func() bool { return c.value >= 3 })
			if err != nil {
				t.Errorf("WaitFor: %v", err)
				done <- -1
				return
			}
			v := c.value
			c.mu.Unlock()
			done <- v
		}()
	}

	for range 3 {
		require.NoError(t, c.mu.Lock())
		c.value++
		c.mu.Unlock()
		require.NoError(t, c.cond.Broadcast())
	}

	for range waiters {
		select {
		case v := <-done:
			require.GreaterOrEqual(t, v, int64(3))
		case <-time.After(5 * time.Second):
			t.Fatal("waiter missed the broadcast")
		}
	}
}

func TestCond_AcrossProcesses(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns child processes")
	}
	dir := t.TempDir()
	seg := openTestSegment(t, dir, "xproc", 8192)
	c, _, err := Construct[lockedCounter](seg, "counter", nil)
	require.NoError(t, err)

	const increments = 10
	cmd := startHelper(t, dir, increments)

	require.NoError(t, c.mu.Lock())
	require.NoError(t, c.cond.WaitFor(&c.mu, func() bool { return c.value == increments }))
	c.mu.Unlock()

	require.NoError(t, cmd.Wait())
}

func TestCounter(t *testing.T) {
	var c Counter
	require.Equal(t, int64(1), c.Add(1))
	require.Equal(t, int64(3), c.Add(2))
	require.True(t, c.CompareAndSwap(3, 0))
	require.False(t, c.CompareAndSwap(3, 1))
	c.Store(9)
	require.Equal(t, int64(9), c.Load())
}
