package chatlog

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/shmchat/internal/errors"
	"github.com/Iron-Ham/shmchat/internal/shm"
)

func openSegment(t *testing.T, dir string) *shm.Segment {
	t.Helper()
	seg, err := shm.OpenOrCreate("chatlog", 65536, shm.WithDir(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = seg.Close() })
	return seg
}

func openLog(t *testing.T, dir string, opts Options) *Log {
	t.Helper()
	l, err := Open(openSegment(t, dir), opts)
	require.NoError(t, err)
	return l
}

func texts(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Text
	}
	return out
}

func numbered(from, to int) []string {
	var out []string
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("msg %d", i))
	}
	return out
}

func TestAppend_HistoryInOrder(t *testing.T) {
	l := openLog(t, t.TempDir(), Options{})

	_, ok, err := l.MostRecent()
	require.NoError(t, err)
	require.False(t, ok)

	for i := 1; i <= 3; i++ {
		seq, err := l.Append(KindChat, "alice", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
		require.Equal(t, uint64(i), seq)
	}

	history, seq, err := l.SnapshotHistory()
	require.NoError(t, err)
	require.Equal(t, uint64(3), seq)
	require.Equal(t, numbered(1, 3), texts(history))
	require.Equal(t, "alice: msg 1", history[0].Line())

	last, ok, err := l.MostRecent()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), last.Seq)
	require.Equal(t, "msg 3", last.Text)
	require.WithinDuration(t, time.Now(), last.Time, time.Minute)
}

func TestRecord_Line(t *testing.T) {
	require.Equal(t, "bob: hi", Record{Kind: KindChat, Author: "bob", Text: "hi"}.Line())
	require.Equal(t, "bob joined the chat", Record{Kind: KindJoin, Author: "bob", Text: "bob joined the chat"}.Line())
}

func TestAppend_ConcurrentAcrossMappings(t *testing.T) {
	dir := t.TempDir()
	const (
		writers = 4
		each    = 25
	)

	var wg sync.WaitGroup
	for w := range writers {
		l := openLog(t, dir, Options{Mode: ModeAppend})
		wg.Go(func() {
			for i := range each {
				if _, err := l.Append(KindChat, fmt.Sprintf("w%d", w), fmt.Sprintf("%d", i)); err != nil {
					t.Errorf("Append: %v", err)
					return
				}
			}
		})
	}
	wg.Wait()

	l := openLog(t, dir, Options{Mode: ModeAppend})
	require.Equal(t, uint64(writers*each), l.Seq())

	history, _, err := l.SnapshotHistory()
	require.NoError(t, err)
	require.Len(t, history, writers*each)
	for i, r := range history {
		require.Equal(t, uint64(i+1), r.Seq)
	}
}

func TestRing_KeepsNewest(t *testing.T) {
	l := openLog(t, t.TempDir(), Options{Mode: ModeRing, Capacity: 10})
	require.Equal(t, 10, l.Capacity())

	for i := 1; i <= 15; i++ {
		_, err := l.Append(KindChat, "a", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	history, seq, err := l.SnapshotHistory()
	require.NoError(t, err)
	require.Equal(t, uint64(15), seq)
	require.Equal(t, numbered(6, 15), texts(history))

	info, err := l.Info()
	require.NoError(t, err)
	require.Equal(t, Info{Mode: ModeRing, Capacity: 10, Seq: 15, Retained: 10}, info)
}

func TestSince(t *testing.T) {
	l := openLog(t, t.TempDir(), Options{Mode: ModeRing, Capacity: 10})
	for i := 1; i <= 15; i++ {
		_, err := l.Append(KindChat, "a", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	tests := []struct {
		name       string
		cursor     uint64
		wantTexts  []string
		wantMissed uint64
	}{
		{"caught up", 15, nil, 0},
		{"recent cursor", 12, numbered(13, 15), 0},
		{"cursor at ring edge", 5, numbered(6, 15), 0},
		{"lagging cursor", 2, numbered(6, 15), 3},
		{"fresh cursor", 0, numbered(6, 15), 5},
		{"cursor ahead", 20, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, seq, missed, err := l.Since(tt.cursor)
			require.NoError(t, err)
			require.Equal(t, uint64(15), seq)
			require.Equal(t, tt.wantMissed, missed)
			if tt.wantTexts == nil {
				require.Empty(t, records)
				return
			}
			require.Equal(t, tt.wantTexts, texts(records))
		})
	}
}

func TestAppend_RejectsOversize(t *testing.T) {
	l := openLog(t, t.TempDir(), Options{})

	_, err := l.Append(KindChat, "a", strings.Repeat("x", MaxTextLen+1))
	require.ErrorIs(t, err, errors.ErrRecordTooLarge)
	require.False(t, errors.IsFatal(err))

	_, err = l.Append(KindChat, strings.Repeat("n", MaxAuthorLen+1), "hi")
	require.ErrorIs(t, err, errors.ErrRecordTooLarge)

	_, err = l.Append(KindNotice, "a", "local only")
	require.ErrorIs(t, err, errors.ErrInvalidInput)

	require.Zero(t, l.Seq())

	_, err = l.Append(KindChat, "a", strings.Repeat("x", MaxTextLen))
	require.NoError(t, err)
}

func TestAppendMode_Exhaustion(t *testing.T) {
	dir := t.TempDir()
	seg, err := shm.OpenOrCreate("small", 16384, shm.WithDir(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = seg.Close() })

	l, err := Open(seg, Options{Mode: ModeAppend})
	require.NoError(t, err)
	require.Equal(t, ModeAppend, l.Mode())

	for range l.Capacity() {
		_, err := l.Append(KindChat, "a", "x")
		require.NoError(t, err)
	}
	_, err = l.Append(KindChat, "a", "one too many")
	require.ErrorIs(t, err, errors.ErrLogFull)
	require.True(t, errors.IsFatal(err))
	require.Equal(t, uint64(l.Capacity()), l.Seq())
}

func TestClear(t *testing.T) {
	for _, mode := range []Mode{ModeRing, ModeAppend} {
		t.Run(string(mode), func(t *testing.T) {
			l := openLog(t, t.TempDir(), Options{Mode: mode})
			for i := 1; i <= 3; i++ {
				_, err := l.Append(KindChat, "a", fmt.Sprintf("msg %d", i))
				require.NoError(t, err)
			}
			require.NoError(t, l.Clear())

			history, seq, err := l.SnapshotHistory()
			require.NoError(t, err)
			require.Empty(t, history)
			require.Equal(t, uint64(3), seq)

			_, ok, err := l.MostRecent()
			require.NoError(t, err)
			require.False(t, ok)

			records, _, missed, err := l.Since(0)
			require.NoError(t, err)
			require.Empty(t, records)
			require.Zero(t, missed)

			_, err = l.Append(KindChat, "a", "msg 4")
			require.NoError(t, err)
			history, _, err = l.SnapshotHistory()
			require.NoError(t, err)
			require.Equal(t, []string{"msg 4"}, texts(history))
		})
	}
}

func TestOpen_ExistingLayoutWins(t *testing.T) {
	dir := t.TempDir()
	first := openLog(t, dir, Options{Mode: ModeRing, Capacity: 4})
	_, err := first.Append(KindJoin, "a", "a joined the chat")
	require.NoError(t, err)

	second := openLog(t, dir, Options{Mode: ModeAppend})
	require.Equal(t, ModeRing, second.Mode())
	require.Equal(t, 4, second.Capacity())
	require.Equal(t, uint64(1), second.Seq())
}

func TestOpen_RejectsUnknownMode(t *testing.T) {
	_, err := Open(openSegment(t, t.TempDir()), Options{Mode: "stack"})
	require.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestOpen_CustomNames(t *testing.T) {
	seg := openSegment(t, t.TempDir())
	names := Names{Log: "log2", Mutex: "mu2", Condition: "cv2", Sequence: "seq2"}
	l, err := Open(seg, Options{Names: names})
	require.NoError(t, err)
	require.Equal(t, names, l.Names())

	st, err := seg.Stats()
	require.NoError(t, err)
	var got []string
	for _, o := range st.Objects {
		got = append(got, o.Name)
	}
	require.ElementsMatch(t, []string{"log2", "mu2", "cv2", "seq2"}, got)
}

func TestWaitForUpdate_WakesOnPublish(t *testing.T) {
	dir := t.TempDir()
	writer := openLog(t, dir, Options{})
	reader := openLog(t, dir, Options{})

	type result struct {
		seq    uint64
		exited bool
		err    error
	}
	done := make(chan result, 1)
	go func() {
		seq, exited, err := reader.WaitForUpdate(0, nil)
		done <- result{seq, exited, err}
	}()

	select {
	case r := <-done:
		t.Fatalf("WaitForUpdate returned before any publish: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	_, err := writer.Publish(KindChat, "a", "hello")
	require.NoError(t, err)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.False(t, r.exited)
		require.Equal(t, uint64(1), r.seq)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter was not woken by Publish")
	}
}

func TestWaitForUpdate_ReturnsImmediatelyWhenBehind(t *testing.T) {
	l := openLog(t, t.TempDir(), Options{})
	_, err := l.Append(KindChat, "a", "already there")
	require.NoError(t, err)

	seq, exited, err := l.WaitForUpdate(0, nil)
	require.NoError(t, err)
	require.False(t, exited)
	require.Equal(t, uint64(1), seq)
}

func TestWaitForUpdate_ExitSignal(t *testing.T) {
	l := openLog(t, t.TempDir(), Options{})

	var exit atomic.Bool
	done := make(chan bool, 1)
	go func() {
		_, exited, err := l.WaitForUpdate(l.Seq(), exit.Load)
		if err != nil {
			t.Errorf("WaitForUpdate: %v", err)
		}
		done <- exited
	}()

	time.Sleep(20 * time.Millisecond)
	exit.Store(true)
	require.NoError(t, l.Wake())

	select {
	case exited := <-done:
		require.True(t, exited)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not observe the exit signal")
	}
	require.Zero(t, l.Seq())
}

func TestWithLock(t *testing.T) {
	l := openLog(t, t.TempDir(), Options{})

	called := false
	require.NoError(t, l.WithLock(func() error {
		called = true
		return nil
	}))
	require.True(t, called)

	sentinel := errors.New("boom")
	require.ErrorIs(t, l.WithLock(func() error { return sentinel }), sentinel)

	// The mutex was released on the error path.
	_, err := l.Append(KindChat, "a", "after")
	require.NoError(t, err)
}
