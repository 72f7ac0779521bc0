package chat

import (
	"io"
	"os"
	"os/exec"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/shmchat/internal/chatlog"
	"github.com/Iron-Ham/shmchat/internal/shm"
)

// chanSource feeds lines from a channel; closing the channel is end of input.
type chanSource chan string

func (c chanSource) ReadLine() (string, error) {
	line, ok := <-c
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

// sliceSource returns its lines in order, then io.EOF.
type sliceSource struct {
	lines []string
}

func (s *sliceSource) ReadLine() (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

// recordSink keeps every rendered line.
type recordSink struct {
	mu    sync.Mutex
	lines []Line
}

func (s *recordSink) WriteLine(l Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, l)
}

func (s *recordSink) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.lines)
}

func (s *recordSink) Strings() []string {
	var out []string
	for _, l := range s.Lines() {
		out = append(out, l.String())
	}
	return out
}

func (s *recordSink) Count(text string) int {
	n := 0
	for _, got := range s.Strings() {
		if got == text {
			n++
		}
	}
	return n
}

func (s *recordSink) WaitFor(t *testing.T, text string) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Count(text) > 0 }, 5*time.Second, 5*time.Millisecond,
		"never rendered %q; got %q", text, s.Strings())
}

func testConfig(dir, user string) SessionConfig {
	return SessionConfig{
		User:      user,
		Segment:   "chat",
		SizeBytes: 65536,
		Dir:       dir,
		Mode:      chatlog.ModeRing,
		Capacity:  10,
	}
}

func openTestLog(t *testing.T, dir string, opts chatlog.Options) (*shm.Segment, *chatlog.Log) {
	t.Helper()
	seg, err := shm.OpenOrCreate("chat", 65536, shm.WithDir(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = seg.Close() })
	l, err := chatlog.Open(seg, opts)
	require.NoError(t, err)
	return seg, l
}

// deadPID returns the pid of a child process that has already exited.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	require.NoError(t, cmd.Run())
	return cmd.Process.Pid
}
