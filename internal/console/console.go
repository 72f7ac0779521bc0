// Package console connects a chat session to a plain terminal: a line
// reader over stdin and a printer over stdout.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/x/term"

	"github.com/Iron-Ham/shmchat/internal/chat"
	"github.com/Iron-Ham/shmchat/internal/chatlog"
	"github.com/Iron-Ham/shmchat/internal/errors"
	"github.com/Iron-Ham/shmchat/internal/tui/styles"
)

// maxLineBytes bounds how much of one input line is kept. The rest of a
// longer line is discarded, and the kept prefix is still over the record
// limit, so the writer rejects it with a notice.
const maxLineBytes = 64 * 1024

// Reader reads newline-terminated lines. It implements chat.LineSource.
// Close makes a blocked ReadLine return io.EOF, which lets an interrupt end
// a session the same way end of input does. Input is only consumed while a
// ReadLine is waiting, so another reader can take over the stream between
// calls.
type Reader struct {
	br     *bufio.Reader
	start  sync.Once
	req    chan struct{}
	lines  chan readResult
	closed chan struct{}
	once   sync.Once
}

type readResult struct {
	line string
	err  error
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		br:     bufio.NewReader(r),
		req:    make(chan struct{}),
		lines:  make(chan readResult),
		closed: make(chan struct{}),
	}
}

// scan reads one line per request. It may stay blocked on the underlying
// reader after Close.
func (r *Reader) scan() {
	for {
		select {
		case <-r.req:
		case <-r.closed:
			return
		}
		var res readResult
		res.line, res.err = r.readLine()
		select {
		case r.lines <- res:
		case <-r.closed:
			return
		}
		if res.err != nil {
			return
		}
	}
}

// readLine reads through the next newline, keeping at most maxLineBytes.
// A final line without a newline is returned before io.EOF.
func (r *Reader) readLine() (string, error) {
	var buf []byte
	for {
		frag, err := r.br.ReadSlice('\n')
		if room := maxLineBytes - len(buf); room > 0 {
			buf = append(buf, frag[:min(len(frag), room)]...)
		}
		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err == io.EOF && len(buf) > 0:
			return trimEOL(buf), nil
		case err != nil:
			return "", err
		}
		return trimEOL(buf), nil
	}
}

func trimEOL(b []byte) string {
	s := strings.TrimSuffix(string(b), "\n")
	return strings.TrimSuffix(s, "\r")
}

// ReadLine returns the next line without its terminator, or io.EOF.
func (r *Reader) ReadLine() (string, error) {
	r.start.Do(func() { go r.scan() })
	select {
	case r.req <- struct{}{}:
	case <-r.closed:
		return "", io.EOF
	}
	select {
	case res := <-r.lines:
		if res.err != nil {
			r.finish()
		}
		return res.line, res.err
	case <-r.closed:
		return "", io.EOF
	}
}

func (r *Reader) finish() {
	r.once.Do(func() { close(r.closed) })
}

// Close ends input. It is safe to call more than once.
func (r *Reader) Close() error {
	r.finish()
	return nil
}

// PromptName asks for a display name until a non-empty one is entered.
func PromptName(r *Reader, w io.Writer) (string, error) {
	for {
		fmt.Fprint(w, chat.NamePrompt)
		line, err := r.ReadLine()
		if errors.Is(err, io.EOF) {
			return "", errors.NewValidationError("no name entered").WithField("name")
		}
		if err != nil {
			return "", err
		}
		if name := strings.TrimSpace(line); name != "" {
			return name, nil
		}
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(f.Fd())
}

// Format renders a line. Unstyled output is exactly the chat text, one
// record per line.
func Format(l chat.Line, styled, timestamps bool) string {
	if !styled {
		if timestamps && l.Seq != 0 {
			return l.Time.Format("15:04:05") + " " + l.String()
		}
		return l.String()
	}

	var b strings.Builder
	if timestamps && l.Seq != 0 {
		b.WriteString(styles.Timestamp.Render(l.Time.Format("15:04:05")))
		b.WriteByte(' ')
	}
	if l.Kind == chatlog.KindChat {
		b.WriteString(styles.Author(l.Author).Render(l.Author))
		b.WriteString(": ")
		b.WriteString(styles.ForKind(l.Kind).Render(l.Text))
		return b.String()
	}
	if l.Text == chat.HistoryHeading {
		b.WriteString(styles.Title.Render(l.Text))
		return b.String()
	}
	b.WriteString(styles.ForKind(l.Kind).Render(l.Text))
	return b.String()
}

// Printer writes lines to an io.Writer. It implements chat.LineSink and is
// safe for concurrent use.
type Printer struct {
	mu         sync.Mutex
	w          io.Writer
	styled     bool
	timestamps bool
}

// NewPrinter creates a printer. styled enables lipgloss colors.
func NewPrinter(w io.Writer, styled, timestamps bool) *Printer {
	return &Printer{w: w, styled: styled, timestamps: timestamps}
}

// WriteLine prints one line.
func (p *Printer) WriteLine(l chat.Line) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, Format(l, p.styled, p.timestamps))
}
