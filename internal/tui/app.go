// Package tui is the full-screen chat interface: a scrolling transcript
// above an input line, with a status bar fed by session events.
package tui

import (
	"context"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/shmchat/internal/chat"
	"github.com/Iron-Ham/shmchat/internal/event"
)

// inputBuffer bounds lines typed faster than the writer publishes them.
const inputBuffer = 64

// App wraps the bubbletea program. It is the session's LineSource and
// LineSink.
type App struct {
	program *tea.Program
	input   chan string
	closed  chan struct{}
	once    sync.Once
	subs    []string
	bus     *event.Bus
}

// Options configures an App.
type Options struct {
	User       string
	Segment    string
	Timestamps bool
	AltScreen  bool
	// ProgramOptions are passed through to tea.NewProgram.
	ProgramOptions []tea.ProgramOption
}

// New creates the application. The program does not start until Run.
func New(opts Options) *App {
	a := &App{
		input:  make(chan string, inputBuffer),
		closed: make(chan struct{}),
	}
	model := NewModel(opts.User, opts.Segment, opts.Timestamps, a.submit, func() { _ = a.Close() })
	progOpts := opts.ProgramOptions
	if opts.AltScreen {
		progOpts = append(progOpts, tea.WithAltScreen())
	}
	a.program = tea.NewProgram(model, progOpts...)
	return a
}

func (a *App) submit(line string) bool {
	select {
	case <-a.closed:
		return false
	default:
	}
	select {
	case a.input <- line:
		return true
	default:
		return false
	}
}

// ReadLine blocks for the next submitted line. It returns io.EOF once the
// user has asked to leave.
func (a *App) ReadLine() (string, error) {
	select {
	case line := <-a.input:
		return line, nil
	case <-a.closed:
		return "", io.EOF
	}
}

// Close ends input. It is safe to call more than once.
func (a *App) Close() error {
	a.once.Do(func() { close(a.closed) })
	return nil
}

// WriteLine shows a line in the transcript.
func (a *App) WriteLine(l chat.Line) {
	a.program.Send(lineMsg(l))
}

// Subscribe feeds the status bar from bus.
func (a *App) Subscribe(bus *event.Bus) {
	a.bus = bus
	a.subs = append(a.subs,
		bus.Subscribe(event.TypeParticipantAttached, func(e event.Event) {
			if ev, ok := e.(event.ParticipantAttachedEvent); ok {
				a.program.Send(attachedMsg{participants: ev.Participants})
			}
		}),
		bus.Subscribe(event.TypeMessagesDropped, func(e event.Event) {
			if ev, ok := e.(event.MessagesDroppedEvent); ok {
				a.program.Send(droppedMsg{count: ev.Count})
			}
		}),
	)
}

// Run starts the program and runs session alongside it. The program exits
// once the session returns; the session's error is returned.
func (a *App) Run(ctx context.Context, session func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() {
		err := session(ctx)
		a.program.Send(sessionDoneMsg{err: err})
		errCh <- err
	}()

	_, runErr := a.program.Run()
	_ = a.Close()
	if a.bus != nil {
		for _, id := range a.subs {
			a.bus.Unsubscribe(id)
		}
	}
	sessionErr := <-errCh
	if sessionErr != nil {
		return sessionErr
	}
	return runErr
}
