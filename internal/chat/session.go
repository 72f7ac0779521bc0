package chat

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/Iron-Ham/shmchat/internal/chatlog"
	"github.com/Iron-Ham/shmchat/internal/errors"
	"github.com/Iron-Ham/shmchat/internal/event"
	"github.com/Iron-Ham/shmchat/internal/logging"
	"github.com/Iron-Ham/shmchat/internal/shm"
)

// Default segment settings.
const (
	DefaultSegmentName = "shared_memory"
	DefaultSegmentSize = 64 * 1024
)

// Names are the directory names of every shared object a session uses.
type Names struct {
	chatlog.Names
	Participants string
}

// DefaultNames returns the standard object names.
func DefaultNames() Names {
	return Names{Names: chatlog.DefaultNames(), Participants: DefaultParticipantsName}
}

// SessionConfig describes one participant's session.
type SessionConfig struct {
	User        string
	Segment     string
	SizeBytes   int
	Dir         string // backing directory; empty means /dev/shm
	Names       Names
	Mode        chatlog.Mode
	Capacity    int
	ExitCommand string
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Segment == "" {
		c.Segment = DefaultSegmentName
	}
	if c.SizeBytes == 0 {
		c.SizeBytes = DefaultSegmentSize
	}
	c.Names.Names = c.Names.Names.WithDefaults()
	if c.Names.Participants == "" {
		c.Names.Participants = DefaultParticipantsName
	}
	if c.ExitCommand == "" {
		c.ExitCommand = DefaultExitCommand
	}
	return c
}

// SegmentOptions returns the shm options for the configured directory.
func (c SessionConfig) SegmentOptions() []shm.Option {
	if c.Dir == "" {
		return nil
	}
	return []shm.Option{shm.WithDir(c.Dir)}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithBus publishes session events to bus.
func WithBus(bus *event.Bus) SessionOption {
	return func(s *Session) {
		s.bus = bus
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *logging.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithPID overrides the process ID recorded in the roster. Tests use it
// to run several participants in one process.
func WithPID(pid int) SessionOption {
	return func(s *Session) {
		s.pid = pid
	}
}

// WithReady registers a callback invoked once the session has attached
// and replayed history, just before the join notice is published.
func WithReady(fn func(*Reader)) SessionOption {
	return func(s *Session) {
		s.ready = fn
	}
}

// Session is one participant's attachment to a chat.
type Session struct {
	cfg    SessionConfig
	src    LineSource
	sink   LineSink
	bus    *event.Bus
	logger *logging.Logger
	pid    int
	id     uuid.UUID
	ready  func(*Reader)

	mu  sync.Mutex
	seg *shm.Segment // non-nil while attached
}

// NewSession creates a session. Nothing is attached until Run.
func NewSession(cfg SessionConfig, src LineSource, sink LineSink, opts ...SessionOption) *Session {
	s := &Session{
		cfg:  cfg.withDefaults(),
		src:  src,
		sink: sink,
		pid:  os.Getpid(),
		id:   uuid.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NopLogger()
	}
	s.logger = s.logger.WithSegment(s.cfg.Segment).WithParticipant(s.id.String(), s.cfg.User)
	return s
}

// ID returns the session's participant id.
func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) setSegment(seg *shm.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seg = seg
}

// Stats reports usage of the attached segment. It fails with
// ErrNotAttached outside Run.
func (s *Session) Stats() (shm.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seg == nil {
		return shm.Stats{}, errors.Wrapf(errors.ErrNotAttached, "session %s", s.id)
	}
	return s.seg.Stats()
}

// Run attaches, replays history, and runs the reader and writer until the
// user leaves. If this participant is the last to leave it posts the
// closing notice and removes the segment. Segment and primitive failures
// are returned as fatal errors; see errors.IsFatal.
func (s *Session) Run(ctx context.Context) error {
	seg, err := shm.OpenOrCreate(s.cfg.Segment, s.cfg.SizeBytes, s.cfg.SegmentOptions()...)
	if err != nil {
		return err
	}
	s.setSegment(seg)
	defer func() {
		s.setSegment(nil)
		if closeErr := seg.Close(); closeErr != nil {
			s.logger.Warn("failed to unmap segment", "error", closeErr)
		}
	}()

	log, err := chatlog.Open(seg, chatlog.Options{
		Names:    s.cfg.Names.Names,
		Mode:     s.cfg.Mode,
		Capacity: s.cfg.Capacity,
		Logger:   s.logger,
	})
	if err != nil {
		return err
	}
	reg, err := OpenRegistry(seg, log, s.cfg.Names.Participants, s.logger)
	if err != nil {
		return err
	}

	n, err := reg.Attach(s.id, s.pid, s.cfg.User)
	if err != nil {
		return err
	}
	s.logger.Info("attached", "participants", n, "mode", log.Mode(), "capacity", log.Capacity())
	s.bus.Publish(event.NewParticipantAttachedEvent(s.cfg.Segment, s.cfg.User, n))

	err = s.converse(ctx, log)
	return errors.Join(err, s.leave(seg, log, reg))
}

// converse runs the reader and writer and always stops the reader before
// returning.
func (s *Session) converse(ctx context.Context, log *chatlog.Log) error {
	reader := NewReader(log, s.sink, s.bus, s.logger)
	if err := reader.Replay(); err != nil {
		return err
	}
	if s.ready != nil {
		s.ready(reader)
	}

	var readErr error
	var wg sync.WaitGroup
	wg.Go(func() {
		readErr = reader.Run()
		if readErr != nil {
			// Unblock a writer waiting on input; the session cannot go on.
			if c, ok := s.src.(io.Closer); ok {
				_ = c.Close()
			}
		}
	})

	var writeErr error
	if seq, err := log.Publish(chatlog.KindJoin, s.cfg.User, JoinedText(s.cfg.User)); err != nil {
		writeErr = err
	} else {
		s.bus.Publish(event.NewMessagePublishedEvent(seq, chatlog.KindJoin.String(), len(JoinedText(s.cfg.User))))
		writer := NewWriter(log, s.src, s.sink, s.cfg.User, s.cfg.ExitCommand, s.bus, s.logger)
		writeErr = writer.Run(ctx)
	}

	reader.RequestExit()
	if writeErr == nil {
		if seq, err := log.Publish(chatlog.KindLeave, s.cfg.User, LeftText(s.cfg.User)); err != nil {
			writeErr = err
		} else {
			s.bus.Publish(event.NewMessagePublishedEvent(seq, chatlog.KindLeave.String(), len(LeftText(s.cfg.User))))
		}
	}
	wakeErr := log.Wake()
	wg.Wait()

	return errors.Join(writeErr, readErr, wakeErr)
}

// leave detaches and, for the last participant, tears the segment down.
func (s *Session) leave(seg *shm.Segment, log *chatlog.Log, reg *Registry) error {
	n, err := reg.Detach(s.pid)
	if err != nil {
		return err
	}
	s.logger.Info("detached", "participants", n)
	s.bus.Publish(event.NewParticipantDetachedEvent(s.cfg.Segment, s.cfg.User, n))
	if n > 0 {
		return nil
	}

	retired, err := reg.Retire()
	if err != nil {
		return err
	}
	if !retired {
		s.logger.Info("participant joined during teardown, leaving segment in place")
		return nil
	}

	// The segment is removed even if the notice cannot be stored.
	seq, pubErr := log.Publish(chatlog.KindClosed, "", ClosedNotice)
	s.sink.WriteLine(Line{Kind: chatlog.KindClosed, Seq: seq, Text: ClosedNotice})
	clearErr := log.Clear()
	if err := shm.Remove(s.cfg.Segment, s.cfg.SegmentOptions()...); err != nil {
		return errors.Join(pubErr, clearErr, err)
	}
	s.logger.Info("chat closed, segment removed", "seq", seq)
	s.bus.Publish(event.NewChatClosedEvent(s.cfg.Segment, seq))
	return errors.Join(pubErr, clearErr)
}
