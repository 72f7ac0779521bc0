package chat

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/shmchat/internal/chatlog"
	"github.com/Iron-Ham/shmchat/internal/errors"
	"github.com/Iron-Ham/shmchat/internal/logging"
	"github.com/Iron-Ham/shmchat/internal/shm"
)

// MaxParticipants is the number of roster slots. The participant count
// itself is not bounded by it.
const MaxParticipants = 32

// DefaultParticipantsName is the directory name of the roster object.
const DefaultParticipantsName = "users"

// Participant is one attached process as recorded in the roster.
type Participant struct {
	ID     uuid.UUID
	PID    int
	Name   string
	Joined time.Time
	Alive  bool
}

type rosterEntry struct {
	id      [16]byte
	pid     uint32
	nameLen uint32
	joined  int64
	name    [chatlog.MaxAuthorLen]byte
}

// roster is the shared participants object: the live count followed by
// informational slots.
type roster struct {
	count   shm.Counter
	entries [MaxParticipants]rosterEntry
}

// Registry tracks who is attached to a segment. Roster updates are made
// under the log's shared mutex; the count is an atomic in the segment.
type Registry struct {
	seg    *shm.Segment
	log    *chatlog.Log
	r      *roster
	logger *logging.Logger
}

// OpenRegistry finds or constructs the roster object called name.
func OpenRegistry(seg *shm.Segment, log *chatlog.Log, name string, logger *logging.Logger) (*Registry, error) {
	if name == "" {
		name = DefaultParticipantsName
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	r, _, err := shm.Construct[roster](seg, name, nil)
	if err != nil {
		return nil, err
	}
	return &Registry{seg: seg, log: log, r: r, logger: logger.WithComponent("registry")}, nil
}

// Count returns the number of attached participants.
func (g *Registry) Count() int64 {
	return g.r.count.Load()
}

// Attach increments the participant count and records the caller in the
// roster, returning the new count. It fails with ErrSegmentClosed once
// the last participant has started tearing the segment down.
func (g *Registry) Attach(id uuid.UUID, pid int, name string) (int64, error) {
	if name == "" {
		return 0, errors.NewValidationError("name must not be empty").WithField("name")
	}
	if len(name) > chatlog.MaxAuthorLen {
		return 0, errors.NewValidationError(fmt.Sprintf("name longer than %d bytes", chatlog.MaxAuthorLen)).
			WithField("name").WithValue(name)
	}

	var n int64
	err := g.log.WithLock(func() error {
		if g.seg.Closed() {
			return errors.NewSegmentError("chat is closing", errors.ErrSegmentClosed).WithSegment(g.seg.Name())
		}
		n = g.r.count.Add(1)
		if !g.addEntry(id, pid, name) {
			g.logger.Warn("roster full, participant not listed", "pid", pid)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	g.logger.Debug("attached", "pid", pid, "participants", n)
	return n, nil
}

// Detach removes pid from the roster and decrements the count, returning
// the new count. Exactly one caller observes zero. Detaching when the
// count is already zero is a caller bug and fails with ErrNotAttached.
func (g *Registry) Detach(pid int) (int64, error) {
	var n int64
	err := g.log.WithLock(func() error {
		for {
			cur := g.r.count.Load()
			if cur <= 0 {
				return errors.Wrapf(errors.ErrNotAttached, "detach of pid %d", pid)
			}
			if g.r.count.CompareAndSwap(cur, cur-1) {
				n = cur - 1
				break
			}
		}
		g.removeEntry(pid)
		return nil
	})
	if err != nil {
		return 0, err
	}
	g.logger.Debug("detached", "pid", pid, "participants", n)
	return n, nil
}

// Retire marks the segment closed if nobody is attached, so no one can
// attach while it is torn down. It reports false when a participant
// attached after the caller's detach; the caller then leaves the segment
// alone.
func (g *Registry) Retire() (bool, error) {
	retired := false
	err := g.log.WithLock(func() error {
		if g.r.count.Load() != 0 {
			return nil
		}
		if err := g.seg.MarkClosed(); err != nil {
			return err
		}
		retired = true
		return nil
	})
	return retired, err
}

// Roster lists the recorded participants, oldest first by join time.
// Alive is computed now, so entries left behind by crashed processes show
// up as not alive.
func (g *Registry) Roster() ([]Participant, error) {
	var out []Participant
	err := g.log.WithLock(func() error {
		for i := range g.r.entries {
			e := &g.r.entries[i]
			if e.pid == 0 {
				continue
			}
			out = append(out, Participant{
				ID:     uuid.UUID(e.id),
				PID:    int(e.pid),
				Name:   string(e.name[:min(e.nameLen, chatlog.MaxAuthorLen)]),
				Joined: time.Unix(0, e.joined),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Alive = shm.ProcessAlive(out[i].PID)
	}
	slices.SortStableFunc(out, func(a, b Participant) int { return a.Joined.Compare(b.Joined) })
	return out, nil
}

// addEntry is called with the log mutex held.
func (g *Registry) addEntry(id uuid.UUID, pid int, name string) bool {
	for i := range g.r.entries {
		e := &g.r.entries[i]
		if e.pid != 0 {
			continue
		}
		e.id = id
		e.pid = uint32(pid)
		e.joined = time.Now().UnixNano()
		e.nameLen = uint32(copy(e.name[:], name))
		return true
	}
	return false
}

// removeEntry is called with the log mutex held. A process may attach
// more than once; one entry is removed per detach.
func (g *Registry) removeEntry(pid int) {
	for i := range g.r.entries {
		if g.r.entries[i].pid == uint32(pid) {
			g.r.entries[i] = rosterEntry{}
			return
		}
	}
}
