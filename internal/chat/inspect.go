package chat

import (
	"fmt"

	"github.com/Iron-Ham/shmchat/internal/chatlog"
	"github.com/Iron-Ham/shmchat/internal/errors"
	"github.com/Iron-Ham/shmchat/internal/shm"
)

// Snapshot is a read-only view of a chat taken without attaching.
type Snapshot struct {
	Segment      shm.Stats
	Log          chatlog.Info
	Participants []Participant
	History      []chatlog.Record
}

// Inspect reads a chat's state without joining it. It never creates the
// segment or any object in it; a chat that does not exist yet is a
// NotFoundError.
func Inspect(cfg SessionConfig) (Snapshot, error) {
	cfg = cfg.withDefaults()
	seg, err := shm.Open(cfg.Segment, cfg.SegmentOptions()...)
	if err != nil {
		return Snapshot{}, err
	}
	defer seg.Close()

	st, err := seg.Stats()
	if err != nil {
		return Snapshot{}, err
	}
	if err := requireObjects(st, cfg.Names); err != nil {
		return Snapshot{}, err
	}

	// Every object exists, so opening only binds to them.
	log, err := chatlog.Open(seg, chatlog.Options{Names: cfg.Names.Names})
	if err != nil {
		return Snapshot{}, err
	}
	reg, err := OpenRegistry(seg, log, cfg.Names.Participants, nil)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Segment: st}
	if snap.Log, err = log.Info(); err != nil {
		return Snapshot{}, err
	}
	if snap.Participants, err = reg.Roster(); err != nil {
		return Snapshot{}, err
	}
	if snap.History, _, err = log.SnapshotHistory(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func requireObjects(st shm.Stats, names Names) error {
	present := make(map[string]bool, len(st.Objects))
	for _, o := range st.Objects {
		present[o.Name] = true
	}
	for _, name := range []string{names.Log, names.Mutex, names.Condition, names.Sequence, names.Participants} {
		if !present[name] {
			return errors.NewNotFoundError("object", name).
				WithCause(fmt.Errorf("segment %s is not initialized", st.Name))
		}
	}
	return nil
}

// Remove unlinks a chat's segment. Unless force is set it refuses while a
// live participant is attached. A missing segment is not an error.
func Remove(cfg SessionConfig, force bool) error {
	cfg = cfg.withDefaults()
	if !force {
		snap, err := Inspect(cfg)
		var nf *errors.NotFoundError
		switch {
		case errors.As(err, &nf) && nf.ResourceType == "segment":
			return nil
		case errors.Is(err, errors.ErrSegmentClosed):
			// Left behind by a last participant that died mid-teardown.
			return shm.Remove(cfg.Segment, cfg.SegmentOptions()...)
		case err != nil:
			return errors.Wrap(err, "failed to inspect segment; use force to remove it anyway")
		}
		for _, p := range snap.Participants {
			if p.Alive {
				return errors.NewValidationError(fmt.Sprintf("%s (pid %d) is still attached", p.Name, p.PID)).
					WithField("segment").WithValue(cfg.Segment)
			}
		}
	}
	return shm.Remove(cfg.Segment, cfg.SegmentOptions()...)
}
