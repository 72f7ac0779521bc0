package chat

import (
	"fmt"
	"sync/atomic"

	"github.com/Iron-Ham/shmchat/internal/chatlog"
	"github.com/Iron-Ham/shmchat/internal/event"
	"github.com/Iron-Ham/shmchat/internal/logging"
)

// ReaderState is the reader loop's position in its lifecycle.
type ReaderState int32

const (
	// StateReplayHistory renders the retained history once at startup.
	StateReplayHistory ReaderState = iota
	// StateWaitForUpdate blocks on the shared condition.
	StateWaitForUpdate
	// StateRender renders the records that arrived since the cursor.
	StateRender
	// StateTerminated is final; the exit flag was observed or a wait failed.
	StateTerminated
)

func (s ReaderState) String() string {
	switch s {
	case StateReplayHistory:
		return "replay_history"
	case StateWaitForUpdate:
		return "wait_for_update"
	case StateRender:
		return "render"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Reader renders records to a sink as they are published. It owns the
// process's cursor: the sequence number of the last record it rendered.
type Reader struct {
	log    *chatlog.Log
	sink   LineSink
	bus    *event.Bus
	logger *logging.Logger

	exit   atomic.Bool
	cursor atomic.Uint64
	state  atomic.Int32
}

// NewReader creates a reader in the ReplayHistory state.
func NewReader(log *chatlog.Log, sink LineSink, bus *event.Bus, logger *logging.Logger) *Reader {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Reader{log: log, sink: sink, bus: bus, logger: logger.WithComponent("reader")}
}

// Cursor returns the sequence number of the last rendered record.
func (r *Reader) Cursor() uint64 {
	return r.cursor.Load()
}

// State returns the current lifecycle state.
func (r *Reader) State() ReaderState {
	return ReaderState(r.state.Load())
}

// RequestExit sets the exit flag. The reader notices it the next time it
// evaluates its wait predicate, so callers follow up with a wake on the log.
func (r *Reader) RequestExit() {
	r.exit.Store(true)
}

// Replay renders the retained history under a heading and moves the
// cursor to the snapshot's sequence number.
func (r *Reader) Replay() error {
	r.state.Store(int32(StateReplayHistory))

	records, seq, err := r.log.SnapshotHistory()
	if err != nil {
		return err
	}
	for _, l := range HistoryLines(records) {
		if l.Kind == chatlog.KindNotice {
			r.sink.WriteLine(l)
			continue
		}
		r.render(l)
	}
	r.cursor.Store(seq)
	r.logger.Debug("history replayed", "records", len(records), "cursor", seq)
	return nil
}

// Run waits for new records and renders them until RequestExit. A wake
// with the exit flag set terminates without rendering.
func (r *Reader) Run() error {
	defer r.state.Store(int32(StateTerminated))

	for {
		r.state.Store(int32(StateWaitForUpdate))
		cursor := r.Cursor()
		seq, exited, err := r.log.WaitForUpdate(cursor, r.exit.Load)
		if err != nil {
			r.logger.Error("wait failed", "cursor", cursor, "error", err)
			return err
		}
		r.bus.Publish(event.NewReaderWokeEvent(cursor, seq))
		if exited {
			r.logger.Debug("exit signal observed", "cursor", cursor)
			return nil
		}

		r.state.Store(int32(StateRender))
		if err := r.renderSince(cursor); err != nil {
			return err
		}
	}
}

func (r *Reader) renderSince(cursor uint64) error {
	records, seq, missed, err := r.log.Since(cursor)
	if err != nil {
		return err
	}
	if missed > 0 {
		r.logger.Warn("records overwritten before rendering", "missed", missed, "cursor", cursor)
		r.sink.WriteLine(Notice(fmt.Sprintf("%d messages were dropped", missed)))
		r.bus.Publish(event.NewMessagesDroppedEvent(missed))
	}
	for _, rec := range records {
		r.render(lineFromRecord(rec, false))
	}
	r.cursor.Store(seq)
	return nil
}

func (r *Reader) render(l Line) {
	r.sink.WriteLine(l)
	r.bus.Publish(event.NewMessageRenderedEvent(l.Seq, l.Kind.String()))
}
