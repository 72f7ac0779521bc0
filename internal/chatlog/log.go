package chatlog

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/Iron-Ham/shmchat/internal/errors"
	"github.com/Iron-Ham/shmchat/internal/logging"
	"github.com/Iron-Ham/shmchat/internal/shm"
)

// Mode selects how the log retains records.
type Mode string

const (
	// ModeRing keeps the most recent Capacity records, overwriting the oldest.
	ModeRing Mode = "ring"
	// ModeAppend keeps every record until the slot area is exhausted.
	ModeAppend Mode = "append"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 10

// appendReserve is left free in append mode for the objects allocated
// after the log (the participant roster).
const appendReserve = 4096

// Names are the directory names of the log's shared objects.
type Names struct {
	Log       string
	Mutex     string
	Condition string
	Sequence  string
}

// DefaultNames returns the standard object names.
func DefaultNames() Names {
	return Names{
		Log:       "history",
		Mutex:     "mutex",
		Condition: "condition",
		Sequence:  "messages",
	}
}

// WithDefaults fills every empty name from DefaultNames.
func (n Names) WithDefaults() Names {
	d := DefaultNames()
	if n.Log == "" {
		n.Log = d.Log
	}
	if n.Mutex == "" {
		n.Mutex = d.Mutex
	}
	if n.Condition == "" {
		n.Condition = d.Condition
	}
	if n.Sequence == "" {
		n.Sequence = d.Sequence
	}
	return n
}

// Options configures Open.
type Options struct {
	Names    Names
	Mode     Mode
	Capacity int // ring capacity; ignored in append mode
	Logger   *logging.Logger
}

func (o Options) withDefaults() Options {
	o.Names = o.Names.WithDefaults()
	if o.Mode == "" {
		o.Mode = ModeRing
	}
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.Logger == nil {
		o.Logger = logging.NopLogger()
	}
	return o
}

// Shared mode encoding.
const (
	sharedRing   = 1
	sharedAppend = 2
)

// logHeader precedes the slot array inside the log object.
type logHeader struct {
	mode     uint32
	capacity uint32
	slotSize uint32
	_        uint32
	cleared  uint64 // records with seq <= cleared are no longer retained
	_        uint64
}

const logHeaderSize = unsafe.Sizeof(logHeader{})

// Log is the shared, ordered message log. Every method that touches
// records takes the shared mutex, and records are copied out before the
// mutex is released. A Log is safe for concurrent use by any number of
// goroutines and processes.
type Log struct {
	seg    *shm.Segment
	names  Names
	logger *logging.Logger

	mu    *shm.Mutex
	cond  *shm.Cond
	seq   *shm.Counter
	hdr   *logHeader
	slots []slot
}

// Open finds or constructs the log objects inside seg. When the log
// already exists its mode and capacity win over opts.
func Open(seg *shm.Segment, opts Options) (*Log, error) {
	opts = opts.withDefaults()
	if opts.Mode != ModeRing && opts.Mode != ModeAppend {
		return nil, errors.NewValidationError("unknown log mode").WithField("mode").WithValue(string(opts.Mode))
	}

	l := &Log{
		seg:    seg,
		names:  opts.Names,
		logger: opts.Logger.WithComponent("chatlog"),
	}

	var err error
	if l.mu, _, err = shm.Construct[shm.Mutex](seg, opts.Names.Mutex, nil); err != nil {
		return nil, err
	}
	if l.cond, _, err = shm.Construct[shm.Cond](seg, opts.Names.Condition, nil); err != nil {
		return nil, err
	}
	if l.seq, _, err = shm.Construct[shm.Counter](seg, opts.Names.Sequence, nil); err != nil {
		return nil, err
	}
	if err := l.openStorage(opts); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) openStorage(opts Options) error {
	h, found, err := l.seg.Find(opts.Names.Log)
	if err != nil {
		return err
	}
	if !found {
		capacity := opts.Capacity
		mode := uint32(sharedRing)
		if opts.Mode == ModeAppend {
			mode = sharedAppend
			capacity = (l.seg.Capacity() - appendReserve - int(logHeaderSize)) / int(slotSize)
		}
		if capacity <= 0 {
			return errors.NewSegmentError("segment too small for the message log", errors.ErrSegmentFull).
				WithSegment(l.seg.Name()).WithObject(opts.Names.Log)
		}

		var created bool
		size := logHeaderSize + uintptr(capacity)*slotSize
		h, created, err = l.seg.FindOrConstruct(opts.Names.Log, size, 8, func(p unsafe.Pointer) {
			hdr := (*logHeader)(p)
			hdr.mode = mode
			hdr.capacity = uint32(capacity)
			hdr.slotSize = uint32(slotSize)
		})
		if err != nil {
			return err
		}
		if created {
			l.logger.Debug("constructed message log", "mode", opts.Mode, "capacity", capacity)
		}
	}
	return l.bind(h)
}

func (l *Log) bind(h shm.Handle) error {
	hdr := (*logHeader)(h.Pointer())
	corrupt := func(msg string) error {
		return errors.NewSegmentError(msg, errors.ErrSegmentCorrupt).WithSegment(l.seg.Name()).WithObject(h.Name())
	}
	if hdr.slotSize != uint32(slotSize) {
		return corrupt(fmt.Sprintf("slot size %d, expected %d", hdr.slotSize, slotSize))
	}
	if hdr.mode != sharedRing && hdr.mode != sharedAppend {
		return corrupt(fmt.Sprintf("unknown mode %d", hdr.mode))
	}
	if hdr.capacity == 0 || logHeaderSize+uintptr(hdr.capacity)*slotSize != h.Size() {
		return corrupt("capacity does not match object size")
	}

	l.hdr = hdr
	l.slots = unsafe.Slice((*slot)(unsafe.Add(h.Pointer(), logHeaderSize)), hdr.capacity)
	return nil
}

// Mode returns the retention mode recorded in the segment.
func (l *Log) Mode() Mode {
	if l.hdr.mode == sharedAppend {
		return ModeAppend
	}
	return ModeRing
}

// Capacity returns the number of slots.
func (l *Log) Capacity() int {
	return len(l.slots)
}

// Names returns the object names the log was opened with.
func (l *Log) Names() Names {
	return l.names
}

// Seq returns the sequence number of the latest record. It never
// decreases while the segment exists.
func (l *Log) Seq() uint64 {
	return uint64(l.seq.Load())
}

// Append stores a record and advances the sequence by one, returning the
// record's sequence number. Waiters are not woken; see Publish.
func (l *Log) Append(kind Kind, author, text string) (uint64, error) {
	if kind == KindNotice || kind == 0 {
		return 0, errors.NewValidationError("kind cannot be stored").WithField("kind").WithValue(kind.String())
	}
	if len(author) > MaxAuthorLen {
		return 0, errors.Wrapf(errors.ErrRecordTooLarge, "author is %d bytes, limit %d", len(author), MaxAuthorLen)
	}
	if len(text) > MaxTextLen {
		return 0, errors.Wrapf(errors.ErrRecordTooLarge, "message is %d bytes, limit %d", len(text), MaxTextLen)
	}

	if err := l.mu.Lock(); err != nil {
		return 0, err
	}
	defer l.mu.Unlock()

	next := l.Seq() + 1
	idx, ok := l.index(next)
	if !ok {
		return 0, errors.NewSegmentError(
			fmt.Sprintf("all %d slots are used", len(l.slots)), errors.Join(errors.ErrLogFull, errors.ErrSegmentFull)).
			WithSegment(l.seg.Name()).WithObject(l.names.Log)
	}
	l.slots[idx].store(next, kind, author, text, time.Now())
	l.seq.Store(int64(next))
	return next, nil
}

// Publish appends a record and wakes every waiter in every process.
func (l *Log) Publish(kind Kind, author, text string) (uint64, error) {
	seq, err := l.Append(kind, author, text)
	if err != nil {
		return 0, err
	}
	if err := l.cond.Broadcast(); err != nil {
		return seq, err
	}
	return seq, nil
}

// SnapshotHistory returns every retained record, oldest first, and the
// sequence number the snapshot corresponds to.
func (l *Log) SnapshotHistory() ([]Record, uint64, error) {
	if err := l.mu.Lock(); err != nil {
		return nil, 0, err
	}
	defer l.mu.Unlock()

	seq := l.Seq()
	return l.collect(l.retainedAfter(seq), seq), seq, nil
}

// MostRecent returns the latest retained record.
func (l *Log) MostRecent() (Record, bool, error) {
	if err := l.mu.Lock(); err != nil {
		return Record{}, false, err
	}
	defer l.mu.Unlock()

	seq := l.Seq()
	if seq <= l.retainedAfter(seq) {
		return Record{}, false, nil
	}
	idx, _ := l.index(seq)
	return l.slots[idx].load(), true, nil
}

// Since returns the retained records with sequence greater than cursor,
// the current sequence, and how many records after cursor were
// overwritten before they could be read.
func (l *Log) Since(cursor uint64) (records []Record, seq uint64, missed uint64, err error) {
	if err := l.mu.Lock(); err != nil {
		return nil, cursor, 0, err
	}
	defer l.mu.Unlock()

	seq = l.Seq()
	if cursor >= seq {
		return nil, seq, 0, nil
	}
	from := max(cursor, l.hdr.cleared)
	if evicted := l.evicted(seq); evicted > from {
		missed = evicted - from
	}
	return l.collect(max(cursor, l.retainedAfter(seq)), seq), seq, missed, nil
}

// WaitForUpdate blocks until the sequence differs from cursor or exit
// reports true. It returns the sequence observed on waking and whether
// exit was set. exit is evaluated with the shared mutex held and must not
// block.
func (l *Log) WaitForUpdate(cursor uint64, exit func() bool) (uint64, bool, error) {
	if exit == nil {
		exit = func() bool { return false }
	}
	if err := l.mu.Lock(); err != nil {
		return cursor, false, err
	}
	if err := l.cond.WaitFor(l.mu, func() bool { return l.Seq() != cursor || exit() }); err != nil {
		return cursor, false, err
	}
	seq, exited := l.Seq(), exit()
	l.mu.Unlock()
	return seq, exited, nil
}

// Wake wakes every waiter without appending. Callers set their exit flag
// first; taking the mutex before broadcasting guarantees a waiter either
// sees the flag in its predicate or is already asleep when the broadcast
// lands.
func (l *Log) Wake() error {
	if err := l.mu.Lock(); err != nil {
		return err
	}
	l.mu.Unlock()
	return l.cond.Broadcast()
}

// Clear drops every retained record. The sequence is not reset.
func (l *Log) Clear() error {
	if err := l.mu.Lock(); err != nil {
		return err
	}
	defer l.mu.Unlock()

	l.hdr.cleared = l.Seq()
	clear(l.slots)
	return nil
}

// WithLock runs fn while holding the log's shared mutex. fn must not call
// other Log methods.
func (l *Log) WithLock(fn func() error) error {
	if err := l.mu.Lock(); err != nil {
		return err
	}
	defer l.mu.Unlock()
	return fn()
}

// Info summarizes the log for diagnostics.
type Info struct {
	Mode     Mode
	Capacity int
	Seq      uint64
	Retained int
}

// Info returns a consistent summary of the log.
func (l *Log) Info() (Info, error) {
	if err := l.mu.Lock(); err != nil {
		return Info{}, err
	}
	defer l.mu.Unlock()

	seq := l.Seq()
	return Info{
		Mode:     l.Mode(),
		Capacity: len(l.slots),
		Seq:      seq,
		Retained: int(seq - l.retainedAfter(seq)),
	}, nil
}

// evicted is the highest sequence number a ring has overwritten.
func (l *Log) evicted(seq uint64) uint64 {
	c := uint64(len(l.slots))
	if l.hdr.mode == sharedRing && seq > c {
		return seq - c
	}
	return 0
}

// retainedAfter returns lo such that records (lo, seq] are retained.
func (l *Log) retainedAfter(seq uint64) uint64 {
	return max(l.evicted(seq), l.hdr.cleared)
}

// index maps a logical sequence number to its slot.
func (l *Log) index(seq uint64) (int, bool) {
	c := uint64(len(l.slots))
	if l.hdr.mode == sharedRing {
		return int((seq - 1) % c), true
	}
	pos := seq - 1 - l.hdr.cleared
	if pos >= c {
		return 0, false
	}
	return int(pos), true
}

// collect copies records (lo, seq] out of the slots. The caller holds mu.
func (l *Log) collect(lo, seq uint64) []Record {
	if seq <= lo {
		return nil
	}
	out := make([]Record, 0, seq-lo)
	for s := lo + 1; s <= seq; s++ {
		idx, _ := l.index(s)
		out = append(out, l.slots[idx].load())
	}
	return out
}
