package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/Iron-Ham/shmchat/internal/errors"
)

// Layout constants
const (
	// SegmentVersion is bumped whenever the header or directory layout changes.
	SegmentVersion = uint32(1)

	// headerSize is the fixed size of the segment header.
	headerSize = 128

	// maxObjects is the number of directory entries in a segment.
	maxObjects = 16

	// MaxObjectName is the longest object name the directory can hold.
	MaxObjectName = 40

	// entrySize is the size of one directory entry.
	entrySize = 64

	// dataOffset is where object storage begins.
	dataOffset = headerSize + maxObjects*entrySize

	// MinSegmentSize is the smallest segment that can hold any object.
	MinSegmentSize = 4096

	// filePrefix namespaces backing files in the shared directory.
	filePrefix = "shmchat_"
)

// segmentMagic identifies a shmchat segment.
var segmentMagic = [8]byte{'S', 'H', 'M', 'C', 'H', 'A', 'T', 0}

// header is the first headerSize bytes of every segment.
type header struct {
	magic    [8]byte // 0x00
	version  uint32  // 0x08
	closed   uint32  // 0x0C: set by the process that tears the segment down
	size     uint64  // 0x10: total mapped size
	used     uint64  // 0x18: bump allocator cursor (offset of next free byte)
	nobjects uint32  // 0x20: populated directory entries
	creator  uint32  // 0x24: PID of the initializing process
	reserved [88]byte
}

// dirEntry records one named object.
type dirEntry struct {
	name   [MaxObjectName]byte
	offset uint64
	size   uint64
	ready  uint32
	_      uint32
}

func init() {
	if unsafe.Sizeof(header{}) != headerSize {
		panic(fmt.Sprintf("shm: header size is %d, expected %d", unsafe.Sizeof(header{}), headerSize))
	}
	if unsafe.Sizeof(dirEntry{}) != entrySize {
		panic(fmt.Sprintf("shm: directory entry size is %d, expected %d", unsafe.Sizeof(dirEntry{}), entrySize))
	}
}

// Option configures where a segment's backing object lives.
type Option func(*options)

type options struct {
	dir string
}

// WithDir places the backing file in dir instead of /dev/shm. Tests use it
// with t.TempDir() so concurrent runs never share a segment.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Path returns the backing file path for a segment name.
func Path(name string, opts ...Option) string {
	o := buildOptions(opts)
	dir := o.dir
	if dir == "" {
		dir = defaultDir()
	}
	return filepath.Join(dir, filePrefix+name)
}

// defaultDir prefers /dev/shm and falls back to the temporary directory.
func defaultDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// Segment is one process's mapping of a named shared-memory segment.
// A Segment is safe for concurrent use by multiple goroutines.
type Segment struct {
	name string
	path string
	file *os.File
	mem  []byte

	// dirMu serializes flock use within this process; flock alone does not
	// exclude goroutines sharing one open file description.
	dirMu sync.Mutex
}

// OpenOrCreate attaches to the named segment, creating it with sizeBytes of
// capacity if it does not exist. When the segment already exists its
// recorded size wins and sizeBytes is ignored.
func OpenOrCreate(name string, sizeBytes int, opts ...Option) (*Segment, error) {
	if err := validateName(name, "segment"); err != nil {
		return nil, err
	}
	if sizeBytes < MinSegmentSize {
		return nil, errors.NewValidationError(fmt.Sprintf("segment size must be at least %d bytes", MinSegmentSize)).
			WithField("size_bytes").WithValue(sizeBytes)
	}

	path := Path(name, opts...)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.NewSegmentError("failed to create segment directory", errors.Join(errors.ErrSegmentOpen, err)).WithSegment(name)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errors.NewSegmentError("failed to open backing file", errors.Join(errors.ErrSegmentOpen, err)).WithSegment(name)
	}

	seg := &Segment{name: name, path: path, file: file}
	if err := seg.attach(sizeBytes); err != nil {
		_ = seg.Close()
		return nil, err
	}
	return seg, nil
}

// Open attaches to an existing segment. It never creates one; a missing
// segment is a NotFoundError.
func Open(name string, opts ...Option) (*Segment, error) {
	if err := validateName(name, "segment"); err != nil {
		return nil, err
	}
	path := Path(name, opts...)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("segment", name).WithCause(errors.ErrSegmentOpen)
	}
	if err != nil {
		return nil, errors.NewSegmentError("failed to open backing file", errors.Join(errors.ErrSegmentOpen, err)).WithSegment(name)
	}

	seg := &Segment{name: name, path: path, file: file}
	if err := seg.attach(0); err != nil {
		_ = seg.Close()
		return nil, err
	}
	return seg, nil
}

// attach initializes or validates the header under the file lock. A zero
// sizeBytes only attaches to an initialized segment.
func (s *Segment) attach(sizeBytes int) error {
	unlock, err := s.lockFile()
	if err != nil {
		return err
	}
	defer unlock()

	info, err := s.file.Stat()
	if err != nil {
		return errors.NewSegmentError("failed to stat backing file", errors.Join(errors.ErrSegmentOpen, err)).WithSegment(s.name)
	}

	created := info.Size() == 0
	size := int(info.Size())
	if created && sizeBytes == 0 {
		return errors.NewSegmentError("backing file is empty", errors.ErrSegmentCorrupt).WithSegment(s.name)
	}
	if created {
		if err := s.file.Truncate(int64(sizeBytes)); err != nil {
			return errors.NewSegmentError("failed to size backing file", errors.Join(errors.ErrSegmentOpen, err)).WithSegment(s.name)
		}
		size = sizeBytes
	} else if size < MinSegmentSize {
		return errors.NewSegmentError(fmt.Sprintf("backing file too small: %d bytes", size), errors.ErrSegmentCorrupt).WithSegment(s.name)
	}

	mem, err := mapFile(s.file, size)
	if err != nil {
		return errors.NewSegmentError("failed to map segment", errors.Join(errors.ErrSegmentOpen, err)).WithSegment(s.name)
	}
	s.mem = mem

	h := s.header()
	if created {
		h.magic = segmentMagic
		h.version = SegmentVersion
		h.size = uint64(size)
		h.used = dataOffset
		h.creator = uint32(os.Getpid())
		return nil
	}
	return s.validate()
}

// validate checks an existing header. The caller holds the file lock.
func (s *Segment) validate() error {
	h := s.header()
	if h.magic != segmentMagic {
		return errors.NewSegmentError("bad magic", errors.ErrSegmentCorrupt).WithSegment(s.name)
	}
	if h.version != SegmentVersion {
		return errors.NewSegmentError(fmt.Sprintf("unsupported version %d", h.version), errors.ErrSegmentCorrupt).WithSegment(s.name)
	}
	if h.size != uint64(len(s.mem)) || h.used < dataOffset || h.used > h.size || h.nobjects > maxObjects {
		return errors.NewSegmentError("inconsistent header", errors.ErrSegmentCorrupt).WithSegment(s.name)
	}
	if s.Closed() {
		return errors.NewSegmentError("segment is being torn down", errors.ErrSegmentClosed).WithSegment(s.name)
	}
	return nil
}

// Name returns the segment name.
func (s *Segment) Name() string {
	return s.name
}

// Path returns the backing file path.
func (s *Segment) Path() string {
	return s.path
}

// Size returns the mapped size in bytes.
func (s *Segment) Size() int {
	return len(s.mem)
}

// Capacity returns the bytes available for objects, independent of how
// many are already allocated.
func (s *Segment) Capacity() int {
	return len(s.mem) - dataOffset
}

// Closed reports whether the last participant has marked the segment for removal.
func (s *Segment) Closed() bool {
	return atomic.LoadUint32(&s.header().closed) != 0
}

// MarkClosed flags the segment so late attachers fail closed instead of
// joining a segment that is about to be unlinked.
func (s *Segment) MarkClosed() error {
	unlock, err := s.lockFile()
	if err != nil {
		return err
	}
	defer unlock()
	atomic.StoreUint32(&s.header().closed, 1)
	return nil
}

// Close unmaps the segment and closes the backing file. It does not remove
// the segment. Pointers obtained from the segment are invalid afterwards.
func (s *Segment) Close() error {
	var errs []error
	if s.mem != nil {
		if err := unmapFile(s.mem); err != nil {
			errs = append(errs, err)
		}
		s.mem = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
		s.file = nil
	}
	return errors.Join(errs...)
}

// Remove unlinks the backing object for a segment name. Processes that
// still map it keep their mapping; new attachers get a fresh segment.
// Removing a segment that does not exist is not an error.
func Remove(name string, opts ...Option) error {
	if err := os.Remove(Path(name, opts...)); err != nil && !os.IsNotExist(err) {
		return errors.NewSegmentError("failed to remove segment", err).WithSegment(name)
	}
	return nil
}

// Exists reports whether a backing object exists for the segment name.
func Exists(name string, opts ...Option) bool {
	_, err := os.Stat(Path(name, opts...))
	return err == nil
}

// header returns the header view of the mapping.
func (s *Segment) header() *header {
	return (*header)(unsafe.Pointer(&s.mem[0]))
}

// entry returns directory entry i.
func (s *Segment) entry(i int) *dirEntry {
	return (*dirEntry)(unsafe.Pointer(&s.mem[headerSize+i*entrySize]))
}

// lockFile takes the in-process mutex and an exclusive flock on the backing file.
func (s *Segment) lockFile() (func(), error) {
	s.dirMu.Lock()
	if err := flockExclusive(s.file); err != nil {
		s.dirMu.Unlock()
		return nil, errors.NewSyncError("failed to lock segment directory", errors.Join(errors.ErrPrimitiveFailed, err)).WithPrimitive("flock")
	}
	return func() {
		_ = flockRelease(s.file)
		s.dirMu.Unlock()
	}, nil
}

func validateName(name, field string) error {
	if name == "" {
		return errors.NewValidationError("name must not be empty").WithField(field)
	}
	if len(name) > MaxObjectName {
		return errors.NewValidationError(fmt.Sprintf("name longer than %d bytes", MaxObjectName)).WithField(field).WithValue(name)
	}
	for _, r := range name {
		if r == '/' || r == 0 {
			return errors.NewValidationError("name contains an invalid character").WithField(field).WithValue(name)
		}
	}
	return nil
}
