package shm

import (
	"bytes"
	"fmt"
	"unsafe"

	"github.com/Iron-Ham/shmchat/internal/errors"
)

// Handle is a capability for a named object inside a segment. It stores an
// offset, never an address: Pointer recomputes the address in the calling
// process's mapping.
type Handle struct {
	seg    *Segment
	name   string
	offset uintptr
	size   uintptr
}

// Name returns the object's directory name.
func (h Handle) Name() string {
	return h.name
}

// Offset returns the object's offset from the start of the segment.
func (h Handle) Offset() uintptr {
	return h.offset
}

// Size returns the object's size in bytes.
func (h Handle) Size() uintptr {
	return h.size
}

// Pointer returns the object's address in this process's mapping. The
// pointer is valid until the segment is closed and must never be stored
// inside the segment.
func (h Handle) Pointer() unsafe.Pointer {
	return unsafe.Pointer(&h.seg.mem[h.offset])
}

// FindOrConstruct locates the object called name, or allocates size bytes
// aligned to align and runs ctor on the zeroed memory. Lookup, allocation
// and construction happen under the segment's file lock, so callers racing
// from different processes converge on a single instance; created reports
// whether this call ran ctor.
//
// Finding an existing object whose size differs from size is reported as
// corruption: two binaries disagree about the layout.
func (s *Segment) FindOrConstruct(name string, size, align uintptr, ctor func(unsafe.Pointer)) (h Handle, created bool, err error) {
	if err := validateName(name, "object"); err != nil {
		return Handle{}, false, err
	}
	if size == 0 {
		return Handle{}, false, errors.NewValidationError("object size must be positive").WithField("size")
	}
	if align == 0 || align&(align-1) != 0 {
		return Handle{}, false, errors.NewValidationError("alignment must be a power of two").WithField("align").WithValue(align)
	}

	unlock, err := s.lockFile()
	if err != nil {
		return Handle{}, false, err
	}
	defer unlock()

	if s.Closed() {
		return Handle{}, false, errors.NewSegmentError("segment is being torn down", errors.ErrSegmentClosed).
			WithSegment(s.name).WithObject(name)
	}

	if e, ok := s.lookup(name); ok {
		if e.ready == 0 {
			return Handle{}, false, errors.NewSegmentError("object was never constructed", errors.ErrSegmentCorrupt).
				WithSegment(s.name).WithObject(name)
		}
		if uintptr(e.size) != size {
			return Handle{}, false, errors.NewSegmentError(
				fmt.Sprintf("object size mismatch: have %d, want %d", e.size, size), errors.ErrSegmentCorrupt).
				WithSegment(s.name).WithObject(name)
		}
		return Handle{seg: s, name: name, offset: uintptr(e.offset), size: size}, false, nil
	}

	hdr := s.header()
	if hdr.nobjects >= maxObjects {
		return Handle{}, false, errors.NewSegmentError("object directory is full", errors.ErrSegmentFull).
			WithSegment(s.name).WithObject(name)
	}

	offset := alignUp(uintptr(hdr.used), align)
	if offset+size > uintptr(len(s.mem)) {
		return Handle{}, false, errors.NewSegmentError(
			fmt.Sprintf("need %d bytes at offset %d, segment has %d", size, offset, len(s.mem)), errors.ErrSegmentFull).
			WithSegment(s.name).WithObject(name)
	}

	clear(s.mem[offset : offset+size])
	h = Handle{seg: s, name: name, offset: offset, size: size}
	if ctor != nil {
		ctor(h.Pointer())
	}

	e := s.entry(int(hdr.nobjects))
	*e = dirEntry{}
	copy(e.name[:], name)
	e.offset = uint64(offset)
	e.size = uint64(size)
	e.ready = 1
	hdr.nobjects++
	hdr.used = uint64(offset + size)

	return h, true, nil
}

// Find locates an existing object without constructing it.
func (s *Segment) Find(name string) (Handle, bool, error) {
	unlock, err := s.lockFile()
	if err != nil {
		return Handle{}, false, err
	}
	defer unlock()

	e, ok := s.lookup(name)
	if !ok || e.ready == 0 {
		return Handle{}, false, nil
	}
	return Handle{seg: s, name: name, offset: uintptr(e.offset), size: uintptr(e.size)}, true, nil
}

// lookup scans the directory. The caller holds the file lock.
func (s *Segment) lookup(name string) (*dirEntry, bool) {
	n := int(s.header().nobjects)
	for i := 0; i < n && i < maxObjects; i++ {
		e := s.entry(i)
		if entryName(e) == name {
			return e, true
		}
	}
	return nil, false
}

func entryName(e *dirEntry) string {
	if i := bytes.IndexByte(e.name[:], 0); i >= 0 {
		return string(e.name[:i])
	}
	return string(e.name[:])
}

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

// Construct is the typed form of FindOrConstruct for a fixed-size object.
// T must not contain Go pointers.
func Construct[T any](s *Segment, name string, init func(*T)) (*T, bool, error) {
	var zero T
	h, created, err := s.FindOrConstruct(name, unsafe.Sizeof(zero), unsafe.Alignof(zero), func(p unsafe.Pointer) {
		if init != nil {
			init((*T)(p))
		}
	})
	if err != nil {
		return nil, false, err
	}
	return (*T)(h.Pointer()), created, nil
}

// ObjectInfo describes one directory entry.
type ObjectInfo struct {
	Name   string
	Offset uint64
	Size   uint64
}

// Stats summarizes segment usage.
type Stats struct {
	Name       string
	Path       string
	Size       uint64
	Used       uint64
	Closed     bool
	CreatorPID int
	Objects    []ObjectInfo
}

// Stats returns a consistent snapshot of the header and directory.
func (s *Segment) Stats() (Stats, error) {
	unlock, err := s.lockFile()
	if err != nil {
		return Stats{}, err
	}
	defer unlock()

	hdr := s.header()
	st := Stats{
		Name:       s.name,
		Path:       s.path,
		Size:       hdr.size,
		Used:       hdr.used,
		Closed:     s.Closed(),
		CreatorPID: int(hdr.creator),
	}
	for i := 0; i < int(hdr.nobjects) && i < maxObjects; i++ {
		e := s.entry(i)
		st.Objects = append(st.Objects, ObjectInfo{Name: entryName(e), Offset: e.offset, Size: e.size})
	}
	return st, nil
}
