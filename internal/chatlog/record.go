package chatlog

import (
	"fmt"
	"time"
	"unsafe"
)

// Kind classifies a record.
type Kind uint32

const (
	// KindChat is a line typed by a participant.
	KindChat Kind = iota + 1
	// KindJoin announces a participant entering the chat.
	KindJoin
	// KindLeave announces a participant leaving the chat.
	KindLeave
	// KindClosed is posted by the last participant before the segment is removed.
	KindClosed
	// KindNotice is local-only feedback and is never stored in the log.
	KindNotice
)

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindJoin:
		return "join"
	case KindLeave:
		return "leave"
	case KindClosed:
		return "closed"
	case KindNotice:
		return "notice"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// Slot payload limits, in bytes.
const (
	MaxAuthorLen = 32
	MaxTextLen   = 448
)

// Record is one message copied out of the shared log.
type Record struct {
	Seq    uint64
	Kind   Kind
	Author string
	Text   string
	Time   time.Time
}

// Line renders the record the way every participant prints it.
func (r Record) Line() string {
	if r.Kind == KindChat {
		return r.Author + ": " + r.Text
	}
	return r.Text
}

// slot is the fixed-size storage cell for one record.
type slot struct {
	seq       uint64
	unixNano  int64
	kind      uint32
	authorLen uint32
	textLen   uint32
	_         uint32
	author    [MaxAuthorLen]byte
	text      [MaxTextLen]byte
}

const slotSize = unsafe.Sizeof(slot{})

func (s *slot) store(seq uint64, kind Kind, author, text string, now time.Time) {
	s.seq = seq
	s.unixNano = now.UnixNano()
	s.kind = uint32(kind)
	s.authorLen = uint32(copy(s.author[:], author))
	s.textLen = uint32(copy(s.text[:], text))
}

func (s *slot) load() Record {
	return Record{
		Seq:    s.seq,
		Kind:   Kind(s.kind),
		Author: string(s.author[:min(s.authorLen, MaxAuthorLen)]),
		Text:   string(s.text[:min(s.textLen, MaxTextLen)]),
		Time:   time.Unix(0, s.unixNano),
	}
}
