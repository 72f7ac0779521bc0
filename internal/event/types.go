package event

import "time"

// Event is implemented by everything published on a Bus.
type Event interface {
	// EventType returns a "category.action" identifier.
	EventType() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// Event types
const (
	TypeParticipantAttached = "participant.attached"
	TypeParticipantDetached = "participant.detached"
	TypeMessagePublished    = "message.published"
	TypeMessageRendered     = "message.rendered"
	TypeMessagesDropped     = "message.dropped"
	TypeReaderWoke          = "reader.woke"
	TypeChatClosed          = "chat.closed"
)

// ParticipantAttachedEvent is emitted after this process attaches.
type ParticipantAttachedEvent struct {
	baseEvent
	Segment      string
	User         string
	Participants int64 // count after attaching
}

// NewParticipantAttachedEvent creates a ParticipantAttachedEvent.
func NewParticipantAttachedEvent(segment, user string, participants int64) ParticipantAttachedEvent {
	return ParticipantAttachedEvent{
		baseEvent:    newBaseEvent(TypeParticipantAttached),
		Segment:      segment,
		User:         user,
		Participants: participants,
	}
}

// ParticipantDetachedEvent is emitted after this process detaches.
type ParticipantDetachedEvent struct {
	baseEvent
	Segment      string
	User         string
	Participants int64 // count after detaching
}

// NewParticipantDetachedEvent creates a ParticipantDetachedEvent.
func NewParticipantDetachedEvent(segment, user string, participants int64) ParticipantDetachedEvent {
	return ParticipantDetachedEvent{
		baseEvent:    newBaseEvent(TypeParticipantDetached),
		Segment:      segment,
		User:         user,
		Participants: participants,
	}
}

// MessagePublishedEvent is emitted for every record this process appends.
type MessagePublishedEvent struct {
	baseEvent
	Seq  uint64
	Kind string
	Size int // payload bytes
}

// NewMessagePublishedEvent creates a MessagePublishedEvent.
func NewMessagePublishedEvent(seq uint64, kind string, size int) MessagePublishedEvent {
	return MessagePublishedEvent{baseEvent: newBaseEvent(TypeMessagePublished), Seq: seq, Kind: kind, Size: size}
}

// MessageRenderedEvent is emitted for every record the reader renders.
type MessageRenderedEvent struct {
	baseEvent
	Seq  uint64
	Kind string
}

// NewMessageRenderedEvent creates a MessageRenderedEvent.
func NewMessageRenderedEvent(seq uint64, kind string) MessageRenderedEvent {
	return MessageRenderedEvent{baseEvent: newBaseEvent(TypeMessageRendered), Seq: seq, Kind: kind}
}

// MessagesDroppedEvent is emitted when a ring overwrote records before the
// reader could render them.
type MessagesDroppedEvent struct {
	baseEvent
	Count uint64
}

// NewMessagesDroppedEvent creates a MessagesDroppedEvent.
func NewMessagesDroppedEvent(count uint64) MessagesDroppedEvent {
	return MessagesDroppedEvent{baseEvent: newBaseEvent(TypeMessagesDropped), Count: count}
}

// ReaderWokeEvent is emitted each time the reader returns from a wait.
type ReaderWokeEvent struct {
	baseEvent
	Cursor uint64
	Seq    uint64
}

// NewReaderWokeEvent creates a ReaderWokeEvent.
func NewReaderWokeEvent(cursor, seq uint64) ReaderWokeEvent {
	return ReaderWokeEvent{baseEvent: newBaseEvent(TypeReaderWoke), Cursor: cursor, Seq: seq}
}

// ChatClosedEvent is emitted by the last participant before the segment
// is removed.
type ChatClosedEvent struct {
	baseEvent
	Segment string
	Seq     uint64 // final sequence number
}

// NewChatClosedEvent creates a ChatClosedEvent.
func NewChatClosedEvent(segment string, seq uint64) ChatClosedEvent {
	return ChatClosedEvent{baseEvent: newBaseEvent(TypeChatClosed), Segment: segment, Seq: seq}
}
