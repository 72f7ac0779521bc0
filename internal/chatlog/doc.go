// Package chatlog implements the message log shared by every participant
// of a chat segment.
//
// The log lives in four named objects inside a shm.Segment: the record
// storage, a futex mutex, a condition variable, and the sequence counter.
// Records are addressed by logical sequence number; the physical slot is
// derived only when storage is touched, so change detection never depends
// on where a record happens to sit.
//
// Two retention modes exist. A ring keeps the newest Capacity records and
// reports how many a slow reader missed. Append mode keeps everything and
// fails with ErrLogFull once its slot area is exhausted.
package chatlog
