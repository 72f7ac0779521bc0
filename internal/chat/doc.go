// Package chat runs one participant's session against a shared chat log.
//
// A session attaches to the segment, replays the retained history, and
// then runs two loops that never talk to each other directly: the writer
// publishes lines read from a LineSource, and the reader sleeps on the
// shared condition and renders every record it has not yet seen to a
// LineSink. The last participant to leave posts a closing notice and
// removes the segment.
package chat
