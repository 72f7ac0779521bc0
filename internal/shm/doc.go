// Package shm provides named shared-memory segments and the cross-process
// synchronization primitives that live inside them.
//
// A [Segment] is a file-backed mapping (under /dev/shm when available) that
// every participating process maps with MAP_SHARED. Processes map the same
// bytes at different virtual addresses, so nothing inside a segment ever
// stores a pointer. Objects are placed by a bump allocator and recorded in
// a small directory in the segment header; other processes locate them by
// name through [Segment.FindOrConstruct] and recompute addresses from their
// own mapping base.
//
// # Layout
//
//	[header 128B][directory maxObjects x 64B][objects ...]
//
// # Exactly-once construction
//
// Header initialization and every directory mutation happen while holding
// an exclusive flock on the backing file, so concurrent first attachers in
// different processes converge on a single instance of each named object.
//
// # Synchronization
//
// [Mutex] and [Cond] are futex words. On Linux they use the shared (not
// PRIVATE) futex operations so a wake in one process reaches waiters in
// every other process mapping the segment. On other platforms the futex
// calls degrade to a short sleep, which keeps the primitives correct since
// every waiter re-checks its predicate.
//
// Types placed in a segment must not contain Go pointers, strings, slices,
// maps or interfaces.
package shm
