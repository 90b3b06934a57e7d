// Package watch implements a single-writer, multi-reader change
// notification primitive over a shared memory region.
//
// One process publishes a fixed-layout value through a Watched handle; any
// number of other processes attach Watcher handles to the same region,
// poll HasChanged without taking a lock, and read consistent snapshots
// under a shared lock. Publisher shutdown is signaled in-band: once the
// Watched handle is closed, every HasChanged call reports ErrWatchedGone.
//
// The region layout is a one-word version counter (the tick), the
// cross-process reader-writer lock's metadata, then the payload bytes.
// The tick is only a liveness hint; payload consistency comes from the
// lock discipline alone. The correct caller protocol is to poll
// HasChanged and call Read only after it reports a change.
//
// The payload type must have a fixed layout with no Go pointers in it:
// its raw byte representation is written and read directly across
// processes. If 128 or more writes land between two polls of one
// watcher, the 7-bit version counter wraps back to the same value and
// the change goes undetected; this is an accepted limitation.
package watch
