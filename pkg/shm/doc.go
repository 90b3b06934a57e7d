// Package shm maps named, file-backed shared memory regions for
// inter-process communication (IPC).
//
// A Region is a fixed-size byte buffer visible to every process that maps
// the same path. CreateRegion destructively replaces whatever file exists
// at the path and marks the returned handle as the owner; the owner
// unlinks the backing file on Close. OpenRegion attaches to a segment some
// other process already created.
//
// Platform-specific helpers are in internal/shm.
package shm
