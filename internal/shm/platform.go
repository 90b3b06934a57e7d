// Package shm contains platform-specific helpers for mapping the shared
// memory region backing a watched value.
package shm

import "errors"

// ErrUnsupportedPlatform is returned on platforms without a shared memory backend.
var ErrUnsupportedPlatform = errors.New("shared memory mapping is not supported on this platform")

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Fd   int
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Path   string
	Size   int
	Create bool
}

// Function implementations are provided in platform-specific files
// (platform_linux.go, platform_stub.go).
