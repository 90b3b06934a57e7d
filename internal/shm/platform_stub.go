//go:build !linux

package shm

// MapRegion is unavailable on this platform.
func MapRegion(opts MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupportedPlatform
}

// UnmapRegion is unavailable on this platform.
func UnmapRegion(region *MappedRegion) error {
	return ErrUnsupportedPlatform
}

// UnlinkRegion is unavailable on this platform.
func UnlinkRegion(path string) error {
	return ErrUnsupportedPlatform
}
