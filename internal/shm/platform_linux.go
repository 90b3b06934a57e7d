//go:build linux

package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MapRegion maps or creates a shared memory region (Linux implementation).
//
// With Create set, any existing file at the path is unlinked first, so the
// new segment never aliases a region another publisher left behind.
func MapRegion(opts MapOptions) (*MappedRegion, error) {
	flags := unix.O_RDWR
	if opts.Create {
		_ = unix.Unlink(opts.Path)
		flags |= unix.O_CREAT | unix.O_EXCL
	}
	fd, err := unix.Open(opts.Path, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Path, err)
	}
	if opts.Create {
		if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
			_ = unix.Close(fd)
			_ = unix.Unlink(opts.Path)
			return nil, fmt.Errorf("ftruncate %s: %w", opts.Path, err)
		}
	} else {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("fstat %s: %w", opts.Path, err)
		}
		if st.Size < int64(opts.Size) {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("segment %s holds %d bytes, need %d", opts.Path, st.Size, opts.Size)
		}
	}
	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		if opts.Create {
			_ = unix.Unlink(opts.Path)
		}
		return nil, fmt.Errorf("mmap %s: %w", opts.Path, err)
	}
	return &MappedRegion{
		Addr: addr,
		Fd:   fd,
	}, nil
}

// UnmapRegion unmaps and closes the shared memory region (Linux implementation).
func UnmapRegion(region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	if err := unix.Close(region.Fd); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// UnlinkRegion removes the backing file of an owned region.
func UnlinkRegion(path string) error {
	if err := unix.Unlink(path); err != nil && err != unix.ENOENT {
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	return nil
}
