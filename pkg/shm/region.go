/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	internalshm "github.com/srediag/shm-watch/internal/shm"
)

// ErrShareMemoryHadNotLeftSpace means /dev/shm has not enough free space
// for the requested segment.
var ErrShareMemoryHadNotLeftSpace = errors.New("shared memory had not left space")

// Region is a named, fixed-size shared memory segment mapped into this
// process.
type Region struct {
	region *internalshm.MappedRegion
	path   string
	size   int
	owner  bool
}

// CreateRegion creates a new file-backed shared memory segment of exactly
// size bytes at path. Any existing segment at path is unconditionally
// replaced. The returned handle owns the segment: Close unlinks the
// backing file.
func CreateRegion(path string, size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid region size %d", size)
	}
	if !canCreateOnDevShm(uint64(size), path) {
		return nil, fmt.Errorf("err:%s path:%s, size:%d", ErrShareMemoryHadNotLeftSpace.Error(), path, size)
	}
	region, err := internalshm.MapRegion(internalshm.MapOptions{
		Path:   path,
		Size:   size,
		Create: true,
	})
	if err != nil {
		return nil, err
	}
	return &Region{
		region: region,
		path:   path,
		size:   size,
		owner:  true,
	}, nil
}

// OpenRegion opens an existing segment at path, expecting at least size
// mapped bytes. It fails if the segment does not exist or cannot be mapped.
func OpenRegion(path string, size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid region size %d", size)
	}
	region, err := internalshm.MapRegion(internalshm.MapOptions{
		Path: path,
		Size: size,
	})
	if err != nil {
		return nil, err
	}
	return &Region{
		region: region,
		path:   path,
		size:   size,
	}, nil
}

// Bytes returns the mapped bytes. The slice aliases shared memory and is
// valid until Close.
func (r *Region) Bytes() []byte {
	return r.region.Addr
}

// Len returns the mapped size in bytes.
func (r *Region) Len() int {
	return r.size
}

// Name returns the path of the backing file.
func (r *Region) Name() string {
	return r.path
}

// Owner reports whether this handle created the segment.
func (r *Region) Owner() bool {
	return r.owner
}

// Close unmaps the segment and, when this handle is the owner, unlinks the
// backing file.
func (r *Region) Close() error {
	if err := internalshm.UnmapRegion(r.region); err != nil {
		return err
	}
	if r.owner {
		return internalshm.UnlinkRegion(r.path)
	}
	return nil
}

// canCreateOnDevShm reports whether a segment of the given size still fits
// on /dev/shm. Paths outside /dev/shm are not checked.
func canCreateOnDevShm(size uint64, path string) bool {
	if strings.HasPrefix(path, "/dev/shm") {
		stat, err := disk.Usage("/dev/shm")
		if err != nil {
			return true
		}
		return stat.Free >= size
	}
	return true
}
