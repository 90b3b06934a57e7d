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

package watch

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/srediag/shm-watch/internal/logging"
	"github.com/srediag/shm-watch/pkg/shm"
)

// Watched is the publisher side of a shared region. At most one Watched
// may exist per region at a time; this is a caller contract, not
// detected.
type Watched[T any] struct {
	shared shared
	region *shm.Region
	owns   bool
}

// NewWatched initializes publishing over an already-mapped region. The
// tick is reset to zero, so watchers attaching afterward see the first
// write as a change. The caller keeps ownership of the region.
//
// Panics if the region is too small for the layout or if T is not a
// fixed-layout type.
func NewWatched[T any](region *shm.Region) (*Watched[T], error) {
	assertFixedLayout(reflect.TypeOf((*T)(nil)).Elem())
	var zero T
	sh, err := newShared(region, int(unsafe.Sizeof(zero)), false)
	if err != nil {
		return nil, err
	}
	sh.tick.store(0)
	return &Watched[T]{shared: sh}, nil
}

// Create sizes, creates and maps a region at path and starts publishing
// over it. The returned handle owns the region: Close unlinks it.
func Create[T any](path string) (*Watched[T], error) {
	region, err := shm.CreateRegion(path, RegionSize[T]())
	if err != nil {
		return nil, err
	}
	w, err := NewWatched[T](region)
	if err != nil {
		_ = region.Close()
		return nil, err
	}
	w.region = region
	w.owns = true
	return w, nil
}

// Write publishes value, blocking until the exclusive lock is available.
// Once Write returns, every current and future watcher observes the
// change.
func (w *Watched[T]) Write(value T) error {
	guard, err := w.shared.lock.Lock()
	if err != nil {
		return fmt.Errorf("watch write: %w", err)
	}
	defer guard.Unlock()

	dst := guard.Bytes()
	*(*T)(unsafe.Pointer(&dst[0])) = value
	w.shared.tick.tick()
	writesTotal.Inc()
	return nil
}

// Close marks the region closed: watchers polling HasChanged get
// ErrWatchedGone from now on. If the handle owns the region it is also
// unmapped and unlinked. Closing twice panics.
func (w *Watched[T]) Close() error {
	w.shared.tick.close()
	if w.owns {
		if err := w.region.Close(); err != nil {
			logging.Warnf("release watched region: %v", err)
			return err
		}
	}
	return nil
}
