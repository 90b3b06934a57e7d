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

	"github.com/cenkalti/backoff/v4"

	"github.com/srediag/shm-watch/pkg/shm"
)

// Watcher is an observer over a region some publisher initialized. Each
// watcher keeps a private last-seen version; watchers never write to
// shared memory except through the lock's own bookkeeping.
//
// HasChanged must stay on a single goroutine (it mutates the cached
// version); Read may run concurrently with it.
type Watcher[T any] struct {
	shared   shared
	region   *shm.Region
	lastSeen uint32
}

// NewWatcher attaches an observer to an already-mapped region. The
// publisher need not still be alive; operations report ErrWatchedGone
// once it closed. The caller keeps ownership of the region.
//
// Panics if the region is too small for the layout or if T is not a
// fixed-layout type.
func NewWatcher[T any](region *shm.Region) (*Watcher[T], error) {
	assertFixedLayout(reflect.TypeOf((*T)(nil)).Elem())
	var zero T
	sh, err := newShared(region, int(unsafe.Sizeof(zero)), true)
	if err != nil {
		return nil, err
	}
	return &Watcher[T]{shared: sh}, nil
}

// Open maps the region at path and attaches an observer. The returned
// handle owns the mapping: Close unmaps it.
func Open[T any](path string) (*Watcher[T], error) {
	region, err := shm.OpenRegion(path, RegionSize[T]())
	if err != nil {
		return nil, err
	}
	w, err := NewWatcher[T](region)
	if err != nil {
		_ = region.Close()
		return nil, err
	}
	w.region = region
	return w, nil
}

// OpenWait is Open retried under the given backoff policy, for observers
// that may start before the publisher has created the segment.
func OpenWait[T any](path string, bo backoff.BackOff) (*Watcher[T], error) {
	var w *Watcher[T]
	err := backoff.Retry(func() error {
		var err error
		w, err = Open[T](path)
		return err
	}, bo)
	if err != nil {
		return nil, fmt.Errorf("attach to %s: %w", path, err)
	}
	return w, nil
}

// HasChanged polls the shared tick without taking a lock. It returns true
// once per observed version change, ErrWatchedGone after the publisher
// closed, and false otherwise. Note the version is a hint, not a
// consistency guarantee: a Read after a true result returns some
// completed write no older than the observed version, not necessarily
// that exact one.
func (w *Watcher[T]) HasChanged() (bool, error) {
	cur, ok := w.shared.tick.observe()
	if !ok {
		goneTotal.Inc()
		return false, ErrWatchedGone
	}
	if cur != w.lastSeen {
		w.lastSeen = cur
		changesTotal.Inc()
		return true, nil
	}
	return false, nil
}

// Gone reports whether the publisher closed the region. Lock-free and
// side-effect free, usable from health checks.
func (w *Watcher[T]) Gone() bool {
	_, ok := w.shared.tick.observe()
	return !ok
}

// Read passes a consistent view of the payload to fn under the shared
// lock. Concurrent Reads from other watchers proceed in parallel; a
// publisher Write is excluded for fn's whole duration, so fn must not
// retain the pointer and should return quickly.
func (w *Watcher[T]) Read(fn func(*T)) error {
	guard, err := w.shared.lock.RLock()
	if err != nil {
		return fmt.Errorf("watch read: %w", err)
	}
	defer guard.Unlock()

	b := guard.Bytes()
	fn((*T)(unsafe.Pointer(&b[0])))
	readsTotal.Inc()
	return nil
}

// Close releases the mapping when the watcher owns it (handles from Open
// and OpenWait). Watchers over caller-mapped regions need no Close.
func (w *Watcher[T]) Close() error {
	if w.region != nil {
		return w.region.Close()
	}
	return nil
}
