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

// Package lock provides a cross-process reader-writer lock living inside a
// caller-supplied shared memory slice.
//
// The lock occupies MetadataSize bytes of metadata and governs a second
// byte slice handed to the factory. New initializes fresh lock state and is
// called by exactly one process; every other process joins with Attach.
// Both return the same capability: Lock for exclusive access, RLock for
// shared access, each yielding a Guard that dereferences to the governed
// bytes and must be unlocked when done.
package lock

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

const (
	metadataSize = 16

	// state word layout: bit 31 set while a writer holds the lock,
	// bits 0..30 count the readers holding it.
	writerHeld = uint32(1) << 31

	// written into the second metadata word by New, verified by Attach.
	lockMagic = uint32(0x53574C4B)
)

// ErrNotInitialized means Attach found no initialized lock state in the
// metadata bytes.
var ErrNotInitialized = errors.New("lock metadata is not initialized")

// RWLock is a cross-process reader-writer lock over a byte slice.
type RWLock interface {
	// Lock acquires exclusive access, blocking until no reader or writer
	// holds the lock.
	Lock() (*Guard, error)
	// RLock acquires shared access, blocking only while a writer holds
	// the lock. Concurrent RLock holders are allowed.
	RLock() (*Guard, error)
}

// MetadataSize returns the number of metadata bytes a lock occupies.
func MetadataSize() int {
	return metadataSize
}

// New initializes fresh lock state in meta and returns a lock governing
// data. Exactly one process may call New per shared region.
func New(meta, data []byte) (RWLock, error) {
	l, err := newRWLock(meta, data)
	if err != nil {
		return nil, err
	}
	atomic.StoreUint32(l.state, 0)
	atomic.StoreUint32(l.magic, lockMagic)
	return l, nil
}

// Attach joins lock state previously initialized by New in another
// process.
func Attach(meta, data []byte) (RWLock, error) {
	l, err := newRWLock(meta, data)
	if err != nil {
		return nil, err
	}
	if atomic.LoadUint32(l.magic) != lockMagic {
		return nil, ErrNotInitialized
	}
	return l, nil
}

type rwLock struct {
	state *uint32
	magic *uint32
	data  []byte
}

func newRWLock(meta, data []byte) (*rwLock, error) {
	if len(meta) < metadataSize {
		return nil, fmt.Errorf("lock metadata needs %d bytes, got %d", metadataSize, len(meta))
	}
	return &rwLock{
		state: (*uint32)(unsafe.Pointer(&meta[0])),
		magic: (*uint32)(unsafe.Pointer(&meta[4])),
		data:  data,
	}, nil
}

func (l *rwLock) Lock() (*Guard, error) {
	for {
		if atomic.CompareAndSwapUint32(l.state, 0, writerHeld) {
			return &Guard{lock: l, writer: true}, nil
		}
		s := atomic.LoadUint32(l.state)
		if s == 0 {
			continue
		}
		if err := futexWait(l.state, s); err != nil {
			return nil, fmt.Errorf("exclusive lock wait: %w", err)
		}
	}
}

func (l *rwLock) RLock() (*Guard, error) {
	for {
		s := atomic.LoadUint32(l.state)
		if s&writerHeld == 0 {
			if atomic.CompareAndSwapUint32(l.state, s, s+1) {
				return &Guard{lock: l}, nil
			}
			continue
		}
		if err := futexWait(l.state, s); err != nil {
			return nil, fmt.Errorf("shared lock wait: %w", err)
		}
	}
}

// Guard holds the lock and dereferences to the governed bytes. It is valid
// until Unlock.
type Guard struct {
	lock     *rwLock
	writer   bool
	released bool
}

// Bytes returns the governed byte slice.
func (g *Guard) Bytes() []byte {
	return g.lock.data
}

// Unlock releases the lock and wakes waiters. Calling Unlock more than
// once is a no-op.
func (g *Guard) Unlock() {
	if g.released {
		return
	}
	g.released = true
	if g.writer {
		atomic.StoreUint32(g.lock.state, 0)
		futexWakeAll(g.lock.state)
		return
	}
	if atomic.AddUint32(g.lock.state, ^uint32(0)) == 0 {
		futexWakeAll(g.lock.state)
	}
}
