//go:build linux

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

package lock

import (
	"fmt"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/srediag/shm-watch/internal/logging"
)

// Shared (non-private) futex operations: the word lives in a MAP_SHARED
// mapping and waiters may be in other processes.
const (
	futexOpWait = 0 // FUTEX_WAIT
	futexOpWake = 1 // FUTEX_WAKE
)

// futexWait blocks until the value at addr changes from val. Spurious
// returns are possible; callers must re-check their condition.
func futexWait(addr *uint32, val uint32) error {
	// Re-check atomically before entering the syscall so a wake between
	// the caller's snapshot and the futex entry is not lost.
	if atomic.LoadUint32(addr) != val {
		return nil
	}
	_, _, errno := syscall.Syscall6(
		syscall.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexOpWait,
		uintptr(val),
		0,
		0,
		0,
	)
	if errno != 0 {
		// EAGAIN: the value no longer matches. EINTR: interrupted by a
		// signal. Both mean "re-check and retry", not failure.
		if errno == syscall.EAGAIN || errno == syscall.EINTR {
			return nil
		}
		return fmt.Errorf("futex wait failed: %w", errno)
	}
	return nil
}

// futexWakeAll wakes every waiter on addr.
func futexWakeAll(addr *uint32) {
	_, _, errno := syscall.Syscall6(
		syscall.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexOpWake,
		uintptr(^uint32(0)>>1),
		0,
		0,
		0,
	)
	if errno != 0 {
		logging.Warnf("futex wake failed: %v", errno)
	}
}
