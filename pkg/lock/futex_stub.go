//go:build !linux

package lock

import "errors"

var errFutexUnsupported = errors.New("futex-based locking is not supported on this platform")

func futexWait(addr *uint32, val uint32) error {
	return errFutexUnsupported
}

func futexWakeAll(addr *uint32) {}
