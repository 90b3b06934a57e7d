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
	"sync/atomic"
	"unsafe"
)

// The tick is logically one byte: bit 0 is the closed flag, bits 1..7 a
// version counter bumped by tickStep per write, wrapping mod 128. Go has
// no 8-bit atomics, so the byte lives in the low bits of an aligned
// uint32 word and every operation masks back to 8 bits to keep the wrap
// behavior.
const (
	tickClosedBit = uint32(1)
	tickStep      = uint32(1) << 1
	tickByteMask  = uint32(0xff)

	// word plus padding, keeps the lock metadata 8-aligned.
	tickSize = 8
)

type tick struct {
	word *uint32
}

func tickFromBytes(b []byte) tick {
	return tick{word: (*uint32)(unsafe.Pointer(&b[0]))}
}

// store overwrites the full tick byte. Used only at publisher
// initialization.
func (t tick) store(v uint8) {
	atomic.StoreUint32(t.word, uint32(v))
}

// tick bumps the version counter. The closed bit is untouched; callers
// never tick after close.
func (t tick) tick() {
	for {
		old := atomic.LoadUint32(t.word)
		if atomic.CompareAndSwapUint32(t.word, old, (old+tickStep)&tickByteMask) {
			return
		}
	}
}

// close sets the closed bit, preserving the version bits. Closing twice is
// an invariant violation.
func (t tick) close() {
	v, ok := t.observe()
	if !ok {
		panic("watch: tick already closed")
	}
	t.store(uint8(v | tickClosedBit))
}

// observe returns the tick byte and true, or false once the closed bit is
// set.
func (t tick) observe() (uint32, bool) {
	v := atomic.LoadUint32(t.word) & tickByteMask
	if v&tickClosedBit != 0 {
		return 0, false
	}
	return v, true
}
