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

	"github.com/srediag/shm-watch/pkg/lock"
	"github.com/srediag/shm-watch/pkg/shm"
)

// Region layout:
//
//	[ tick: tickSize ][ lock metadata ][ payload, 8-aligned ]
const payloadAlign = 8

// shared is one process's view over the region: the tick, the lock, and
// through the lock's guards, the payload bytes. Each process builds its
// own shared over the same physical bytes.
type shared struct {
	tick tick
	lock lock.RWLock
}

func payloadOffset() int {
	return alignUp(tickSize+lock.MetadataSize(), payloadAlign)
}

// RegionSize returns the minimum region size in bytes for publishing a
// value of type T.
func RegionSize[T any]() int {
	var zero T
	return payloadOffset() + int(unsafe.Sizeof(zero))
}

// newShared carves the region into tick, lock metadata and payload. A
// region smaller than the layout requires is a programming error and
// panics with the byte shortfall. attach selects the lock's "join
// existing state" path used by watchers.
func newShared(region *shm.Region, payloadSize int, attach bool) (shared, error) {
	need := payloadOffset() + payloadSize
	if region.Len() < need {
		panic(fmt.Sprintf("watch: shared region too small, %d extra bytes needed (have %d, need %d)",
			need-region.Len(), region.Len(), need))
	}

	mem := region.Bytes()
	t := tickFromBytes(mem[:tickSize])
	meta := mem[tickSize : tickSize+lock.MetadataSize()]
	payload := mem[payloadOffset() : payloadOffset()+payloadSize]

	var (
		l   lock.RWLock
		err error
	)
	if attach {
		l, err = lock.Attach(meta, payload)
	} else {
		l, err = lock.New(meta, payload)
	}
	if err != nil {
		return shared{}, fmt.Errorf("region %s: %w", region.Name(), err)
	}
	return shared{tick: t, lock: l}, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// assertFixedLayout panics unless T's byte representation is safe to
// share across processes: no pointers, maps, chans, funcs, slices,
// strings or interfaces anywhere in it.
func assertFixedLayout(t reflect.Type) {
	if bad := findVariableLayout(t); bad != nil {
		panic(fmt.Sprintf("watch: payload type %s is not fixed-layout (%s)", t, bad))
	}
}

func findVariableLayout(t reflect.Type) error {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return nil
	case reflect.Array:
		return findVariableLayout(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if err := findVariableLayout(t.Field(i).Type); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("field kind %s cannot cross process boundaries", t.Kind())
	}
}
