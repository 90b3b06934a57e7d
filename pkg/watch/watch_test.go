//go:build linux

package watch

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/shm-watch/pkg/shm"
)

type testState struct {
	B [8]byte
}

func filled(b byte) testState {
	return testState{B: [8]byte{b, b, b, b, b, b, b, b}}
}

func regionPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "watch_region")
}

func TestPublishThenObserve(t *testing.T) {
	path := regionPath(t)

	watched, err := Create[testState](path)
	require.Nil(t, err)
	require.Nil(t, watched.Write(filled(123)))

	watcher, err := Open[testState](path)
	require.Nil(t, err)

	changed, err := watcher.HasChanged()
	require.Nil(t, err)
	assert.True(t, changed)

	var got testState
	require.Nil(t, watcher.Read(func(s *testState) {
		got = *s
	}))
	assert.Equal(t, filled(123), got)

	require.Nil(t, watcher.Close())
	require.Nil(t, watched.Close())
}

func TestHasChangedIsEdgeTriggered(t *testing.T) {
	path := regionPath(t)

	watched, err := Create[testState](path)
	require.Nil(t, err)
	require.Nil(t, watched.Write(filled(1)))

	watcher, err := Open[testState](path)
	require.Nil(t, err)

	changed, err := watcher.HasChanged()
	require.Nil(t, err)
	assert.True(t, changed)

	changed, err = watcher.HasChanged()
	require.Nil(t, err)
	assert.False(t, changed)

	require.Nil(t, watcher.Close())
	require.Nil(t, watched.Close())
}

func TestTwoWritesObservedAsLatestValue(t *testing.T) {
	path := regionPath(t)

	watched, err := Create[testState](path)
	require.Nil(t, err)

	watcher, err := Open[testState](path)
	require.Nil(t, err)

	require.Nil(t, watched.Write(filled(1)))
	require.Nil(t, watched.Write(filled(2)))

	changed, err := watcher.HasChanged()
	require.Nil(t, err)
	assert.True(t, changed)

	var got testState
	require.Nil(t, watcher.Read(func(s *testState) {
		got = *s
	}))
	assert.Equal(t, filled(2), got)

	require.Nil(t, watcher.Close())
	require.Nil(t, watched.Close())
}

func TestAttachBeforeFirstWriteSeesNoChange(t *testing.T) {
	path := regionPath(t)

	watched, err := Create[testState](path)
	require.Nil(t, err)

	watcher, err := Open[testState](path)
	require.Nil(t, err)

	changed, err := watcher.HasChanged()
	require.Nil(t, err)
	assert.False(t, changed)

	require.Nil(t, watcher.Close())
	require.Nil(t, watched.Close())
}

func TestGoneAfterPublisherClose(t *testing.T) {
	path := regionPath(t)

	watched, err := Create[testState](path)
	require.Nil(t, err)

	watcher, err := Open[testState](path)
	require.Nil(t, err)

	require.Nil(t, watched.Write(filled(5)))
	require.Nil(t, watched.Close())

	assert.True(t, watcher.Gone())
	_, err = watcher.HasChanged()
	assert.ErrorIs(t, err, ErrWatchedGone)

	require.Nil(t, watcher.Close())
}

func TestTwoObserversReadConcurrently(t *testing.T) {
	path := regionPath(t)

	watched, err := Create[testState](path)
	require.Nil(t, err)
	require.Nil(t, watched.Write(filled(42)))

	w1, err := Open[testState](path)
	require.Nil(t, err)
	w2, err := Open[testState](path)
	require.Nil(t, err)

	for _, w := range []*Watcher[testState]{w1, w2} {
		changed, err := w.HasChanged()
		require.Nil(t, err)
		assert.True(t, changed)
	}

	// Both reads hold the shared lock at the same time; a deadlock here
	// would hang the barrier.
	var barrier sync.WaitGroup
	barrier.Add(2)
	results := make(chan testState, 2)
	for _, w := range []*Watcher[testState]{w1, w2} {
		go func(w *Watcher[testState]) {
			_ = w.Read(func(s *testState) {
				barrier.Done()
				barrier.Wait()
				results <- *s
			})
		}(w)
	}

	for i := 0; i < 2; i++ {
		select {
		case got := <-results:
			assert.Equal(t, filled(42), got)
		case <-time.After(5 * time.Second):
			t.Fatal("concurrent reads did not complete")
		}
	}

	require.Nil(t, w1.Close())
	require.Nil(t, w2.Close())
	require.Nil(t, watched.Close())
}

func TestRegionOneByteShortPanics(t *testing.T) {
	path := regionPath(t)

	region, err := shm.CreateRegion(path, RegionSize[testState]()-1)
	require.Nil(t, err)
	defer func() {
		_ = region.Close()
	}()

	assert.Panics(t, func() {
		_, _ = NewWatched[testState](region)
	})
}

func TestExactMinimumRegionSucceeds(t *testing.T) {
	path := regionPath(t)

	region, err := shm.CreateRegion(path, RegionSize[testState]())
	require.Nil(t, err)

	watched, err := NewWatched[testState](region)
	require.Nil(t, err)
	require.Nil(t, watched.Write(filled(9)))
	require.Nil(t, watched.Close())
	require.Nil(t, region.Close())
}

func TestVersionWraparoundHidesChanges(t *testing.T) {
	path := regionPath(t)

	watched, err := Create[testState](path)
	require.Nil(t, err)

	watcher, err := Open[testState](path)
	require.Nil(t, err)

	// 128 writes wrap the 7-bit version back to the watcher's cached
	// value; the intervening changes are undetectable. Accepted
	// limitation of the protocol.
	for i := 0; i < 128; i++ {
		require.Nil(t, watched.Write(filled(byte(i))))
	}
	changed, err := watcher.HasChanged()
	require.Nil(t, err)
	assert.False(t, changed)

	require.Nil(t, watcher.Close())
	require.Nil(t, watched.Close())
}

func TestPointerPayloadRejected(t *testing.T) {
	type bad struct {
		P *int
	}
	path := regionPath(t)

	region, err := shm.CreateRegion(path, 4096)
	require.Nil(t, err)
	defer func() {
		_ = region.Close()
	}()

	assert.Panics(t, func() {
		_, _ = NewWatched[bad](region)
	})
	assert.Panics(t, func() {
		_, _ = NewWatcher[bad](region)
	})
}

func TestOpenWaitAttachesOnceCreated(t *testing.T) {
	path := regionPath(t)

	go func() {
		time.Sleep(100 * time.Millisecond)
		watched, err := Create[testState](path)
		if err != nil {
			return
		}
		_ = watched.Write(filled(7))
	}()

	watcher, err := OpenWait[testState](path, backoff.NewConstantBackOff(20*time.Millisecond))
	require.Nil(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for {
		changed, err := watcher.HasChanged()
		require.Nil(t, err)
		if changed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("change never observed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var got testState
	require.Nil(t, watcher.Read(func(s *testState) {
		got = *s
	}))
	assert.Equal(t, filled(7), got)
	require.Nil(t, watcher.Close())
}

func TestWriteExcludedWhileReadHeld(t *testing.T) {
	path := regionPath(t)

	watched, err := Create[testState](path)
	require.Nil(t, err)
	require.Nil(t, watched.Write(filled(1)))

	watcher, err := Open[testState](path)
	require.Nil(t, err)

	inRead := make(chan struct{})
	releaseRead := make(chan struct{})
	readDone := make(chan struct{})
	go func() {
		_ = watcher.Read(func(s *testState) {
			close(inRead)
			<-releaseRead
		})
		close(readDone)
	}()

	<-inRead
	writeDone := make(chan struct{})
	go func() {
		_ = watched.Write(filled(2))
		close(writeDone)
	}()

	select {
	case <-writeDone:
		t.Fatal("write completed while a reader held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	close(releaseRead)
	<-readDone
	select {
	case <-writeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("write never completed after the reader released")
	}

	require.Nil(t, watcher.Close())
	require.Nil(t, watched.Close())
}
