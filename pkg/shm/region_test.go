//go:build linux

package shm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndOpenShareBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	created, err := CreateRegion(path, 4096)
	require.Nil(t, err)
	assert.Equal(t, 4096, created.Len())
	assert.Equal(t, path, created.Name())
	assert.True(t, created.Owner())

	copy(created.Bytes(), "shared")

	opened, err := OpenRegion(path, 4096)
	require.Nil(t, err)
	assert.False(t, opened.Owner())
	assert.Equal(t, []byte("shared"), opened.Bytes()[:6])

	// Writes through either mapping land in the same physical bytes.
	opened.Bytes()[0] = 'S'
	assert.Equal(t, byte('S'), created.Bytes()[0])

	assert.Nil(t, opened.Close())
	assert.Nil(t, created.Close())
}

func TestOpenMissingSegmentFails(t *testing.T) {
	_, err := OpenRegion(filepath.Join(t.TempDir(), "absent"), 4096)
	assert.NotNil(t, err)
}

func TestOpenUndersizedSegmentFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")
	created, err := CreateRegion(path, 64)
	require.Nil(t, err)

	_, err = OpenRegion(path, 128)
	assert.NotNil(t, err)

	assert.Nil(t, created.Close())
}

func TestCreateReplacesExistingSegment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	first, err := CreateRegion(path, 64)
	require.Nil(t, err)
	copy(first.Bytes(), "stale")

	second, err := CreateRegion(path, 64)
	require.Nil(t, err)
	assert.Equal(t, make([]byte, 5), second.Bytes()[:5])

	assert.Nil(t, second.Close())
}

func TestOwnerCloseUnlinksBackingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	created, err := CreateRegion(path, 64)
	require.Nil(t, err)
	_, err = os.Stat(path)
	require.Nil(t, err)

	assert.Nil(t, created.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestInvalidSizeRejected(t *testing.T) {
	_, err := CreateRegion(filepath.Join(t.TempDir(), "region"), 0)
	assert.NotNil(t, err)
	_, err = OpenRegion(filepath.Join(t.TempDir(), "region"), -1)
	assert.NotNil(t, err)
}
