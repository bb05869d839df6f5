package lockfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawler.lock")

	lock, err := Acquire(path)
	require.NoError(t, err)
	require.Equal(t, path, lock.Path())

	pid, ok := Holder(path)
	require.True(t, ok)
	require.Equal(t, os.Getpid(), pid)

	// flock locks belong to the open file description, a second open conflicts
	// even within the same process.
	_, err = Acquire(path)
	require.ErrorIs(t, err, ErrAlreadyLocked)

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())

	again, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestAcquireEmptyPath(t *testing.T) {
	_, err := Acquire("")
	require.Error(t, err)
}
