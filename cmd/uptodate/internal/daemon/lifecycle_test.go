package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatePaths(t *testing.T) {
	paths := StatePaths("/work/.uptodate")

	assert.Equal(t, "/work/.uptodate", paths.Dir)
	assert.Equal(t, filepath.Join("/work/.uptodate", "daemon.sock"), paths.Socket)
	assert.Equal(t, filepath.Join("/work/.uptodate", "daemon.pid"), paths.PID)
	assert.Equal(t, filepath.Join("/work/.uptodate", "daemon.log"), paths.Log)
}

func TestPaths_PIDRoundTrip(t *testing.T) {
	paths := StatePaths(filepath.Join(t.TempDir(), "state"))

	require.NoError(t, paths.WritePID())
	pid, err := paths.ReadPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPaths_ReadPIDInvalid(t *testing.T) {
	paths := StatePaths(t.TempDir())
	require.NoError(t, os.WriteFile(paths.PID, []byte("not-a-pid"), 0o600))

	_, err := paths.ReadPID()
	assert.Error(t, err)
}

func TestPaths_CleanupMissingFiles(t *testing.T) {
	assert.NoError(t, StatePaths(t.TempDir()).Cleanup())
}

func TestIsProcessRunning(t *testing.T) {
	assert.True(t, IsProcessRunning(os.Getpid()))
	assert.False(t, IsProcessRunning(0))
	assert.False(t, IsProcessRunning(-1))
}

func TestGetStatus(t *testing.T) {
	t.Run("nil paths", func(t *testing.T) {
		assert.False(t, GetStatus(nil).Running)
	})

	t.Run("no PID file", func(t *testing.T) {
		paths := StatePaths(t.TempDir())
		assert.Equal(t, Status{Socket: paths.Socket}, *GetStatus(paths))
	})

	t.Run("running", func(t *testing.T) {
		paths := StatePaths(t.TempDir())
		require.NoError(t, paths.WritePID())

		status := GetStatus(paths)
		assert.True(t, status.Running)
		assert.False(t, status.Stale)
	})

	t.Run("stale", func(t *testing.T) {
		paths := StatePaths(t.TempDir())
		require.NoError(t, os.WriteFile(paths.PID, []byte("999999999"), 0o600))

		status := GetStatus(paths)
		assert.False(t, status.Running)
		assert.True(t, status.Stale)
		assert.Equal(t, 999999999, status.PID)
	})
}

func TestCleanupStale(t *testing.T) {
	t.Run("stale PID and socket", func(t *testing.T) {
		paths := StatePaths(t.TempDir())
		for _, path := range []string{paths.PID, paths.Socket} {
			require.NoError(t, os.WriteFile(path, []byte("999999999"), 0o600))
		}

		cleaned, err := CleanupStale(paths)
		require.NoError(t, err)
		assert.True(t, cleaned)
		assert.NoFileExists(t, paths.PID)
		assert.NoFileExists(t, paths.Socket)
	})

	t.Run("orphan socket", func(t *testing.T) {
		paths := StatePaths(t.TempDir())
		require.NoError(t, os.WriteFile(paths.Socket, nil, 0o600))

		cleaned, err := CleanupStale(paths)
		require.NoError(t, err)
		assert.True(t, cleaned)
	})

	t.Run("running daemon is left alone", func(t *testing.T) {
		paths := StatePaths(t.TempDir())
		require.NoError(t, paths.WritePID())

		cleaned, err := CleanupStale(paths)
		require.NoError(t, err)
		assert.False(t, cleaned)
		assert.FileExists(t, paths.PID)
	})

	t.Run("nothing to clean", func(t *testing.T) {
		cleaned, err := CleanupStale(StatePaths(t.TempDir()))
		require.NoError(t, err)
		assert.False(t, cleaned)
	})

	t.Run("nil paths", func(t *testing.T) {
		cleaned, err := CleanupStale(nil)
		require.NoError(t, err)
		assert.False(t, cleaned)
	})
}
