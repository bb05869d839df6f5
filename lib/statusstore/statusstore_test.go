package statusstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUpdateMerges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	store := New(path, func() time.Time { return now })

	status, err := store.Read()
	require.NoError(t, err)
	require.Equal(t, Status{}, status)

	status, err = store.Update(Patch{Running: Bool(true), Message: String("cycle started")})
	require.NoError(t, err)
	require.True(t, status.Running)
	require.False(t, status.LoginWaiting)
	require.Equal(t, "cycle started", status.Message)
	require.True(t, now.Equal(status.Timestamp))

	now = now.Add(time.Minute)
	status, err = store.Update(Patch{LoginWaiting: Bool(true)})
	require.NoError(t, err)
	require.True(t, status.Running, "unspecified fields are preserved")
	require.True(t, status.LoginWaiting)
	require.Equal(t, "cycle started", status.Message)
	require.True(t, now.Equal(status.Timestamp))

	read, err := store.Read()
	require.NoError(t, err)
	require.Equal(t, status.Message, read.Message)
	require.Equal(t, status.LoginWaiting, read.LoginWaiting)
}

func TestUpdatePreservesUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"dashboard_note":"hello","running":false}`), 0o644))

	store := New(path, nil)
	_, err := store.Update(Patch{Running: Bool(true)})
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(contents, &raw))
	require.Equal(t, "hello", raw["dashboard_note"])
	require.Equal(t, true, raw["running"])
}

func TestUpdateOverwritesCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, os.WriteFile(path, []byte(`{{{`), 0o644))

	store := New(path, nil)
	status, err := store.Update(Patch{Message: String("recovered")})
	require.NoError(t, err)
	require.Equal(t, "recovered", status.Message)
}
