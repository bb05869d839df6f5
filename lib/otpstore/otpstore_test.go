package otpstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConsumeOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otp.json")
	store := New(path)

	require.NoError(t, store.Submit("123456"))
	require.True(t, store.Pending())

	code, ok, err := store.Consume()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "123456", code)

	code, ok, err = store.Consume()
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "", code)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "the persisted value must no longer exist")
	require.False(t, store.Pending())
}

func TestSubmitReplacesPending(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "otp.json"))
	require.NoError(t, store.Submit("111111"))
	require.NoError(t, store.Submit(" 222222 "))

	code, ok, err := store.Consume()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "222222", code)
}

func TestSubmitEmpty(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "otp.json"))
	require.ErrorIs(t, store.Submit("  "), ErrEmptyCode)
	require.False(t, store.Pending())
}

func TestConsumeMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otp.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, ok, err := New(path).Consume()
	require.Error(t, err)
	require.False(t, ok)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "a malformed value is discarded, not retried forever")
}
