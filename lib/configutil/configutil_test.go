package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name     string `json:"name"`
	Interval int    `json:"interval"`
	Tags     []string
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "config.json")

	_, err := ReadConfig[testConfig](name)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(name, []byte(`{
		// json5 comments are allowed
		name: "base",
		interval: 30,
	}`), 0o644))

	cfg, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, "base", cfg.Name)
	require.Equal(t, 30, cfg.Interval)

	require.NoError(t, os.WriteFile(LocalPath(name), []byte(`{"interval": 5}`), 0o644))

	cfg, err = ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, "base", cfg.Name)
	require.Equal(t, 5, cfg.Interval)
}

func TestReadConfigMalformed(t *testing.T) {
	name := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(name, []byte(`{"interval": `), 0o644))

	_, err := ReadConfig[testConfig](name)
	require.Error(t, err)
	require.NotErrorIs(t, err, os.ErrNotExist)
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, "data/config.local.json", LocalPath("data/config.json"))
	require.Equal(t, "telemetry.local.json5", LocalPath("telemetry.json5"))
}
