package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"sahibinden-scraper/lib/appconfig"
	"sahibinden-scraper/lib/lockfile"

	"github.com/stretchr/testify/require"
)

func withDataDir(t *testing.T) Paths {
	t.Helper()
	prevDir, prevConfig := dataDir, configPath
	t.Cleanup(func() {
		dataDir, configPath = prevDir, prevConfig
	})
	dataDir = t.TempDir()
	configPath = ""
	return resolvePaths()
}

func TestResolvePaths(t *testing.T) {
	t.Setenv("DECISIONS_DSN", "")
	paths := withDataDir(t)
	require.Equal(t, filepath.Join(dataDir, "config.json"), paths.Config)
	require.Equal(t, filepath.Join(dataDir, "seen_ads.json"), paths.Ledger)
	require.Equal(t, filepath.Join(dataDir, "filtered_listings.json"), paths.Accepted)
	require.Equal(t, filepath.Join(dataDir, "sahibinden_cookies.json"), paths.Cookies)

	configPath = "/etc/sahibinden/config.json"
	require.Equal(t, configPath, resolvePaths().Config)
}

func TestNewAppHoldsDataDir(t *testing.T) {
	t.Setenv("DECISIONS_DSN", "")
	paths := withDataDir(t)

	a, err := newApp(context.Background(), paths, appOptions{DryRun: true})
	require.NoError(t, err)

	_, err = newApp(context.Background(), paths, appOptions{DryRun: true})
	require.ErrorIs(t, err, lockfile.ErrAlreadyLocked)

	a.Close()

	again, err := newApp(context.Background(), paths, appOptions{DryRun: true})
	require.NoError(t, err)
	again.Close()
}

func TestNewAppRejectsMalformedLedger(t *testing.T) {
	t.Setenv("DECISIONS_DSN", "")
	paths := withDataDir(t)
	require.NoError(t, os.WriteFile(paths.Ledger, []byte("{not a list"), 0o644))

	_, err := newApp(context.Background(), paths, appOptions{DryRun: true})
	require.Error(t, err)

	// the lock is released on failure.
	lock, err := lockfile.Acquire(paths.Lock)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestLoadConfigWithoutFile(t *testing.T) {
	t.Setenv("DECISIONS_DSN", "")
	paths := withDataDir(t)

	a, err := newApp(context.Background(), paths, appOptions{DryRun: true})
	require.NoError(t, err)
	defer a.Close()

	cfg, err := a.loadConfig()
	require.NoError(t, err)
	require.Equal(t, appconfig.Default(), cfg)

	require.NoError(t, os.WriteFile(paths.Config, []byte(`{"check_interval_minutes": -5}`), 0o644))
	cfg, err = a.loadConfig()
	require.ErrorIs(t, err, appconfig.ErrConfigurationInvalid)
	require.Equal(t, appconfig.DefaultCheckIntervalMinutes, cfg.CheckIntervalMinutes)
}
