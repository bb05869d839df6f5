package appconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadMissingFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.ErrorIs(t, err, ErrConfigurationInvalid)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 30, cfg.CheckIntervalMinutes)
	require.Equal(t, 1, cfg.MaxReplacedParts)
	require.Equal(t, 2, cfg.MaxPaintedParts)
	require.Empty(t, cfg.Brands)
}

func TestLoadMalformedFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"brands": [`))
	require.ErrorIs(t, err, ErrConfigurationInvalid)
	require.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"check_interval_minutes": 10,
		"max_replaced_parts": 0,
		"brands": [
			{"name": "BMW", "url": "https://www.sahibinden.com/bmw"},
			{"name": "Audi", "url": "https://www.sahibinden.com/audi", "enabled": false},
			{"name": "Empty", "url": ""}
		]
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 10, cfg.CheckIntervalMinutes)
	require.Equal(t, 0, cfg.MaxReplacedParts, "explicit zero must not be replaced by the default")
	require.Equal(t, DefaultMaxPaintedParts, cfg.MaxPaintedParts)

	enabled := cfg.EnabledBrands()
	require.Len(t, enabled, 1)
	require.Equal(t, "BMW", enabled[0].Name)
}

func TestLoadOutOfRangeFields(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"check_interval_minutes": 0, "max_painted_parts": -1, "max_replaced_parts": 3}`))
	require.ErrorIs(t, err, ErrConfigurationInvalid)
	require.Equal(t, DefaultCheckIntervalMinutes, cfg.CheckIntervalMinutes)
	require.Equal(t, DefaultMaxPaintedParts, cfg.MaxPaintedParts)
	require.Equal(t, 3, cfg.MaxReplacedParts)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	disabled := false
	expected := Config{
		CheckIntervalMinutes: 15,
		MaxReplacedParts:     2,
		MaxPaintedParts:      4,
		Brands: []Brand{
			{Name: "BMW", Url: "https://www.sahibinden.com/bmw"},
			{Name: "Audi", Url: "https://www.sahibinden.com/audi", Enabled: &disabled},
		},
	}
	require.NoError(t, Save(path, expected))

	cfg, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(expected, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	err := Save(path, Config{CheckIntervalMinutes: 0, Brands: []Brand{{Name: "x"}}})
	require.ErrorIs(t, err, ErrConfigurationInvalid)
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}
