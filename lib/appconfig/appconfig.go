package appconfig

import (
	"errors"
	"fmt"
	"os"
	"time"

	"sahibinden-scraper/lib/configutil"
	"sahibinden-scraper/lib/fsutil"
	"sahibinden-scraper/lib/listing"
)

// ErrConfigurationInvalid is returned (wrapped) alongside the default configuration
// when the configuration file is missing or malformed.
var ErrConfigurationInvalid = errors.New("configuration invalid")

const (
	DefaultCheckIntervalMinutes = 30
	DefaultMaxReplacedParts     = 1
	DefaultMaxPaintedParts      = 2
)

type Brand struct {
	Name    string `json:"name"`
	Url     string `json:"url"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// IsEnabled treats a brand without an explicit `enabled` field as enabled.
func (b Brand) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

type Config struct {
	CheckIntervalMinutes int     `json:"check_interval_minutes"`
	MaxReplacedParts     int     `json:"max_replaced_parts"`
	MaxPaintedParts      int     `json:"max_painted_parts"`
	Brands               []Brand `json:"brands"`
}

func Default() Config {
	return Config{
		CheckIntervalMinutes: DefaultCheckIntervalMinutes,
		MaxReplacedParts:     DefaultMaxReplacedParts,
		MaxPaintedParts:      DefaultMaxPaintedParts,
		Brands:               []Brand{},
	}
}

func (c Config) Thresholds() listing.Thresholds {
	return listing.Thresholds{
		MaxReplacedParts: c.MaxReplacedParts,
		MaxPaintedParts:  c.MaxPaintedParts,
	}
}

func (c Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMinutes) * time.Minute
}

// EnabledBrands returns the enabled brands with a non-empty url, in configured order.
func (c Config) EnabledBrands() []Brand {
	var out []Brand
	for _, b := range c.Brands {
		if !b.IsEnabled() || b.Url == "" {
			continue
		}
		out = append(out, b)
	}
	return out
}

// fileConfig uses pointers so that absent keys can be told apart from zeros.
type fileConfig struct {
	CheckIntervalMinutes *int    `json:"check_interval_minutes"`
	MaxReplacedParts     *int    `json:"max_replaced_parts"`
	MaxPaintedParts      *int    `json:"max_painted_parts"`
	Brands               []Brand `json:"brands"`
}

// Load reads the configuration at path (plus its `.local` override). It never fails
// to produce a usable configuration: when the file is missing or malformed the
// defaults are returned together with an error wrapping ErrConfigurationInvalid,
// and individually absent or out-of-range fields fall back to their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := configutil.ReadConfig[fileConfig](path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, fmt.Errorf("%w: %s does not exist", ErrConfigurationInvalid, path)
		}
		return cfg, fmt.Errorf("%w: %w", ErrConfigurationInvalid, err)
	}

	var invalid []error
	if raw.CheckIntervalMinutes != nil {
		if *raw.CheckIntervalMinutes > 0 {
			cfg.CheckIntervalMinutes = *raw.CheckIntervalMinutes
		} else {
			invalid = append(invalid, fmt.Errorf("check_interval_minutes must be positive, got %d", *raw.CheckIntervalMinutes))
		}
	}
	if raw.MaxReplacedParts != nil {
		if *raw.MaxReplacedParts >= 0 {
			cfg.MaxReplacedParts = *raw.MaxReplacedParts
		} else {
			invalid = append(invalid, fmt.Errorf("max_replaced_parts must not be negative, got %d", *raw.MaxReplacedParts))
		}
	}
	if raw.MaxPaintedParts != nil {
		if *raw.MaxPaintedParts >= 0 {
			cfg.MaxPaintedParts = *raw.MaxPaintedParts
		} else {
			invalid = append(invalid, fmt.Errorf("max_painted_parts must not be negative, got %d", *raw.MaxPaintedParts))
		}
	}
	if raw.Brands != nil {
		cfg.Brands = raw.Brands
	}

	if len(invalid) > 0 {
		return cfg, fmt.Errorf("%w: %w", ErrConfigurationInvalid, errors.Join(invalid...))
	}
	return cfg, nil
}

// Validate checks a configuration submitted by an operator before it is saved.
func Validate(c Config) error {
	var invalid []error
	if c.CheckIntervalMinutes <= 0 {
		invalid = append(invalid, fmt.Errorf("check_interval_minutes must be positive"))
	}
	if c.MaxReplacedParts < 0 {
		invalid = append(invalid, fmt.Errorf("max_replaced_parts must not be negative"))
	}
	if c.MaxPaintedParts < 0 {
		invalid = append(invalid, fmt.Errorf("max_painted_parts must not be negative"))
	}
	for i, b := range c.Brands {
		if b.Name == "" {
			invalid = append(invalid, fmt.Errorf("brands[%d]: name is required", i))
		}
		if b.Url == "" {
			invalid = append(invalid, fmt.Errorf("brands[%d]: url is required", i))
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigurationInvalid, errors.Join(invalid...))
	}
	return nil
}

// Save validates and atomically writes the configuration to path.
func Save(path string, c Config) error {
	err := Validate(c)
	if err != nil {
		return err
	}
	if c.Brands == nil {
		c.Brands = []Brand{}
	}
	return fsutil.WriteJSON(path, c)
}
