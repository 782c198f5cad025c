package imgdev

import (
	"fmt"

	defaults "github.com/mcuadros/go-defaults"
)

// Config tunes feature extraction and scan quality checks. Zero fields take
// the values from the default tags.
type Config struct {
	// Grid is the number of orientation blocks per image side
	Grid int `mapstructure:"grid" default:"16"`

	// MatchThreshold is the minimum cosine similarity for two scans to be
	// considered the same finger
	MatchThreshold float64 `mapstructure:"match_threshold" default:"0.8"`

	// MinCoverage is the minimum fraction of blocks that must carry ridges
	MinCoverage float64 `mapstructure:"min_coverage" default:"0.35"`

	// MaxSaturation is the maximum fraction of near-black pixels
	MaxSaturation float64 `mapstructure:"max_saturation" default:"0.6"`

	// MinContrast is the minimum standard deviation of the raw frame
	MinContrast float64 `mapstructure:"min_contrast" default:"10"`

	// RidgeStdDev is the block standard deviation above which a block of
	// the standardized image counts as ridge area
	RidgeStdDev float64 `mapstructure:"ridge_stddev" default:"20"`

	// MinSwipeHeight applies to swipe sensors only
	MinSwipeHeight int `mapstructure:"min_swipe_height" default:"64"`
}

// DefaultConfig returns a Config with every field at its default
func DefaultConfig() Config {
	var c Config
	defaults.SetDefaults(&c)
	return c
}

// WithDefaults fills the zero fields of c
func (c Config) WithDefaults() Config {
	defaults.SetDefaults(&c)
	return c
}

// Validate checks the ranges of the tuning values
func (c Config) Validate() error {
	if c.Grid < 2 || c.Grid > 64 {
		return fmt.Errorf("grid must be between 2 and 64, got %d", c.Grid)
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match_threshold must be in (0, 1], got %v", c.MatchThreshold)
	}
	if c.MinCoverage < 0 || c.MinCoverage > 1 {
		return fmt.Errorf("min_coverage must be in [0, 1], got %v", c.MinCoverage)
	}
	if c.MaxSaturation <= 0 || c.MaxSaturation > 1 {
		return fmt.Errorf("max_saturation must be in (0, 1], got %v", c.MaxSaturation)
	}
	return nil
}
