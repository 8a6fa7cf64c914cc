package reveal

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every environment variable read by
// ConfigFromEnv, e.g. REVEAL_PRELOAD_COUNT.
const EnvPrefix = "REVEAL_"

// Config holds the tunables of a Session. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// PreloadCount is the number of draws per refill batch and the target
	// buffer size.
	PreloadCount int `env:"PRELOAD_COUNT"`

	// LowWater is the buffer size below which Take schedules a refill.
	LowWater int `env:"LOW_WATER"`

	// SampleAttempts bounds the redraws spent avoiding a used index.
	SampleAttempts int `env:"SAMPLE_ATTEMPTS"`

	// ResetRatio is the used fraction of the catalog above which the
	// sampler starts a new epoch.
	ResetRatio float64 `env:"RESET_RATIO"`

	// ScreenWidth and ScreenHeight are the viewer bounds in points.
	ScreenWidth  float64 `env:"SCREEN_WIDTH"`
	ScreenHeight float64 `env:"SCREEN_HEIGHT"`

	// ThumbnailSize is the side of the square shown at the reveal point.
	ThumbnailSize float64 `env:"THUMBNAIL_SIZE"`

	// FetchScale multiplies the screen size to get the decode target, so
	// that zoomed images stay sharp.
	FetchScale float64 `env:"FETCH_SCALE"`

	// ExpandDuration and CollapseDuration are the fixed animation lengths
	// after which follow-up state changes fire.
	ExpandDuration   time.Duration `env:"EXPAND_DURATION"`
	CollapseDuration time.Duration `env:"COLLAPSE_DURATION"`

	// Workers is the background pool size; 0 means GOMAXPROCS.
	Workers int `env:"WORKERS"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		PreloadCount:     10,
		LowWater:         5,
		SampleAttempts:   DefaultSampleAttempts,
		ResetRatio:       DefaultResetRatio,
		ScreenWidth:      390,
		ScreenHeight:     844,
		ThumbnailSize:    100,
		FetchScale:       2,
		ExpandDuration:   300 * time.Millisecond,
		CollapseDuration: 300 * time.Millisecond,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by REVEAL_* environment
// variables, validated.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("reveal: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Screen returns the viewer bounds.
func (c Config) Screen() Size {
	return Sz(c.ScreenWidth, c.ScreenHeight)
}

// FetchTarget returns the size requested from the image source.
func (c Config) FetchTarget() Size {
	return c.Screen().Mul(c.FetchScale)
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.PreloadCount < 1 {
		errs = append(errs, fmt.Errorf("preload count %d < 1", c.PreloadCount))
	}
	if c.LowWater < 0 || c.LowWater > c.PreloadCount {
		errs = append(errs, fmt.Errorf("low water %d outside [0, %d]", c.LowWater, c.PreloadCount))
	}
	if c.SampleAttempts < 1 {
		errs = append(errs, fmt.Errorf("sample attempts %d < 1", c.SampleAttempts))
	}
	if c.ResetRatio <= 0 || c.ResetRatio > 1 {
		errs = append(errs, fmt.Errorf("reset ratio %v outside (0, 1]", c.ResetRatio))
	}
	if c.ScreenWidth <= 0 || c.ScreenHeight <= 0 {
		errs = append(errs, fmt.Errorf("screen %vx%v not positive", c.ScreenWidth, c.ScreenHeight))
	}
	if c.ThumbnailSize <= 0 {
		errs = append(errs, fmt.Errorf("thumbnail size %v not positive", c.ThumbnailSize))
	}
	if c.FetchScale <= 0 {
		errs = append(errs, fmt.Errorf("fetch scale %v not positive", c.FetchScale))
	}
	if c.ExpandDuration < 0 || c.CollapseDuration < 0 {
		errs = append(errs, errors.New("negative animation duration"))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers %d < 0", c.Workers))
	}
	if len(errs) > 0 {
		return fmt.Errorf("reveal: invalid config: %w", errors.Join(errs...))
	}
	return nil
}
