package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// NOTE: Load creates a default config file on first run; Save writes
// atomically with 0600 permissions because basic_auth holds a password.

// SPIConfig selects the bus the panel is wired to.
type SPIConfig struct {
	// Port is the periph.io SPI port name. Empty selects the first port
	// (usually /dev/spidev0.0).
	Port string `yaml:"port" json:"port"`
	// SpeedHz is the SPI clock frequency.
	SpeedHz int64 `yaml:"speed_hz" json:"speed_hz"`
	// Mode is the SPI mode, 0..3.
	Mode int `yaml:"mode" json:"mode"`
}

// PinsConfig names the GPIO lines used besides the SPI bus.
type PinsConfig struct {
	// DC is the data/command select line, e.g. "GPIO25".
	DC string `yaml:"dc" json:"dc"`
}

// RefreshConfig controls the background refresh loop.
type RefreshConfig struct {
	// Interval is waited before each frame. 0 means continuous refresh.
	Interval time.Duration `yaml:"interval" json:"interval"`
	// RetryAttempts is how many times a failed frame is resent before the
	// loop gives up. 0 disables retries.
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// SleepOnExit blanks the panel on shutdown.
	SleepOnExit bool `yaml:"sleep_on_exit" json:"sleep_on_exit"`
}

// BufferConfig controls how drawing code and the refresh loop share the
// pixel buffer.
type BufferConfig struct {
	// Policy is "locked" (default) or "relaxed".
	Policy string `yaml:"policy" json:"policy"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level   string `yaml:"level" json:"level"`
	Console bool   `yaml:"console" json:"console"`
}

// CaptureConfig describes an optional web page that is periodically
// screenshotted into the pixel buffer.
type CaptureConfig struct {
	// URL to capture. Empty disables capturing.
	URL string `yaml:"url" json:"url"`
	// Schedule is a cron expression (5 fields or a descriptor such as
	// "@every 30s").
	Schedule string        `yaml:"schedule" json:"schedule"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	// WaitSelector is a CSS selector that must be visible before the
	// screenshot is taken. Empty captures right after load.
	WaitSelector string `yaml:"wait_selector" json:"wait_selector"`
}

// SplashConfig controls the boot screen painted before the first frame.
type SplashConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Title   string `yaml:"title" json:"title"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	SPI     SPIConfig     `yaml:"spi" json:"spi"`
	Pins    PinsConfig    `yaml:"pins" json:"pins"`
	Refresh RefreshConfig `yaml:"refresh" json:"refresh"`
	Buffer  BufferConfig  `yaml:"buffer" json:"buffer"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Capture CaptureConfig `yaml:"capture" json:"capture"`
	Splash  SplashConfig  `yaml:"splash" json:"splash"`

	// Listen is the HTTP listen address for the status API and preview.
	// Empty disables the HTTP server.
	Listen string `yaml:"listen" json:"listen"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultSpeedHz         = 32_000_000
	defaultDC              = "GPIO25"
	defaultInterval        = 40 * time.Millisecond
	defaultListen          = "127.0.0.1:8080"
	defaultCaptureSchedule = "@every 1m"
	defaultCaptureTimeout  = 30 * time.Second
	defaultSplashTitle     = "tftfb"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		SPI: SPIConfig{
			Port:    "",
			SpeedHz: defaultSpeedHz,
			Mode:    0,
		},
		Pins: PinsConfig{DC: defaultDC},
		Refresh: RefreshConfig{
			Interval:      defaultInterval,
			RetryAttempts: 0,
		},
		Buffer: BufferConfig{Policy: "locked"},
		Log:    LogConfig{Level: "info"},
		Capture: CaptureConfig{
			Schedule: defaultCaptureSchedule,
			Timeout:  defaultCaptureTimeout,
		},
		Splash: SplashConfig{Enabled: true, Title: defaultSplashTitle},
		Listen: defaultListen,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.SPI.SpeedHz <= 0 {
		c.SPI.SpeedHz = defaultSpeedHz
	}
	if c.SPI.Mode < 0 || c.SPI.Mode > 3 {
		c.SPI.Mode = 0
	}
	if c.Pins.DC == "" {
		c.Pins.DC = defaultDC
	}
	// A zero interval is a valid choice (continuous refresh); only negative
	// values are repaired.
	if c.Refresh.Interval < 0 {
		c.Refresh.Interval = defaultInterval
	}
	if c.Refresh.RetryAttempts < 0 {
		c.Refresh.RetryAttempts = 0
	}
	if c.Refresh.RetryDelay < 0 {
		c.Refresh.RetryDelay = 0
	}
	switch c.Buffer.Policy {
	case "locked", "relaxed":
		// ok
	default:
		c.Buffer.Policy = "locked"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Capture.Schedule == "" {
		c.Capture.Schedule = defaultCaptureSchedule
	}
	if c.Capture.Timeout <= 0 {
		c.Capture.Timeout = defaultCaptureTimeout
	}
	if c.Splash.Title == "" {
		c.Splash.Title = defaultSplashTitle
	}
}

// Validate reports settings that cannot be repaired by Normalize.
func (c *Config) Validate() error {
	if c.BasicAuth != nil && (c.BasicAuth.Username == "") != (c.BasicAuth.Password == "") {
		return errors.New("config: basic_auth needs both username and password")
	}
	if c.Refresh.RetryAttempts > 0 && c.Refresh.RetryDelay > time.Minute {
		return fmt.Errorf("config: refresh.retry_delay %s is longer than a minute", c.Refresh.RetryDelay)
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tftfb-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
