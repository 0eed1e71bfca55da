package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Refresh.Interval != defaultInterval {
		t.Errorf("Refresh.Interval = %v, want %v", cfg.Refresh.Interval, defaultInterval)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Errorf("perm = %v, want 0600", st.Mode().Perm())
	}

	// Reloading the written file yields the same values.
	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.Pins.DC != cfg.Pins.DC || again.Refresh.Interval != cfg.Refresh.Interval || again.SPI.SpeedHz != cfg.SPI.SpeedHz {
		t.Errorf("reloaded config = %+v, want %+v", again, cfg)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
spi:
  port: "SPI1.0"
pins:
  dc: "GPIO24"
refresh:
  interval: 0s
  retry_attempts: 3
  retry_delay: 250ms
buffer:
  policy: bogus
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SPI.Port != "SPI1.0" || cfg.Pins.DC != "GPIO24" {
		t.Errorf("SPI/Pins = %+v %+v", cfg.SPI, cfg.Pins)
	}
	if cfg.SPI.SpeedHz != defaultSpeedHz {
		t.Errorf("SpeedHz = %d, want default", cfg.SPI.SpeedHz)
	}
	if cfg.Refresh.Interval != 0 {
		t.Errorf("Interval = %v, want 0 (continuous)", cfg.Refresh.Interval)
	}
	if cfg.Refresh.RetryAttempts != 3 || cfg.Refresh.RetryDelay != 250*time.Millisecond {
		t.Errorf("retry = %d/%v", cfg.Refresh.RetryAttempts, cfg.Refresh.RetryDelay)
	}
	if cfg.Buffer.Policy != "locked" {
		t.Errorf("Policy = %q, want locked fallback", cfg.Buffer.Policy)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "spi: [unclosed"},
		{"half basic auth", "basic_auth:\n  username: admin\n"},
		{"huge retry delay", "refresh:\n  retry_attempts: 1\n  retry_delay: 2h\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("Load(\"\") should fail")
	}
	if err := Save("", DefaultConfig()); err == nil {
		t.Error("Save(\"\") should fail")
	}
	if err := Save("x.yaml", nil); err == nil {
		t.Error("Save(nil) should fail")
	}
}

func TestNormalize(t *testing.T) {
	c := &Config{
		SPI:     SPIConfig{Mode: 7},
		Refresh: RefreshConfig{Interval: -time.Second, RetryAttempts: -1},
	}
	c.Normalize()
	if c.SPI.Mode != 0 || c.SPI.SpeedHz != defaultSpeedHz {
		t.Errorf("SPI = %+v", c.SPI)
	}
	if c.Refresh.Interval != defaultInterval || c.Refresh.RetryAttempts != 0 {
		t.Errorf("Refresh = %+v", c.Refresh)
	}
	if c.Pins.DC != defaultDC || c.Capture.Schedule != defaultCaptureSchedule || c.Log.Level != "info" {
		t.Errorf("defaults not applied: %+v", c)
	}
}
