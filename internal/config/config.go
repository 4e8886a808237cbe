// Package config loads the drover configuration file.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config represents the merged drover configuration
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Browser BrowserConfig `json:"browser"`
	Media   MediaConfig   `json:"media"`
}

type LoggingConfig struct {
	Level      string `json:"level"` // trace, debug, info, warn, error
	ShowCaller bool   `json:"showCaller"`
}

// BrowserConfig controls how the managed browser is obtained and launched.
type BrowserConfig struct {
	Dir          string `json:"dir"`          // Base dir for downloaded browsers (default ~/.drover/browser)
	AutoDownload bool   `json:"autoDownload"` // Download Chromium if no binary is found
	Bin          string `json:"bin"`          // Explicit browser binary path (overrides download)
	ControlURL   string `json:"controlUrl"`   // Attach to an already-running browser instead of launching
	Headless     bool   `json:"headless"`
	NoSandbox    bool   `json:"noSandbox"` // Needed for Docker/root
	Stealth      bool   `json:"stealth"`   // Inject stealth script into new views
	TimeoutSec   int    `json:"timeout"`   // Per-command timeout in seconds
	WindowWidth  int    `json:"windowWidth"`
	WindowHeight int    `json:"windowHeight"`
}

type MediaConfig struct {
	Dir     string `json:"dir"`     // Capture output directory (default ~/.drover/media)
	TTLSec  int    `json:"ttl"`     // Seconds before stored captures are cleaned up
	MaxSize int    `json:"maxSize"` // Max stored file size in bytes
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Browser: BrowserConfig{
			AutoDownload: true,
			Headless:     true,
			TimeoutSec:   60,
			WindowWidth:  1920,
			WindowHeight: 1080,
		},
	}
}

// Path returns the config file location (~/.drover/drover.json).
func Path() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "drover.json"
	}
	return filepath.Join(home, ".drover", "drover.json")
}

// Load reads configuration from drover.json, applying defaults for
// anything the file doesn't set. A missing file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config back to disk atomically.
func (c *Config) Save() error {
	return AtomicWriteJSON(Path(), c, 0600)
}
