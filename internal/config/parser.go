package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ParseConfig decodes a JSON config over the defaults
func ParseConfig(byteConfig []byte) (*Config, error) {
	cfg := Default()
	if err := json.Unmarshal(byteConfig, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads path, or returns the defaults when path is empty
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SHORTWEB_* variables
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("SHORTWEB_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := getenv("SHORTWEB_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SHORTWEB_HEADLESS: %w", err)
		}
		c.Rod.Headless = b
		c.Chromedp.Headless = b
	}
	if v := getenv("SHORTWEB_BROWSER_BIN"); v != "" {
		c.Rod.Bin = v
		c.Chromedp.ExecPath = v
	}
	if v := getenv("SHORTWEB_SESSION_DB"); v != "" {
		c.Session.DB = v
	}
	if v := getenv("SHORTWEB_PROFILE"); v != "" {
		c.Session.Profile = v
	}
	if v := getenv("SHORTWEB_OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := getenv("SHORTWEB_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return c.Validate()
}

// Validate checks the backend and fills in derived values
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendRod, BackendChromedp:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	for _, dir := range []*string{&c.Rod.UserDataDir, &c.Chromedp.UserDataDir} {
		if *dir == "" {
			continue
		}
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return err
		}
		*dir = abs
	}
	if c.Engine.RecheckAttempts < 1 {
		c.Engine.RecheckAttempts = 1
	}
	if c.Engine.FrameAttempts < 1 {
		c.Engine.FrameAttempts = 1
	}
	if c.Output.FPS < 1 {
		c.Output.FPS = 1
	}
	return nil
}
