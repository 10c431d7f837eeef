package config

import "time"

const (
	BackendRod      = "rod"
	BackendChromedp = "chromedp"
)

type Config struct {
	Backend string `json:"backend"`

	Rod struct {
		Bin         string `json:"bin"`
		ControlURL  string `json:"control_url"`
		UserDataDir string `json:"user_data_dir"`
		Headless    bool   `json:"headless"`
		NoSandbox   bool   `json:"no_sandbox"`
		Leakless    bool   `json:"leakless"`
		Stealth     bool   `json:"stealth"`
	} `json:"rod"`

	Chromedp struct {
		ExecPath    string `json:"exec_path"`
		ControlURL  string `json:"control_url"`
		UserDataDir string `json:"user_data_dir"`
		Headless    bool   `json:"headless"`
		NoSandbox   bool   `json:"no_sandbox"`
	} `json:"chromedp"`

	Session struct {
		DB      string `json:"db"` // sqlite file, empty keeps cookies in memory
		Profile string `json:"profile"`
	} `json:"session"`

	Engine struct {
		SettleDelayMS     int `json:"settle_delay_ms"`
		MutationSettleMS  int `json:"mutation_settle_ms"`
		RecheckIntervalMS int `json:"recheck_interval_ms"`
		RecheckAttempts   int `json:"recheck_attempts"`
		FrameAttempts     int `json:"frame_attempts"`
		FrameIntervalMS   int `json:"frame_interval_ms"`
	} `json:"engine"`

	Output struct {
		Dir      string `json:"dir"`
		MaxWidth uint   `json:"max_width"`
		GIF      bool   `json:"gif"`
		FPS      int    `json:"fps"`
	} `json:"output"`

	Log struct {
		Level string `json:"level"`
		Dev   bool   `json:"dev"`
	} `json:"log"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	var cfg Config
	cfg.Backend = BackendRod
	cfg.Rod.Headless = true
	cfg.Rod.Leakless = true
	cfg.Chromedp.Headless = true
	cfg.Session.Profile = "default"
	cfg.Engine.SettleDelayMS = 1000
	cfg.Engine.MutationSettleMS = 500
	cfg.Engine.RecheckIntervalMS = 500
	cfg.Engine.RecheckAttempts = 20
	cfg.Engine.FrameAttempts = 25
	cfg.Engine.FrameIntervalMS = 200
	cfg.Output.Dir = "results"
	cfg.Output.MaxWidth = 1200
	cfg.Output.FPS = 1
	cfg.Log.Level = "info"
	return &cfg
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func (c *Config) SettleDelay() time.Duration     { return ms(c.Engine.SettleDelayMS) }
func (c *Config) MutationSettle() time.Duration  { return ms(c.Engine.MutationSettleMS) }
func (c *Config) RecheckInterval() time.Duration { return ms(c.Engine.RecheckIntervalMS) }
func (c *Config) FrameInterval() time.Duration   { return ms(c.Engine.FrameIntervalMS) }
