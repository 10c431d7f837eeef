package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"backend":"Chromedp","chromedp":{"headless":false},"engine":{"settle_delay_ms":250}}`))
	require.NoError(t, err)
	assert.Equal(t, BackendChromedp, cfg.Backend)
	assert.False(t, cfg.Chromedp.Headless)
	assert.True(t, cfg.Rod.Headless)
	assert.Equal(t, 250*time.Millisecond, cfg.SettleDelay())
	assert.Equal(t, 500*time.Millisecond, cfg.MutationSettle())
	assert.Equal(t, 20, cfg.Engine.RecheckAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.FrameInterval())
	assert.Equal(t, "default", cfg.Session.Profile)
}

func TestParseConfigErrors(t *testing.T) {
	_, err := ParseConfig([]byte(`{`))
	assert.Error(t, err)

	_, err = ParseConfig([]byte(`{"backend":"webkit"}`))
	assert.ErrorContains(t, err, "unknown backend")
}

func TestParseConfigAbsUserDataDir(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"rod":{"user_data_dir":"profile"}}`))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.Rod.UserDataDir))
	assert.Empty(t, cfg.Chromedp.UserDataDir)
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "shortweb.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"output":{"dir":"out","gif":true}}`), 0o644))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.True(t, cfg.Output.GIF)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SHORTWEB_BACKEND":     "chromedp",
		"SHORTWEB_HEADLESS":    "false",
		"SHORTWEB_SESSION_DB":  "cookies.db",
		"SHORTWEB_BROWSER_BIN": "/usr/bin/chromium",
		"SHORTWEB_LOG_LEVEL":   "debug",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))
	assert.Equal(t, BackendChromedp, cfg.Backend)
	assert.False(t, cfg.Rod.Headless)
	assert.False(t, cfg.Chromedp.Headless)
	assert.Equal(t, "cookies.db", cfg.Session.DB)
	assert.Equal(t, "/usr/bin/chromium", cfg.Chromedp.ExecPath)
	assert.Equal(t, "debug", cfg.Log.Level)

	env = map[string]string{"SHORTWEB_HEADLESS": "maybe"}
	assert.Error(t, Default().ApplyEnv(func(k string) string { return env[k] }))
}
