package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popreveal/internal/round"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultIsValid(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, round.WinClear, cfg.Round.WinMode)
	assert.Equal(t, 450, cfg.Round.InitialCount)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "popreveal.yaml")
	yml := `
server:
  port: "9000"
  request_timeout: 20s
log:
  level: debug
  encoding: console
round:
  duration_seconds: 45
  win_mode: count
  win_target: 120
  min_on_field: 30
  initial_entity_count: 60
  reveal: mask
  layout: scatter
  bleed: 3
feedback:
  endpoint: https://example.test/feedback
  timeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path, env(map[string]string{
		"PORT":             "7000",
		"BASE_URL":         "https://pop.example/",
		"FEEDBACK_API_KEY": "secret",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr())
	assert.Equal(t, "https://pop.example", cfg.Server.BaseURL)
	assert.Equal(t, 20*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, round.WinCount, cfg.Round.WinMode)
	assert.Equal(t, 120, cfg.Round.Target())
	assert.Equal(t, round.RevealMask, cfg.Round.Reveal)
	// Keys the file leaves out keep their defaults.
	assert.Equal(t, 10, cfg.Round.BurstSize)
	assert.Equal(t, "secret", cfg.Feedback.APIKey)
	assert.Equal(t, 2*time.Second, cfg.Feedback.Timeout)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"), nil)
	assert.Error(t, err)

	_, err = Load(write("unknown.yaml", "server:\n  colour: blue\n"), nil)
	assert.Error(t, err)

	_, err = Load(write("clear.yaml", "round:\n  win_mode: clear\n  min_on_field: 10\n"), nil)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, round.ErrInvalidConfig)

	_, err = Load(write("enc.yaml", "log:\n  encoding: xml\n"), nil)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Load("", env(map[string]string{"FEEDBACK_ENDPOINT": "ftp://nope"}))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoad_EmptyFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(p, nil, 0o600))
	cfg, err := Load(p, nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
