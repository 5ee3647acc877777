package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/dartdbg/internal/integration/debug"
	"github.com/dshills/dartdbg/internal/integration/debug/devtools"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, debug.DebuggerFlutter, cfg.DebuggerType())
	assert.Equal(t, devtools.PolicyFlutter, cfg.DevToolsPolicy())
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"debugger type", func(c *Config) { c.Adapter.DebuggerType = "kotlin" }},
		{"flutter mode", func(c *Config) { c.Adapter.FlutterMode = "jit" }},
		{"policy", func(c *Config) { c.DevTools.Open = "sometimes" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "nope.toml"), map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dartdbg.toml")
	writeFile(t, path, `
[adapter]
command = ["fvm", "dart", "debug_adapter"]
debugger_type = "dart"

[devtools]
open = "always"
reuse_windows = false

[metrics]
addr = ":9090"
`)

	cfg, err := load(path, map[string]string{
		"DARTDBG_LOG_LEVEL":         "debug",
		"DARTDBG_DEVTOOLS_ADDRESS":  "localhost:9200",
		"DARTDBG_ADAPTER_DEVICE_ID": "chrome",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"fvm", "dart", "debug_adapter"}, cfg.Adapter.Command)
	assert.Equal(t, debug.DebuggerDart, cfg.DebuggerType())
	assert.Equal(t, "debug", cfg.Adapter.FlutterMode)
	assert.Equal(t, "chrome", cfg.Adapter.DeviceID)
	assert.Equal(t, devtools.PolicyAlways, cfg.DevToolsPolicy())
	assert.False(t, cfg.DevTools.ReuseWindows)
	assert.Equal(t, "localhost:9200", cfg.DevTools.Address)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoadParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dartdbg.toml")
	writeFile(t, path, "[adapter\ndebugger_type = 1\n")

	_, err := load(path, map[string]string{})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, path, pe.Path)
	assert.Positive(t, pe.Line)
}

func TestLoadInvalidEnv(t *testing.T) {
	_, err := load("", map[string]string{"DARTDBG_DEVTOOLS_OPEN": "sometimes"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStoreSetDevToolsPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dartdbg.toml")
	s := NewStore(path, Default())
	defer s.Close()

	var got []Config
	s.OnChange(func(c Config) { got = append(got, c) })

	require.NoError(t, s.SetDevToolsPolicy(devtools.PolicyAlways))
	assert.Equal(t, devtools.PolicyAlways, s.DevToolsPolicy())
	require.Len(t, got, 1)

	saved, err := load(path, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, devtools.PolicyAlways, saved.DevToolsPolicy())

	assert.ErrorIs(t, s.SetDevToolsPolicy("sometimes"), devtools.ErrInvalidPolicy)
}

func TestStoreWithoutPath(t *testing.T) {
	s := NewStore("", Default())
	require.NoError(t, s.SetDevToolsPolicy(devtools.PolicyNever))
	assert.Equal(t, devtools.PolicyNever, s.Get().DevToolsPolicy())
}

func TestWatcherReloads(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "dartdbg.toml")
	writeFile(t, path, "[log]\nlevel = \"info\"\n")

	s := NewStore(path, Default())
	defer s.Close()
	w, err := NewWatcher(s, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	changes := make(chan Config, 8)
	s.OnChange(func(c Config) { changes <- c })

	// Invalid content keeps the previous configuration.
	writeFile(t, path, "[log]\nlevel = \"loud\"\n")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "info", s.Get().Log.Level)

	writeFile(t, path, "[log]\nlevel = \"warn\"\n")
	select {
	case c := <-changes:
		assert.Equal(t, "warn", c.Log.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("config not reloaded")
	}
	assert.Equal(t, "warn", s.Get().Log.Level)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "dartdbg.toml")
	s := NewStore(path, Default())
	defer s.Close()

	w, err := NewWatcher(s, WithDebounce(5*time.Millisecond))
	require.NoError(t, err)

	fired := make(chan struct{}, 1)
	s.OnChange(func(Config) { fired <- struct{}{} })

	writeFile(t, filepath.Join(dir, "other.toml"), "[log]\nlevel = \"warn\"\n")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, fired)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
