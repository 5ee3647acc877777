package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dshills/dartdbg/internal/integration/debug"
	"github.com/dshills/dartdbg/internal/integration/debug/devtools"
)

// Config is the complete dartdbg configuration.
type Config struct {
	Adapter  AdapterConfig  `toml:"adapter" envPrefix:"ADAPTER_"`
	DevTools DevToolsConfig `toml:"devtools" envPrefix:"DEVTOOLS_"`
	Log      LogConfig      `toml:"log" envPrefix:"LOG_"`
	Metrics  MetricsConfig  `toml:"metrics" envPrefix:"METRICS_"`
}

// AdapterConfig selects the debug adapter and what it runs.
type AdapterConfig struct {
	// Command overrides the adapter executable and its arguments.
	Command      []string `toml:"command" env:"COMMAND" envSeparator:" "`
	DebuggerType string   `toml:"debugger_type" env:"DEBUGGER_TYPE"`
	FlutterMode  string   `toml:"flutter_mode" env:"FLUTTER_MODE"`
	DeviceID     string   `toml:"device_id,omitempty" env:"DEVICE_ID"`
}

// DevToolsConfig controls DevTools launching.
type DevToolsConfig struct {
	Open         string `toml:"open" env:"OPEN"`
	ReuseWindows bool   `toml:"reuse_windows" env:"REUSE_WINDOWS"`
	Address      string `toml:"address" env:"ADDRESS"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Pretty bool   `toml:"pretty" env:"PRETTY"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `toml:"addr" env:"ADDR"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Adapter: AdapterConfig{
			DebuggerType: debug.DebuggerFlutter.String(),
			FlutterMode:  string(debug.FlutterModeDebug),
		},
		DevTools: DevToolsConfig{
			Open:         string(devtools.PolicyFlutter),
			ReuseWindows: true,
			Address:      "127.0.0.1:9100",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Validate reports every invalid field, joined.
func (c Config) Validate() error {
	var errs []error

	if _, ok := debug.ParseDebuggerType(c.Adapter.DebuggerType); !ok {
		errs = append(errs, fmt.Errorf("adapter.debugger_type: unknown %q", c.Adapter.DebuggerType))
	}
	switch debug.FlutterMode(c.Adapter.FlutterMode) {
	case "", debug.FlutterModeDebug, debug.FlutterModeProfile, debug.FlutterModeRelease:
	default:
		errs = append(errs, fmt.Errorf("adapter.flutter_mode: unknown %q", c.Adapter.FlutterMode))
	}
	if _, err := devtools.ParsePolicy(c.DevTools.Open); err != nil {
		errs = append(errs, fmt.Errorf("devtools.open: %w", err))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// DebuggerType returns the parsed adapter debugger type.
func (c Config) DebuggerType() debug.DebuggerType {
	t, _ := debug.ParseDebuggerType(c.Adapter.DebuggerType)
	return t
}

// DevToolsPolicy returns the parsed DevTools policy, PolicyNever if invalid.
func (c Config) DevToolsPolicy() devtools.Policy {
	p, err := devtools.ParsePolicy(c.DevTools.Open)
	if err != nil {
		return devtools.PolicyNever
	}
	return p
}
