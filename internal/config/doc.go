// Package config loads dartdbg settings from a TOML file with DARTDBG_*
// environment overrides, and keeps the current value live.
//
// Precedence, lowest first:
//
//	defaults < config file < environment
//
// A Store holds the current Config and notifies subscribers when it changes.
// A Watcher reloads the file into a Store when it is written.
package config
