package debug

import (
	"context"
	"sync"
	"time"
)

// Registry delivers session lifecycle and custom event callbacks.
// Each On method returns a function that removes the callback.
type Registry interface {
	OnSessionStart(fn func(SessionInfo)) (dispose func())
	OnCustomEvent(fn func(CustomEvent)) (dispose func())
	OnSessionEnd(fn func(sessionID string)) (dispose func())
}

// Logger is the sink for dart.log events and orchestrator diagnostics.
type Logger interface {
	Log(severity Severity, message, category string)
}

// ToggleState tracks service extension toggles shared by all sessions.
type ToggleState interface {
	// ResetToDefaults runs when the first session starts.
	ResetToDefaults()
	// MarkAllUnloaded runs when the last session ends.
	MarkAllUnloaded()
	// HandleDebugEvent sees every custom event before routing.
	HandleDebugEvent(e CustomEvent)
}

// ContextFlags receives host context keys such as ContextSupportsHotReload.
type ContextFlags interface {
	SetContext(name string, value bool)
}

// Navigator jumps to a source location.
type Navigator interface {
	Navigate(file string, line, column int)
}

// StatusDisplay shows the memory summary.
type StatusDisplay interface {
	Show(text, tooltip string)
	Hide()
}

// LaunchOptions describes a DevTools launch request.
type LaunchOptions struct {
	SessionID              string
	TriggeredAutomatically bool
	Page                   string
}

// Launcher opens DevTools for a session with a VM service.
type Launcher interface {
	Launch(ctx context.Context, s *Session, opts LaunchOptions) (url string, err error)
}

// Analytics records usage counters.
type Analytics interface {
	HotReload()
	HotRestart()
	SessionEnded(t DebuggerType, d time.Duration)
	ActiveSessions(n int)
	PendingEvents(n int)
}

// Host context keys toggled by session starts and ends.
const (
	ContextSupportsHotReload  = "dartdbg.isInDebugSessionThatSupportsHotReload"
	ContextFlutterDebugMode   = "dartdbg.isInFlutterDebugModeDebugSession"
	ContextFlutterProfileMode = "dartdbg.isInFlutterProfileModeDebugSession"
)

var sessionContexts = []string{
	ContextSupportsHotReload,
	ContextFlutterDebugMode,
	ContextFlutterProfileMode,
}

// Flags is an in-memory ContextFlags safe for concurrent readers.
type Flags struct {
	mu     sync.RWMutex
	values map[string]bool
}

// NewFlags creates an empty flag set.
func NewFlags() *Flags {
	return &Flags{values: make(map[string]bool)}
}

// SetContext sets a flag.
func (f *Flags) SetContext(name string, value bool) {
	f.mu.Lock()
	f.values[name] = value
	f.mu.Unlock()
}

// Get returns a flag value; unset flags are false.
func (f *Flags) Get(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values[name]
}

type nopLogger struct{}

func (nopLogger) Log(Severity, string, string) {}

type nopToggles struct{}

func (nopToggles) ResetToDefaults() {}
func (nopToggles) MarkAllUnloaded() {}
func (nopToggles) HandleDebugEvent(CustomEvent) {}

type nopNavigator struct{}

func (nopNavigator) Navigate(string, int, int) {}

type nopStatus struct{}

func (nopStatus) Show(string, string) {}
func (nopStatus) Hide() {}

type nopAnalytics struct{}

func (nopAnalytics) HotReload() {}
func (nopAnalytics) HotRestart() {}
func (nopAnalytics) SessionEnded(DebuggerType, time.Duration) {}
func (nopAnalytics) ActiveSessions(int) {}
func (nopAnalytics) PendingEvents(int) {}
