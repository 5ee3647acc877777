package debug

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// Custom event names emitted by the Dart debug adapter.
const (
	EventLog               = "dart.log"
	EventHotReloadRequest  = "dart.hotReloadRequest"
	EventHotRestartRequest = "dart.hotRestartRequest"
	EventFirstFrame        = "dart.flutter.firstFrame"
	EventDebugMetrics      = "dart.debugMetrics"
	EventCoverage          = "dart.coverage"
	EventNavigate          = "dart.navigate"
	EventLaunching         = "dart.launching"
	EventLaunched          = "dart.launched"
	EventProgress          = "dart.progress"
	EventDebuggerURIs      = "dart.debuggerUris"
	EventServiceExtAdded   = "dart.serviceExtensionAdded"
	EventServiceExtChanged = "flutter.serviceExtensionStateChanged"
)

// CustomEvent is a non-standard DAP event addressed to one session.
type CustomEvent struct {
	// SessionID identifies the session the adapter belongs to.
	SessionID string

	// Event is the event name, e.g. "dart.progress".
	Event string

	// Body is the raw JSON body; it may be empty.
	Body json.RawMessage
}

// Get returns the body field at path using gjson path syntax.
func (e CustomEvent) Get(path string) gjson.Result {
	if len(e.Body) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(e.Body, path)
}

// String describes the event for log messages.
func (e CustomEvent) String() string {
	return fmt.Sprintf("%s for session %s", e.Event, e.SessionID)
}

// Severity is the log level carried by dart.log events.
type Severity int

const (
	// SeverityInfo is informational output.
	SeverityInfo Severity = iota
	// SeverityWarn is a warning.
	SeverityWarn
	// SeverityError is an error.
	SeverityError
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// parseSeverity maps the wire severity. Only integral values 0..2 are known.
func parseSeverity(r gjson.Result) (Severity, bool) {
	if r.Type != gjson.Number {
		return 0, false
	}
	f := r.Float()
	if f != math.Trunc(f) {
		return 0, false
	}
	switch sev := Severity(f); sev {
	case SeverityInfo, SeverityWarn, SeverityError:
		return sev, true
	}
	return 0, false
}

const mib = 1024 * 1024

// MemoryText formats heap usage the way the status display shows it.
// Both values are rounded up to whole mebibytes.
func MemoryText(current, total float64) string {
	return fmt.Sprintf("%dMB of %dMB", int64(math.Ceil(current/mib)), int64(math.Ceil(total/mib)))
}

// MemoryTooltip accompanies MemoryText on the status display.
const MemoryTooltip = "This is the amount of memory being consumed by your applications heaps (out of what has been allocated).\n\n" +
	"Note: memory usage shown in debug builds may not be indicative of usage in release builds. " +
	"Use profile builds for more accurate figures when testing memory usage."
