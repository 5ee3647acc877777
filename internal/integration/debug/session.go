package debug

import (
	"context"
	"time"
)

// HostType is the debug session type the orchestrator tracks.
const HostType = "dart"

// DebuggerType identifies the runtime variant behind a session.
type DebuggerType int

const (
	// DebuggerUnknown is used when the launch configuration did not say.
	DebuggerUnknown DebuggerType = iota
	// DebuggerDart is a plain Dart VM program.
	DebuggerDart
	// DebuggerPubTest runs Dart tests through pub.
	DebuggerPubTest
	// DebuggerFlutter is a Flutter app.
	DebuggerFlutter
	// DebuggerFlutterTest runs Flutter tests.
	DebuggerFlutterTest
	// DebuggerFlutterWeb is a Flutter app served to a browser.
	DebuggerFlutterWeb
)

// String returns the configuration name of the debugger type.
func (t DebuggerType) String() string {
	switch t {
	case DebuggerDart:
		return "dart"
	case DebuggerPubTest:
		return "pub-test"
	case DebuggerFlutter:
		return "flutter"
	case DebuggerFlutterTest:
		return "flutter-test"
	case DebuggerFlutterWeb:
		return "flutter-web"
	default:
		return "unknown"
	}
}

// ParseDebuggerType is the inverse of DebuggerType.String.
func ParseDebuggerType(s string) (DebuggerType, bool) {
	switch s {
	case "dart":
		return DebuggerDart, true
	case "pub-test":
		return DebuggerPubTest, true
	case "flutter":
		return DebuggerFlutter, true
	case "flutter-test":
		return DebuggerFlutterTest, true
	case "flutter-web":
		return DebuggerFlutterWeb, true
	case "unknown", "":
		return DebuggerUnknown, true
	}
	return DebuggerUnknown, false
}

// SupportsHotReload reports whether sessions of this type can hot reload.
func (t DebuggerType) SupportsHotReload() bool {
	return t == DebuggerFlutter || t == DebuggerFlutterWeb
}

// FlutterMode is the build mode of a Flutter session.
type FlutterMode string

const (
	FlutterModeDebug   FlutterMode = "debug"
	FlutterModeProfile FlutterMode = "profile"
	FlutterModeRelease FlutterMode = "release"
)

// Requester sends custom requests back to a session's debug adapter.
// Implementations must not block waiting for the adapter's response.
type Requester interface {
	CustomRequest(ctx context.Context, command string, args any) error
}

// SessionInfo is what the host knows about a session when it starts.
type SessionInfo struct {
	ID           string
	Name         string
	HostType     string
	DebuggerType DebuggerType
	FlutterMode  FlutterMode
	NoDebug      bool
	DeviceName   string
	Requester    Requester
}

// Session is the orchestrator's record of a live debug session.
// Fields are only mutated on the host event loop.
type Session struct {
	ID           string
	Name         string
	DebuggerType DebuggerType
	FlutterMode  FlutterMode
	NoDebug      bool
	DeviceName   string
	Started      time.Time

	// Endpoints reported by dart.debuggerUris.
	ObservatoryURI string
	VMServiceURI   string

	requester Requester
	progress  progressState
}

func newSession(info SessionInfo, now time.Time) *Session {
	return &Session{
		ID:           info.ID,
		Name:         info.Name,
		DebuggerType: info.DebuggerType,
		FlutterMode:  info.FlutterMode,
		NoDebug:      info.NoDebug,
		DeviceName:   info.DeviceName,
		Started:      now,
		requester:    info.Requester,
		progress:     noProgress{},
	}
}

// Progress returns the kind of progress episode currently active.
func (s *Session) Progress() ProgressKind {
	return s.progress.kind()
}

// ProgressID returns the id of the active named episode, or "".
func (s *Session) ProgressID() string {
	if p, ok := s.progress.(*namedProgress); ok {
		return p.id
	}
	return ""
}

// ProgressSignal returns the completion signal of the active episode.
// With no episode active it returns an already resolved signal.
func (s *Session) ProgressSignal() *Signal {
	switch p := s.progress.(type) {
	case *launchingProgress:
		return p.done
	case *namedProgress:
		return p.done
	}
	return resolvedSignal()
}

// HasEndpoints reports whether the VM service URI is known.
func (s *Session) HasEndpoints() bool {
	return s.VMServiceURI != ""
}
