package debug

import "errors"

// Sentinel errors for session commands.
var (
	// ErrNoSessions is returned when a command needs a live session and there is none.
	ErrNoSessions = errors.New("no active debug sessions")

	// ErrSessionNotFound is returned when a requested session id is not live.
	ErrSessionNotFound = errors.New("debug session not found")

	// ErrAmbiguousSession is returned when several sessions are live and none was named.
	ErrAmbiguousSession = errors.New("multiple debug sessions are active; a session id is required")

	// ErrNoDebug is returned for DevTools on a session started without debugging.
	ErrNoDebug = errors.New("the session was started without debugging")

	// ErrNotReady is returned when a session has not reported its VM service yet.
	ErrNotReady = errors.New("the debug session is not ready yet")

	// ErrNoLauncher is returned when no DevTools launcher was configured.
	ErrNoLauncher = errors.New("no devtools launcher configured")
)
