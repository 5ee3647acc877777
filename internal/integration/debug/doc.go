// Package debug routes Dart debug adapter events across live debug sessions.
//
// The Orchestrator is the single registry of running Dart and Flutter debug
// sessions. A host (see the host subpackage) delivers three kinds of
// callbacks on one event-loop goroutine:
//
//   - session start: a Session record is created
//   - custom event: a dart.* event is routed to its session
//   - session end: the record is removed and its progress signals resolved
//
// # Early events
//
// Debug adapters can emit custom events before the host has announced the
// session they belong to. Such events are held in a pending queue and
// replayed, in arrival order, as soon as the session starts:
//
//	adapter:  dart.launching ─┐
//	adapter:  dart.progress  ─┤ queued (session unknown)
//	host:     session start  ─┴─► replay launching, progress
//	adapter:  dart.launched  ───► routed immediately
//
// # Progress
//
// Each session has at most one progress episode: none, launching (opened by
// dart.launching and closed only by dart.launched) or a named episode keyed
// by its progress id. Every episode carries a Signal that callers can await.
// Ending a session resolves all of its signals.
//
// # Notifications
//
// Hot reload/restart requests, first frame, coverage and VM service
// endpoints are re-published through event.Emitter subscriptions so UI and
// tooling (DevTools auto-open, metrics) can react without the orchestrator
// knowing about them.
//
// # Subpackages
//
//   - dap: Debug Adapter Protocol transport and client
//   - host: session registry driving the orchestrator from adapter connections
//   - serviceext: Flutter service extension toggle state
//   - devtools: DevTools launcher and auto-open policy
package debug
