package debug

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStartRegisters(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerFlutter)

	s, ok := f.orch.Session("a")
	require.True(t, ok)
	assert.Equal(t, DebuggerFlutter, s.DebuggerType)
	assert.Equal(t, f.clock, s.Started)
	assert.Equal(t, ProgressNone, s.Progress())
	assert.Equal(t, 1, f.analytics.active)
}

func TestSessionStartIgnoresOtherHostTypes(t *testing.T) {
	f := newFixture()
	f.orch.SessionStarted(SessionInfo{ID: "node", HostType: "node"})

	assert.Empty(t, f.orch.Sessions())
	assert.Equal(t, 0, f.toggles.resets)
}

func TestTogglesResetOnlyForFirstSession(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerDart)
	f.start("b", DebuggerDart)

	assert.Equal(t, 1, f.toggles.resets)
}

func TestEndingOneOfTwoSessionsKeepsToggles(t *testing.T) {
	f := newFixture()
	f.orch.SessionStarted(SessionInfo{ID: "a", HostType: HostType, DebuggerType: DebuggerFlutter, FlutterMode: FlutterModeDebug})
	f.start("b", DebuggerFlutter)

	f.orch.SessionEnded("a")

	assert.Equal(t, 0, f.toggles.unloads)
	assert.True(t, f.flags.Get(ContextSupportsHotReload))
	assert.True(t, f.flags.Get(ContextFlutterDebugMode))

	f.orch.SessionEnded("b")

	assert.Equal(t, 1, f.toggles.unloads)
	assert.False(t, f.flags.Get(ContextSupportsHotReload))
	assert.False(t, f.flags.Get(ContextFlutterDebugMode))
}

func TestContextFlagsForFlutterModes(t *testing.T) {
	tests := []struct {
		name        string
		debugger    DebuggerType
		mode        FlutterMode
		hotReload   bool
		debugMode   bool
		profileMode bool
	}{
		{"dart", DebuggerDart, "", false, false, false},
		{"flutter debug", DebuggerFlutter, FlutterModeDebug, true, true, false},
		{"flutter profile", DebuggerFlutter, FlutterModeProfile, true, false, true},
		{"flutter release", DebuggerFlutter, FlutterModeRelease, true, false, false},
		{"flutter web", DebuggerFlutterWeb, FlutterModeDebug, true, true, false},
		{"flutter test", DebuggerFlutterTest, FlutterModeDebug, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.orch.SessionStarted(SessionInfo{ID: "s", HostType: HostType, DebuggerType: tt.debugger, FlutterMode: tt.mode})

			assert.Equal(t, tt.hotReload, f.flags.Get(ContextSupportsHotReload))
			assert.Equal(t, tt.debugMode, f.flags.Get(ContextFlutterDebugMode))
			assert.Equal(t, tt.profileMode, f.flags.Get(ContextFlutterProfileMode))
		})
	}
}

func TestEarlyEventsReplayedInOrderOnce(t *testing.T) {
	f := newFixture()

	assert.True(t, f.send("a", EventLaunching, map[string]any{"message": "Launching…"}))
	f.send("b", EventLaunching, map[string]any{"message": "other"})
	f.send("a", EventProgress, map[string]any{"message": "Building", "progressID": "build"})
	f.send("a", EventLog, map[string]any{"message": "early", "severity": 0, "category": "run"})

	assert.Equal(t, 4, f.orch.PendingEvents())
	assert.Equal(t, 4, f.analytics.pending)
	assert.Empty(t, f.progress.indicators)

	f.start("a", DebuggerFlutter)

	assert.Equal(t, 1, f.orch.PendingEvents())
	assert.Equal(t, 1, f.analytics.pending)

	require.Len(t, f.progress.indicators, 1)
	ind := f.progress.indicators[0]
	assert.Equal(t, "a", ind.sessionID)
	assert.Equal(t, []string{"Launching…", "Building"}, ind.messages)

	infos := f.logger.bySeverity(SeverityInfo)
	var replayed, early int
	for _, e := range infos {
		if e.category == "debug" {
			replayed++
		}
		if e.message == "early" {
			early++
			assert.Equal(t, "run", e.category)
		}
	}
	assert.Equal(t, 3, replayed)
	assert.Equal(t, 1, early)

	// Starting another session for the same id never replays again.
	f.orch.SessionEnded("a")
	f.start("a", DebuggerFlutter)
	assert.Len(t, f.progress.indicators, 1)

	f.start("b", DebuggerFlutter)
	assert.Equal(t, 0, f.orch.PendingEvents())
	require.Len(t, f.progress.indicators, 2)
	assert.Equal(t, "b", f.progress.last().sessionID)
}

func TestUnknownSessionQueuedWithWarning(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerDart)

	f.send("zzz", EventFirstFrame, nil)

	assert.Equal(t, 1, f.orch.PendingEvents())
	warns := f.logger.bySeverity(SeverityWarn)
	require.Len(t, warns, 2)
	assert.Contains(t, warns[0].message, "Did not find session zzz to handle dart.flutter.firstFrame")
	assert.Contains(t, warns[0].message, "\n  a")
}

func TestToggleTrackerSeesEveryEvent(t *testing.T) {
	f := newFixture()
	f.send("early", EventServiceExtAdded, map[string]any{"extensionRPC": "ext.flutter.debugPaint"})
	f.start("a", DebuggerFlutter)
	f.send("a", "dart.somethingElse", nil)

	assert.Equal(t, []string{EventServiceExtAdded, "dart.somethingElse"}, f.toggles.observed)
}

func TestUnrecognisedEventNotHandled(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerDart)

	assert.False(t, f.send("a", "dart.unknown", map[string]any{"x": 1}))
	assert.False(t, f.send("missing", "dart.unknown", nil))
	assert.True(t, f.send("missing", EventLog, nil))
}

func TestLogSeverities(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerDart)

	f.send("a", EventLog, map[string]any{"message": "i", "severity": 0, "category": "general"})
	f.send("a", EventLog, map[string]any{"message": "w", "severity": 1, "category": "general"})
	f.send("a", EventLog, map[string]any{"message": "e", "severity": 2, "category": "general"})

	require.Len(t, f.logger.entries, 3)
	assert.Equal(t, logEntry{SeverityInfo, "i", "general"}, f.logger.entries[0])
	assert.Equal(t, logEntry{SeverityWarn, "w", "general"}, f.logger.entries[1])
	assert.Equal(t, logEntry{SeverityError, "e", "general"}, f.logger.entries[2])
}

func TestLogUnknownSeverityWarns(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"out of range", map[string]any{"message": "m", "severity": 7}},
		{"fractional", map[string]any{"message": "m", "severity": 1.5}},
		{"string", map[string]any{"message": "m", "severity": "warn"}},
		{"missing", map[string]any{"message": "m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.start("a", DebuggerDart)

			assert.True(t, f.send("a", EventLog, tt.body))

			require.Len(t, f.logger.entries, 1)
			assert.Equal(t, SeverityWarn, f.logger.entries[0].severity)
			assert.Contains(t, f.logger.entries[0].message, "Failed to handle log event")
		})
	}
}

func TestHotReloadAndRestartNotifications(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerFlutter)

	var reloads, restarts int
	f.orch.OnWillHotReload(func() { reloads++ })
	sub := f.orch.OnWillHotRestart(func() { restarts++ })

	f.send("a", EventHotReloadRequest, nil)
	f.send("a", EventHotReloadRequest, nil)
	f.send("a", EventHotRestartRequest, nil)
	sub.Cancel()
	f.send("a", EventHotRestartRequest, nil)

	assert.Equal(t, 2, reloads)
	assert.Equal(t, 1, restarts)
	assert.Equal(t, 2, f.analytics.reloads)
	assert.Equal(t, 2, f.analytics.restarts)
}

func TestFirstFrameNotification(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerFlutter)

	frames := 0
	f.orch.OnFirstFrame(func() { frames++ })
	f.send("a", EventFirstFrame, nil)

	assert.Equal(t, 1, frames)
}

func TestDebugMetricsDisplay(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerFlutter)

	f.send("a", EventDebugMetrics, map[string]any{
		"memory": map[string]any{"current": 150*mib - 1, "total": 300 * mib},
	})

	assert.True(t, f.status.visible)
	assert.Equal(t, "150MB of 300MB", f.status.text)
	assert.Equal(t, MemoryTooltip, f.status.tooltip)

	f.orch.SessionEnded("a")
	assert.False(t, f.status.visible)
}

func TestMemoryText(t *testing.T) {
	tests := []struct {
		current, total float64
		want           string
	}{
		{150*mib - 1, 300 * mib, "150MB of 300MB"},
		{0, 0, "0MB of 0MB"},
		{1, mib, "1MB of 1MB"},
		{mib + 1, 2*mib + 1, "2MB of 3MB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MemoryText(tt.current, tt.total))
	}
}

func TestCoverageForwardedVerbatim(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerDart)

	var got json.RawMessage
	f.orch.OnCoverage(func(body json.RawMessage) { got = body })

	body := json.RawMessage(`[{"scriptPath":"lib/main.dart","hitLines":[1,2,3]}]`)
	f.orch.CustomEvent(CustomEvent{SessionID: "a", Event: EventCoverage, Body: body})

	assert.JSONEq(t, string(body), string(got))
}

func TestNavigate(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerDart)

	f.send("a", EventNavigate, map[string]any{"file": "file:///lib/main.dart", "line": 10, "column": 3})
	require.Len(t, f.navigator.calls, 1)
	assert.Equal(t, navigation{"file:///lib/main.dart", 10, 3}, f.navigator.calls[0])
}

func TestNavigateMissingFieldSkips(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerDart)

	assert.NotPanics(t, func() {
		assert.True(t, f.send("a", EventNavigate, map[string]any{"line": 10, "column": 3}))
		f.send("a", EventNavigate, map[string]any{"file": "x.dart", "column": 3})
		f.send("a", EventNavigate, map[string]any{"file": "x.dart", "line": 3})
		f.send("a", EventNavigate, nil)
	})

	assert.Empty(t, f.navigator.calls)
	assert.Empty(t, f.logger.bySeverity(SeverityWarn))
	assert.Empty(t, f.logger.bySeverity(SeverityError))
}

func TestLaunchingEpisode(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerFlutter)
	s, _ := f.orch.Session("a")

	f.send("a", EventLaunching, map[string]any{"message": "Launching lib/main.dart"})
	require.Equal(t, ProgressLaunching, s.Progress())
	signal := s.ProgressSignal()
	ind := f.progress.last()

	// Progress messages go to the launching indicator and finished flags are ignored.
	f.send("a", EventProgress, map[string]any{"message": "Compiling", "progressID": "p1"})
	f.send("a", EventProgress, map[string]any{"progressID": "p1", "finished": true})
	f.send("a", EventLaunching, map[string]any{"message": "Still launching"})

	assert.Equal(t, ProgressLaunching, s.Progress())
	assert.Len(t, f.progress.indicators, 1)
	assert.Equal(t, []string{"Launching lib/main.dart", "Compiling", "Still launching"}, ind.messages)
	assert.False(t, signal.Resolved())
	assert.False(t, ind.closed())

	f.send("a", EventLaunched, nil)

	assert.Equal(t, ProgressNone, s.Progress())
	assert.True(t, signal.Resolved())
	assert.True(t, ind.closed())
}

func TestLaunchingSupersedesNamedProgress(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerFlutter)
	s, _ := f.orch.Session("a")

	f.send("a", EventProgress, map[string]any{"message": "Syncing", "progressID": "sync"})
	named := s.ProgressSignal()

	f.send("a", EventLaunching, map[string]any{"message": "Launching"})

	assert.True(t, named.Resolved())
	assert.Equal(t, ProgressLaunching, s.Progress())
}

func TestNamedProgressEpisode(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerFlutter)
	s, _ := f.orch.Session("a")

	f.send("a", EventProgress, map[string]any{"message": "Reloading", "progressID": "reload-1"})
	require.Equal(t, ProgressNamed, s.Progress())
	assert.Equal(t, "reload-1", s.ProgressID())
	signal := s.ProgressSignal()
	ind := f.progress.last()

	f.send("a", EventProgress, map[string]any{"message": "Reassembling", "progressID": "reload-1"})
	assert.Len(t, f.progress.indicators, 1)
	assert.Equal(t, []string{"Reloading", "Reassembling"}, ind.messages)

	// Stale finish for another id.
	f.send("a", EventProgress, map[string]any{"progressID": "reload-0", "finished": true})
	assert.Equal(t, ProgressNamed, s.Progress())
	assert.False(t, signal.Resolved())

	f.send("a", EventProgress, map[string]any{"progressID": "reload-1", "finished": true})
	assert.Equal(t, ProgressNone, s.Progress())
	assert.True(t, signal.Resolved())
	assert.True(t, ind.closed())

	// A duplicate finish is harmless.
	f.send("a", EventProgress, map[string]any{"progressID": "reload-1", "finished": true})
	assert.Equal(t, ProgressNone, s.Progress())
}

func TestProgressWithoutMessageDoesNotOpen(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerFlutter)
	s, _ := f.orch.Session("a")

	f.send("a", EventProgress, map[string]any{"progressID": "x"})

	assert.Equal(t, ProgressNone, s.Progress())
	assert.Empty(t, f.progress.indicators)
	assert.True(t, s.ProgressSignal().Resolved())
}

func TestProgressOpenAndFinishInOneEvent(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerFlutter)
	s, _ := f.orch.Session("a")

	f.send("a", EventProgress, map[string]any{"message": "Done quickly", "progressID": "q", "finished": true})

	assert.Equal(t, ProgressNone, s.Progress())
	require.Len(t, f.progress.indicators, 1)
	assert.True(t, f.progress.last().closed())
}

func TestSessionEndResolvesOutstandingSignals(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerFlutter)
	f.start("b", DebuggerFlutter)
	a, _ := f.orch.Session("a")
	b, _ := f.orch.Session("b")

	f.send("a", EventLaunching, map[string]any{"message": "Launching"})
	f.send("b", EventProgress, map[string]any{"message": "Working", "progressID": "w"})
	launch := a.ProgressSignal()
	work := b.ProgressSignal()

	waited := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		waited <- launch.Wait(ctx)
	}()

	f.clock = f.clock.Add(90 * time.Second)
	f.orch.SessionEnded("a")

	require.NoError(t, <-waited)
	assert.False(t, work.Resolved())
	assert.Equal(t, 90*time.Second, f.analytics.durations[DebuggerFlutter])

	f.orch.SessionEnded("b")
	assert.True(t, work.Resolved())
	assert.Empty(t, f.orch.Sessions())
}

func TestSessionEndUnknownIgnored(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerDart)

	f.orch.SessionEnded("nope")

	assert.Len(t, f.orch.Sessions(), 1)
	assert.Equal(t, 0, f.toggles.unloads)
}

func TestSessionEndDiscardsEventsOfSessionThatNeverStarted(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerDart)

	f.send("failed", EventLaunching, map[string]any{"message": "Launching"})
	f.send("a-later", EventFirstFrame, nil)
	f.send("failed", EventLog, map[string]any{"message": "x", "severity": 0})
	require.Equal(t, 3, f.orch.PendingEvents())

	f.orch.SessionEnded("failed")

	assert.Equal(t, 1, f.orch.PendingEvents())
	assert.Equal(t, 1, f.analytics.pending)
	assert.Len(t, f.orch.Sessions(), 1)

	// The surviving entry still replays when its session starts.
	f.start("a-later", DebuggerFlutter)
	assert.Equal(t, 0, f.orch.PendingEvents())
}

func TestSessionEndDiscardsEventsOfOtherHostTypes(t *testing.T) {
	f := newFixture()
	f.send("node", EventLog, map[string]any{"message": "x", "severity": 0})
	f.orch.SessionStarted(SessionInfo{ID: "node", HostType: "node"})
	require.Equal(t, 1, f.orch.PendingEvents())

	f.orch.SessionEnded("node")

	assert.Zero(t, f.orch.PendingEvents())
	assert.Equal(t, 0, f.toggles.unloads)
}

func TestDebuggerURIsRecordedAndPublished(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerFlutter)

	var got *Session
	f.orch.OnEndpointsAvailable(func(s *Session) { got = s })

	f.send("a", EventDebuggerURIs, map[string]any{
		"observatoryUri": "http://127.0.0.1:8181/abc=/",
		"vmServiceUri":   "ws://127.0.0.1:8181/abc=/ws",
	})

	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, "http://127.0.0.1:8181/abc=/", got.ObservatoryURI)
	assert.Equal(t, "ws://127.0.0.1:8181/abc=/ws", got.VMServiceURI)
	assert.True(t, got.HasEndpoints())
}

func TestSubscriberPanicIsLogged(t *testing.T) {
	f := newFixture()
	f.start("a", DebuggerFlutter)

	frames := 0
	f.orch.OnFirstFrame(func() { panic("bad subscriber") })
	f.orch.OnFirstFrame(func() { frames++ })

	assert.NotPanics(t, func() { f.send("a", EventFirstFrame, nil) })
	assert.Equal(t, 1, frames)
	require.Len(t, f.logger.bySeverity(SeverityError), 1)
}

func TestAttachAndClose(t *testing.T) {
	f := newFixture()
	reg := &fakeRegistry{}
	f.orch.Attach(reg)

	require.Len(t, reg.starts, 1)
	require.Len(t, reg.events, 1)
	require.Len(t, reg.ends, 1)

	reg.events[0](CustomEvent{SessionID: "a", Event: EventFirstFrame})
	reg.starts[0](SessionInfo{ID: "a", HostType: HostType, DebuggerType: DebuggerFlutter})
	assert.Len(t, f.orch.Sessions(), 1)
	assert.Equal(t, 0, f.orch.PendingEvents())

	reg.ends[0]("a")
	assert.Empty(t, f.orch.Sessions())

	frames := 0
	f.orch.OnFirstFrame(func() { frames++ })
	f.orch.Close()

	assert.Nil(t, reg.starts)
	assert.Nil(t, reg.events)
	assert.Nil(t, reg.ends)

	f.start("b", DebuggerFlutter)
	f.send("b", EventFirstFrame, nil)
	assert.Equal(t, 0, frames)
}

func TestNewWithNilCollaborators(t *testing.T) {
	o := New(Options{})

	assert.NotPanics(t, func() {
		o.SessionStarted(SessionInfo{ID: "a", HostType: HostType, DebuggerType: DebuggerFlutter})
		o.CustomEvent(CustomEvent{SessionID: "a", Event: EventLaunching, Body: json.RawMessage(`{"message":"x"}`)})
		o.CustomEvent(CustomEvent{SessionID: "a", Event: EventDebugMetrics})
		o.CustomEvent(CustomEvent{SessionID: "a", Event: EventNavigate, Body: json.RawMessage(`{"file":"a","line":1,"column":1}`)})
		o.SessionEnded("a")
	})
}
