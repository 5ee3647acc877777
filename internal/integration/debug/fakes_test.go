package debug

import (
	"context"
	"encoding/json"
	"time"
)

type logEntry struct {
	severity Severity
	message  string
	category string
}

type recordLogger struct {
	entries []logEntry
}

func (l *recordLogger) Log(sev Severity, message, category string) {
	l.entries = append(l.entries, logEntry{sev, message, category})
}

func (l *recordLogger) bySeverity(sev Severity) []logEntry {
	var out []logEntry
	for _, e := range l.entries {
		if e.severity == sev {
			out = append(out, e)
		}
	}
	return out
}

type recordToggles struct {
	resets   int
	unloads  int
	observed []string
}

func (t *recordToggles) ResetToDefaults() { t.resets++ }
func (t *recordToggles) MarkAllUnloaded() { t.unloads++ }
func (t *recordToggles) HandleDebugEvent(e CustomEvent) { t.observed = append(t.observed, e.Event) }

type navigation struct {
	file      string
	line, col int
}

type recordNavigator struct {
	calls []navigation
}

func (n *recordNavigator) Navigate(file string, line, col int) {
	n.calls = append(n.calls, navigation{file, line, col})
}

type recordStatus struct {
	text    string
	tooltip string
	visible bool
}

func (s *recordStatus) Show(text, tooltip string) {
	s.text, s.tooltip, s.visible = text, tooltip, true
}

func (s *recordStatus) Hide() { s.visible = false }

type indicator struct {
	sessionID string
	messages  []string
	done      <-chan struct{}
}

func (i *indicator) Report(message string) { i.messages = append(i.messages, message) }

func (i *indicator) closed() bool {
	select {
	case <-i.done:
		return true
	default:
		return false
	}
}

type recordProgressUI struct {
	indicators []*indicator
}

func (p *recordProgressUI) Begin(sessionID, message string, done <-chan struct{}) ProgressReporter {
	ind := &indicator{sessionID: sessionID, messages: []string{message}, done: done}
	p.indicators = append(p.indicators, ind)
	return ind
}

func (p *recordProgressUI) last() *indicator {
	if len(p.indicators) == 0 {
		return nil
	}
	return p.indicators[len(p.indicators)-1]
}

type request struct {
	command string
	args    any
}

type recordRequester struct {
	requests []request
	err      error
}

func (r *recordRequester) CustomRequest(_ context.Context, command string, args any) error {
	r.requests = append(r.requests, request{command, args})
	return r.err
}

type recordLauncher struct {
	sessions []string
	opts     []LaunchOptions
}

func (l *recordLauncher) Launch(_ context.Context, s *Session, opts LaunchOptions) (string, error) {
	l.sessions = append(l.sessions, s.ID)
	l.opts = append(l.opts, opts)
	return "http://devtools/?uri=" + s.VMServiceURI, nil
}

type recordAnalytics struct {
	reloads   int
	restarts  int
	durations map[DebuggerType]time.Duration
	active    int
	pending   int
}

func (a *recordAnalytics) HotReload() { a.reloads++ }
func (a *recordAnalytics) HotRestart() { a.restarts++ }
func (a *recordAnalytics) SessionEnded(t DebuggerType, d time.Duration) {
	if a.durations == nil {
		a.durations = make(map[DebuggerType]time.Duration)
	}
	a.durations[t] += d
}
func (a *recordAnalytics) ActiveSessions(n int) { a.active = n }
func (a *recordAnalytics) PendingEvents(n int) { a.pending = n }

type fixture struct {
	orch      *Orchestrator
	logger    *recordLogger
	toggles   *recordToggles
	flags     *Flags
	navigator *recordNavigator
	status    *recordStatus
	progress  *recordProgressUI
	launcher  *recordLauncher
	analytics *recordAnalytics
	clock     time.Time
}

func newFixture() *fixture {
	f := &fixture{
		logger:    &recordLogger{},
		toggles:   &recordToggles{},
		flags:     NewFlags(),
		navigator: &recordNavigator{},
		status:    &recordStatus{},
		progress:  &recordProgressUI{},
		launcher:  &recordLauncher{},
		analytics: &recordAnalytics{},
		clock:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.orch = New(Options{
		Logger:    f.logger,
		Toggles:   f.toggles,
		Flags:     f.flags,
		Launcher:  f.launcher,
		Navigator: f.navigator,
		Progress:  f.progress,
		Status:    f.status,
		Analytics: f.analytics,
		Now:       func() time.Time { return f.clock },
	})
	return f
}

func (f *fixture) start(id string, t DebuggerType) {
	f.orch.SessionStarted(SessionInfo{ID: id, Name: id, HostType: HostType, DebuggerType: t})
}

func (f *fixture) send(id, name string, body any) bool {
	var raw json.RawMessage
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	return f.orch.CustomEvent(CustomEvent{SessionID: id, Event: name, Body: raw})
}

type fakeRegistry struct {
	starts []func(SessionInfo)
	events []func(CustomEvent)
	ends   []func(string)
}

func (r *fakeRegistry) OnSessionStart(fn func(SessionInfo)) func() {
	r.starts = append(r.starts, fn)
	return func() { r.starts = nil }
}

func (r *fakeRegistry) OnCustomEvent(fn func(CustomEvent)) func() {
	r.events = append(r.events, fn)
	return func() { r.events = nil }
}

func (r *fakeRegistry) OnSessionEnd(fn func(string)) func() {
	r.ends = append(r.ends, fn)
	return func() { r.ends = nil }
}
