package debug

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/dartdbg/internal/event"
)

// Options configures an Orchestrator. Nil collaborators are replaced by
// no-ops.
type Options struct {
	Logger    Logger
	Toggles   ToggleState
	Flags     ContextFlags
	Launcher  Launcher
	Navigator Navigator
	Progress  ProgressUI
	Status    StatusDisplay
	Analytics Analytics

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Orchestrator tracks live debug sessions and routes their custom events.
//
// All methods except the On* subscriptions must be called from the host's
// event loop; the orchestrator does no locking of its own.
type Orchestrator struct {
	logger    Logger
	toggles   ToggleState
	flags     ContextFlags
	launcher  Launcher
	navigator Navigator
	progress  ProgressUI
	status    StatusDisplay
	analytics Analytics
	now       func() time.Time

	sessions []*Session
	pending  []CustomEvent

	willHotReload      *event.Emitter[struct{}]
	willHotRestart     *event.Emitter[struct{}]
	firstFrame         *event.Emitter[struct{}]
	coverage           *event.Emitter[json.RawMessage]
	endpointsAvailable *event.Emitter[*Session]

	disposables event.Disposables
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		logger:    opts.Logger,
		toggles:   opts.Toggles,
		flags:     opts.Flags,
		launcher:  opts.Launcher,
		navigator: opts.Navigator,
		progress:  opts.Progress,
		status:    opts.Status,
		analytics: opts.Analytics,
		now:       opts.Now,
	}
	if o.logger == nil {
		o.logger = nopLogger{}
	}
	if o.toggles == nil {
		o.toggles = nopToggles{}
	}
	if o.flags == nil {
		o.flags = NewFlags()
	}
	if o.navigator == nil {
		o.navigator = nopNavigator{}
	}
	if o.progress == nil {
		o.progress = nopProgressUI{}
	}
	if o.status == nil {
		o.status = nopStatus{}
	}
	if o.analytics == nil {
		o.analytics = nopAnalytics{}
	}
	if o.now == nil {
		o.now = time.Now
	}

	panicked := event.WithPanicHandler(func(err error) {
		o.logger.Log(SeverityError, err.Error(), "debug")
	})
	o.willHotReload = event.NewEmitter[struct{}](panicked)
	o.willHotRestart = event.NewEmitter[struct{}](panicked)
	o.firstFrame = event.NewEmitter[struct{}](panicked)
	o.coverage = event.NewEmitter[json.RawMessage](panicked)
	o.endpointsAvailable = event.NewEmitter[*Session](panicked)

	return o
}

// Attach registers the orchestrator's callbacks with a host registry.
// The registrations are released by Close.
func (o *Orchestrator) Attach(r Registry) {
	o.disposables.Add(r.OnSessionStart(o.SessionStarted))
	o.disposables.Add(r.OnCustomEvent(func(e CustomEvent) { o.CustomEvent(e) }))
	o.disposables.Add(r.OnSessionEnd(o.SessionEnded))
}

// Close unregisters from the host and drops all subscribers.
func (o *Orchestrator) Close() {
	o.disposables.Dispose()
	o.willHotReload.Close()
	o.willHotRestart.Close()
	o.firstFrame.Close()
	o.coverage.Close()
	o.endpointsAvailable.Close()
}

// OnWillHotReload subscribes to adapter-initiated hot reloads.
func (o *Orchestrator) OnWillHotReload(fn func()) *event.Subscription {
	return o.willHotReload.Subscribe(func(struct{}) { fn() })
}

// OnWillHotRestart subscribes to adapter-initiated hot restarts.
func (o *Orchestrator) OnWillHotRestart(fn func()) *event.Subscription {
	return o.willHotRestart.Subscribe(func(struct{}) { fn() })
}

// OnFirstFrame subscribes to Flutter first-frame notifications.
func (o *Orchestrator) OnFirstFrame(fn func()) *event.Subscription {
	return o.firstFrame.Subscribe(func(struct{}) { fn() })
}

// OnCoverage subscribes to coverage payloads, delivered verbatim.
func (o *Orchestrator) OnCoverage(fn func(json.RawMessage)) *event.Subscription {
	return o.coverage.Subscribe(fn)
}

// OnEndpointsAvailable subscribes to sessions reporting their VM service.
func (o *Orchestrator) OnEndpointsAvailable(fn func(*Session)) *event.Subscription {
	return o.endpointsAvailable.Subscribe(fn)
}

// Sessions returns the live sessions in start order.
func (o *Orchestrator) Sessions() []*Session {
	return append([]*Session(nil), o.sessions...)
}

// Session returns the live session with the given id.
func (o *Orchestrator) Session(id string) (*Session, bool) {
	for _, s := range o.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// PendingEvents returns the number of queued events awaiting their session.
func (o *Orchestrator) PendingEvents() int {
	return len(o.pending)
}

// SessionStarted registers a session and replays its queued events.
func (o *Orchestrator) SessionStarted(info SessionInfo) {
	if info.HostType != HostType {
		return
	}

	// A fresh first session starts from default toggles; later sessions
	// inherit the current values.
	if len(o.sessions) == 0 {
		o.toggles.ResetToDefaults()
	}

	s := newSession(info, o.now())
	o.sessions = append(o.sessions, s)
	o.analytics.ActiveSessions(len(o.sessions))

	if s.DebuggerType.SupportsHotReload() {
		o.flags.SetContext(ContextSupportsHotReload, true)
		switch s.FlutterMode {
		case FlutterModeDebug:
			o.flags.SetContext(ContextFlutterDebugMode, true)
		case FlutterModeProfile:
			o.flags.SetContext(ContextFlutterProfileMode, true)
		}
	}

	var replay []CustomEvent
	kept := o.pending[:0]
	for _, e := range o.pending {
		if e.SessionID == s.ID {
			replay = append(replay, e)
		} else {
			kept = append(kept, e)
		}
	}
	// Zero the tail so dropped bodies can be collected.
	for i := len(kept); i < len(o.pending); i++ {
		o.pending[i] = CustomEvent{}
	}
	o.pending = kept
	o.analytics.PendingEvents(len(o.pending))

	for _, e := range replay {
		o.logger.Log(SeverityInfo, fmt.Sprintf("Processing delayed event %s", e), "debug")
		o.dispatch(s, e)
	}
}

// CustomEvent routes an event to its session. Events for sessions that
// have not started yet are queued and replayed by SessionStarted. The
// result reports whether the event kind was recognised.
func (o *Orchestrator) CustomEvent(e CustomEvent) bool {
	o.toggles.HandleDebugEvent(e)

	s, ok := o.Session(e.SessionID)
	if !ok {
		o.logger.Log(SeverityWarn, fmt.Sprintf("Did not find session %s to handle %s. There were %d sessions:%s",
			e.SessionID, e.Event, len(o.sessions), o.sessionList()), "debug")
		o.logger.Log(SeverityWarn, "Event will be queued and processed when the session start event fires", "debug")
		o.pending = append(o.pending, e)
		o.analytics.PendingEvents(len(o.pending))
		return isKnownEvent(e.Event)
	}

	return o.dispatch(s, e)
}

// SessionEnded removes a session and resolves its outstanding progress.
func (o *Orchestrator) SessionEnded(id string) {
	idx := -1
	for i, s := range o.sessions {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		o.discardPending(id)
		return
	}

	s := o.sessions[idx]
	o.sessions = append(o.sessions[:idx], o.sessions[idx+1:]...)
	o.analytics.ActiveSessions(len(o.sessions))

	s.clearProgress()
	o.status.Hide()
	o.analytics.SessionEnded(s.DebuggerType, o.now().Sub(s.Started))

	if len(o.sessions) == 0 {
		o.toggles.MarkAllUnloaded()
		for _, name := range sessionContexts {
			o.flags.SetContext(name, false)
		}
	}
}

// discardPending drops queued events of a session that ended without
// starting, such as a failed launch or a session of another host type.
func (o *Orchestrator) discardPending(id string) {
	kept := o.pending[:0]
	for _, e := range o.pending {
		if e.SessionID != id {
			kept = append(kept, e)
		}
	}
	dropped := len(o.pending) - len(kept)
	if dropped == 0 {
		return
	}
	for i := len(kept); i < len(o.pending); i++ {
		o.pending[i] = CustomEvent{}
	}
	o.pending = kept
	o.analytics.PendingEvents(len(o.pending))
	o.logger.Log(SeverityInfo, fmt.Sprintf("Discarded %d queued events of session %s that never started", dropped, id), "debug")
}

func (o *Orchestrator) sessionList() string {
	var b strings.Builder
	for _, s := range o.sessions {
		b.WriteString("\n  ")
		b.WriteString(s.ID)
	}
	return b.String()
}

func isKnownEvent(name string) bool {
	switch name {
	case EventLog, EventHotReloadRequest, EventHotRestartRequest, EventFirstFrame,
		EventDebugMetrics, EventCoverage, EventNavigate, EventLaunching,
		EventLaunched, EventProgress, EventDebuggerURIs:
		return true
	}
	return false
}

func (o *Orchestrator) dispatch(s *Session, e CustomEvent) bool {
	switch e.Event {
	case EventLog:
		o.handleLog(e)
	case EventHotRestartRequest:
		o.analytics.HotRestart()
		o.willHotRestart.Fire(struct{}{})
	case EventHotReloadRequest:
		o.analytics.HotReload()
		o.willHotReload.Fire(struct{}{})
	case EventFirstFrame:
		o.firstFrame.Fire(struct{}{})
	case EventDebugMetrics:
		o.status.Show(MemoryText(e.Get("memory.current").Float(), e.Get("memory.total").Float()), MemoryTooltip)
	case EventCoverage:
		o.coverage.Fire(e.Body)
	case EventNavigate:
		o.handleNavigate(e)
	case EventLaunching:
		o.handleLaunching(s, e.Get("message").String())
	case EventLaunched:
		s.clearProgress()
	case EventProgress:
		o.handleProgress(s, e)
	case EventDebuggerURIs:
		s.ObservatoryURI = e.Get("observatoryUri").String()
		s.VMServiceURI = e.Get("vmServiceUri").String()
		o.endpointsAvailable.Fire(s)
	default:
		return false
	}
	return true
}

func (o *Orchestrator) handleLog(e CustomEvent) {
	sev, ok := parseSeverity(e.Get("severity"))
	if !ok {
		o.logger.Log(SeverityWarn, fmt.Sprintf("Failed to handle log event %s", e.Body), "debug")
		return
	}
	o.logger.Log(sev, e.Get("message").String(), e.Get("category").String())
}

func (o *Orchestrator) handleNavigate(e CustomEvent) {
	file := e.Get("file").String()
	line := int(e.Get("line").Int())
	col := int(e.Get("column").Int())
	if file == "" || line == 0 || col == 0 {
		return
	}
	o.navigator.Navigate(file, line, col)
}

func (o *Orchestrator) handleLaunching(s *Session, message string) {
	switch p := s.progress.(type) {
	case *launchingProgress:
		p.reporter.Report(message)
		return
	case *namedProgress:
		// A launch supersedes any named episode.
		p.done.Resolve()
	}

	done := NewSignal()
	s.progress = &launchingProgress{
		reporter: o.progress.Begin(s.ID, message, done.Done()),
		done:     done,
	}
}

func (o *Orchestrator) handleProgress(s *Session, e CustomEvent) {
	message := e.Get("message").String()
	id := e.Get("progressID").String()

	if message != "" {
		switch p := s.progress.(type) {
		case *launchingProgress:
			p.reporter.Report(message)
		case *namedProgress:
			p.reporter.Report(message)
		default:
			done := NewSignal()
			s.progress = &namedProgress{
				id:       id,
				reporter: o.progress.Begin(s.ID, message, done.Done()),
				done:     done,
			}
		}
	}

	if !e.Get("finished").Bool() {
		return
	}
	// Finished events during launch are ignored; only dart.launched ends
	// it. A finish for another progress id is treated as stale.
	if p, ok := s.progress.(*namedProgress); ok && p.id == id {
		p.done.Resolve()
		s.progress = noProgress{}
	}
}
