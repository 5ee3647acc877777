package debug

import (
	"context"
	"sync"
)

// ProgressKind tags the progress episode of a session.
type ProgressKind int

const (
	// ProgressNone means no episode is active.
	ProgressNone ProgressKind = iota
	// ProgressLaunching is the episode opened by dart.launching.
	ProgressLaunching
	// ProgressNamed is an episode opened by dart.progress.
	ProgressNamed
)

// String returns a string representation of the kind.
func (k ProgressKind) String() string {
	switch k {
	case ProgressNone:
		return "none"
	case ProgressLaunching:
		return "launching"
	case ProgressNamed:
		return "named"
	default:
		return "unknown"
	}
}

// Signal is a completion signal resolved at most once.
type Signal struct {
	once sync.Once
	done chan struct{}
}

// NewSignal creates an unresolved signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

func resolvedSignal() *Signal {
	s := NewSignal()
	s.Resolve()
	return s
}

// Done returns a channel closed on resolution.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Resolve resolves the signal. Later calls are no-ops.
func (s *Signal) Resolve() {
	s.once.Do(func() { close(s.done) })
}

// Resolved reports whether Resolve has been called.
func (s *Signal) Resolved() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the signal resolves or ctx is done.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProgressReporter updates the message of a visible progress indicator.
type ProgressReporter interface {
	Report(message string)
}

// ProgressUI opens progress indicators. The indicator stays visible until
// done is closed.
type ProgressUI interface {
	Begin(sessionID, message string, done <-chan struct{}) ProgressReporter
}

// progressState is one of noProgress, *launchingProgress or *namedProgress.
type progressState interface {
	kind() ProgressKind
}

type noProgress struct{}

func (noProgress) kind() ProgressKind { return ProgressNone }

type launchingProgress struct {
	reporter ProgressReporter
	done     *Signal
}

func (*launchingProgress) kind() ProgressKind { return ProgressLaunching }

type namedProgress struct {
	id       string
	reporter ProgressReporter
	done     *Signal
}

func (*namedProgress) kind() ProgressKind { return ProgressNamed }

// clearProgress resolves whatever episode is active and resets to none.
func (s *Session) clearProgress() {
	switch p := s.progress.(type) {
	case *launchingProgress:
		p.done.Resolve()
	case *namedProgress:
		p.done.Resolve()
	}
	s.progress = noProgress{}
}

type nopReporter struct{}

func (nopReporter) Report(string) {}

type nopProgressUI struct{}

func (nopProgressUI) Begin(string, string, <-chan struct{}) ProgressReporter { return nopReporter{} }
