// Package host owns debug adapter connections and serializes their
// callbacks onto a single event-loop goroutine.
//
// Adapter read loops never call subscribers directly. They post closures
// onto the loop, so session starts, custom events, session ends and any
// work submitted through Do or Call observe one consistent order. The
// debug.Orchestrator relies on this and does no locking of its own.
package host

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/dartdbg/internal/event"
	"github.com/dshills/dartdbg/internal/integration/debug"
)

const (
	defaultQueueSize      = 256
	defaultRequestTimeout = 30 * time.Second
)

// Output is a line of program output reported by an adapter.
type Output struct {
	SessionID string
	Category  string
	Text      string
}

// Registry implements debug.Registry on top of live DAP connections.
type Registry struct {
	log            zerolog.Logger
	loop           chan func()
	stop           chan struct{}
	stopOnce       sync.Once
	requestTimeout time.Duration

	started *event.Emitter[debug.SessionInfo]
	events  *event.Emitter[debug.CustomEvent]
	ended   *event.Emitter[string]
	output  *event.Emitter[Output]

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

// WithQueueSize sets how many posted closures may wait for the loop.
func WithQueueSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.loop = make(chan func(), n)
		}
	}
}

// WithRequestTimeout bounds custom requests sent on behalf of the orchestrator.
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.requestTimeout = d
		}
	}
}

// NewRegistry creates a registry. Run must be called to start the loop.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		log:            zerolog.Nop(),
		loop:           make(chan func(), defaultQueueSize),
		stop:           make(chan struct{}),
		requestTimeout: defaultRequestTimeout,
		sessions:       make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With().Str("component", "host").Logger()

	panicked := event.WithPanicHandler(func(err error) {
		r.log.Error().Err(err).Msg("subscriber panicked")
	})
	r.started = event.NewEmitter[debug.SessionInfo](panicked)
	r.events = event.NewEmitter[debug.CustomEvent](panicked)
	r.ended = event.NewEmitter[string](panicked)
	r.output = event.NewEmitter[Output](panicked)
	return r
}

// OnSessionStart implements debug.Registry.
func (r *Registry) OnSessionStart(fn func(debug.SessionInfo)) func() {
	return r.started.Subscribe(fn).Cancel
}

// OnCustomEvent implements debug.Registry.
func (r *Registry) OnCustomEvent(fn func(debug.CustomEvent)) func() {
	return r.events.Subscribe(fn).Cancel
}

// OnSessionEnd implements debug.Registry.
func (r *Registry) OnSessionEnd(fn func(string)) func() {
	return r.ended.Subscribe(fn).Cancel
}

// OnOutput subscribes to program output. Handlers run on the loop.
func (r *Registry) OnOutput(fn func(Output)) func() {
	return r.output.Subscribe(fn).Cancel
}

// Run drains the loop until ctx is done or Close is called.
func (r *Registry) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case fn := <-r.loop:
			r.run(fn)
		}
	}
}

func (r *Registry) run(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Msg("event loop task panicked")
		}
	}()
	fn()
}

// Do posts fn to the loop. It reports false once the registry is closed.
func (r *Registry) Do(fn func()) bool {
	select {
	case <-r.stop:
		return false
	default:
	}

	select {
	case r.loop <- fn:
		return true
	case <-r.stop:
		return false
	}
}

// Call runs fn on the loop and waits for it to return.
func (r *Registry) Call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	if !r.Do(func() { done <- fn() }) {
		return ErrClosed
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stop:
		return ErrClosed
	}
}

// Sessions returns the ids of sessions whose adapters are connected.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns a connected session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) add(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Stop asks a session's adapter to disconnect and closes the connection.
func (r *Registry) Stop(ctx context.Context, id string) error {
	s, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s.Stop(ctx)
}

// Close disconnects every session and stops the loop. Pending loop work is
// dropped.
func (r *Registry) Close() error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	for _, s := range sessions {
		s.wait()
	}

	r.stopOnce.Do(func() {
		close(r.stop)
	})

	r.started.Close()
	r.events.Close()
	r.ended.Close()
	r.output.Close()
	return nil
}
