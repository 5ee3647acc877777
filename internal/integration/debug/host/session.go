package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/dshills/dartdbg/internal/integration/debug"
	"github.com/dshills/dartdbg/internal/integration/debug/adapters"
	"github.com/dshills/dartdbg/internal/integration/debug/dap"
)

// Session is one adapter connection. It implements debug.Requester.
type Session struct {
	ID   string
	Info debug.SessionInfo

	registry *Registry
	log      zerolog.Logger

	mu     sync.Mutex
	client *dap.Client

	initialized chan struct{}
	initOnce    sync.Once

	ctx      context.Context
	cancel   context.CancelFunc
	endOnce  sync.Once
	requests sync.WaitGroup

	// Owned by the registry loop.
	announced bool
	ended     bool
}

// Start connects an adapter over transport, runs the initialize and launch
// (or attach) handshake and announces the session on the loop.
//
// Custom events the adapter sends during the handshake are posted before the
// session start.
func (r *Registry) Start(ctx context.Context, transport dap.Transport, adapter adapters.Adapter) (*Session, error) {
	if err := adapter.Validate(); err != nil {
		transport.Close()
		return nil, fmt.Errorf("invalid %s configuration: %w", adapter.Name(), err)
	}

	cfg := adapter.Config()
	id := uuid.NewString()
	name := cfg.Name
	if name == "" {
		name = adapter.Name()
	}

	s := &Session{
		ID: id,
		Info: debug.SessionInfo{
			ID:           id,
			Name:         name,
			HostType:     debug.HostType,
			DebuggerType: cfg.DebuggerType,
			FlutterMode:  cfg.FlutterMode,
			NoDebug:      cfg.NoDebug,
			DeviceName:   cfg.DeviceID,
		},
		registry:    r,
		log:         r.log.With().Str("session", id).Logger(),
		initialized: make(chan struct{}),
	}
	s.Info.Requester = s
	s.ctx, s.cancel = context.WithCancel(context.Background())

	client := dap.NewClient(transport,
		dap.WithEventHandler(s.handleEvent),
		dap.WithCloseHandler(s.handleClose),
	)
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	r.add(s)

	if err := s.handshake(ctx, adapter); err != nil {
		s.close()
		s.end()
		s.wait()
		return nil, err
	}

	info := s.Info
	if !r.Do(s.announce(info)) {
		s.close()
		return nil, ErrClosed
	}

	s.log.Info().
		Str("debugger", cfg.DebuggerType.String()).
		Str("request", requestOf(cfg)).
		Msg("debug session started")
	return s, nil
}

func requestOf(cfg adapters.Config) string {
	if cfg.Request == "" {
		return adapters.RequestLaunch
	}
	return cfg.Request
}

func (s *Session) handshake(ctx context.Context, adapter adapters.Adapter) error {
	caps, err := s.client.Initialize(ctx, dap.InitializeArguments{
		ClientID:                  "dartdbg",
		ClientName:                "dartdbg",
		AdapterID:                 string(adapter.Type()),
		Locale:                    "en-US",
		LinesStartAt1:             true,
		ColumnsStartAt1:           true,
		PathFormat:                "path",
		SupportsVariableType:      true,
		SupportsProgressReporting: true,
	})
	if err != nil {
		return fmt.Errorf("initialize %s adapter: %w", adapter.Name(), err)
	}

	cfg := adapter.Config()
	var args any
	if requestOf(cfg) == adapters.RequestAttach {
		args, err = adapter.GetAttachArgs()
	} else {
		args, err = adapter.GetLaunchArgs()
	}
	if err != nil {
		return fmt.Errorf("build %s arguments: %w", requestOf(cfg), err)
	}

	launched := make(chan error, 1)
	go func() {
		if requestOf(cfg) == adapters.RequestAttach {
			launched <- s.client.Attach(ctx, args)
		} else {
			launched <- s.client.Launch(ctx, args)
		}
	}()

	if err := s.configure(ctx, caps); err != nil {
		s.client.Close()
		<-launched
		return err
	}
	if err := <-launched; err != nil {
		return fmt.Errorf("%s: %w", requestOf(cfg), err)
	}
	return nil
}

// configure waits for the adapter's initialized event and finishes the
// configuration phase.
func (s *Session) configure(ctx context.Context, caps *dap.Capabilities) error {
	select {
	case <-s.initialized:
	case <-s.ctx.Done():
		return ErrSessionEnded
	case <-ctx.Done():
		return ctx.Err()
	}

	if !caps.SupportsConfigurationDoneRequest {
		return nil
	}
	if err := s.client.ConfigurationDone(ctx); err != nil {
		return fmt.Errorf("configurationDone: %w", err)
	}
	return nil
}

// isCustomEvent reports whether an adapter event belongs to the Dart
// extension protocol rather than core DAP.
func isCustomEvent(name string) bool {
	return strings.HasPrefix(name, "dart.") || strings.HasPrefix(name, "flutter.")
}

// handleEvent runs on the client's receive goroutine.
func (s *Session) handleEvent(e dap.Event) {
	switch {
	case e.Event == "initialized":
		s.initOnce.Do(func() { close(s.initialized) })
	case e.Event == "terminated":
		s.end()
	case e.Event == "output":
		body := gjson.ParseBytes(e.Body)
		out := Output{
			SessionID: s.ID,
			Category:  body.Get("category").String(),
			Text:      body.Get("output").String(),
		}
		if out.Category == "" {
			out.Category = "console"
		}
		s.registry.Do(func() { s.registry.output.Fire(out) })
	case isCustomEvent(e.Event):
		ev := debug.CustomEvent{SessionID: s.ID, Event: e.Event, Body: e.Body}
		if !s.registry.Do(func() { s.registry.events.Fire(ev) }) {
			s.log.Debug().Str("event", e.Event).Msg("dropped event after close")
		}
	default:
		s.log.Trace().Str("event", e.Event).Msg("ignored adapter event")
	}
}

func (s *Session) handleClose(err error) {
	if err != nil {
		s.log.Warn().Err(err).Msg("adapter connection lost")
	}
	s.end()
}

// announce returns the loop task that fires session start. A session whose
// end reached the loop first is never announced.
func (s *Session) announce(info debug.SessionInfo) func() {
	return func() {
		if s.ended {
			return
		}
		s.announced = true
		s.registry.started.Fire(info)
	}
}

// end runs once per session, from whichever of terminated, connection loss,
// Stop, Close or a failed handshake happens first. Session end is fired for
// every session, announced or not, so queued events of sessions that never
// started are released.
func (s *Session) end() {
	s.endOnce.Do(func() {
		s.registry.remove(s.ID)
		id := s.ID
		// Posted before Done closes, so loop tasks queued by anyone who
		// waited on Done run after the end.
		s.registry.Do(func() {
			s.ended = true
			if !s.announced {
				s.log.Debug().Msg("session ended before it started")
			}
			s.registry.ended.Fire(id)
		})
		s.cancel()
		go s.close()
	})
}

// CustomRequest implements debug.Requester. The request is sent from a
// separate goroutine; failures are logged.
func (s *Session) CustomRequest(_ context.Context, command string, args any) error {
	if s.ctx.Err() != nil {
		return ErrSessionEnded
	}

	s.requests.Add(1)
	go func() {
		defer s.requests.Done()

		ctx, cancel := context.WithTimeout(s.ctx, s.registry.requestTimeout)
		defer cancel()

		if _, err := s.client.Request(ctx, command, args); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn().Err(err).Str("command", command).Msg("custom request failed")
		}
	}()
	return nil
}

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Stop asks the adapter to terminate the debuggee and closes the connection.
func (s *Session) Stop(ctx context.Context) error {
	err := s.client.Disconnect(ctx, dap.DisconnectArguments{TerminateDebuggee: true})
	s.end()
	if err != nil && !errors.Is(err, dap.ErrClosed) {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

func (s *Session) close() {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

func (s *Session) wait() {
	s.requests.Wait()
}
