package debug

import (
	"context"
	"errors"
	"fmt"
)

// Custom requests understood by the Dart debug adapter.
const (
	RequestHotReload           = "hotReload"
	RequestHotRestart          = "hotRestart"
	RequestCoverageUpdate      = "requestCoverageUpdate"
	RequestCoverageFilesUpdate = "coverageFilesUpdate"
	RequestServiceExtension    = "serviceExtension"
)

// HotReload asks every live session to hot reload. Subscribers of
// OnWillHotReload are notified before any request is sent.
func (o *Orchestrator) HotReload(ctx context.Context, args any) error {
	if len(o.sessions) == 0 {
		return ErrNoSessions
	}
	o.willHotReload.Fire(struct{}{})
	err := o.broadcast(ctx, RequestHotReload, args)
	o.analytics.HotReload()
	return err
}

// HotRestart asks every live session to hot restart.
func (o *Orchestrator) HotRestart(ctx context.Context, args any) error {
	if len(o.sessions) == 0 {
		return ErrNoSessions
	}
	o.willHotRestart.Fire(struct{}{})
	err := o.broadcast(ctx, RequestHotRestart, args)
	o.analytics.HotRestart()
	return err
}

// RequestCoverageUpdate asks every session to report coverage for scriptURIs.
func (o *Orchestrator) RequestCoverageUpdate(ctx context.Context, scriptURIs []string) error {
	return o.broadcast(ctx, RequestCoverageUpdate, map[string]any{"scriptUris": scriptURIs})
}

// CoverageFilesUpdate tells every session which scripts coverage is wanted for.
func (o *Orchestrator) CoverageFilesUpdate(ctx context.Context, scriptURIs []string) error {
	return o.broadcast(ctx, RequestCoverageFilesUpdate, map[string]any{"scriptUris": scriptURIs})
}

// SendServiceExtension forwards a service extension call to every session.
func (o *Orchestrator) SendServiceExtension(ctx context.Context, args any) error {
	return o.broadcast(ctx, RequestServiceExtension, args)
}

func (o *Orchestrator) broadcast(ctx context.Context, command string, args any) error {
	var errs []error
	for _, s := range o.sessions {
		if s.requester == nil {
			continue
		}
		if err := s.requester.CustomRequest(ctx, command, args); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %s: %w", s.ID, command, err))
		}
	}
	return errors.Join(errs...)
}

// OpenDevTools launches DevTools for a session. With no session id the
// only live session is used.
func (o *Orchestrator) OpenDevTools(ctx context.Context, opts LaunchOptions) (string, error) {
	if o.launcher == nil {
		return "", ErrNoLauncher
	}

	s, err := o.selectSession(opts.SessionID)
	if err != nil {
		return "", err
	}

	switch {
	case s.HasEndpoints():
		opts.SessionID = s.ID
		return o.launcher.Launch(ctx, s, opts)
	case s.NoDebug:
		return "", ErrNoDebug
	default:
		return "", ErrNotReady
	}
}

func (o *Orchestrator) selectSession(id string) (*Session, error) {
	if len(o.sessions) == 0 {
		return nil, ErrNoSessions
	}
	if id != "" {
		s, ok := o.Session(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return s, nil
	}
	if len(o.sessions) > 1 {
		return nil, ErrAmbiguousSession
	}
	return o.sessions[0], nil
}
