package devtools

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dshills/dartdbg/internal/integration/debug"
)

// ErrNoAddress is returned when no DevTools server address is configured.
var ErrNoAddress = errors.New("devtools address not configured")

// Opener shows a URL to the user.
type Opener func(ctx context.Context, url string) error

// URL builds the DevTools address for a VM service.
func URL(address, vmServiceURI, page string) string {
	query := "uri=" + url.QueryEscape(vmServiceURI)
	if page != "" {
		query += "&page=" + url.QueryEscape(page)
	}
	u := url.URL{Scheme: "http", Host: address, Path: "/", RawQuery: query}
	return u.String()
}

// Launcher implements debug.Launcher.
type Launcher struct {
	Address      string
	ReuseWindows bool
	Open         Opener

	log zerolog.Logger

	mu     sync.Mutex
	opened map[string]string
}

// NewLauncher creates a launcher. A nil opener uses the platform browser.
func NewLauncher(address string, reuseWindows bool, open Opener, log zerolog.Logger) *Launcher {
	if open == nil {
		open = OpenBrowser
	}
	return &Launcher{
		Address:      address,
		ReuseWindows: reuseWindows,
		Open:         open,
		log:          log.With().Str("component", "devtools").Logger(),
		opened:       make(map[string]string),
	}
}

// Launch implements debug.Launcher. With ReuseWindows set, a session that
// already has DevTools open on the same page gets the existing URL back.
func (l *Launcher) Launch(ctx context.Context, s *debug.Session, opts debug.LaunchOptions) (string, error) {
	if l.Address == "" {
		return "", ErrNoAddress
	}

	u := URL(l.Address, s.VMServiceURI, opts.Page)

	l.mu.Lock()
	prev, seen := l.opened[s.ID]
	l.mu.Unlock()
	if l.ReuseWindows && seen && prev == u {
		l.log.Debug().Str("session", s.ID).Str("url", u).Msg("reusing devtools window")
		return u, nil
	}

	if err := l.Open(ctx, u); err != nil {
		return "", fmt.Errorf("open devtools: %w", err)
	}

	l.mu.Lock()
	l.opened[s.ID] = u
	l.mu.Unlock()

	ev := l.log.Debug()
	if !opts.TriggeredAutomatically {
		ev = l.log.Info()
	}
	ev.Str("session", s.ID).Str("url", u).Msg("opened devtools")
	return u, nil
}

// Forget drops the remembered window of an ended session.
func (l *Launcher) Forget(sessionID string) {
	l.mu.Lock()
	delete(l.opened, sessionID)
	l.mu.Unlock()
}

// OpenBrowser opens u with the platform's default handler.
func OpenBrowser(ctx context.Context, u string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", u)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", u)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", u)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
