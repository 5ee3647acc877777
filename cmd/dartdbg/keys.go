package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"unicode"

	"github.com/dshills/dartdbg/internal/integration/debug"
	"github.com/dshills/dartdbg/internal/integration/debug/host"
	"github.com/dshills/dartdbg/internal/integration/debug/serviceext"
)

type keyAction int

const (
	keyNone keyAction = iota
	keyReload
	keyRestart
	keyToggle
	keyDevTools
	keyQuit
)

// toggleKey binds a key to a service extension switch.
type toggleKey struct {
	ext     string
	label   string
	on, off any
	// showValue prints the new value instead of on/off.
	showValue bool
}

var toggleKeys = map[rune]toggleKey{
	'p': {ext: serviceext.DebugPaint, label: "Debug paint", on: true, off: false},
	'P': {ext: serviceext.PerformanceOverlay, label: "Performance overlay", on: true, off: false},
	'w': {ext: serviceext.RepaintRainbow, label: "Repaint rainbow", on: true, off: false},
	's': {ext: serviceext.SlowAnimations, label: "Slow animations", on: serviceext.TimeDilationSlow, off: serviceext.TimeDilationNormal},
	'B': {ext: serviceext.DebugBanner, label: "Debug banner", on: true, off: false},
	'i': {ext: serviceext.InspectorSelectMode, label: "Widget inspector", on: true, off: false},
	'o': {ext: serviceext.PlatformOverride, label: "Platform", on: "iOS", off: "android", showValue: true},
	'b': {ext: serviceext.BrightnessOverride, label: "Brightness", on: "Brightness.dark", off: "Brightness.light", showValue: true},
}

const keyHelp = "r: reload, R: restart, p: debug paint, P: performance overlay, w: repaint rainbow, " +
	"s: slow animations, B: debug banner, i: inspector, o: platform, b: brightness, d: DevTools, q: quit"

func actionFor(r rune) keyAction {
	switch r {
	case 'r':
		return keyReload
	case 'R':
		return keyRestart
	case 'd':
		return keyDevTools
	case 'q', 'Q':
		return keyQuit
	}
	if _, ok := toggleKeys[r]; ok {
		return keyToggle
	}
	return keyNone
}

// readKeys delivers runes from r until it fails. The reader goroutine
// outlives the key loop when r blocks; it ends with the process.
func readKeys(r io.Reader) <-chan rune {
	ch := make(chan rune)
	go func() {
		defer close(ch)
		br := bufio.NewReader(r)
		for {
			c, _, err := br.ReadRune()
			if err != nil {
				return
			}
			if unicode.IsSpace(c) {
				continue
			}
			ch <- c
		}
	}()
	return ch
}

// stopper ends a session.
type stopper interface {
	Stop(ctx context.Context) error
}

var _ stopper = (*host.Session)(nil)

func (a *app) keyLoop(ctx context.Context, keys <-chan rune, sess stopper) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-keys:
			if !ok {
				return nil
			}
			if a.console.answerPrompt(r) {
				continue
			}
			if err := a.handleKey(ctx, r, sess); err != nil {
				return err
			}
		}
	}
}

// handleKey runs one key command. Only failures to reach the event loop
// are returned; command failures are reported on the console.
func (a *app) handleKey(ctx context.Context, key rune, sess stopper) error {
	var run func() error

	switch actionFor(key) {
	case keyReload:
		run = func() error { return a.orch.HotReload(ctx, nil) }
	case keyRestart:
		run = func() error { return a.orch.HotRestart(ctx, nil) }
	case keyToggle:
		tk := toggleKeys[key]
		run = func() error {
			v, err := a.tracker.Toggle(ctx, tk.ext, tk.on, tk.off)
			if err == nil {
				a.console.Printf("%s %s", tk.label, tk.state(v))
			}
			return err
		}
	case keyDevTools:
		run = func() error {
			url, err := a.orch.OpenDevTools(ctx, debug.LaunchOptions{})
			if err == nil {
				a.console.Printf("DevTools: %s", url)
			}
			return err
		}
	case keyQuit:
		return sess.Stop(ctx)
	default:
		return nil
	}

	err := a.registry.Call(ctx, run)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, host.ErrClosed), errors.Is(err, context.Canceled):
		return err
	default:
		a.console.Printf("%v", err)
		return nil
	}
}

func (tk toggleKey) state(v any) string {
	switch {
	case tk.showValue:
		return fmt.Sprint(v)
	case v == tk.on:
		return "on"
	default:
		return "off"
	}
}
