package serviceext

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dshills/dartdbg/internal/event"
	"github.com/dshills/dartdbg/internal/integration/debug"
)

// ContextPrefix prefixes the context flag set while an extension is loaded.
const ContextPrefix = "dartdbg.serviceExtension."

var (
	// ErrNotLoaded is returned when toggling an extension no session has loaded.
	ErrNotLoaded = errors.New("service extension not loaded")

	// ErrNoSender is returned when no sender has been bound.
	ErrNoSender = errors.New("no service extension sender")
)

// Sender delivers a serviceExtension request to the running sessions.
// debug.Orchestrator implements it.
type Sender interface {
	SendServiceExtension(ctx context.Context, args any) error
}

// Change reports a new extension value.
type Change struct {
	Extension string
	Value     any
}

// Tracker implements debug.ToggleState. Like the orchestrator it is only
// used from the host event loop.
type Tracker struct {
	sender Sender
	flags  debug.ContextFlags
	log    zerolog.Logger

	values map[string]any
	loaded map[string]bool

	changed *event.Emitter[Change]
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used for failures nobody waits on.
func WithLogger(log zerolog.Logger) Option {
	return func(t *Tracker) {
		t.log = log.With().Str("component", "serviceext").Logger()
	}
}

// NewTracker creates a tracker holding the default values. flags may be nil.
func NewTracker(flags debug.ContextFlags, opts ...Option) *Tracker {
	t := &Tracker{
		flags:   flags,
		log:     zerolog.Nop(),
		loaded:  make(map[string]bool),
		changed: event.NewEmitter[Change](),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ResetToDefaults()
	return t
}

// Bind sets the sender used by Toggle and by re-sending values to newly
// loaded extensions.
func (t *Tracker) Bind(s Sender) {
	t.sender = s
}

// OnChange subscribes to value changes, whether toggled locally or reported
// by an app.
func (t *Tracker) OnChange(fn func(Change)) *event.Subscription {
	return t.changed.Subscribe(fn)
}

// ResetToDefaults implements debug.ToggleState.
func (t *Tracker) ResetToDefaults() {
	t.values = make(map[string]any, len(Defaults))
	for ext, v := range Defaults {
		t.values[ext] = v
	}
}

// MarkAllUnloaded implements debug.ToggleState.
func (t *Tracker) MarkAllUnloaded() {
	for ext := range t.loaded {
		t.setContext(ext, false)
	}
	t.loaded = make(map[string]bool)
}

// HandleDebugEvent implements debug.ToggleState.
func (t *Tracker) HandleDebugEvent(e debug.CustomEvent) {
	switch e.Event {
	case debug.EventServiceExtAdded:
		ext := e.Get("extensionRPC").String()
		if ext == "" {
			return
		}
		t.loaded[ext] = true
		t.setContext(ext, true)
		t.resend(ext)
	case debug.EventServiceExtChanged:
		ext := e.Get("extension").String()
		if ext == "" {
			return
		}
		v := parseValue(ext, e.Get("value"))
		t.values[ext] = v
		t.changed.Fire(Change{Extension: ext, Value: v})
	}
}

// resend pushes a non-default value to an extension that just appeared.
func (t *Tracker) resend(ext string) {
	v, ok := t.values[ext]
	if !ok || v == Defaults[ext] || t.sender == nil {
		return
	}
	if err := t.send(context.Background(), ext, v); err != nil {
		t.log.Warn().Err(err).Str("extension", ext).Msg("restoring service extension value")
	}
}

// Loaded reports whether any session has registered ext.
func (t *Tracker) Loaded(ext string) bool {
	return t.loaded[ext]
}

// LoadedExtensions returns the registered extensions in sorted order.
func (t *Tracker) LoadedExtensions() []string {
	exts := make([]string, 0, len(t.loaded))
	for ext := range t.loaded {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Value returns the current value of ext.
func (t *Tracker) Value(ext string) (any, bool) {
	v, ok := t.values[ext]
	return v, ok
}

// Toggle flips ext between on and off and sends the new value. A current
// value other than on counts as off.
func (t *Tracker) Toggle(ctx context.Context, ext string, on, off any) (any, error) {
	if !t.loaded[ext] {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, ext)
	}

	next := on
	if t.values[ext] == on {
		next = off
	}
	t.values[ext] = next
	t.changed.Fire(Change{Extension: ext, Value: next})
	return next, t.send(ctx, ext, next)
}

// ToggleBool is Toggle for on/off switches.
func (t *Tracker) ToggleBool(ctx context.Context, ext string) (bool, error) {
	v, err := t.Toggle(ctx, ext, true, false)
	b, _ := v.(bool)
	return b, err
}

func (t *Tracker) send(ctx context.Context, ext string, value any) error {
	if t.sender == nil {
		return ErrNoSender
	}
	return t.sender.SendServiceExtension(ctx, Args(ext, value))
}

// Args builds the serviceExtension request arguments for ext.
func Args(ext string, value any) map[string]any {
	return map[string]any{
		"type":   ext,
		"params": map[string]any{paramName(ext): value},
	}
}

func (t *Tracker) setContext(ext string, loaded bool) {
	if t.flags != nil {
		t.flags.SetContext(ContextPrefix+ext, loaded)
	}
}
