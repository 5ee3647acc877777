package devtools

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dshills/dartdbg/internal/event"
	"github.com/dshills/dartdbg/internal/integration/debug"
)

// Prompter asks the user whether DevTools should open automatically for
// Flutter apps. It may block.
type Prompter interface {
	PromptAlwaysOpen(ctx context.Context) (bool, error)
}

// SessionOpener is satisfied by debug.Orchestrator.
type SessionOpener interface {
	OpenDevTools(ctx context.Context, opts debug.LaunchOptions) (string, error)
	OnEndpointsAvailable(fn func(*debug.Session)) *event.Subscription
}

// AutoOpener opens DevTools when a session reports its VM service, following
// the configured Policy. Its handler runs on the host event loop.
type AutoOpener struct {
	policy    func() Policy
	setPolicy func(Policy) error
	prompter  Prompter
	log       zerolog.Logger

	opener   SessionOpener
	sub      *event.Subscription
	prompted bool
	prompts  sync.WaitGroup
}

// AutoOpenerOption configures an AutoOpener.
type AutoOpenerOption func(*AutoOpener)

// WithPrompter sets the prompter used under PolicyNever.
func WithPrompter(p Prompter) AutoOpenerOption {
	return func(a *AutoOpener) {
		a.prompter = p
	}
}

// WithPolicySetter sets where an accepted prompt stores PolicyFlutter.
func WithPolicySetter(fn func(Policy) error) AutoOpenerOption {
	return func(a *AutoOpener) {
		a.setPolicy = fn
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) AutoOpenerOption {
	return func(a *AutoOpener) {
		a.log = log
	}
}

// NewAutoOpener creates an auto-opener reading the current policy from policy.
func NewAutoOpener(policy func() Policy, opts ...AutoOpenerOption) *AutoOpener {
	a := &AutoOpener{policy: policy, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Attach subscribes to o's endpoints-available notification.
func (a *AutoOpener) Attach(o SessionOpener) {
	a.opener = o
	a.sub = o.OnEndpointsAvailable(a.handle)
}

// Close unsubscribes and waits for outstanding prompts.
func (a *AutoOpener) Close() {
	a.sub.Cancel()
	a.prompts.Wait()
}

func (a *AutoOpener) handle(s *debug.Session) {
	switch s.DebuggerType {
	case debug.DebuggerDart, debug.DebuggerFlutter, debug.DebuggerFlutterWeb:
	default:
		return
	}

	policy := a.policy()
	if policy != PolicyNever {
		if s.DebuggerType != debug.DebuggerDart || policy == PolicyAlways {
			a.open(s)
		}
		return
	}

	if s.DebuggerType != debug.DebuggerDart {
		a.prompt()
	}
}

func (a *AutoOpener) open(s *debug.Session) {
	_, err := a.opener.OpenDevTools(context.Background(), debug.LaunchOptions{
		SessionID:              s.ID,
		TriggeredAutomatically: true,
	})
	if err != nil {
		a.log.Warn().Err(err).Str("session", s.ID).Msg("auto-open devtools failed")
	}
}

func (a *AutoOpener) prompt() {
	if a.prompter == nil || a.prompted {
		return
	}
	a.prompted = true

	a.prompts.Add(1)
	go func() {
		defer a.prompts.Done()

		yes, err := a.prompter.PromptAlwaysOpen(context.Background())
		if err != nil {
			a.log.Debug().Err(err).Msg("devtools prompt failed")
			return
		}
		if !yes || a.setPolicy == nil {
			return
		}
		if err := a.setPolicy(PolicyFlutter); err != nil {
			a.log.Warn().Err(err).Msg("could not save devtools policy")
		}
	}()
}
