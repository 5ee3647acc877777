// Package devtools opens Dart DevTools for debug sessions, on request or
// automatically when a session's VM service becomes available.
package devtools

import (
	"errors"
	"fmt"
)

// Policy controls when DevTools opens automatically.
type Policy string

const (
	// PolicyNever never opens DevTools; Flutter users are offered a prompt once.
	PolicyNever Policy = "never"
	// PolicyAlways opens DevTools for Dart and Flutter sessions.
	PolicyAlways Policy = "always"
	// PolicyFlutter opens DevTools for Flutter sessions only.
	PolicyFlutter Policy = "flutter"
)

// ErrInvalidPolicy is returned by ParsePolicy for unknown values.
var ErrInvalidPolicy = errors.New("invalid devtools policy")

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyNever, PolicyAlways, PolicyFlutter:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}
