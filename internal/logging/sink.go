package logging

import (
	"github.com/rs/zerolog"

	"github.com/dshills/dartdbg/internal/integration/debug"
)

// Sink writes dart.log messages and orchestrator diagnostics to zerolog.
type Sink struct {
	log zerolog.Logger
}

// NewSink creates a debug.Logger backed by log.
func NewSink(log zerolog.Logger) *Sink {
	return &Sink{log: log.With().Str("component", "dart").Logger()}
}

// Log implements debug.Logger.
func (s *Sink) Log(severity debug.Severity, message, category string) {
	var ev *zerolog.Event
	switch severity {
	case debug.SeverityWarn:
		ev = s.log.Warn()
	case debug.SeverityError:
		ev = s.log.Error()
	default:
		ev = s.log.Info()
	}
	if category != "" {
		ev = ev.Str("category", category)
	}
	ev.Msg(message)
}
