// Package metrics exports debug session usage as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/dartdbg/internal/integration/debug"
)

// Analytics implements debug.Analytics on a Prometheus registry.
type Analytics struct {
	registry *prometheus.Registry

	hotReloads      prometheus.Counter
	hotRestarts     prometheus.Counter
	sessionDuration *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
	pendingEvents   prometheus.Gauge
}

// New registers the dartdbg metrics on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Analytics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Analytics{
		registry: reg,
		hotReloads: f.NewCounter(prometheus.CounterOpts{
			Name: "dartdbg_hot_reloads_total",
			Help: "Hot reloads requested across all sessions",
		}),
		hotRestarts: f.NewCounter(prometheus.CounterOpts{
			Name: "dartdbg_hot_restarts_total",
			Help: "Hot restarts requested across all sessions",
		}),
		sessionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dartdbg_session_duration_seconds",
			Help:    "Lifetime of ended debug sessions",
			Buckets: []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 4 * 3600},
		}, []string{"debugger_type"}),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "dartdbg_active_sessions",
			Help: "Debug sessions currently tracked",
		}),
		pendingEvents: f.NewGauge(prometheus.GaugeOpts{
			Name: "dartdbg_pending_events",
			Help: "Custom events waiting for their session to start",
		}),
	}
}

// HotReload implements debug.Analytics.
func (a *Analytics) HotReload() {
	a.hotReloads.Inc()
}

// HotRestart implements debug.Analytics.
func (a *Analytics) HotRestart() {
	a.hotRestarts.Inc()
}

// SessionEnded implements debug.Analytics.
func (a *Analytics) SessionEnded(t debug.DebuggerType, d time.Duration) {
	a.sessionDuration.WithLabelValues(t.String()).Observe(d.Seconds())
}

// ActiveSessions implements debug.Analytics.
func (a *Analytics) ActiveSessions(n int) {
	a.activeSessions.Set(float64(n))
}

// PendingEvents implements debug.Analytics.
func (a *Analytics) PendingEvents(n int) {
	a.pendingEvents.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (a *Analytics) Handler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})
}
