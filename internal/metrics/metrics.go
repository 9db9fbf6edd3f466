// Package metrics provides Prometheus instrumentation for the coordinator:
// gauges for the registry, waiting pool and active sessions, and counters
// for relay throughput and moderation activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections tracks the current number of live registered connections.
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairwise_connections",
		Help: "Current number of live connections in the registry",
	})

	// Waiting tracks the current size of the waiting pool.
	Waiting = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairwise_waiting",
		Help: "Current number of connections in the waiting pool",
	})

	// ActiveSessions tracks the current number of paired sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairwise_active_sessions",
		Help: "Current number of active paired sessions",
	})

	// Relayed counts frames forwarded between partners, labeled by kind:
	// "chat", "typing", "read", or "signal".
	Relayed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairwise_relayed_total",
		Help: "Total frames relayed between paired connections",
	}, []string{"kind"})

	// Reports counts filed user reports.
	Reports = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairwise_reports_total",
		Help: "Total user reports filed",
	})

	// Bans counts report-threshold forced disconnects.
	Bans = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairwise_bans_total",
		Help: "Total connections forcibly closed by the report threshold",
	})

	// DroppedFrames counts inbound frames dropped at the boundary, labeled
	// by cause: "malformed" or "rate_limited".
	DroppedFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairwise_dropped_frames_total",
		Help: "Total inbound frames dropped before dispatch",
	}, []string{"cause"})
)

func init() {
	prometheus.MustRegister(
		Connections,
		Waiting,
		ActiveSessions,
		Relayed,
		Reports,
		Bans,
		DroppedFrames,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
