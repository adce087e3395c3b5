package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the synchronization server.
//
// Naming convention: namespace_subsystem_name
// - namespace: syncplay (application-level grouping)
// - subsystem: connection, room, protocol, controller, tls, stats, rate_limit
// - name: specific metric (connections_active, forced_updates_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, watchers)
// - Counter: Cumulative events (frames processed, forced updates)
// - Histogram: Latency distributions (ping RTT)

var (
	// ActiveConnections tracks the current number of open TCP sessions.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "syncplay",
		Subsystem: "connection",
		Name:      "connections_active",
		Help:      "Current number of open TCP sessions",
	})

	// ActiveRooms tracks the current number of non-empty rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "syncplay",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of non-empty rooms",
	})

	// RoomWatchers tracks the number of watchers in each room.
	RoomWatchers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "syncplay",
		Subsystem: "room",
		Name:      "watchers_count",
		Help:      "Number of watchers in each room",
	}, []string{"room"})

	// FramesProcessed tracks the total number of top-level command tags
	// dispatched, by tag and outcome.
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncplay",
		Subsystem: "protocol",
		Name:      "frames_processed_total",
		Help:      "Total command frames dispatched",
	}, []string{"tag", "outcome"})

	// ForcedUpdates tracks the total number of forcePositionUpdate calls
	// that produced a forced broadcast, versus ones that only resynced the
	// offender.
	ForcedUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncplay",
		Subsystem: "room",
		Name:      "forced_updates_total",
		Help:      "Total forcePositionUpdate invocations",
	}, []string{"outcome"})

	// ControllerAuthAttempts tracks controlled-room controllerAuth Set
	// attempts, by outcome.
	ControllerAuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncplay",
		Subsystem: "controller",
		Name:      "auth_attempts_total",
		Help:      "Total controllerAuth attempts against controlled rooms",
	}, []string{"outcome"})

	// PingRTT tracks the measured round-trip time per ping exchange.
	PingRTT = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "syncplay",
		Subsystem: "protocol",
		Name:      "ping_rtt_seconds",
		Help:      "Measured ping round-trip time",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2, 5},
	})

	// TLSReloads tracks certificate hot-reload attempts, by outcome.
	TLSReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncplay",
		Subsystem: "tls",
		Name:      "reloads_total",
		Help:      "Total TLS certificate reload attempts",
	}, []string{"outcome"})

	// StatsSnapshots tracks stats DB snapshot writes, by outcome.
	StatsSnapshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncplay",
		Subsystem: "stats",
		Name:      "snapshots_total",
		Help:      "Total stats DB snapshot attempts",
	}, []string{"outcome"})

	// StatsCircuitBreakerState tracks the stats DB circuit breaker's state.
	// 0: Closed (healthy), 1: Open (failing), 2: Half-Open (probing).
	StatsCircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "syncplay",
		Subsystem: "stats",
		Name:      "circuit_breaker_state",
		Help:      "Current state of the stats DB circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	})

	// RateLimitExceeded tracks connection admissions rejected by the
	// wireproxy's rate limiter.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncplay",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total connection attempts rejected by the admission rate limiter",
	}, []string{"reason"})
)

// IncConnection records a newly accepted session.
func IncConnection() {
	ActiveConnections.Inc()
}

// DecConnection records a closed session.
func DecConnection() {
	ActiveConnections.Dec()
}
