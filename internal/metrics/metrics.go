package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Room metrics
	RoomsLive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "presence_rooms_live",
			Help: "Rooms currently registered",
		},
		[]string{"kind"},
	)

	SessionsJoined = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_sessions_joined_total",
			Help: "Sessions attached to a room",
		},
		[]string{"kind"},
	)

	JoinsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_joins_rejected_total",
			Help: "Join attempts rejected",
		},
		[]string{"reason"},
	)

	MessagesHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_messages_handled_total",
			Help: "Inbound room messages dispatched to a handler",
		},
		[]string{"kind", "type"},
	)

	MessagesIgnored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_messages_ignored_total",
			Help: "Inbound room messages dropped before reaching a handler",
		},
		[]string{"kind", "reason"}, // "unknown", "bad_payload", "throttled", "disposed", "panic"
	)

	SweepEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_sweep_evictions_total",
			Help: "Users evicted by the idle presence sweep",
		},
		[]string{"kind"},
	)

	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_frames_dropped_total",
			Help: "Outbound frames dropped because a session could not accept them",
		},
	)

	// Aggregator metrics
	BucketUsers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "presence_bucket_users",
			Help: "Live sessions per occupancy bucket",
		},
		[]string{"bucket"},
	)

	StatsRefreshFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_stats_refresh_failures_total",
			Help: "Aggregator refresh cycles skipped because enumeration failed",
		},
	)

	StatsRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "presence_stats_refresh_duration_seconds",
			Help:    "Aggregator refresh cycle duration",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)
