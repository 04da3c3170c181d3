package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upstream Metrics
var (
	// UpstreamFetchDuration tracks single-page fetch+decode latency by outcome
	UpstreamFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_fetch_duration_seconds",
			Help:    "Upstream page fetch duration in seconds by outcome (success/transport/decode)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	// UpstreamFetchesShared tracks page fetches answered by an in-flight identical fetch
	UpstreamFetchesShared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upstream_fetches_shared_total",
			Help: "Page fetches served from a concurrent in-flight fetch of the same page",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Poll Loop Metrics
var (
	// PollCyclesTotal tracks steady-state poll cycles by outcome
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_cycles_total",
			Help: "Total poll cycles by outcome (success/transport_error/decode_error)",
		},
		[]string{"outcome"},
	)

	// PollBootstrapAttemptsTotal tracks bootstrap attempts by outcome
	PollBootstrapAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_bootstrap_attempts_total",
			Help: "Total bootstrap attempts by outcome (success/failure)",
		},
		[]string{"outcome"},
	)

	// PollNovelRecordsTotal tracks records detected as new
	PollNovelRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poll_novel_records_total",
			Help: "Total records detected as novel across poll cycles",
		},
	)

	// PollKnownRecords tracks the size of the deduplication store
	PollKnownRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poll_known_records",
			Help: "Number of record ids currently known to the deduplication store",
		},
	)
)

// Broadcast Metrics
var (
	// BroadcastPublishedTotal tracks records handed to the hub
	BroadcastPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_published_records_total",
			Help: "Total records published to the broadcast hub",
		},
	)

	// BroadcastDeliveriesTotal tracks records accepted into subscriber buffers
	BroadcastDeliveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Total records accepted into subscriber buffers",
		},
	)

	// BroadcastDroppedRecordsTotal tracks records dropped because a subscriber buffer was full
	BroadcastDroppedRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_dropped_records_total",
			Help: "Total records dropped for lagging subscribers (buffer full)",
		},
	)

	// BroadcastSubscribers tracks current hub subscriptions
	BroadcastSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_subscribers",
			Help: "Current number of broadcast hub subscriptions",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketSessionsCurrent tracks live subscriber sessions
	WebSocketSessionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_sessions_current",
			Help: "Current number of live WebSocket subscriber sessions",
		},
	)

	// WebSocketConnectionsRejected tracks rejected connection attempts by reason
	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Total WebSocket connections rejected by reason (rate_limit/per_ip_limit/global_limit/duplicate_session/max_sessions)",
		},
		[]string{"reason"},
	)

	// WebSocketMessageSendDuration tracks WebSocket message send duration
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	// WebSocketConnectionDuration tracks how long sessions stay connected
	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "WebSocket session lifetime in seconds",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 14400, 86400},
		},
	)

	// WebSocketPingFailures tracks WebSocket ping failures
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping failures (client not responding)",
		},
	)

	// WebSocketEchoedMessagesTotal tracks inbound client messages echoed back
	WebSocketEchoedMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_echoed_messages_total",
			Help: "Total inbound client messages echoed back to the sender",
		},
	)

	// RegistryStopTimeoutsTotal tracks registry stops that exceeded timeout
	RegistryStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_registry_stop_timeouts_total",
			Help: "Session registry stops that exceeded timeout",
		},
	)

	// HTTP metrics

	// HTTPErrorsTotal tracks HTTP errors by type
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total HTTP errors by error type",
		},
		[]string{"type"},
	)

	// HTTPRequestDuration tracks request latency by route and status class
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)
