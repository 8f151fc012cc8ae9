package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// AcquireWaitBuckets for pool acquisition waits (usually sub-millisecond,
	// long tail when the pool is saturated)
	AcquireWaitBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

	// HandlerBuckets for handler invocations (cache writes up to DB round-trips)
	HandlerBuckets = []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5}
)

// Relay Metrics
var (
	// MessagesTotal counts bus messages received per channel
	MessagesTotal CounterVec = noopCounterVec{}

	// DecodeErrorsTotal counts malformed payloads per channel
	DecodeErrorsTotal CounterVec = noopCounterVec{}

	// HandlerErrorsTotal counts handler failures per channel
	HandlerErrorsTotal CounterVec = noopCounterVec{}

	// HandlerDurationSeconds measures handler latency
	HandlerDurationSeconds Histogram = NoopStat{}

	// ActiveSubscriptions tracks subscriptions currently in the LISTENING state
	ActiveSubscriptions Gauge = NoopStat{}

	// SubscribeFailuresTotal counts channels that failed to subscribe
	SubscribeFailuresTotal Counter = NoopStat{}
)

// Database Metrics
var (
	// LeasesInUse tracks connection leases currently checked out
	LeasesInUse Gauge = NoopStat{}

	// AcquireWaitSeconds measures time blocked waiting for a pooled connection
	AcquireWaitSeconds Histogram = NoopStat{}

	// TxnTotal counts transactions by result (commit, rollback)
	TxnTotal CounterVec = noopCounterVec{}

	// StatementsTotal counts executed statements by kind (read, mutation)
	StatementsTotal CounterVec = noopCounterVec{}

	// BulkCopyRowsTotal counts rows streamed through bulk copy
	BulkCopyRowsTotal Counter = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	// Relay Metrics
	MessagesTotal = NewCounterVec(
		"messages_total",
		"Bus messages received per channel",
		[]string{"channel"},
	)
	DecodeErrorsTotal = NewCounterVec(
		"decode_errors_total",
		"Malformed payloads per channel",
		[]string{"channel"},
	)
	HandlerErrorsTotal = NewCounterVec(
		"handler_errors_total",
		"Handler failures per channel",
		[]string{"channel"},
	)
	HandlerDurationSeconds = NewHistogramWithBuckets(
		"handler_duration_seconds",
		"Handler invocation latency",
		HandlerBuckets,
	)
	ActiveSubscriptions = NewGauge(
		"active_subscriptions",
		"Subscriptions currently listening",
	)
	SubscribeFailuresTotal = NewCounter(
		"subscribe_failures_total",
		"Channels that failed to subscribe",
	)

	// Database Metrics
	LeasesInUse = NewGauge(
		"leases_in_use",
		"Connection leases currently checked out",
	)
	AcquireWaitSeconds = NewHistogramWithBuckets(
		"acquire_wait_seconds",
		"Time blocked waiting for a pooled connection",
		AcquireWaitBuckets,
	)
	TxnTotal = NewCounterVec(
		"txn_total",
		"Transactions by result",
		[]string{"result"},
	)
	StatementsTotal = NewCounterVec(
		"statements_total",
		"Executed statements by kind",
		[]string{"kind"},
	)
	BulkCopyRowsTotal = NewCounter(
		"bulk_copy_rows_total",
		"Rows streamed through bulk copy",
	)
}
