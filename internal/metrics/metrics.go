// Package metrics holds the Prometheus collectors shared across the
// upstream clients, stores, and pipelines.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// UpstreamCallsTotal counts completed upstream HTTP calls, labeled by
// upstream name and outcome status (a string status code, or "transport").
var UpstreamCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dailydosu",
	Name:      "upstream_calls_total",
	Help:      "Total upstream HTTP calls, labeled by client and status.",
}, []string{"client", "status"})

// UpstreamCallDuration observes the latency of each upstream HTTP round
// trip, labeled by client name.
var UpstreamCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "dailydosu",
	Name:      "upstream_call_duration_seconds",
	Help:      "Upstream HTTP call latency in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"client"})

// RetryBackoffSleepSeconds observes each backoff sleep duration applied by
// the retry policy, labeled by the reason that triggered it.
var RetryBackoffSleepSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "dailydosu",
	Name:      "retry_backoff_sleep_seconds",
	Help:      "Sleep duration applied by the retry policy before a retried call.",
	Buckets:   []float64{0.1, 0.5, 1, 2, 4, 8, 16, 32, 64},
}, []string{"reason"})

// StoreOpDuration observes store operation latency, labeled by store name
// and operation.
var StoreOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "dailydosu",
	Name:      "store_op_duration_seconds",
	Help:      "Store operation latency in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"store", "op"})

// PipelineRunDuration observes the end-to-end duration of a pipeline run,
// labeled by pipeline name and outcome.
var PipelineRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "dailydosu",
	Name:      "pipeline_run_duration_seconds",
	Help:      "End-to-end pipeline run duration in seconds.",
	Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
}, []string{"pipeline", "outcome"})

// TokenRefreshTotal counts token refresh attempts, labeled by outcome.
var TokenRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dailydosu",
	Name:      "token_refresh_total",
	Help:      "Total OAuth token refresh attempts, labeled by outcome.",
}, []string{"outcome"})

// Registry is a fresh Prometheus registry with all collectors above
// registered. Call this once at startup and hand the result to the admin
// HTTP server's /metrics handler.
func Registry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		UpstreamCallsTotal,
		UpstreamCallDuration,
		RetryBackoffSleepSeconds,
		StoreOpDuration,
		PipelineRunDuration,
		TokenRefreshTotal,
	)
	return r
}
