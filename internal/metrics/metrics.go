// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package metrics exposes Prometheus instrumentation for the ingestion
// pipelines, the deduplication coordinator, the SFTP transfer layer and the
// statistics store. All collectors register on the default registry via
// promauto and are served by the API at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Poller Metrics
	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "killfeed_poll_duration_seconds",
			Help:    "Duration of one poller tick for one server",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline"},
	)

	PollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_poll_errors_total",
			Help: "Total number of poll failures by stage",
		},
		[]string{"pipeline", "stage"}, // stage: connect, discover, download, persist
	)

	PollTicksSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_poll_ticks_skipped_total",
			Help: "Ticks skipped because the previous run was still in flight",
		},
		[]string{"pipeline"},
	)

	PollLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "killfeed_poll_last_success_timestamp",
			Help: "Unix timestamp of the last successful poll per server",
		},
		[]string{"pipeline", "server_id"},
	)

	FilesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_files_processed_total",
			Help: "Remote files downloaded and parsed",
		},
		[]string{"pipeline"},
	)

	// Parser and Normalizer Metrics
	RecordsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_records_parsed_total",
			Help: "Raw records produced by the parser",
		},
		[]string{"pipeline"},
	)

	ParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_parse_errors_total",
			Help: "Lines or rows that could not be parsed",
		},
		[]string{"pipeline"},
	)

	TimestampFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "killfeed_timestamp_fallbacks_total",
			Help: "Records whose timestamp could not be parsed and was replaced by the current time",
		},
	)

	// Coordinator Metrics
	EventsAdmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_events_admitted_total",
			Help: "Events admitted by the coordinator",
		},
		[]string{"pipeline", "kind"},
	)

	EventsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_events_duplicate_total",
			Help: "Events rejected as already seen",
		},
		[]string{"pipeline", "kind"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_events_dropped_total",
			Help: "Admitted events dropped before persistence",
		},
		[]string{"kind", "reason"},
	)

	SeenSetSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "killfeed_seen_fingerprints",
			Help: "Fingerprints currently retained by the coordinator",
		},
	)

	SeenSetEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_seen_fingerprint_evictions_total",
			Help: "Fingerprints evicted from the retained set",
		},
		[]string{"reason"}, // expired, pruned
	)

	// Transfer Metrics
	TransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "killfeed_transfer_duration_seconds",
			Help:    "Duration of SFTP operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	TransferErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_transfer_errors_total",
			Help: "Failed SFTP operations",
		},
		[]string{"operation"},
	)

	TransferBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "killfeed_transfer_bytes_total",
			Help: "Bytes downloaded over SFTP",
		},
	)

	TransferReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "killfeed_transfer_reconnects_total",
			Help: "Reconnects after a dropped SFTP session",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Store Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	BusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_bus_published_total",
			Help: "Admitted events published to the event bus",
		},
		[]string{"topic", "result"},
	)

	CheckpointWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_checkpoint_writes_total",
			Help: "Checkpoint flushes to BadgerDB",
		},
		[]string{"result"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)
)

// RecordPoll records one poller tick for one server.
func RecordPoll(pipeline, serverID string, duration time.Duration, err error) {
	PollDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
	if err == nil {
		PollLastSuccess.WithLabelValues(pipeline, serverID).Set(float64(time.Now().Unix()))
	}
}

// RecordPollError counts a failure at the given stage.
func RecordPollError(pipeline, stage string) {
	PollErrors.WithLabelValues(pipeline, stage).Inc()
}

// RecordAdmission records a coordinator decision.
func RecordAdmission(pipeline, kind string, duplicate bool) {
	if duplicate {
		EventsDuplicate.WithLabelValues(pipeline, kind).Inc()
		return
	}
	EventsAdmitted.WithLabelValues(pipeline, kind).Inc()
}

// RecordTransfer records one SFTP operation.
func RecordTransfer(operation string, duration time.Duration, err error) {
	TransferDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		TransferErrors.WithLabelValues(operation).Inc()
	}
}

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordCircuitBreakerRequest counts a call through a breaker.
func RecordCircuitBreakerRequest(name, result string) {
	CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}

// RecordCircuitBreakerTransition updates state gauges after a transition.
func RecordCircuitBreakerTransition(name, from, to string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}
